// Command lambda serves the Stripe webhook from AWS Lambda behind an API
// Gateway HTTP API or a function URL.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/aws/aws-lambda-go/lambda"

	"github.com/mihaimyh/subtrack/internal/app"
	"github.com/mihaimyh/subtrack/internal/config"
	lambdaadapter "github.com/mihaimyh/subtrack/middleware/lambda"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	log := app.NewLogger(os.Stdout, cfg.LogLevel, "json")

	// Built once per cold start; warm invocations reuse the store pool.
	a, err := app.New(context.Background(), cfg, log, app.Options{})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize")
	}

	lambda.Start(lambdaadapter.Webhook(a.Provider().Endpoint()))
}
