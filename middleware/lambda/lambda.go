// Package lambda adapts the webhook endpoint to AWS Lambda behind an API
// Gateway HTTP API or a function URL (payload format 2.0).
package lambda

import (
	"bytes"
	"context"
	"encoding/base64"
	"net/http"
	"strings"

	"github.com/aws/aws-lambda-go/events"

	"github.com/mihaimyh/subtrack/pkg/billing/stripe"
)

// HandlerFunc is the signature lambda.Start expects for HTTP API events.
type HandlerFunc func(ctx context.Context, req events.APIGatewayV2HTTPRequest) (events.APIGatewayV2HTTPResponse, error)

// Webhook returns a Lambda handler that runs every invocation through endpoint.
// It never returns an error: failures are HTTP responses, so Lambda does not
// retry the invocation on top of Stripe's own redelivery.
func Webhook(endpoint *stripe.Endpoint) HandlerFunc {
	return func(ctx context.Context, req events.APIGatewayV2HTTPRequest) (events.APIGatewayV2HTTPResponse, error) {
		reqID := header(req.Headers, stripe.RequestIDHeader)
		if reqID == "" {
			reqID = req.RequestContext.RequestID
		}
		reqID = stripe.EnsureRequestID(reqID)

		method := req.RequestContext.HTTP.Method
		body := []byte(req.Body)
		// The endpoint answers non-POST methods without reading the body.
		if req.IsBase64Encoded && method == http.MethodPost {
			decoded, err := base64.StdEncoding.DecodeString(req.Body)
			if err != nil {
				return toResponse(stripe.ErrorResponse(http.StatusBadRequest, "invalid payload"), reqID), nil
			}
			body = decoded
		}

		resp := endpoint.Process(ctx, stripe.Request{
			Method:    method,
			Signature: header(req.Headers, stripe.SignatureHeader),
			RequestID: reqID,
			Body:      bytes.NewReader(body),
		})
		return toResponse(resp, reqID), nil
	}
}

// header looks name up case-insensitively; API Gateway lower-cases header
// names but function URLs and tests may not.
func header(headers map[string]string, name string) string {
	if v, ok := headers[strings.ToLower(name)]; ok {
		return v
	}
	for k, v := range headers {
		if strings.EqualFold(k, name) {
			return v
		}
	}
	return ""
}

func toResponse(resp stripe.Response, reqID string) events.APIGatewayV2HTTPResponse {
	headers := make(map[string]string)
	for k, v := range resp.Header() {
		headers[k] = strings.Join(v, ", ")
	}
	headers[stripe.RequestIDHeader] = reqID

	return events.APIGatewayV2HTTPResponse{
		StatusCode: resp.Status,
		Headers:    headers,
		Body:       string(resp.Body),
	}
}
