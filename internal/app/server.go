package app

import (
	"context"
	"errors"
	"net/http"

	"golang.org/x/sync/errgroup"
)

// Serve listens on the configured port until ctx is cancelled, then shuts
// the server down gracefully and closes the store.
func (a *App) Serve(ctx context.Context) error {
	sc := a.cfg.Server
	srv := &http.Server{
		Addr:              sc.Addr(),
		Handler:           a.handler,
		ReadHeaderTimeout: sc.ReadTimeout,
		ReadTimeout:       sc.ReadTimeout,
		WriteTimeout:      sc.WriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.log.Info().Str("addr", srv.Addr).Str("driver", a.cfg.Store.Driver).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		a.log.Info().Msg("Shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sc.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	err := g.Wait()
	if cerr := a.Close(); cerr != nil {
		a.log.Error().Err(cerr).Msg("Store close failed")
	}
	return err
}
