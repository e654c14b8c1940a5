package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/fgeck/homelab-remote/internal/models"
)

const shutdownTimeout = 10 * time.Second

// ListenAndServe serves the router until ctx is cancelled, then shuts down.
func (s *Server) ListenAndServe(ctx context.Context, settings models.ServerSettings) error {
	srv := &http.Server{
		Addr:              settings.Listen,
		Handler:           s.NewRouter(),
		ReadTimeout:       settings.ReadTimeout,
		ReadHeaderTimeout: settings.ReadTimeout,
		WriteTimeout:      settings.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("listen", settings.Listen).Msg("http server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	s.logger.Info().Msg("shutting down http server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down http server: %w", err)
	}
	return nil
}
