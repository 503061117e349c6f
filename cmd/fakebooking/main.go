// Command fakebooking serves the in-memory booking API for local load test
// runs, e.g. `bookload run --base-url http://localhost:8080/api`.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/wesleyorama2/bookload/internal/booking/bookingtest"
	"github.com/wesleyorama2/bookload/internal/logging"
)

func main() {
	var (
		addr     string
		latency  time.Duration
		logLevel string
	)

	cmd := &cobra.Command{
		Use:          "fakebooking",
		Short:        "Serve an in-memory booking API for load test rehearsals",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := logging.New(logLevel, logging.FormatConsole)
			if err != nil {
				return err
			}
			defer logger.Sync()

			svc := bookingtest.NewService()
			svc.SetLatency(latency)

			server := &http.Server{
				Addr:              addr,
				Handler:           svc,
				ReadTimeout:       5 * time.Second,
				WriteTimeout:      5 * time.Second + latency,
				IdleTimeout:       120 * time.Second,
				MaxHeaderBytes:    1 << 20,
				ReadHeaderTimeout: 2 * time.Second,
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			errCh := make(chan error, 1)
			go func() {
				logger.Info("serving fake booking API",
					zap.String("addr", addr),
					zap.Duration("latency", latency))
				errCh <- server.ListenAndServe()
			}()

			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			logger.Info("stopped",
				zap.Int64("requests", svc.Requests()),
				zap.Int("bookings", svc.Bookings()))
			return nil
		},
	}

	cmd.Flags().StringVar(&addr, "addr", ":8080", "Listen address")
	cmd.Flags().DurationVar(&latency, "latency", 0, "Delay added to every response")
	cmd.Flags().StringVar(&logLevel, "log-level", "info", "Log level")

	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
