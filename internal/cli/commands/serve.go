package commands

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/conduit-lang/restdecl/internal/auth"
	"github.com/conduit-lang/restdecl/internal/cli/config"
	"github.com/conduit-lang/restdecl/internal/mockapi"
)

// tokenTTL bounds tokens issued from auth.jwt_secret.
const tokenTTL = time.Hour

type serveOptions struct {
	addr    string
	metrics bool
	// ready receives the bound address once the listener is up.
	ready func(addr string)
}

func newServeCommand(g *globals) *cobra.Command {
	opts := &serveOptions{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the bundled posts API",
		Long: `Run an in-memory posts API that the demo client talks to.

When auth.jwt_secret is configured, /posts routes require a bearer token
signed with it. --metrics exposes the server process's Go and process
metrics on /metrics; client metrics are printed by "call --metrics".

Examples:
  restdecl serve
  restdecl serve --addr :9090 --metrics`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.loadConfig(cmd)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, cmd, cfg, opts)
		},
	}

	cmd.Flags().StringVar(&opts.addr, "addr", ":8080", "Address to listen on")
	cmd.Flags().BoolVar(&opts.metrics, "metrics", false, "Expose Prometheus metrics on /metrics")

	return cmd
}

func runServe(ctx context.Context, cmd *cobra.Command, cfg *config.Config, opts *serveOptions) error {
	logger, err := config.NewLogger(cfg.Log)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	mockOpts := []mockapi.Option{mockapi.WithLogger(logger.Named("mockapi"))}
	if cfg.Auth.JWTSecret != "" {
		mockOpts = append(mockOpts, mockapi.WithIssuer(auth.NewIssuer(cfg.Auth.JWTSecret, tokenTTL)))
	}

	r := chi.NewRouter()
	if opts.metrics || cfg.Metrics.Enabled {
		r.Handle("/metrics", promhttp.Handler())
	}
	r.Mount("/", mockapi.New(mockOpts...))

	ln, err := net.Listen("tcp", opts.addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", opts.addr, err)
	}

	srv := &http.Server{
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	color.New(color.FgGreen, color.Bold).Fprintf(cmd.OutOrStdout(), "Serving posts API on http://%s\n", ln.Addr())
	logger.Info("server started", zap.String("addr", ln.Addr().String()))
	if opts.ready != nil {
		opts.ready(ln.Addr().String())
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	logger.Info("server stopped")
	return nil
}
