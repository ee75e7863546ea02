package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/ineyio/voicepool"
	"github.com/ineyio/voicepool/internal/server"
	"github.com/ineyio/voicepool/meter"
)

const shutdownTimeout = 15 * time.Second

func newServeCommand(a *app) *cobra.Command {
	var listen string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if listen != "" {
				a.cfg.Server.Listen = listen
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return a.serve(ctx)
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "", "listen address, overrides server.listen")
	return cmd
}

func (a *app) serve(ctx context.Context) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	pm, err := meter.NewPrometheusMeter(reg)
	if err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}

	st, err := a.openPool(ctx, pm)
	if err != nil {
		return err
	}
	defer st.Close()

	c, mem, err := openCache(a.cfg.Cache, &st.closers)
	if err != nil {
		return err
	}

	// With a zero interval the sweeper only serves on-demand sweeps.
	sweeper := voicepool.NewSweeper(st.pool)

	opts := []server.Option{
		server.WithLogger(a.logger),
		server.WithSweeper(sweeper),
		server.WithMetricsHandler(promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})),
	}
	if vc, ok := st.provider.(voicepool.VoiceCatalog); ok {
		opts = append(opts, server.WithVoices(vc))
	}
	srv := server.New(st.pool, c, a.cfg.Server, opts...)

	httpSrv := &http.Server{
		Addr:              a.cfg.Server.Listen,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      a.cfg.Provider.Timeout*time.Duration(a.cfg.Allocation.MaxRetries) + 30*time.Second,
		IdleTimeout:       120 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	if mem != nil {
		g.Go(func() error {
			mem.Start(gctx, time.Minute)
			return nil
		})
	}
	g.Go(func() error {
		sweeper.Start(gctx)
		return nil
	})

	g.Go(func() error {
		a.logger.Info("http server listening", "addr", httpSrv.Addr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		a.logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
