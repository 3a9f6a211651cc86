// Serve command: run the gRPC and observability servers
package main

import (
	"context"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/calderhof/revstore/internal/config"
	"github.com/calderhof/revstore/internal/logger"
	"github.com/calderhof/revstore/internal/metrics"
	"github.com/calderhof/revstore/internal/server"
)

const shutdownTimeout = 15 * time.Second

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the repository server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return err
			}
			return runServe(cfg)
		},
	}
}

func runServe(cfg *config.Config) error {
	log := logger.NewLogger(logger.Config{Level: cfg.LogLevel, Pretty: cfg.LogPretty})
	m := metrics.NewMetrics()

	r, closeStores, err := openRepository(cfg, log, m)
	if err != nil {
		return err
	}

	if err := r.Bootstrap(context.Background()); err != nil {
		closeStores()
		return err
	}

	grpcSrv := server.NewServer(r, m, log)
	obsSrv := server.NewObservabilityServer(cfg.HTTPPort, log)

	errCh := make(chan error, 2)
	go func() {
		errCh <- grpcSrv.Serve(cfg.GrpcAddr)
	}()
	go func() {
		errCh <- obsSrv.Start()
	}()

	log.LogServerStart(cfg.GrpcAddr, obsAddr(cfg.HTTPPort), cfg.DataDir)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info("Signal received").Str("signal", sig.String()).Send()
	case err := <-errCh:
		if err != nil {
			log.Error("Server failed").Err(err).Send()
		}
	}

	log.LogServerShutdown()
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := obsSrv.Shutdown(ctx); err != nil {
		log.Warn("Observability shutdown").Err(err).Send()
	}
	if err := grpcSrv.Shutdown(ctx); err != nil {
		log.Warn("gRPC shutdown").Err(err).Send()
	}
	return closeStores()
}

func obsAddr(port int) string {
	return ":" + strconv.Itoa(port)
}
