package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/mediastore/blobfs/internal/config"
	"github.com/mediastore/blobfs/internal/server"
)

var serveListen string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the media HTTP server",
	Long: `Serve starts an HTTP server exposing every configured mount. The
configuration file is watched; edits take effect on the next request
without a restart.`,
	Example: `  blobfs serve --config blobfs.yaml
  blobfs serve --listen :9090`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serveListen, "listen", "",
		"Listen address (overrides server.listen)")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	provider := server.NewProvider(cfg, nil, logger)

	loader.Watch(func(next *config.Config) {
		provider.SetConfig(next)
	}, func(err error) {
		logger.WithError(err).Warn("Ignoring invalid configuration change")
	})

	mux := http.NewServeMux()
	for name, mount := range cfg.Mounts {
		mode := server.ModeFallback
		if mount.Mode == "terminal" {
			mode = server.ModeTerminal
		}

		handler := server.NewHandler(name, mode, provider, logger)
		pattern := mount.RequestRootPath + "/"
		mux.Handle(pattern, handler.Middleware(http.NotFoundHandler()))

		color.Green("mounted %s -> s3://%s/%s (%s)",
			mount.RequestRootPath, mount.Bucket, mount.ContainerRootPath, name)
	}

	listen := cfg.Server.Listen
	if serveListen != "" {
		listen = serveListen
	}

	srv := &http.Server{
		Addr:              listen,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.WithField("listen", listen).Info("Server started")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return nil
}
