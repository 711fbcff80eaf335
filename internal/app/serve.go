package app

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/cheahjs/sdwebui-panel/internal/api"
	"github.com/cheahjs/sdwebui-panel/internal/generation"
	"github.com/cheahjs/sdwebui-panel/internal/sdwebui"
	"github.com/cheahjs/sdwebui-panel/internal/storage"
)

const shutdownTimeout = 30 * time.Second

func newServeCmd() *cobra.Command {
	var port, sdAPIURL string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the panel backend",
		RunE: func(cmd *cobra.Command, args []string) error {
			if port != "" {
				cfg.Port = port
			}
			if sdAPIURL != "" {
				cfg.SDAPIURL = sdAPIURL
			}
			return serve(cmd.Context())
		},
	}
	cmd.Flags().StringVar(&port, "port", "", "port to listen on (overrides PORT)")
	cmd.Flags().StringVar(&sdAPIURL, "sd-api-url", "", "Stable Diffusion WebUI URL (overrides SD_API_URL)")
	return cmd
}

func serve(ctx context.Context) error {
	if err := storage.EnsureDir(cfg.UploadsDir); err != nil {
		return err
	}
	store, err := storage.NewImageStore(cfg.GeneratedDir)
	if err != nil {
		return err
	}

	client, err := sdwebui.New(sdwebui.Config{
		Host:         cfg.SDAPIURL,
		Timeout:      cfg.SDAPITimeout,
		ProbeTimeout: cfg.SDProbeTimeout,
	})
	if err != nil {
		return fmt.Errorf("failed to create Stable Diffusion client: %w", err)
	}

	generator, err := generation.New(generation.Config{
		API:            client,
		Store:          store,
		ImageURLPrefix: cfg.ImageURLPrefix(),
	})
	if err != nil {
		return err
	}

	router := api.NewRouter(api.Config{
		Generator:          generator,
		Health:             client,
		Images:             store,
		StaticDir:          cfg.StaticDir,
		MaxBodyBytes:       cfg.MaxBodyBytes,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
	})

	server := api.NewServer(api.ServerConfig{
		Addr:         cfg.Addr(),
		ReadTimeout:  cfg.HTTPReadTimeout,
		WriteTimeout: cfg.HTTPWriteTimeout(),
		IdleTimeout:  cfg.HTTPIdleTimeout,
	}, router)

	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	base := fmt.Sprintf("http://localhost:%s", cfg.Port)
	log.Info().Str("addr", cfg.Addr()).Str("sd_api_url", client.Host()).Msg("Server running")
	log.Info().Msgf("Health check: %s/api/health", base)
	log.Info().Msgf("Generate endpoint: %s/api/generate", base)
	log.Info().Msgf("Frontend: %s", base)
	log.Info().Str("generated_dir", store.BasePath()).Str("uploads_dir", cfg.UploadsDir).Msg("Storage ready")

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down server: %w", err)
	}
	return <-errCh
}
