package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	miniobackend "github.com/input-output-hk/catalyst-forge-libs/storage/backend/minio"
	"github.com/input-output-hk/catalyst-forge-libs/storage/config"
	storageerrors "github.com/input-output-hk/catalyst-forge-libs/storage/errors"
	"github.com/input-output-hk/catalyst-forge-libs/storage/storagetypes"
	"github.com/input-output-hk/catalyst-forge-libs/storage/upload/server"
)

const shutdownTimeout = 10 * time.Second

func newServeCommand(a *app) *cobra.Command {
	var (
		addr        string
		backend     string
		maxBodySize int64
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the upload endpoint",
		Long: `Serve answers upload requests from clients that hold no storage
credentials, issuing presigned URLs for single uploads and multipart sessions.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			b, err := a.backend(ctx, backend)
			if err != nil {
				return err
			}

			handler := server.New(b,
				server.WithLogger(a.logger),
				server.WithMaxBodySize(maxBodySize),
			)
			return serve(ctx, a, addr, handler)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&addr, "addr", ":8080", "listen address")
	flags.StringVar(&backend, "backend", "s3", "storage backend: s3 or minio")
	flags.Int64Var(&maxBodySize, "max-body", server.DefaultMaxBodySize, "largest accepted request body in bytes")
	return cmd
}

// backend builds the server.Backend named by kind.
func (a *app) backend(ctx context.Context, kind string) (server.Backend, error) {
	switch kind {
	case "s3":
		client, err := a.client(ctx)
		if err != nil {
			return nil, err
		}
		if client.Bucket() == "" {
			return nil, storageerrors.MissingConfig("bucket", config.EnvBucket)
		}
		return client, nil

	case "minio":
		cfg, err := config.Load(
			config.WithEnvFile(a.envFile),
			config.WithOverrides(config.Config{Bucket: a.bucket, Endpoint: a.endpoint}),
		)
		if err != nil {
			return nil, err
		}
		if err := cfg.Validate(true); err != nil {
			return nil, err
		}

		core, err := miniobackend.NewCore(storagetypes.ClientConfig{
			Endpoint:        cfg.Endpoint,
			AccessKeyID:     cfg.AccessKeyID,
			SecretAccessKey: cfg.SecretAccessKey,
			SessionToken:    cfg.SessionToken,
		})
		if err != nil {
			return nil, err
		}
		return miniobackend.New(core, cfg.Bucket, miniobackend.WithLogger(a.logger)), nil

	default:
		return nil, fmt.Errorf("%w: unknown backend %q, possible values are s3 and minio", storageerrors.ErrInvalidInput, kind)
	}
}

// serve runs handler on addr until ctx is done.
func serve(ctx context.Context, a *app, addr string, handler http.Handler) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.InfoContext(ctx, "serving upload endpoint", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down: %w", err)
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
