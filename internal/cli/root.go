// Package cli implements the storage command line tool.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/cobra"

	"github.com/input-output-hk/catalyst-forge-libs/storage"
	"github.com/input-output-hk/catalyst-forge-libs/storage/storagetypes"
)

// DefaultEnvFile is read for credentials unless --env-file says otherwise.
const DefaultEnvFile = "~/.tigris/.env"

type clientFactory func(ctx context.Context, opts ...storagetypes.Option) (*storage.Client, error)

// app holds the global flags and the collaborators shared by every command.
type app struct {
	envFile  string
	bucket   string
	endpoint string
	verbose  bool

	logger    *slog.Logger
	newClient clientFactory
}

// Execute runs the command line and returns the process exit code.
func Execute(ctx context.Context) int {
	root := NewRootCommand()
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(root.ErrOrStderr(), "Error:", err)
		return 1
	}
	return 0
}

// NewRootCommand builds the storage command tree.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&app{newClient: storage.New})
}

func newRootCommand(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "storage",
		Short:         "Manage objects and buckets in Tigris object storage",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			envFile, err := homedir.Expand(a.envFile)
			if err != nil {
				return fmt.Errorf("expanding env file path: %w", err)
			}
			a.envFile = envFile

			level := slog.LevelWarn
			if a.verbose {
				level = slog.LevelDebug
			}
			a.logger = slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
			return nil
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.envFile, "env-file", DefaultEnvFile, "dotenv file with TIGRIS_* settings")
	flags.StringVarP(&a.bucket, "bucket", "b", "", "bucket (default $TIGRIS_STORAGE_BUCKET)")
	flags.StringVar(&a.endpoint, "endpoint", "", "storage endpoint (default $TIGRIS_STORAGE_ENDPOINT)")
	flags.BoolVarP(&a.verbose, "verbose", "v", false, "log requests and progress")

	root.AddCommand(
		newPutCommand(a),
		newGetCommand(a),
		newHeadCommand(a),
		newListCommand(a),
		newRemoveCommand(a),
		newPresignCommand(a),
		newUpdateCommand(a),
		newStatsCommand(a),
		newBucketCommand(a),
		newUploadCommand(a),
		newServeCommand(a),
	)
	return root
}

// client builds a storage client from the global flags.
func (a *app) client(ctx context.Context) (*storage.Client, error) {
	opts := []storagetypes.Option{
		storage.WithEnvFile(a.envFile),
		storage.WithLogger(a.logger),
	}
	if a.bucket != "" {
		opts = append(opts, storage.WithBucket(a.bucket))
	}
	if a.endpoint != "" {
		opts = append(opts, storage.WithEndpoint(a.endpoint))
	}
	return a.newClient(ctx, opts...)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
