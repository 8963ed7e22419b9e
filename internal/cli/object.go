package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/input-output-hk/catalyst-forge-libs/storage/storagetypes"
)

func newPutCommand(a *app) *cobra.Command {
	var (
		public       bool
		attachment   bool
		contentType  string
		randomSuffix bool
		noOverwrite  bool
		multipart    bool
	)

	cmd := &cobra.Command{
		Use:   "put KEY [FILE]",
		Short: "Store a file, or standard input, under KEY",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			client, err := a.client(ctx)
			if err != nil {
				return err
			}

			opts := &storagetypes.PutOptions{
				ContentType:     contentType,
				AddRandomSuffix: randomSuffix,
				Multipart:       multipart,
			}
			if public {
				opts.Access = storagetypes.AccessPublic
			}
			if attachment {
				opts.ContentDisposition = storagetypes.DispositionAttachment
			}
			if noOverwrite {
				allow := false
				opts.AllowOverwrite = &allow
			}
			if a.verbose {
				opts.OnProgress = func(p storagetypes.UploadProgress) {
					a.logger.DebugContext(ctx, "progress", "loaded", p.Loaded, "total", p.Total, "percentage", p.Percentage)
				}
			}

			var res *storagetypes.PutResult
			if len(args) == 2 && args[1] != "-" {
				path, err := filepath.Abs(args[1])
				if err != nil {
					return err
				}
				res, err = client.PutFile(ctx, args[0], path, opts)
				if err != nil {
					return err
				}
			} else {
				res, err = client.Put(ctx, args[0], cmd.InOrStdin(), opts)
				if err != nil {
					return err
				}
			}
			return printJSON(cmd.OutOrStdout(), res)
		},
	}

	flags := cmd.Flags()
	flags.BoolVar(&public, "public", false, "make the object publicly readable")
	flags.BoolVar(&attachment, "attachment", false, "serve the object as a download")
	flags.StringVar(&contentType, "content-type", "", "content type (detected when empty)")
	flags.BoolVar(&randomSuffix, "random-suffix", false, "append a random suffix to the key")
	flags.BoolVar(&noOverwrite, "no-overwrite", false, "fail if the object already exists")
	flags.BoolVar(&multipart, "multipart", false, "upload in parts")
	return cmd
}

func newGetCommand(a *app) *cobra.Command {
	var (
		output   string
		snapshot string
	)

	cmd := &cobra.Command{
		Use:   "get KEY",
		Short: "Write an object to standard output or a file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			client, err := a.client(ctx)
			if err != nil {
				return err
			}

			stream, err := client.GetStream(ctx, args[0], &storagetypes.GetOptions{SnapshotVersion: snapshot})
			if err != nil {
				return err
			}
			defer stream.Body.Close()

			w := cmd.OutOrStdout()
			if output != "" {
				f, err := os.Create(output)
				if err != nil {
					return err
				}
				defer f.Close()
				w = f
			}

			if _, err := io.Copy(w, stream.Body); err != nil {
				return fmt.Errorf("copying %s: %w", args[0], err)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "write to this file instead of standard output")
	cmd.Flags().StringVar(&snapshot, "snapshot", "", "read from this bucket snapshot version")
	return cmd
}

func newHeadCommand(a *app) *cobra.Command {
	var snapshot string

	cmd := &cobra.Command{
		Use:   "head KEY",
		Short: "Show object metadata",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			client, err := a.client(ctx)
			if err != nil {
				return err
			}

			res, err := client.Head(ctx, args[0], &storagetypes.HeadOptions{SnapshotVersion: snapshot})
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), res)
		},
	}

	cmd.Flags().StringVar(&snapshot, "snapshot", "", "read from this bucket snapshot version")
	return cmd
}

func newListCommand(a *app) *cobra.Command {
	var opts storagetypes.ListOptions

	cmd := &cobra.Command{
		Use:     "ls",
		Aliases: []string{"list"},
		Short:   "List objects",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			client, err := a.client(ctx)
			if err != nil {
				return err
			}

			res, err := client.List(ctx, &opts)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), res)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.Prefix, "prefix", "", "only list keys starting with this prefix")
	flags.Int32Var(&opts.Limit, "limit", 0, "maximum number of objects")
	flags.StringVar(&opts.PaginationToken, "page-token", "", "continue a previous listing")
	flags.StringVar(&opts.SnapshotVersion, "snapshot", "", "list this bucket snapshot version")
	return cmd
}

func newRemoveCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     "rm KEY...",
		Aliases: []string{"remove"},
		Short:   "Remove objects",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			client, err := a.client(ctx)
			if err != nil {
				return err
			}

			for _, key := range args {
				if err := client.Remove(ctx, key); err != nil {
					return err
				}
				a.logger.InfoContext(ctx, "removed", "key", key)
			}
			return nil
		},
	}
}

func newPresignCommand(a *app) *cobra.Command {
	var (
		put         bool
		contentType string
		expires     time.Duration
	)

	cmd := &cobra.Command{
		Use:   "presign KEY",
		Short: "Print a presigned URL for KEY",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			client, err := a.client(ctx)
			if err != nil {
				return err
			}

			op := storagetypes.PresignGet
			if put {
				op = storagetypes.PresignPut
			}
			res, err := client.PresignURL(ctx, args[0], storagetypes.PresignOptions{
				Operation:   op,
				ContentType: contentType,
				Expires:     expires,
			})
			if err != nil {
				return err
			}

			_, err = fmt.Fprintln(cmd.OutOrStdout(), res.URL)
			return err
		},
	}

	flags := cmd.Flags()
	flags.BoolVar(&put, "put", false, "presign an upload instead of a download")
	flags.StringVar(&contentType, "content-type", "", "content type the upload must use")
	flags.DurationVar(&expires, "expires", storagetypes.DefaultPresignExpiry, "how long the URL stays valid")
	return cmd
}

func newUpdateCommand(a *app) *cobra.Command {
	var (
		rename string
		access string
	)

	cmd := &cobra.Command{
		Use:     "update KEY",
		Aliases: []string{"mv"},
		Short:   "Rename an object or change its access",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			client, err := a.client(ctx)
			if err != nil {
				return err
			}

			res, err := client.UpdateObject(ctx, args[0], &storagetypes.UpdateObjectOptions{
				Key:    rename,
				Access: storagetypes.Access(access),
			})
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), res)
		},
	}

	cmd.Flags().StringVar(&rename, "to", "", "new key for the object")
	cmd.Flags().StringVar(&access, "access", "", "public or private")
	return cmd
}

func newStatsCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show account usage and a summary of every bucket",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			client, err := a.client(ctx)
			if err != nil {
				return err
			}

			res, err := client.Stats(ctx)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), res)
		},
	}
}
