package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	storageerrors "github.com/input-output-hk/catalyst-forge-libs/storage/errors"
	"github.com/input-output-hk/catalyst-forge-libs/storage/storagetypes"
	"github.com/input-output-hk/catalyst-forge-libs/storage/upload"
)

func newUploadCommand(a *app) *cobra.Command {
	var (
		endpoint     string
		name         string
		contentType  string
		randomSuffix bool
		opts         upload.Options
		files        int
	)

	cmd := &cobra.Command{
		Use:   "upload FILE...",
		Short: "Upload files through an upload endpoint",
		Long: `Upload sends files through an upload endpoint such as "storage serve",
without storage credentials. Each file goes straight to storage using presigned
URLs issued by the endpoint.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if name != "" && len(args) > 1 {
				return fmt.Errorf("%w: --name applies to a single file", storageerrors.ErrInvalidInput)
			}

			opts.ContentType = contentType
			opts.AddRandomSuffix = randomSuffix
			uploader := upload.New(endpoint, upload.WithLogger(a.logger))

			if len(args) == 1 {
				return uploadOne(cmd, a, uploader, args[0], name, opts)
			}

			batchFiles := make([]upload.File, 0, len(args))
			for _, path := range args {
				f, err := os.Open(path)
				if err != nil {
					return err
				}
				defer f.Close()

				info, err := f.Stat()
				if err != nil {
					return err
				}
				batchFiles = append(batchFiles, upload.File{Name: filepath.Base(path), Data: f, Size: info.Size()})
			}

			batch := upload.NewBatch(uploader, upload.BatchOptions{
				Options:     opts,
				Concurrency: files,
				OnError: func(f upload.File, err error) {
					a.logger.ErrorContext(ctx, "upload failed", "file", f.Name, "error", err)
				},
			})
			if _, err := batch.UploadMultiple(ctx, batchFiles); err != nil {
				return err
			}

			type result struct {
				Name     string                       `json:"name"`
				Status   upload.Status                `json:"status"`
				Response *storagetypes.UploadResponse `json:"response,omitempty"`
				Error    string                       `json:"error,omitempty"`
			}
			var (
				results []result
				failed  int
			)
			for _, s := range batch.States() {
				r := result{Name: s.File.Name, Status: s.Status, Response: s.Response}
				if s.Err != nil {
					r.Error = s.Err.Error()
					failed++
				}
				results = append(results, r)
			}
			if err := printJSON(cmd.OutOrStdout(), results); err != nil {
				return err
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d uploads failed", failed, len(results))
			}
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&endpoint, "url", "", "upload endpoint URL")
	flags.StringVar(&name, "name", "", "object name (defaults to the file name)")
	flags.StringVar(&contentType, "content-type", "", "content type (detected when empty)")
	flags.BoolVar(&randomSuffix, "random-suffix", false, "append a random suffix to the name")
	flags.BoolVar(&opts.Multipart, "multipart", false, "always upload in parts")
	flags.Int64Var(&opts.MultipartThreshold, "threshold", 0, "upload in parts above this many bytes")
	flags.Int64Var(&opts.PartSize, "part-size", storagetypes.DefaultPartSize, "part size in bytes")
	flags.IntVar(&opts.Concurrency, "concurrency", storagetypes.DefaultConcurrency, "parts in flight per file")
	flags.IntVar(&files, "files", storagetypes.DefaultConcurrency, "files uploaded at once")
	return cmd
}

func uploadOne(cmd *cobra.Command, a *app, uploader *upload.Uploader, path, name string, opts upload.Options) error {
	ctx := cmd.Context()

	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}
	if name == "" {
		name = filepath.Base(path)
	}

	opts.OnProgress = func(p storagetypes.UploadProgress) {
		a.logger.DebugContext(ctx, "progress", "name", name, "loaded", p.Loaded, "total", p.Total, "percentage", p.Percentage)
	}

	resp, err := uploader.Upload(ctx, name, f, info.Size(), opts)
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), resp)
}
