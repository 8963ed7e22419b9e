package cli

import (
	"github.com/spf13/cobra"

	"github.com/input-output-hk/catalyst-forge-libs/storage/storagetypes"
)

func newBucketCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bucket",
		Short: "Manage buckets",
	}
	cmd.AddCommand(
		newBucketCreateCommand(a),
		newBucketListCommand(a),
		newBucketRemoveCommand(a),
		newBucketInfoCommand(a),
		newBucketUpdateCommand(a),
		newBucketSnapshotCommand(a),
		newBucketSnapshotsCommand(a),
	)
	return cmd
}

func newBucketCreateCommand(a *app) *cobra.Command {
	var (
		public bool
		tier   string
		opts   storagetypes.CreateBucketOptions
	)

	cmd := &cobra.Command{
		Use:   "create NAME",
		Short: "Create a bucket",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			client, err := a.client(ctx)
			if err != nil {
				return err
			}

			if public {
				opts.Access = storagetypes.AccessPublic
			}
			opts.DefaultTier = storagetypes.StorageClass(tier)

			res, err := client.CreateBucket(ctx, args[0], &opts)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), res)
		},
	}

	flags := cmd.Flags()
	flags.BoolVar(&public, "public", false, "make objects publicly readable")
	flags.StringVar(&tier, "tier", "", "default storage class: STANDARD, STANDARD_IA, GLACIER or GLACIER_IR")
	flags.StringSliceVar(&opts.Regions, "regions", nil, "restrict data to these regions")
	flags.BoolVar(&opts.EnableSnapshot, "snapshot", false, "enable snapshots")
	flags.StringVar(&opts.SourceBucketName, "fork-of", "", "fork this bucket")
	flags.StringVar(&opts.SourceBucketSnapshot, "fork-snapshot", "", "fork from this snapshot of the source bucket")
	return cmd
}

func newBucketListCommand(a *app) *cobra.Command {
	var opts storagetypes.ListBucketsOptions

	cmd := &cobra.Command{
		Use:     "ls",
		Aliases: []string{"list"},
		Short:   "List buckets",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			client, err := a.client(ctx)
			if err != nil {
				return err
			}

			res, err := client.ListBuckets(ctx, &opts)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), res)
		},
	}

	cmd.Flags().Int32Var(&opts.Limit, "limit", 0, "maximum number of buckets")
	cmd.Flags().StringVar(&opts.PaginationToken, "page-token", "", "continue a previous listing")
	return cmd
}

func newBucketRemoveCommand(a *app) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:     "rm NAME",
		Aliases: []string{"remove"},
		Short:   "Remove a bucket",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			client, err := a.client(ctx)
			if err != nil {
				return err
			}

			if err := client.RemoveBucket(ctx, args[0], &storagetypes.RemoveBucketOptions{Force: force}); err != nil {
				return err
			}
			a.logger.InfoContext(ctx, "removed bucket", "bucket", args[0])
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "delete the bucket together with its objects")
	return cmd
}

func newBucketInfoCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "info NAME",
		Short: "Show bucket settings, forks and size",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			client, err := a.client(ctx)
			if err != nil {
				return err
			}

			res, err := client.BucketInfo(ctx, args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), res)
		},
	}
}

func newBucketUpdateCommand(a *app) *cobra.Command {
	var (
		access  string
		opts    storagetypes.UpdateBucketOptions
		aclFlag bool
		listing bool
		protect bool
	)

	cmd := &cobra.Command{
		Use:   "update NAME",
		Short: "Change bucket settings",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			client, err := a.client(ctx)
			if err != nil {
				return err
			}

			opts.Access = storagetypes.Access(access)
			flags := cmd.Flags()
			if flags.Changed("allow-object-acl") {
				opts.AllowObjectACL = &aclFlag
			}
			if flags.Changed("disable-listing") {
				opts.DisableDirectoryListing = &listing
			}
			if flags.Changed("delete-protection") {
				opts.EnableDeleteProtection = &protect
			}

			res, err := client.UpdateBucket(ctx, args[0], &opts)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), res)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&access, "access", "", "public or private")
	flags.BoolVar(&aclFlag, "allow-object-acl", false, "let objects carry their own ACL")
	flags.BoolVar(&listing, "disable-listing", false, "hide the object listing of public buckets")
	flags.StringSliceVar(&opts.Regions, "regions", nil, "restrict data to these regions")
	flags.StringVar(&opts.CacheControl, "cache-control", "", "default Cache-Control for objects")
	flags.StringVar(&opts.CustomDomain, "custom-domain", "", "serve the bucket from this domain")
	flags.BoolVar(&protect, "delete-protection", false, "refuse bucket deletion")
	return cmd
}

func newBucketSnapshotCommand(a *app) *cobra.Command {
	var name string

	cmd := &cobra.Command{
		Use:   "snapshot [NAME]",
		Short: "Take a snapshot of a bucket (default: --bucket)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			client, err := a.client(ctx)
			if err != nil {
				return err
			}

			bucket := ""
			if len(args) == 1 {
				bucket = args[0]
			}
			if err := client.CreateBucketSnapshot(ctx, bucket, &storagetypes.BucketSnapshotOptions{Name: name}); err != nil {
				return err
			}
			a.logger.InfoContext(ctx, "created snapshot", "bucket", bucket, "name", name)
			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "label for the snapshot")
	return cmd
}

func newBucketSnapshotsCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "snapshots [NAME]",
		Short: "List the snapshots of a bucket (default: --bucket)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			client, err := a.client(ctx)
			if err != nil {
				return err
			}

			bucket := ""
			if len(args) == 1 {
				bucket = args[0]
			}
			res, err := client.ListBucketSnapshots(ctx, bucket)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), res)
		},
	}
}
