package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"time"

	"github.com/spf13/cobra"

	"github.com/koustreak/cloudbox/internal/filestore"
)

var (
	lsLimit int
	lsToken string
	urlTTL  time.Duration
)

var testCmd = &cobra.Command{
	Use:   "test",
	Short: "Check the data box credentials against the provider",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withStore(cmd, func(ctx context.Context, st filestore.Store) error {
			res := st.TestConnection(ctx)
			if err := printJSON(cmd.OutOrStdout(), res); err != nil {
				return err
			}
			if !res.Success {
				return fmt.Errorf("connection test failed: %s", res.Message)
			}
			return nil
		})
	},
}

var lsCmd = &cobra.Command{
	Use:   "ls [prefix]",
	Short: "List the folders and files directly under a prefix",
	Long: `List one page of the folders and files directly under prefix.

Examples:
  cloudbox --box reports ls
  cloudbox --box reports ls invoices/ --limit 100
  cloudbox --box reports ls invoices/ --token <nextToken>`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		req := filestore.ListRequest{PageLimit: lsLimit, Token: lsToken}
		if len(args) == 1 {
			req.Prefix = args[0]
		}
		return withStore(cmd, func(ctx context.Context, st filestore.Store) error {
			view, err := st.ListContents(ctx, req)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), view)
		})
	},
}

var getCmd = &cobra.Command{
	Use:   "get <remote-path> [local-path]",
	Short: "Download an object (local path \"-\" writes to stdout)",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		remote := args[0]
		local := path.Base(remote)
		if len(args) == 2 {
			local = args[1]
		}
		return withStore(cmd, func(ctx context.Context, st filestore.Store) error {
			data, err := st.DownloadFile(ctx, remote)
			if err != nil {
				return err
			}
			if local == "-" {
				_, err = cmd.OutOrStdout().Write(data)
				return err
			}
			if err := os.WriteFile(local, data, 0o644); err != nil {
				return fmt.Errorf("writing %s: %w", local, err)
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s -> %s (%d bytes)\n", remote, local, len(data))
			return err
		})
	},
}

var putCmd = &cobra.Command{
	Use:   "put <local-path> <remote-path>",
	Short: "Upload a file (local path \"-\" reads stdin)",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := readLocal(cmd, args[0])
		if err != nil {
			return err
		}
		return withStore(cmd, func(ctx context.Context, st filestore.Store) error {
			res, err := st.UploadFile(ctx, data, args[1])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), res)
		})
	},
}

var urlCmd = &cobra.Command{
	Use:   "url <remote-path>",
	Short: "Print a time-limited signed URL for an object",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(cmd, func(ctx context.Context, st filestore.Store) error {
			u, err := st.GetSignedURL(ctx, args[0], urlTTL)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), u)
			return err
		})
	},
}

var bucketsCmd = &cobra.Command{
	Use:   "buckets",
	Short: "List the buckets or containers the credentials can see",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withStore(cmd, func(ctx context.Context, st filestore.Store) error {
			buckets, err := st.ListBuckets(ctx)
			if err != nil {
				return err
			}
			if buckets == nil {
				buckets = []filestore.BucketInfo{}
			}
			return printJSON(cmd.OutOrStdout(), buckets)
		})
	},
}

var mbCmd = &cobra.Command{
	Use:   "mb <name>",
	Short: "Create a bucket or container",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(cmd, func(ctx context.Context, st filestore.Store) error {
			if err := st.CreateBucket(ctx, args[0]); err != nil {
				return err
			}
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "created %s\n", args[0])
			return err
		})
	},
}

func init() {
	rootCmd.AddCommand(testCmd, lsCmd, getCmd, putCmd, urlCmd, bucketsCmd, mbCmd)

	lsCmd.Flags().IntVar(&lsLimit, "limit", 0, "Max keys per page (default and cap 1000)")
	lsCmd.Flags().StringVar(&lsToken, "token", "", "Continuation token from a previous page")
	urlCmd.Flags().DurationVar(&urlTTL, "ttl", filestore.DefaultTTL, "URL lifetime (max 168h)")
}

func readLocal(cmd *cobra.Command, local string) ([]byte, error) {
	if local == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	data, err := os.ReadFile(local)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", local, err)
	}
	return data, nil
}
