package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func init() {
	var expires time.Duration

	command := &cobra.Command{
		Use:          "presign <object-path>",
		Short:        "print a presigned URL of a stored object",
		Long:         `print a time limited URL of a stored object, e.g. manifests/<video>/stream.m3u8`,
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			gateway, err := storageConfig.Gateway(context.Background())
			if err != nil {
				return err
			}

			url, err := gateway.GeneratePresignedURL(context.Background(), args[0], expires)
			if err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), url)
			return nil
		},
	}

	command.Flags().DurationVar(&expires, "expires", 0, "URL validity, storage.presign-expiry when zero")

	rootCmd.AddCommand(command)
}
