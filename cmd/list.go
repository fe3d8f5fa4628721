package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	command := &cobra.Command{
		Use:          "list [prefix]",
		Short:        "list published videos",
		Long:         `list published videos, found under the manifest folder unless a prefix is given`,
		Args:         cobra.MaximumNArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			prefix := ""
			if len(args) > 0 {
				prefix = args[0]
			}

			gateway, err := storageConfig.Gateway(context.Background())
			if err != nil {
				return err
			}

			videos, err := gateway.ListAssets(context.Background(), prefix)
			if err != nil {
				return err
			}

			for _, video := range videos {
				fmt.Fprintln(cmd.OutOrStdout(), video)
			}
			return nil
		},
	}

	rootCmd.AddCommand(command)
}
