package cmd

import (
	"context"
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/m1k1o/go-hlspack/internal/ledger"
)

func init() {
	var limit int

	command := &cobra.Command{
		Use:          "runs",
		Short:        "show recent packaging runs",
		Long:         `show recent packaging runs recorded in the ledger`,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if packagerConfig.Ledger == "" {
				return errors.New("packager.ledger is not configured")
			}

			l, err := ledger.Open(packagerConfig.Ledger)
			if err != nil {
				return err
			}
			defer l.Close()

			runs, err := l.Recent(context.Background(), limit)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tVIDEO\tSTATUS\tSTARTED\tDURATION\tKEY\tREASON")
			for _, r := range runs {
				fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\t%s\n",
					r.ID, r.VideoName, r.Status,
					r.StartedAt.Local().Format(time.DateTime),
					r.Duration().Round(time.Second),
					r.KeyID, r.Reason,
				)
			}
			return w.Flush()
		},
	}

	command.Flags().IntVar(&limit, "limit", 20, "number of runs to show")

	rootCmd.AddCommand(command)
}
