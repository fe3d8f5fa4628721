package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/m1k1o/go-hlspack/internal/ledger"
	"github.com/m1k1o/go-hlspack/pkg/keys"
	"github.com/m1k1o/go-hlspack/pkg/packager"
	"github.com/m1k1o/go-hlspack/pkg/transcoder"
)

func init() {
	command := &cobra.Command{
		Use:          "package [files...]",
		Short:        "encrypt, package and publish videos",
		Long:         `encrypt, package and publish every eligible video of the input directory, or only the given files`,
		SilenceUsage: true,
		RunE:         runPackage,
	}

	rootCmd.AddCommand(command)
}

func runPackage(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := packagerConfig.Validate(); err != nil {
		return err
	}

	gateway, err := storageConfig.Gateway(ctx)
	if err != nil {
		return err
	}

	manager := packager.New(packagerConfig.PackagerConfig(), keys.New(), transcoder.NewFFmpeg(packagerConfig.FFmpegBinary), gateway)

	if packagerConfig.Ledger != "" {
		l, err := ledger.Open(packagerConfig.Ledger)
		if err != nil {
			return err
		}
		defer l.Close()

		manager.WithRecorder(l)
	}

	if err := manager.Preflight(ctx); err != nil {
		return err
	}

	var summary packager.Summary
	if len(args) > 0 {
		summary = manager.ProcessFiles(ctx, args)
	} else if summary, err = manager.ProcessAll(ctx); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	for _, file := range summary.Succeeded {
		fmt.Fprintf(out, "ok      %s\n", file)
	}
	for _, failure := range summary.Failed {
		fmt.Fprintf(out, "failed  %s: %s\n", failure.File, failure.Reason)
	}
	fmt.Fprintf(out, "%d of %d videos packaged\n", len(summary.Succeeded), summary.Total)

	if len(summary.Failed) > 0 {
		log.Warn().Int("failed", len(summary.Failed)).Msg("some videos were not packaged")
		return fmt.Errorf("%d of %d videos failed", len(summary.Failed), summary.Total)
	}

	return nil
}
