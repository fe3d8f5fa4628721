package cmd

import (
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/m1k1o/go-hlspack/internal/serve"
)

func init() {
	service := serve.NewCommand(storageConfig)

	command := &cobra.Command{
		Use:   "serve",
		Short: "serve the delivery proxy, player and catalog",
		Long:  `serve the delivery proxy, player and catalog`,
		Run:   service.Run,
	}

	configs := service.Configs()

	onPreflight = append(onPreflight, func() {
		for _, cfg := range configs {
			cfg.Set()
		}
		service.Preflight()
	})

	for _, cfg := range configs {
		if err := cfg.Init(command); err != nil {
			log.Panic().Err(err).Msg("unable to run serve command")
		}
	}

	rootCmd.AddCommand(command)
}
