package config

import (
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

type Delivery struct {
	PublicURL    string
	FetchTimeout time.Duration
	IdleTimeout  time.Duration
	CORSMaxAge   time.Duration
}

func (Delivery) Init(cmd *cobra.Command) error {
	cmd.PersistentFlags().String("public-url", "", "absolute URL of the proxy as seen by players, derived from requests when empty")
	if err := viper.BindPFlag("public-url", cmd.PersistentFlags().Lookup("public-url")); err != nil {
		return err
	}

	cmd.PersistentFlags().Duration("fetch-timeout", 30*time.Second, "bound of a proxied storage fetch")
	if err := viper.BindPFlag("fetch-timeout", cmd.PersistentFlags().Lookup("fetch-timeout")); err != nil {
		return err
	}

	cmd.PersistentFlags().Duration("idle-timeout", 0, "longest stall of a relayed segment, fetch-timeout when zero")
	if err := viper.BindPFlag("idle-timeout", cmd.PersistentFlags().Lookup("idle-timeout")); err != nil {
		return err
	}

	cmd.PersistentFlags().Duration("cors-max-age", 0, "how long browsers may cache CORS preflight responses")
	if err := viper.BindPFlag("cors-max-age", cmd.PersistentFlags().Lookup("cors-max-age")); err != nil {
		return err
	}

	return nil
}

func (d *Delivery) Set() {
	d.PublicURL = viper.GetString("public-url")
	d.FetchTimeout = viper.GetDuration("fetch-timeout")
	d.IdleTimeout = viper.GetDuration("idle-timeout")
	d.CORSMaxAge = viper.GetDuration("cors-max-age")
}
