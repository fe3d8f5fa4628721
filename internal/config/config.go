package config

import (
	"errors"

	"github.com/spf13/cobra"
)

var ErrInvalidConfig = errors.New("invalid configuration")

type Config interface {
	Init(cmd *cobra.Command) error
	Set()
}
