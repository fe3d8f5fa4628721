package config

import (
	"fmt"
	"net/url"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/m1k1o/go-hlspack/pkg/packager"
)

const DefaultWorkDir = "output"

type Packager struct {
	InputDir     string
	WorkDir      string
	FFmpegBinary string

	SegmentDuration  int
	TranscodeTimeout time.Duration
	Extensions       []string

	DeliveryURL string
	ExplicitIV  bool

	// sqlite database with the run history, disabled when empty
	Ledger string
}

func (Packager) Init(cmd *cobra.Command) error {
	cmd.PersistentFlags().String("packager.input-dir", "", "directory with source videos")
	if err := viper.BindPFlag("packager.input-dir", cmd.PersistentFlags().Lookup("packager.input-dir")); err != nil {
		return err
	}

	cmd.PersistentFlags().String("packager.work-dir", DefaultWorkDir, "directory keeping encoder output, keys and final playlists per video")
	if err := viper.BindPFlag("packager.work-dir", cmd.PersistentFlags().Lookup("packager.work-dir")); err != nil {
		return err
	}

	cmd.PersistentFlags().String("packager.ffmpeg-binary", "ffmpeg", "ffmpeg binary path")
	if err := viper.BindPFlag("packager.ffmpeg-binary", cmd.PersistentFlags().Lookup("packager.ffmpeg-binary")); err != nil {
		return err
	}

	cmd.PersistentFlags().Int("packager.segment-duration", 6, "target segment duration in seconds")
	if err := viper.BindPFlag("packager.segment-duration", cmd.PersistentFlags().Lookup("packager.segment-duration")); err != nil {
		return err
	}

	cmd.PersistentFlags().Duration("packager.transcode-timeout", 30*time.Minute, "bound of a single encoder run")
	if err := viper.BindPFlag("packager.transcode-timeout", cmd.PersistentFlags().Lookup("packager.transcode-timeout")); err != nil {
		return err
	}

	cmd.PersistentFlags().StringSlice("packager.extensions", []string{".mp4"}, "eligible source file extensions")
	if err := viper.BindPFlag("packager.extensions", cmd.PersistentFlags().Lookup("packager.extensions")); err != nil {
		return err
	}

	cmd.PersistentFlags().String("packager.delivery-url", "", "absolute base URL published playlists point at")
	if err := viper.BindPFlag("packager.delivery-url", cmd.PersistentFlags().Lookup("packager.delivery-url")); err != nil {
		return err
	}

	cmd.PersistentFlags().Bool("packager.explicit-iv", false, "write a random IV into the key descriptor")
	if err := viper.BindPFlag("packager.explicit-iv", cmd.PersistentFlags().Lookup("packager.explicit-iv")); err != nil {
		return err
	}

	cmd.PersistentFlags().String("packager.ledger", "", "sqlite file recording packaging runs")
	if err := viper.BindPFlag("packager.ledger", cmd.PersistentFlags().Lookup("packager.ledger")); err != nil {
		return err
	}

	return nil
}

func (p *Packager) Set() {
	p.InputDir = viper.GetString("packager.input-dir")
	p.WorkDir = viper.GetString("packager.work-dir")
	p.FFmpegBinary = viper.GetString("packager.ffmpeg-binary")

	p.SegmentDuration = viper.GetInt("packager.segment-duration")
	p.TranscodeTimeout = viper.GetDuration("packager.transcode-timeout")
	p.Extensions = viper.GetStringSlice("packager.extensions")

	p.DeliveryURL = viper.GetString("packager.delivery-url")
	p.ExplicitIV = viper.GetBool("packager.explicit-iv")
	p.Ledger = viper.GetString("packager.ledger")
}

// Validate reports settings the packager cannot start without.
func (p *Packager) Validate() error {
	if p.InputDir == "" {
		return fmt.Errorf("%w: packager.input-dir is required", ErrInvalidConfig)
	}

	u, err := url.Parse(p.DeliveryURL)
	if err != nil || !u.IsAbs() || u.Host == "" {
		return fmt.Errorf("%w: packager.delivery-url must be an absolute URL, got %q", ErrInvalidConfig, p.DeliveryURL)
	}

	return nil
}

// PackagerConfig maps the settings onto the packager. The work directory
// is kept after a run for inspection and retries.
func (p *Packager) PackagerConfig() packager.Config {
	workDir := p.WorkDir
	if workDir == "" {
		workDir = DefaultWorkDir
	}

	return packager.Config{
		InputDir:         p.InputDir,
		WorkDir:          workDir,
		Extensions:       p.Extensions,
		SegmentDuration:  p.SegmentDuration,
		TranscodeTimeout: p.TranscodeTimeout,
		DeliveryURL:      p.DeliveryURL,
		ExplicitIV:       p.ExplicitIV,
	}
}
