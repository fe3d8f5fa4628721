package config

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/m1k1o/go-hlspack/pkg/manifest"
	"github.com/m1k1o/go-hlspack/pkg/storage"
)

type Storage struct {
	Strategy    string
	Endpoint    string
	Region      string
	AccessKey   string
	SecretKey   string
	Bucket      string
	MediaBucket string
	PathStyle   bool

	KeyFolder      string
	ManifestFolder string
	MediaFolder    string

	PresignExpiry time.Duration
	Timeout       time.Duration
}

func (Storage) Init(cmd *cobra.Command) error {
	cmd.PersistentFlags().String("storage.strategy", string(storage.StrategySingle), "bucket layout: single or dual")
	if err := viper.BindPFlag("storage.strategy", cmd.PersistentFlags().Lookup("storage.strategy")); err != nil {
		return err
	}

	cmd.PersistentFlags().String("storage.endpoint", "", "S3 compatible endpoint, AWS when empty")
	if err := viper.BindPFlag("storage.endpoint", cmd.PersistentFlags().Lookup("storage.endpoint")); err != nil {
		return err
	}

	cmd.PersistentFlags().String("storage.region", "us-east-1", "storage region")
	if err := viper.BindPFlag("storage.region", cmd.PersistentFlags().Lookup("storage.region")); err != nil {
		return err
	}

	cmd.PersistentFlags().String("storage.access-key", "", "storage access key, default credential chain when empty")
	if err := viper.BindPFlag("storage.access-key", cmd.PersistentFlags().Lookup("storage.access-key")); err != nil {
		return err
	}

	cmd.PersistentFlags().String("storage.secret-key", "", "storage secret key")
	if err := viper.BindPFlag("storage.secret-key", cmd.PersistentFlags().Lookup("storage.secret-key")); err != nil {
		return err
	}

	cmd.PersistentFlags().String("storage.bucket", "", "control bucket, holds everything for the single strategy")
	if err := viper.BindPFlag("storage.bucket", cmd.PersistentFlags().Lookup("storage.bucket")); err != nil {
		return err
	}

	cmd.PersistentFlags().String("storage.media-bucket", "", "media bucket for the dual strategy")
	if err := viper.BindPFlag("storage.media-bucket", cmd.PersistentFlags().Lookup("storage.media-bucket")); err != nil {
		return err
	}

	cmd.PersistentFlags().Bool("storage.path-style", false, "use path style bucket addressing")
	if err := viper.BindPFlag("storage.path-style", cmd.PersistentFlags().Lookup("storage.path-style")); err != nil {
		return err
	}

	cmd.PersistentFlags().String("storage.key-folder", manifest.DefaultKeyFolder, "folder holding encryption keys")
	if err := viper.BindPFlag("storage.key-folder", cmd.PersistentFlags().Lookup("storage.key-folder")); err != nil {
		return err
	}

	cmd.PersistentFlags().String("storage.manifest-folder", manifest.DefaultManifestFolder, "folder holding playlists")
	if err := viper.BindPFlag("storage.manifest-folder", cmd.PersistentFlags().Lookup("storage.manifest-folder")); err != nil {
		return err
	}

	cmd.PersistentFlags().String("storage.media-folder", manifest.DefaultMediaFolder, "folder holding media segments")
	if err := viper.BindPFlag("storage.media-folder", cmd.PersistentFlags().Lookup("storage.media-folder")); err != nil {
		return err
	}

	cmd.PersistentFlags().Duration("storage.presign-expiry", time.Hour, "validity of presigned URLs")
	if err := viper.BindPFlag("storage.presign-expiry", cmd.PersistentFlags().Lookup("storage.presign-expiry")); err != nil {
		return err
	}

	cmd.PersistentFlags().Duration("storage.timeout", 60*time.Second, "bound of a single storage call")
	if err := viper.BindPFlag("storage.timeout", cmd.PersistentFlags().Lookup("storage.timeout")); err != nil {
		return err
	}

	return nil
}

func (s *Storage) Set() {
	s.Strategy = viper.GetString("storage.strategy")
	s.Endpoint = viper.GetString("storage.endpoint")
	s.Region = viper.GetString("storage.region")
	s.AccessKey = viper.GetString("storage.access-key")
	s.SecretKey = viper.GetString("storage.secret-key")
	s.Bucket = viper.GetString("storage.bucket")
	s.MediaBucket = viper.GetString("storage.media-bucket")
	s.PathStyle = viper.GetBool("storage.path-style")

	s.KeyFolder = viper.GetString("storage.key-folder")
	s.ManifestFolder = viper.GetString("storage.manifest-folder")
	s.MediaFolder = viper.GetString("storage.media-folder")

	s.PresignExpiry = viper.GetDuration("storage.presign-expiry")
	s.Timeout = viper.GetDuration("storage.timeout")
}

func (s *Storage) Layout() manifest.Layout {
	return manifest.Layout{
		KeyFolder:      s.KeyFolder,
		ManifestFolder: s.ManifestFolder,
		MediaFolder:    s.MediaFolder,
	}.WithDefaultValues()
}

func (s *Storage) GatewayConfig() storage.Config {
	return storage.Config{
		Strategy:      storage.Strategy(s.Strategy),
		Layout:        s.Layout(),
		PresignExpiry: s.PresignExpiry,
		Timeout:       s.Timeout,
	}
}

func (s *Storage) bucket(ctx context.Context, name string) (*storage.S3Bucket, error) {
	return storage.NewS3Bucket(ctx, storage.S3Config{
		Endpoint:  s.Endpoint,
		Region:    s.Region,
		AccessKey: s.AccessKey,
		SecretKey: s.SecretKey,
		Bucket:    name,
		PathStyle: s.PathStyle,
	})
}

// Gateway connects to the configured buckets. Nothing is contacted yet,
// use Check on the result.
func (s *Storage) Gateway(ctx context.Context) (*storage.Gateway, error) {
	if s.Bucket == "" {
		return nil, fmt.Errorf("%w: storage.bucket is required", ErrInvalidConfig)
	}

	control, err := s.bucket(ctx, s.Bucket)
	if err != nil {
		return nil, err
	}

	var media storage.Bucket
	if storage.Strategy(s.Strategy) == storage.StrategyDual {
		if s.MediaBucket == "" {
			return nil, fmt.Errorf("%w: storage.media-bucket is required for the dual strategy", ErrInvalidConfig)
		}

		if media, err = s.bucket(ctx, s.MediaBucket); err != nil {
			return nil, err
		}
	}

	return storage.New(s.GatewayConfig(), control, media)
}
