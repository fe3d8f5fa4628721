package config

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/m1k1o/go-hlspack/pkg/manifest"
	"github.com/m1k1o/go-hlspack/pkg/storage"
)

func parse(t *testing.T, cfg Config, args ...string) {
	t.Helper()
	viper.Reset()
	t.Cleanup(viper.Reset)

	cmd := &cobra.Command{Use: "test"}
	require.NoError(t, cfg.Init(cmd))
	require.NoError(t, cmd.PersistentFlags().Parse(args))
	cfg.Set()
}

func TestStorageDefaults(t *testing.T) {
	s := &Storage{}
	parse(t, s)

	assert.Equal(t, string(storage.StrategySingle), s.Strategy)
	assert.Equal(t, time.Hour, s.PresignExpiry)
	assert.Equal(t, 60*time.Second, s.Timeout)
	assert.Equal(t, manifest.Layout{
		KeyFolder:      "keys",
		ManifestFolder: "manifests",
		MediaFolder:    "media",
	}, s.Layout())
}

func TestStorageFlags(t *testing.T) {
	s := &Storage{}
	parse(t, s,
		"--storage.strategy=dual",
		"--storage.bucket=control",
		"--storage.media-bucket=media",
		"--storage.media-folder=/segments/",
		"--storage.presign-expiry=15m",
	)

	assert.Equal(t, "dual", s.Strategy)
	assert.Equal(t, "control", s.Bucket)
	assert.Equal(t, "media", s.MediaBucket)
	assert.Equal(t, "segments", s.Layout().MediaFolder)
	assert.Equal(t, 15*time.Minute, s.GatewayConfig().PresignExpiry)
}

func TestStorageGateway(t *testing.T) {
	tests := []struct {
		name    string
		storage Storage
		wantErr error
	}{
		{
			name:    "missing bucket",
			storage: Storage{Strategy: "single"},
			wantErr: ErrInvalidConfig,
		},
		{
			name:    "dual without media bucket",
			storage: Storage{Strategy: "dual", Bucket: "control"},
			wantErr: ErrInvalidConfig,
		},
		{
			name:    "unknown strategy",
			storage: Storage{Strategy: "triple", Bucket: "control", Region: "us-east-1"},
			wantErr: storage.ErrInvalidStrategy,
		},
		{
			name: "single",
			storage: Storage{
				Strategy:  "single",
				Bucket:    "control",
				Region:    "us-east-1",
				Endpoint:  "http://127.0.0.1:9000",
				AccessKey: "minio",
				SecretKey: "minio123",
				PathStyle: true,
			},
		},
		{
			name: "dual",
			storage: Storage{
				Strategy:    "dual",
				Bucket:      "control",
				MediaBucket: "media",
				Region:      "us-east-1",
				AccessKey:   "minio",
				SecretKey:   "minio123",
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gateway, err := tt.storage.Gateway(context.Background())
			if tt.wantErr != nil {
				assert.True(t, errors.Is(err, tt.wantErr), "error = %v", err)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, "manifests", gateway.Layout().ManifestFolder)
		})
	}
}

func TestPackagerValidate(t *testing.T) {
	tests := []struct {
		name     string
		packager Packager
		wantErr  bool
	}{
		{name: "valid", packager: Packager{InputDir: "/in", DeliveryURL: "https://cdn.example.com/videos"}},
		{name: "missing input", packager: Packager{DeliveryURL: "https://cdn.example.com"}, wantErr: true},
		{name: "missing delivery url", packager: Packager{InputDir: "/in"}, wantErr: true},
		{name: "relative delivery url", packager: Packager{InputDir: "/in", DeliveryURL: "/videos"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.packager.Validate()
			if tt.wantErr {
				assert.True(t, errors.Is(err, ErrInvalidConfig), "error = %v", err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestPackagerConfig(t *testing.T) {
	p := &Packager{}
	parse(t, p, "--packager.input-dir=/in", "--packager.extensions=.mp4,.mov", "--packager.delivery-url=https://cdn.example.com")

	t.Run("default work dir", func(t *testing.T) {
		cfg := p.PackagerConfig()

		assert.Equal(t, DefaultWorkDir, cfg.WorkDir)
		assert.Equal(t, []string{".mp4", ".mov"}, cfg.Extensions)
		assert.Equal(t, 6, cfg.SegmentDuration)
		assert.Equal(t, 30*time.Minute, cfg.TranscodeTimeout)
	})

	t.Run("configured work dir", func(t *testing.T) {
		p := *p
		p.WorkDir = "/var/lib/hlspack"

		assert.Equal(t, "/var/lib/hlspack", p.PackagerConfig().WorkDir)
	})

	t.Run("unset work dir", func(t *testing.T) {
		p := Packager{InputDir: "/in"}

		assert.Equal(t, DefaultWorkDir, p.PackagerConfig().WorkDir)
	})
}

func TestDelivery(t *testing.T) {
	d := &Delivery{}
	parse(t, d, "--public-url=https://videos.example/proxy", "--cors-max-age=10m", "--idle-timeout=5s")

	assert.Equal(t, "https://videos.example/proxy", d.PublicURL)
	assert.Equal(t, 30*time.Second, d.FetchTimeout)
	assert.Equal(t, 10*time.Minute, d.CORSMaxAge)
	assert.Equal(t, 5*time.Second, d.IdleTimeout)
}
