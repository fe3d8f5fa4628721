package packager

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/m1k1o/go-hlspack/pkg/keys"
	"github.com/m1k1o/go-hlspack/pkg/manifest"
)

var ErrConfig = errors.New("invalid packager configuration")

type Config struct {
	InputDir   string
	WorkDir    string
	Extensions []string // eligible source extensions

	SegmentDuration  int
	TranscodeTimeout time.Duration

	// DeliveryURL is the absolute base published manifests point at.
	DeliveryURL string
	ExplicitIV  bool
}

func (c Config) withDefaultValues() Config {
	if len(c.Extensions) == 0 {
		c.Extensions = []string{".mp4"}
	}
	exts := make([]string, 0, len(c.Extensions))
	for _, ext := range c.Extensions {
		ext = strings.ToLower(ext)
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		exts = append(exts, ext)
	}
	c.Extensions = exts
	if c.SegmentDuration <= 0 {
		c.SegmentDuration = 6
	}
	if c.TranscodeTimeout == 0 {
		c.TranscodeTimeout = 30 * time.Minute
	}
	return c
}

type Step string

const (
	StepPrepare   Step = "prepare"
	StepKeyGen    Step = "keygen"
	StepEncode    Step = "encode"
	StepTrickPlay Step = "trickplay"
	StepRewrite   Step = "rewrite"
	StepPublish   Step = "publish"
	StepCleanup   Step = "cleanup"
)

// StepError is the terminal failure of a single video.
type StepError struct {
	Video string
	Step  Step
	Err   error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("%s: %s failed: %v", e.Video, e.Step, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

type Result struct {
	Video  string
	Source string
	KeyID  string
	Err    error

	StartedAt  time.Time
	FinishedAt time.Time
}

func (r Result) Succeeded() bool {
	return r.Err == nil
}

type Failure struct {
	File   string
	Reason string
}

type Summary struct {
	Total     int
	Succeeded []string
	Failed    []Failure
}

type KeyGenerator interface {
	Generate() (keys.Key, error)
	GenerateIV() ([]byte, error)
}

// Publisher stores packaged videos, see storage.Gateway.
type Publisher interface {
	Layout() manifest.Layout
	Check(ctx context.Context) error
	UploadVideoAssets(ctx context.Context, video, keyID, dir string) error
}

// Recorder keeps a history of packaging runs.
type Recorder interface {
	Record(ctx context.Context, result Result) error
}
