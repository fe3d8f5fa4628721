package transcoder

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/m1k1o/go-hlspack/internal/utils"
)

const DefaultSegmentDuration = 6

// Request describes one single-file encrypted HLS encoding.
type Request struct {
	Input     string
	OutputDir string
	Playlist  string // file name inside OutputDir
	Segment   string // file name inside OutputDir

	SegmentDuration int
	KeyInfo         string // key descriptor path
	IFramesOnly     bool
}

func (r Request) PlaylistPath() string {
	return filepath.Join(r.OutputDir, r.Playlist)
}

func (r Request) SegmentPath() string {
	return filepath.Join(r.OutputDir, r.Segment)
}

type Transcoder interface {
	Transcode(ctx context.Context, req Request) error
}

// Error is returned when the transcoder exits unsuccessfully.
type Error struct {
	Err    error
	Stderr string
}

func (e *Error) Error() string {
	if e.Stderr == "" {
		return fmt.Sprintf("transcoder failed: %v", e.Err)
	}
	return fmt.Sprintf("transcoder failed: %v: %s", e.Err, e.Stderr)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// keep only the tail of ffmpeg output in errors
const stderrTailLines = 20

const waitDelay = 2 * time.Second

func tail(s string, n int) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n")
}

type FFmpeg struct {
	logger zerolog.Logger
	binary string
}

func NewFFmpeg(binary string) *FFmpeg {
	if binary == "" {
		binary = "ffmpeg"
	}

	return &FFmpeg{
		logger: log.With().Str("module", "transcoder").Str("binary", binary).Logger(),
		binary: binary,
	}
}

// Check verifies the binary can be resolved.
func (f *FFmpeg) Check() error {
	if _, err := exec.LookPath(f.binary); err != nil {
		return fmt.Errorf("transcoder binary %q not found: %w", f.binary, err)
	}
	return nil
}

func (f *FFmpeg) Args(req Request) []string {
	duration := req.SegmentDuration
	if duration <= 0 {
		duration = DefaultSegmentDuration
	}

	flags := "independent_segments+single_file"
	if req.IFramesOnly {
		flags += "+iframes_only"
	}

	args := []string{
		"-y",
		"-loglevel", "warning",
		"-i", req.Input,
		"-c:v", "copy",
		"-c:a", "copy",
		"-force_key_frames", "expr:gte(t,n_forced*1)",
		"-f", "hls",
		"-hls_time", strconv.Itoa(duration),
		"-hls_segment_type", "mpegts",
		"-hls_list_size", "0",
		"-hls_playlist_type", "vod",
		"-hls_flags", flags,
	}

	if req.KeyInfo != "" {
		args = append(args, "-hls_key_info_file", req.KeyInfo)
	}

	return append(args,
		"-hls_segment_filename", req.SegmentPath(),
		req.PlaylistPath(),
	)
}

func (f *FFmpeg) Transcode(ctx context.Context, req Request) error {
	logger := f.logger.With().
		Str("input", req.Input).
		Str("playlist", req.PlaylistPath()).
		Bool("iframes", req.IFramesOnly).
		Logger()

	cmd := exec.CommandContext(ctx, f.binary, f.Args(req)...)
	configureProcessGroup(cmd)
	// do not wait for orphaned children holding stderr after a kill
	cmd.WaitDelay = waitDelay

	var stderr bytes.Buffer
	cmd.Stderr = io.MultiWriter(&stderr, utils.LogWriter(logger, zerolog.DebugLevel))

	logger.Debug().Strs("args", cmd.Args).Msg("starting transcoder")

	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); errors.Is(ctxErr, context.DeadlineExceeded) {
			err = fmt.Errorf("%w: %v", ctxErr, err)
		}
		return &Error{Err: err, Stderr: tail(stderr.String(), stderrTailLines)}
	}

	logger.Info().Msg("transcoder finished")
	return nil
}
