package packager

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/m1k1o/go-hlspack/pkg/keys"
	"github.com/m1k1o/go-hlspack/pkg/manifest"
	"github.com/m1k1o/go-hlspack/pkg/transcoder"
)

const (
	keyInfoName      = "key_info"
	trickTempSegment = "iframe_temp.ts"
)

type ManagerCtx struct {
	logger zerolog.Logger
	config Config

	keys       KeyGenerator
	transcoder transcoder.Transcoder
	publisher  Publisher
	recorder   Recorder

	locks   map[string]*sync.Mutex
	locksMu sync.Mutex
}

func New(config Config, keyGen KeyGenerator, tc transcoder.Transcoder, publisher Publisher) *ManagerCtx {
	if keyGen == nil {
		keyGen = keys.New()
	}

	return &ManagerCtx{
		logger:     log.With().Str("module", "packager").Logger(),
		config:     config.withDefaultValues(),
		keys:       keyGen,
		transcoder: tc,
		publisher:  publisher,
		locks:      map[string]*sync.Mutex{},
	}
}

func (m *ManagerCtx) WithRecorder(r Recorder) *ManagerCtx {
	m.recorder = r
	return m
}

// Preflight validates configuration and environment before any work.
func (m *ManagerCtx) Preflight(ctx context.Context) error {
	stat, err := os.Stat(m.config.InputDir)
	if err != nil {
		return fmt.Errorf("%w: input directory: %v", ErrConfig, err)
	}
	if !stat.IsDir() {
		return fmt.Errorf("%w: input %s is not a directory", ErrConfig, m.config.InputDir)
	}

	if m.config.WorkDir == "" {
		return fmt.Errorf("%w: work directory is required", ErrConfig)
	}
	if err := os.MkdirAll(m.config.WorkDir, 0755); err != nil {
		return fmt.Errorf("%w: work directory: %v", ErrConfig, err)
	}

	u, err := url.Parse(m.config.DeliveryURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: delivery url %q must be absolute", ErrConfig, m.config.DeliveryURL)
	}

	if checker, ok := m.transcoder.(interface{ Check() error }); ok {
		if err := checker.Check(); err != nil {
			return fmt.Errorf("%w: %v", ErrConfig, err)
		}
	}

	if err := m.publisher.Check(ctx); err != nil {
		return fmt.Errorf("%w: storage: %v", ErrConfig, err)
	}

	return nil
}

// VideoName is the source file name without its extension.
func VideoName(input string) string {
	base := filepath.Base(input)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func (m *ManagerCtx) lock(video string) func() {
	m.locksMu.Lock()
	mu, ok := m.locks[video]
	if !ok {
		mu = &sync.Mutex{}
		m.locks[video] = mu
	}
	m.locksMu.Unlock()

	mu.Lock()
	return mu.Unlock
}

// Process packages and publishes a single source file.
func (m *ManagerCtx) Process(ctx context.Context, input string) Result {
	video := VideoName(input)

	unlock := m.lock(video)
	defer unlock()

	result := Result{
		Video:     video,
		Source:    input,
		StartedAt: time.Now(),
	}

	logger := m.logger.With().Str("video", video).Logger()
	logger.Info().Str("source", input).Msg("packaging started")

	result.Err = m.run(ctx, logger, input, video, &result)
	result.FinishedAt = time.Now()

	if result.Err != nil {
		logger.Error().Err(result.Err).Msg("packaging failed")
	} else {
		logger.Info().
			Str("key", result.KeyID).
			Dur("took", result.FinishedAt.Sub(result.StartedAt)).
			Msg("packaging finished")
	}

	if m.recorder != nil {
		if err := m.recorder.Record(ctx, result); err != nil {
			logger.Warn().Err(err).Msg("unable to record packaging run")
		}
	}

	return result
}

func (m *ManagerCtx) run(ctx context.Context, logger zerolog.Logger, input, video string, result *Result) error {
	fail := func(step Step, err error) error {
		return &StepError{Video: video, Step: step, Err: err}
	}

	dir := filepath.Join(m.config.WorkDir, video)
	segment := manifest.SegmentName(video)

	// prepare
	if err := os.RemoveAll(dir); err != nil {
		return fail(StepPrepare, err)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fail(StepPrepare, err)
	}

	// keygen
	key, err := m.keys.Generate()
	if err != nil {
		return fail(StepKeyGen, err)
	}
	result.KeyID = key.ID

	keyPath := filepath.Join(dir, key.ID)
	if err := os.WriteFile(keyPath, key.Bytes, 0600); err != nil {
		return fail(StepKeyGen, err)
	}

	desc := keys.Descriptor{URI: key.ID, Path: keyPath}
	if m.config.ExplicitIV {
		if desc.IV, err = m.keys.GenerateIV(); err != nil {
			return fail(StepKeyGen, err)
		}
	}

	infoPath := filepath.Join(dir, keyInfoName)
	if err := desc.Write(infoPath); err != nil {
		return fail(StepKeyGen, err)
	}

	req := transcoder.Request{
		Input:           input,
		OutputDir:       dir,
		Playlist:        manifest.MainPlaylist,
		Segment:         segment,
		SegmentDuration: m.config.SegmentDuration,
		KeyInfo:         infoPath,
	}

	// encode
	if err := m.transcode(ctx, req); err != nil {
		return fail(StepEncode, err)
	}
	logger.Debug().Msg("main playlist encoded")

	// trick play shares the main segment
	req.Playlist = manifest.TrickPlaylist
	req.Segment = trickTempSegment
	req.IFramesOnly = true

	if err := m.transcode(ctx, req); err != nil {
		return fail(StepTrickPlay, err)
	}

	err = rewriteFile(req.PlaylistPath(), func(text string) string {
		return manifest.MarkIFramesOnly(manifest.ReplaceSegment(text, segment))
	})
	if err != nil {
		return fail(StepTrickPlay, err)
	}
	if err := os.Remove(req.SegmentPath()); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fail(StepTrickPlay, err)
	}
	logger.Debug().Msg("trick play playlist encoded")

	// rewrite
	binding := manifest.Binding{
		VideoName: video,
		KeyID:     key.ID,
		BaseURL:   m.config.DeliveryURL,
		Layout:    m.publisher.Layout(),
	}
	for _, name := range []string{manifest.MainPlaylist, manifest.TrickPlaylist} {
		err := rewriteFile(filepath.Join(dir, name), func(text string) string {
			return manifest.Rewrite(text, binding)
		})
		if err != nil {
			return fail(StepRewrite, err)
		}
	}

	// publish
	if err := m.publisher.UploadVideoAssets(ctx, video, key.ID, dir); err != nil {
		return fail(StepPublish, err)
	}

	// cleanup, key and playlists stay for inspection
	if err := os.Remove(infoPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fail(StepCleanup, err)
	}

	return nil
}

func (m *ManagerCtx) transcode(ctx context.Context, req transcoder.Request) error {
	ctx, cancel := context.WithTimeout(ctx, m.config.TranscodeTimeout)
	defer cancel()

	return m.transcoder.Transcode(ctx, req)
}

func rewriteFile(path string, fn func(string) string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return os.WriteFile(path, []byte(fn(string(data))), 0644)
}

func (m *ManagerCtx) eligible(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, e := range m.config.Extensions {
		if ext == e {
			return true
		}
	}
	return false
}

// Sources lists eligible files of the input directory sorted by name.
func (m *ManagerCtx) Sources() ([]string, error) {
	entries, err := os.ReadDir(m.config.InputDir)
	if err != nil {
		return nil, fmt.Errorf("unable to read input directory: %w", err)
	}

	var files []string
	for _, entry := range entries {
		if !entry.Type().IsRegular() || !m.eligible(entry.Name()) {
			continue
		}
		files = append(files, filepath.Join(m.config.InputDir, entry.Name()))
	}

	sort.Strings(files)
	return files, nil
}

// ProcessAll packages every eligible file of the input directory and
// continues past individual failures.
func (m *ManagerCtx) ProcessAll(ctx context.Context) (Summary, error) {
	files, err := m.Sources()
	if err != nil {
		return Summary{}, err
	}

	return m.ProcessFiles(ctx, files), nil
}

func (m *ManagerCtx) ProcessFiles(ctx context.Context, files []string) Summary {
	summary := Summary{Total: len(files)}

	for i, file := range files {
		if err := ctx.Err(); err != nil {
			for _, rest := range files[i:] {
				summary.Failed = append(summary.Failed, Failure{File: rest, Reason: err.Error()})
			}
			break
		}

		result := m.Process(ctx, file)
		if result.Succeeded() {
			summary.Succeeded = append(summary.Succeeded, file)
		} else {
			summary.Failed = append(summary.Failed, Failure{File: file, Reason: result.Err.Error()})
		}
	}

	m.logger.Info().
		Int("total", summary.Total).
		Int("succeeded", len(summary.Succeeded)).
		Int("failed", len(summary.Failed)).
		Msg("batch finished")

	return summary
}
