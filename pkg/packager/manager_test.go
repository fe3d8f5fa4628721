package packager

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/m1k1o/go-hlspack/pkg/manifest"
	"github.com/m1k1o/go-hlspack/pkg/storage"
	"github.com/m1k1o/go-hlspack/pkg/transcoder"
)

// stubTranscoder writes the playlist and segment ffmpeg would produce.
type stubTranscoder struct {
	mu        sync.Mutex
	fail      map[string]error
	block     bool
	delay     time.Duration
	checkErr  error
	active    map[string]int
	maxActive int
}

func newStub() *stubTranscoder {
	return &stubTranscoder{
		fail:   map[string]error{},
		active: map[string]int{},
	}
}

func (s *stubTranscoder) Check() error {
	return s.checkErr
}

func (s *stubTranscoder) enter(video string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.active[video]++
	if s.active[video] > s.maxActive {
		s.maxActive = s.active[video]
	}
}

func (s *stubTranscoder) leave(video string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.active[video]--
}

func (s *stubTranscoder) Transcode(ctx context.Context, req transcoder.Request) error {
	video := VideoName(req.Input)

	s.enter(video)
	defer s.leave(video)

	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	if err := s.fail[video]; err != nil {
		return err
	}
	if s.block {
		<-ctx.Done()
		return ctx.Err()
	}

	keyURI := ""
	if req.KeyInfo != "" {
		f, err := os.Open(req.KeyInfo)
		if err != nil {
			return err
		}
		scanner := bufio.NewScanner(f)
		if scanner.Scan() {
			keyURI = scanner.Text()
		}
		f.Close()
	}

	playlist := fmt.Sprintf("#EXTM3U\n#EXT-X-VERSION:3\n#EXT-X-TARGETDURATION:6\n"+
		"#EXT-X-KEY:METHOD=AES-128,URI=\"%s\"\n#EXTINF:6.000000,\n%s\n#EXT-X-ENDLIST\n", keyURI, req.Segment)

	if err := os.WriteFile(req.PlaylistPath(), []byte(playlist), 0644); err != nil {
		return err
	}
	return os.WriteFile(req.SegmentPath(), []byte("segment:"+video), 0644)
}

type memoryRecorder struct {
	mu      sync.Mutex
	results []Result
}

func (r *memoryRecorder) Record(ctx context.Context, result Result) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.results = append(r.results, result)
	return nil
}

type fixture struct {
	manager *ManagerCtx
	stub    *stubTranscoder
	bucket  *storage.MemoryBucket
	input   string
	work    string
}

func newFixture(t *testing.T, sources ...string) *fixture {
	t.Helper()

	input := t.TempDir()
	for _, name := range sources {
		require.NoError(t, os.WriteFile(filepath.Join(input, name), []byte("source"), 0644))
	}

	bucket := storage.NewMemoryBucket("videos")
	gateway, err := storage.New(storage.Config{}, bucket, nil)
	require.NoError(t, err)

	stub := newStub()
	work := filepath.Join(t.TempDir(), "work")

	manager := New(Config{
		InputDir:    input,
		WorkDir:     work,
		DeliveryURL: "https://cdn.example",
	}, nil, stub, gateway)

	return &fixture{
		manager: manager,
		stub:    stub,
		bucket:  bucket,
		input:   input,
		work:    work,
	}
}

func TestProcess(t *testing.T) {
	f := newFixture(t, "demo.mp4")

	result := f.manager.Process(context.Background(), filepath.Join(f.input, "demo.mp4"))
	require.NoError(t, result.Err)
	assert.Equal(t, "demo", result.Video)
	assert.True(t, strings.HasSuffix(result.KeyID, ".key"))

	assert.Equal(t, []string{
		"keys/" + result.KeyID,
		"media/demo/demo.ts",
		"manifests/demo/iframe.m3u8",
		"manifests/demo/stream.m3u8",
	}, f.bucket.Puts())

	main, _, ok := f.bucket.Object("manifests/demo/stream.m3u8")
	require.True(t, ok)
	assert.Contains(t, string(main), `URI="https://cdn.example/keys/`+result.KeyID+`"`)
	assert.Contains(t, string(main), "\nhttps://cdn.example/media/demo/demo.ts\n")
	assert.NotContains(t, string(main), manifest.IFramesOnlyTag)

	trick, _, ok := f.bucket.Object("manifests/demo/iframe.m3u8")
	require.True(t, ok)
	assert.Contains(t, string(trick), "#EXT-X-VERSION:3\n#EXT-X-I-FRAMES-ONLY\n")
	assert.Contains(t, string(trick), "\nhttps://cdn.example/media/demo/demo.ts\n")
	assert.NotContains(t, string(trick), trickTempSegment)

	dir := filepath.Join(f.work, "demo")
	assert.NoFileExists(t, filepath.Join(dir, keyInfoName))
	assert.NoFileExists(t, filepath.Join(dir, trickTempSegment))
	assert.FileExists(t, filepath.Join(dir, result.KeyID))
	assert.FileExists(t, filepath.Join(dir, "demo.ts"))
	assert.FileExists(t, filepath.Join(dir, manifest.MainPlaylist))
	assert.FileExists(t, filepath.Join(dir, manifest.TrickPlaylist))
}

func TestProcessEncodeFailurePublishesNothing(t *testing.T) {
	f := newFixture(t, "broken.mp4")
	f.stub.fail["broken"] = &transcoder.Error{Err: errors.New("exit status 1"), Stderr: "moov atom not found"}

	result := f.manager.Process(context.Background(), filepath.Join(f.input, "broken.mp4"))
	require.Error(t, result.Err)

	var stepErr *StepError
	require.True(t, errors.As(result.Err, &stepErr))
	assert.Equal(t, StepEncode, stepErr.Step)
	assert.Contains(t, result.Err.Error(), "moov atom not found")

	assert.Empty(t, f.bucket.Puts())
	// partial state is kept for inspection
	assert.FileExists(t, filepath.Join(f.work, "broken", result.KeyID))
}

func TestProcessTranscodeTimeout(t *testing.T) {
	f := newFixture(t, "slow.mp4")
	f.manager.config.TranscodeTimeout = 50 * time.Millisecond
	f.stub.block = true

	result := f.manager.Process(context.Background(), filepath.Join(f.input, "slow.mp4"))
	require.Error(t, result.Err)
	assert.True(t, errors.Is(result.Err, context.DeadlineExceeded))
	assert.Empty(t, f.bucket.Puts())
}

func TestProcessAll(t *testing.T) {
	f := newFixture(t, "a.mp4", "b.mp4", "c.MP4", "notes.txt")
	require.NoError(t, os.Mkdir(filepath.Join(f.input, "d.mp4"), 0755))
	f.stub.fail["b"] = errors.New("invalid data found when processing input")

	recorder := &memoryRecorder{}
	f.manager.WithRecorder(recorder)

	summary, err := f.manager.ProcessAll(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, summary.Total)
	assert.Equal(t, []string{
		filepath.Join(f.input, "a.mp4"),
		filepath.Join(f.input, "c.MP4"),
	}, summary.Succeeded)

	require.Len(t, summary.Failed, 1)
	assert.Equal(t, filepath.Join(f.input, "b.mp4"), summary.Failed[0].File)
	assert.Contains(t, summary.Failed[0].Reason, "invalid data found")

	// later files are unaffected by the failure
	_, _, ok := f.bucket.Object("manifests/c/stream.m3u8")
	assert.True(t, ok)

	require.Len(t, recorder.results, 3)
	assert.False(t, recorder.results[1].Succeeded())
}

func TestProcessFilesCanceled(t *testing.T) {
	f := newFixture(t, "a.mp4", "b.mp4")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	summary := f.manager.ProcessFiles(ctx, []string{
		filepath.Join(f.input, "a.mp4"),
		filepath.Join(f.input, "b.mp4"),
	})
	assert.Equal(t, 2, summary.Total)
	assert.Len(t, summary.Failed, 2)
	assert.Empty(t, f.bucket.Puts())
}

func TestProcessSerializesSameName(t *testing.T) {
	f := newFixture(t, "demo.mp4")
	f.stub.delay = 20 * time.Millisecond

	input := filepath.Join(f.input, "demo.mp4")

	var wg sync.WaitGroup
	results := make([]Result, 3)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = f.manager.Process(context.Background(), input)
		}(i)
	}
	wg.Wait()

	for _, result := range results {
		assert.NoError(t, result.Err)
	}
	assert.Equal(t, 1, f.stub.maxActive)
}

func TestPreflight(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(f *fixture)
		wantErr bool
	}{
		{
			name:   "valid",
			modify: func(f *fixture) {},
		},
		{
			name: "missing input directory",
			modify: func(f *fixture) {
				f.manager.config.InputDir = filepath.Join(f.input, "missing")
			},
			wantErr: true,
		},
		{
			name: "relative delivery url",
			modify: func(f *fixture) {
				f.manager.config.DeliveryURL = "/keys"
			},
			wantErr: true,
		},
		{
			name: "transcoder not available",
			modify: func(f *fixture) {
				f.stub.checkErr = errors.New("ffmpeg not found")
			},
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			tt.modify(f)

			err := f.manager.Preflight(context.Background())
			if (err != nil) != tt.wantErr {
				t.Errorf("Preflight() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				assert.True(t, errors.Is(err, ErrConfig))
			}
		})
	}
}

func TestVideoName(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"/videos/demo.mp4", "demo"},
		{"demo.final.mp4", "demo.final"},
		{"clip", "clip"},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := VideoName(tt.input); got != tt.want {
				t.Errorf("VideoName() = %v, want %v", got, tt.want)
			}
		})
	}
}
