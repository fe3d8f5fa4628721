package ledger

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/m1k1o/go-hlspack/pkg/packager"
)

func open(t *testing.T) *Ledger {
	t.Helper()

	l, err := Open(filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })
	return l
}

func TestRecordAndRecent(t *testing.T) {
	l := open(t)
	ctx := context.Background()
	started := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	results := []packager.Result{
		{
			Video:      "intro",
			Source:     "/in/intro.mp4",
			KeyID:      "abc.key",
			StartedAt:  started,
			FinishedAt: started.Add(90 * time.Second),
		},
		{
			Video:      "broken",
			Source:     "/in/broken.mp4",
			Err:        &packager.StepError{Video: "broken", Step: packager.StepEncode, Err: errors.New("exit status 1")},
			StartedAt:  started.Add(2 * time.Minute),
			FinishedAt: started.Add(3 * time.Minute),
		},
	}
	for _, r := range results {
		require.NoError(t, l.Record(ctx, r))
	}

	runs, err := l.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 2)

	// newest first
	assert.Equal(t, "broken", runs[0].VideoName)
	assert.Equal(t, StatusFailed, runs[0].Status)
	assert.Equal(t, "broken: encode failed: exit status 1", runs[0].Reason)
	assert.Empty(t, runs[0].KeyID)

	assert.Equal(t, "intro", runs[1].VideoName)
	assert.Equal(t, "/in/intro.mp4", runs[1].Source)
	assert.Equal(t, "abc.key", runs[1].KeyID)
	assert.Equal(t, StatusSucceeded, runs[1].Status)
	assert.Empty(t, runs[1].Reason)
	assert.True(t, started.Equal(runs[1].StartedAt), "started_at = %v", runs[1].StartedAt)
	assert.Equal(t, 90*time.Second, runs[1].Duration())
}

func TestRecentLimit(t *testing.T) {
	l := open(t)
	ctx := context.Background()
	now := time.Now()

	for _, name := range []string{"a", "b", "c"} {
		require.NoError(t, l.Record(ctx, packager.Result{Video: name, Source: name + ".mp4", StartedAt: now, FinishedAt: now}))
	}

	tests := []struct {
		name  string
		limit int
		want  []string
	}{
		{name: "limited", limit: 2, want: []string{"c", "b"}},
		{name: "larger than history", limit: 10, want: []string{"c", "b", "a"}},
		{name: "default", limit: 0, want: []string{"c", "b", "a"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runs, err := l.Recent(ctx, tt.limit)
			require.NoError(t, err)

			var got []string
			for _, r := range runs {
				got = append(got, r.VideoName)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "runs.db")
	now := time.Now()

	l, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, l.Record(context.Background(), packager.Result{Video: "intro", Source: "intro.mp4", StartedAt: now, FinishedAt: now}))
	require.NoError(t, l.Close())

	l, err = Open(path)
	require.NoError(t, err)
	defer l.Close()

	runs, err := l.Recent(context.Background(), 5)
	require.NoError(t, err)
	assert.Len(t, runs, 1)
}

func TestOpenWithoutPath(t *testing.T) {
	_, err := Open("")
	assert.Error(t, err)
}
