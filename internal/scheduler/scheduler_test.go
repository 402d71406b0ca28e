package scheduler

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunJobRecordsResult(t *testing.T) {
	cfg := Config{Jobs: []Job{
		{Name: "collect-now", Type: "collect", Interval: time.Hour, Enabled: true},
	}}
	s := New(cfg, zerolog.Nop())

	calls := 0
	s.Register("collect", func(ctx context.Context) error {
		calls++
		return nil
	})

	result, err := s.RunJob(context.Background(), "collect-now")
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, 1, calls)

	status := s.Status()
	assert.Equal(t, 1, status.Enabled)
	last, ok := status.LastRuns["collect-now"]
	require.True(t, ok)
	assert.True(t, last.Success)
}

func TestRunJobCapturesFailure(t *testing.T) {
	cfg := Config{Jobs: []Job{
		{Name: "video", Type: "video_sync", Interval: time.Hour, Enabled: true},
	}}
	s := New(cfg, zerolog.Nop())
	s.Register("video_sync", func(ctx context.Context) error {
		return errors.New("quota exhausted")
	})

	result, err := s.RunJob(context.Background(), "video")
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "quota exhausted")
}

func TestRunJobUnknownName(t *testing.T) {
	s := New(DefaultConfig(), zerolog.Nop())
	_, err := s.RunJob(context.Background(), "nope")
	assert.Error(t, err)
}

func TestStartTicksEnabledJobs(t *testing.T) {
	cfg := Config{Jobs: []Job{
		{Name: "fast", Type: "collect", Interval: 10 * time.Millisecond, Enabled: true},
		{Name: "off", Type: "merch_sync", Interval: 10 * time.Millisecond, Enabled: false},
	}}
	s := New(cfg, zerolog.Nop())

	ran := make(chan struct{}, 8)
	s.Register("collect", func(ctx context.Context) error {
		select {
		case ran <- struct{}{}:
		default:
		}
		return nil
	})
	s.Register("merch_sync", func(ctx context.Context) error {
		t.Error("disabled job must not run")
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Start(ctx) }()

	select {
	case <-ran:
	case <-time.After(2 * time.Second):
		t.Fatal("job never ran")
	}
	cancel()

	err := <-done
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, s.Status().Running)
}

func TestStartNoRunnableJobs(t *testing.T) {
	cfg := Config{Jobs: []Job{
		{Name: "orphan", Type: "unknown", Interval: time.Hour, Enabled: true},
	}}
	s := New(cfg, zerolog.Nop())

	err := s.Start(context.Background())
	assert.Error(t, err)
}

func TestLoadConfigDefaultsAndFile(t *testing.T) {
	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Len(t, cfg.Jobs, 4)

	path := filepath.Join(t.TempDir(), "jobs.yaml")
	raw := `jobs:
  - name: hourly-collect
    type: collect
    interval: 1h
    enabled: true
`
	require.NoError(t, os.WriteFile(path, []byte(raw), 0o644))

	cfg, err = LoadConfig(path)
	require.NoError(t, err)
	require.Len(t, cfg.Jobs, 1)
	assert.Equal(t, time.Hour, cfg.Jobs[0].Interval)
}

func TestLoadConfigRejectsBadInterval(t *testing.T) {
	path := filepath.Join(t.TempDir(), "jobs.yaml")
	raw := `jobs:
  - name: broken
    type: collect
    interval: 0s
    enabled: true
`
	require.NoError(t, os.WriteFile(path, []byte(raw), 0o644))

	_, err := LoadConfig(path)
	assert.Error(t, err)
}
