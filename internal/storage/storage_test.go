package storage

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type failingKV struct {
	mu    sync.Mutex
	calls int
}

func (f *failingKV) Get(ctx context.Context, key string) ([]byte, bool, error) {
	return nil, false, nil
}

func (f *failingKV) Set(ctx context.Context, key string, value []byte) error {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	return errors.New("disk full")
}

type slowKV struct {
	*Memory
	timeout  time.Duration
	deadline chan time.Duration
}

func (s *slowKV) WriteTimeout() time.Duration { return s.timeout }

func (s *slowKV) Set(ctx context.Context, key string, value []byte) error {
	d, _ := ctx.Deadline()
	s.deadline <- time.Until(d)
	return nil
}

func TestAsyncWriterUsesStoreTimeout(t *testing.T) {
	tests := []struct {
		name    string
		timeout time.Duration
		min     time.Duration
	}{
		{name: "store with retries", timeout: 17 * time.Second, min: 16 * time.Second},
		{name: "short store timeout keeps default", timeout: time.Second, min: 4 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			kv := &slowKV{Memory: NewMemory(), timeout: tt.timeout, deadline: make(chan time.Duration, 1)}
			w := NewAsyncWriter(kv, nil, 4)

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			go w.Run(ctx)

			w.Set("k", []byte("v"))
			left := <-kv.deadline
			assert.Greater(t, left, tt.min)
			assert.LessOrEqual(t, left, max(tt.timeout, writeTimeout))
		})
	}
}

func TestMemoryGetSet(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	_, ok, err := m.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	value := []byte("42")
	require.NoError(t, m.Set(ctx, "k", value))
	value[0] = '9'

	got, ok, err := m.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "42", string(got))
}

func TestAsyncWriterPreservesOrder(t *testing.T) {
	m := NewMemory()
	w := NewAsyncWriter(m, zap.NewNop(), 16)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	for _, v := range []string{"1", "2", "3"} {
		w.Set("points", []byte(v))
	}

	flushCtx, flushCancel := context.WithTimeout(context.Background(), time.Second)
	defer flushCancel()
	require.NoError(t, w.Flush(flushCtx))

	got, ok, err := m.Get(context.Background(), "points")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "3", string(got))
}

func TestAsyncWriterLogsFailures(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	kv := &failingKV{}
	w := NewAsyncWriter(kv, zap.New(core), 4)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	w.Set("points", []byte("1"))

	flushCtx, flushCancel := context.WithTimeout(context.Background(), time.Second)
	defer flushCancel()
	require.NoError(t, w.Flush(flushCtx))

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, "persistence error", entry.Message)
}

func TestAsyncWriterDropsWhenFull(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	w := NewAsyncWriter(NewMemory(), zap.New(core), 1)

	w.Set("a", []byte("1"))
	w.Set("b", []byte("2"))

	assert.Equal(t, 1, logs.FilterMessage("persistence queue is full, dropping write").Len())
}

func TestAsyncWriterDrainsOnShutdown(t *testing.T) {
	m := NewMemory()
	w := NewAsyncWriter(m, zap.NewNop(), 8)

	w.Set("settings", []byte("{}"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	w.Run(ctx)

	_, ok, err := m.Get(context.Background(), "settings")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestFlushHonoursContext(t *testing.T) {
	w := NewAsyncWriter(NewMemory(), zap.NewNop(), 1)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	assert.ErrorIs(t, w.Flush(ctx), context.DeadlineExceeded)
}

func TestPersistenceErrorUnwrap(t *testing.T) {
	cause := errors.New("boom")
	err := &PersistenceError{Key: "k", Err: cause}

	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), `"k"`)
}

func TestKeys(t *testing.T) {
	assert.Equal(t, "@user_points:abc", PointsKey("abc"))
	assert.Equal(t, "@user_settings:abc", SettingsKey("abc"))
}
