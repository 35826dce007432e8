package storage

import (
	"context"
	"time"

	"go.uber.org/zap"
)

const writeTimeout = 5 * time.Second

// TimeoutReporter реализуют хранилища, которым на одну запись нужно больше
// writeTimeout, например из-за повторов.
type TimeoutReporter interface {
	WriteTimeout() time.Duration
}

type write struct {
	key   string
	value []byte
	// barrier закрывается, когда все предыдущие записи обработаны.
	barrier chan struct{}
}

// AsyncWriter выполняет записи в хранилище в фоне, в порядке поступления.
// Вызывающий никогда не ждёт завершения записи; ошибки только логируются.
type AsyncWriter struct {
	kv      KV
	logger  *zap.Logger
	queue   chan write
	timeout time.Duration
}

// NewAsyncWriter создаёт писатель с очередью указанного размера.
func NewAsyncWriter(kv KV, logger *zap.Logger, size int) *AsyncWriter {
	if logger == nil {
		logger = zap.NewNop()
	}
	if size <= 0 {
		size = 256
	}
	timeout := writeTimeout
	if tr, ok := kv.(TimeoutReporter); ok && tr.WriteTimeout() > timeout {
		timeout = tr.WriteTimeout()
	}
	return &AsyncWriter{
		kv:      kv,
		logger:  logger,
		queue:   make(chan write, size),
		timeout: timeout,
	}
}

// Set ставит запись в очередь. При переполненной очереди запись отбрасывается.
func (w *AsyncWriter) Set(key string, value []byte) {
	select {
	case w.queue <- write{key: key, value: append([]byte(nil), value...)}:
	default:
		w.logger.Warn("persistence queue is full, dropping write", zap.String("key", key))
	}
}

// Run обрабатывает очередь до отмены контекста, после чего дописывает оставшиеся записи.
func (w *AsyncWriter) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			w.drain()
			return
		case wr := <-w.queue:
			w.apply(wr)
		}
	}
}

// Flush ждёт, пока будут обработаны все записи, поставленные в очередь до вызова.
func (w *AsyncWriter) Flush(ctx context.Context) error {
	barrier := make(chan struct{})

	select {
	case w.queue <- write{barrier: barrier}:
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-barrier:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *AsyncWriter) drain() {
	for {
		select {
		case wr := <-w.queue:
			w.apply(wr)
		default:
			return
		}
	}
}

func (w *AsyncWriter) apply(wr write) {
	if wr.barrier != nil {
		close(wr.barrier)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
	defer cancel()

	if err := w.kv.Set(ctx, wr.key, wr.value); err != nil {
		perr := &PersistenceError{Key: wr.key, Err: err}
		w.logger.Error("persistence error", zap.Error(perr))
	}
}
