// Package storage описывает долговременное хранилище ключ-значение и асинхронную запись в него.
package storage

import (
	"context"
	"fmt"
	"sync"
)

// KV описывает долговременное хранилище непрозрачных значений по строковому ключу.
type KV interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
}

// PersistenceError описывает неудачную запись в хранилище.
type PersistenceError struct {
	Key string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persist %q: %v", e.Key, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// Memory хранит значения в памяти процесса.
type Memory struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewMemory создаёт пустое хранилище в памяти.
func NewMemory() *Memory {
	return &Memory{data: make(map[string][]byte)}
}

// Get возвращает копию значения по ключу.
func (m *Memory) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	v, ok := m.data[key]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), v...), true, nil
}

// Set сохраняет копию значения по ключу.
func (m *Memory) Set(ctx context.Context, key string, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	m.data[key] = append([]byte(nil), value...)
	m.mu.Unlock()
	return nil
}

// Close ничего не делает и нужен для единообразия с PostgreSQL-хранилищем.
func (m *Memory) Close() error {
	return nil
}

// PointsKey возвращает ключ, под которым хранятся очки профиля.
func PointsKey(profileID string) string {
	return "@user_points:" + profileID
}

// SettingsKey возвращает ключ, под которым хранятся настройки профиля.
func SettingsKey(profileID string) string {
	return "@user_settings:" + profileID
}
