// Package settings хранит пользовательские настройки в версионированном виде.
package settings

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/mmeshcher/litterally/internal/model"
	"github.com/mmeshcher/litterally/internal/storage"
)

// CurrentVersion задаёт версию формата сохраняемых настроек.
const CurrentVersion = 1

type envelope struct {
	Version  int             `json:"version"`
	Settings json.RawMessage `json:"settings"`
}

// Writer принимает записи в долговременное хранилище без ожидания их завершения.
type Writer interface {
	Set(key string, value []byte)
}

// Store держит настройки профиля в памяти и сохраняет каждое изменение в фоне.
type Store struct {
	key    string
	kv     storage.KV
	writer Writer
	logger *zap.Logger

	mu       sync.RWMutex
	settings model.Settings
}

// NewStore создаёт хранилище настроек профиля со значениями по умолчанию.
func NewStore(profileID string, kv storage.KV, writer Writer, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		key:      storage.SettingsKey(profileID),
		kv:       kv,
		writer:   writer,
		logger:   logger,
		settings: model.DefaultSettings(),
	}
}

// Load читает настройки из хранилища. Отсутствующие или повреждённые данные
// заменяются значениями по умолчанию.
func (s *Store) Load(ctx context.Context) error {
	if s.kv == nil {
		return nil
	}

	raw, ok, err := s.kv.Get(ctx, s.key)
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}
	if !ok {
		return nil
	}

	loaded, err := Decode(raw)
	if err != nil {
		s.logger.Warn("ignoring corrupt settings", zap.String("key", s.key), zap.Error(err))
		return nil
	}

	s.mu.Lock()
	s.settings = loaded
	s.mu.Unlock()
	return nil
}

// Get возвращает текущие настройки.
func (s *Store) Get() model.Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.settings
}

// Update применяет change к текущим настройкам и ставит результат в очередь
// на сохранение. Очередь заполняется под блокировкой, поэтому сохранённые
// значения идут в том же порядке, что и изменения.
func (s *Store) Update(change func(*model.Settings)) (model.Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.settings
	change(&next)

	blob, err := Encode(next)
	if err != nil {
		return s.settings, err
	}
	s.settings = next

	if s.writer != nil {
		s.writer.Set(s.key, blob)
	}
	return next, nil
}

// Encode упаковывает настройки в конверт с текущей версией.
func Encode(st model.Settings) ([]byte, error) {
	body, err := json.Marshal(st)
	if err != nil {
		return nil, fmt.Errorf("encode settings: %w", err)
	}
	blob, err := json.Marshal(envelope{Version: CurrentVersion, Settings: body})
	if err != nil {
		return nil, fmt.Errorf("encode settings envelope: %w", err)
	}
	return blob, nil
}

// Decode распаковывает сохранённые настройки. Данные без версии считаются
// версией 0, то есть плоским объектом настроек.
func Decode(blob []byte) (model.Settings, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(blob, &fields); err != nil {
		return model.Settings{}, fmt.Errorf("decode settings: %w", err)
	}

	if _, versioned := fields["version"]; !versioned {
		return decodeV0(blob)
	}

	var env envelope
	if err := json.Unmarshal(blob, &env); err != nil {
		return model.Settings{}, fmt.Errorf("decode settings envelope: %w", err)
	}

	switch env.Version {
	case 1:
		st := model.DefaultSettings()
		if err := json.Unmarshal(env.Settings, &st); err != nil {
			return model.Settings{}, fmt.Errorf("decode settings v1: %w", err)
		}
		return st, nil
	default:
		return model.Settings{}, fmt.Errorf("unsupported settings version %d", env.Version)
	}
}

func decodeV0(blob []byte) (model.Settings, error) {
	st := model.DefaultSettings()
	if err := json.Unmarshal(blob, &st); err != nil {
		return model.Settings{}, fmt.Errorf("decode settings v0: %w", err)
	}
	return st, nil
}
