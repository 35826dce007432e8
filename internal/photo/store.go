// Package photo хранит загруженные снимки и адаптирует их под интерфейсы сценария сканирования.
package photo

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/mmeshcher/litterally/internal/model"
	"github.com/mmeshcher/litterally/internal/validation"
)

// HandlePrefix начинает каждую ссылку на снимок.
const HandlePrefix = "photos/"

// DefaultMaxSize ограничивает размер одного снимка.
const DefaultMaxSize = 10 << 20

var (
	// ErrInvalidImage возвращается для данных, не являющихся поддерживаемым изображением.
	ErrInvalidImage = errors.New("unsupported image data")
	// ErrTooLarge возвращается для снимка больше допустимого размера.
	ErrTooLarge = errors.New("image is too large")
	// ErrNotFound возвращается, если снимка с таким именем нет.
	ErrNotFound = errors.New("photo not found")
)

// DiskStore сохраняет снимки файлами в каталоге.
type DiskStore struct {
	dir     string
	maxSize int
	newName func() string
}

// NewDiskStore создаёт каталог при необходимости и возвращает хранилище снимков.
func NewDiskStore(dir string) (*DiskStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create photo dir: %w", err)
	}
	return &DiskStore{
		dir:     dir,
		maxSize: DefaultMaxSize,
		newName: uuid.NewString,
	}, nil
}

// Save проверяет изображение и сохраняет его под новым именем.
func (s *DiskStore) Save(ctx context.Context, data []byte) (model.ImageHandle, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if len(data) > s.maxSize {
		return "", ErrTooLarge
	}

	_, ext, ok := validation.DetectImage(data)
	if !ok {
		return "", ErrInvalidImage
	}

	name := s.newName() + ext
	path := filepath.Join(s.dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		_ = os.Remove(path)
		return "", fmt.Errorf("write photo: %w", err)
	}
	return model.ImageHandle(HandlePrefix + name), nil
}

// Open открывает снимок по имени файла и возвращает его тип содержимого.
func (s *DiskStore) Open(name string) (io.ReadCloser, string, error) {
	if !validation.IsValidPhotoName(name) {
		return nil, "", ErrNotFound
	}
	contentType, ok := validation.ContentTypeForExt(filepath.Ext(name))
	if !ok {
		return nil, "", ErrNotFound
	}

	f, err := os.Open(filepath.Join(s.dir, name))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, "", ErrNotFound
		}
		return nil, "", fmt.Errorf("open photo: %w", err)
	}
	return f, contentType, nil
}

// OpenHandle открывает снимок по ссылке, выданной Save.
func (s *DiskStore) OpenHandle(handle model.ImageHandle) (io.ReadCloser, string, error) {
	name, ok := strings.CutPrefix(string(handle), HandlePrefix)
	if !ok {
		return nil, "", ErrNotFound
	}
	return s.Open(name)
}

// Remove удаляет снимок по ссылке, выданной Save. Удаление отсутствующего снимка не ошибка.
func (s *DiskStore) Remove(handle model.ImageHandle) error {
	name, ok := strings.CutPrefix(string(handle), HandlePrefix)
	if !ok || !validation.IsValidPhotoName(name) {
		return ErrNotFound
	}
	if err := os.Remove(filepath.Join(s.dir, name)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove photo: %w", err)
	}
	return nil
}
