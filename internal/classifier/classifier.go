// Package classifier реализует определение категории отходов по фотографии.
package classifier

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mmeshcher/litterally/internal/catalog"
	"github.com/mmeshcher/litterally/internal/model"
)

// Policy задаёт стратегию классификации-заглушки.
type Policy string

const (
	PolicyRandom     Policy = "random"
	PolicyRoundRobin Policy = "round-robin"
)

// ErrUnknownPolicy возвращается для неизвестного имени стратегии.
var ErrUnknownPolicy = errors.New("unknown classifier policy")

// ParsePolicy разбирает имя стратегии из конфигурации.
func ParsePolicy(s string) (Policy, error) {
	switch Policy(s) {
	case PolicyRandom, PolicyRoundRobin:
		return Policy(s), nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownPolicy, s)
}

// Classifier сопоставляет фотографии предмет из справочника.
type Classifier interface {
	Classify(ctx context.Context, photo model.ImageHandle) (model.ScanResult, error)
}

// Resetter реализуют классификаторы с внутренним курсором.
type Resetter interface {
	Reset()
}

// Error описывает сбой классификации. Такой сбой не фатален, запрос можно повторить.
type Error struct {
	StatusCode int
	RetryAfter time.Duration
	Err        error
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("classification failed (status %d): %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("classification failed: %v", e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

type options struct {
	pick  func(n int) int
	now   func() time.Time
	newID func() string
}

// Option настраивает источники случайности, времени и идентификаторов.
type Option func(*options)

// WithPicker подменяет выбор случайного индекса в диапазоне [0, n).
func WithPicker(pick func(n int) int) Option {
	return func(o *options) { o.pick = pick }
}

// WithClock подменяет источник текущего времени.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithIDGenerator подменяет генератор идентификаторов результатов.
func WithIDGenerator(newID func() string) Option {
	return func(o *options) { o.newID = newID }
}

func buildOptions(opts []Option) options {
	o := options{
		pick:  rand.Intn,
		now:   time.Now,
		newID: func() string { return uuid.NewString() },
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// New создаёт классификатор-заглушку с указанной стратегией.
func New(policy Policy, cat *catalog.Catalog, opts ...Option) (Classifier, error) {
	switch policy {
	case PolicyRandom:
		return NewRandom(cat.Items(), opts...), nil
	case PolicyRoundRobin:
		return NewRoundRobin(cat.Categories(), opts...), nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownPolicy, policy)
}

// Random выбирает предмет из справочника равновероятно.
type Random struct {
	items []model.Item
	opts  options
}

// NewRandom создаёт классификатор со стратегией равновероятного выбора.
func NewRandom(items []model.Item, opts ...Option) *Random {
	return &Random{
		items: items,
		opts:  buildOptions(opts),
	}
}

// Classify возвращает случайный предмет с приложенной фотографией.
func (r *Random) Classify(ctx context.Context, photo model.ImageHandle) (model.ScanResult, error) {
	if err := ctx.Err(); err != nil {
		return model.ScanResult{}, err
	}
	if len(r.items) == 0 {
		return model.ScanResult{}, &Error{Err: errors.New("item catalog is empty")}
	}

	item := r.items[r.opts.pick(len(r.items))]

	return model.ScanResult{
		ID:        r.opts.newID(),
		Item:      catalog.CloneItem(item),
		ImageURI:  photo,
		Timestamp: r.opts.now(),
	}, nil
}

// RoundRobin перебирает категории по кругу и добавляет к результату случайную цитату категории.
type RoundRobin struct {
	categories []model.WasteCategory
	opts       options

	mu     sync.Mutex
	cursor int
}

// NewRoundRobin создаёт классификатор с курсором, установленным на первую категорию.
func NewRoundRobin(categories []model.WasteCategory, opts ...Option) *RoundRobin {
	return &RoundRobin{
		categories: categories,
		opts:       buildOptions(opts),
	}
}

// Classify возвращает категорию под курсором и сдвигает курсор по модулю размера справочника.
func (r *RoundRobin) Classify(ctx context.Context, photo model.ImageHandle) (model.ScanResult, error) {
	if err := ctx.Err(); err != nil {
		return model.ScanResult{}, err
	}
	if len(r.categories) == 0 {
		return model.ScanResult{}, &Error{Err: errors.New("category catalog is empty")}
	}

	r.mu.Lock()
	cat := r.categories[r.cursor]
	r.cursor = (r.cursor + 1) % len(r.categories)
	r.mu.Unlock()

	var quote string
	if len(cat.Quotes) > 0 {
		quote = cat.Quotes[r.opts.pick(len(cat.Quotes))]
	}

	item := model.Item{
		ID:         "category-" + cat.ID,
		Name:       cat.Name,
		Category:   cat.Kind,
		CategoryID: cat.ID,
		BinColor:   cat.BinColor,
		Points:     cat.ScanPoints,
		Tips:       []string{quote},
	}

	return model.ScanResult{
		ID:        r.opts.newID(),
		Item:      item,
		ImageURI:  photo,
		Timestamp: r.opts.now(),
		Quote:     quote,
	}, nil
}

// Reset возвращает курсор на первую категорию.
func (r *RoundRobin) Reset() {
	r.mu.Lock()
	r.cursor = 0
	r.mu.Unlock()
}

