// Package ledger ведёт учёт очков, счётчиков и наград пользователя.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"sync"

	"go.uber.org/zap"

	"github.com/mmeshcher/litterally/internal/model"
	"github.com/mmeshcher/litterally/internal/storage"
)

// ErrNegativePoints возвращается при попытке начислить отрицательное число очков.
var ErrNegativePoints = errors.New("points must be non-negative")

// Writer принимает записи в долговременное хранилище без ожидания их завершения.
type Writer interface {
	Set(key string, value []byte)
}

// Ledger хранит профиль пользователя в памяти и сохраняет очки в фоне.
// Память остаётся источником истины, даже если запись не удалась.
type Ledger struct {
	kv     storage.KV
	writer Writer
	logger *zap.Logger
	badges []model.Badge

	mu       sync.Mutex
	profile  model.UserProfile
	credited map[string]struct{}
}

// New создаёт учёт для профиля. Награды берутся из справочника, признак Unlocked игнорируется.
func New(profile model.UserProfile, badges []model.Badge, kv storage.KV, writer Writer, logger *zap.Logger) *Ledger {
	if logger == nil {
		logger = zap.NewNop()
	}
	profile.Badges = nil
	return &Ledger{
		kv:       kv,
		writer:   writer,
		logger:   logger,
		badges:   append([]model.Badge(nil), badges...),
		profile:  profile,
		credited: make(map[string]struct{}),
	}
}

// Load восстанавливает сохранённые очки. Отсутствующее или повреждённое значение не является ошибкой.
func (l *Ledger) Load(ctx context.Context) error {
	if l.kv == nil {
		return nil
	}

	l.mu.Lock()
	key := storage.PointsKey(l.profile.ID)
	l.mu.Unlock()

	raw, ok, err := l.kv.Get(ctx, key)
	if err != nil {
		return fmt.Errorf("load points: %w", err)
	}
	if !ok {
		return nil
	}

	points, err := strconv.Atoi(string(raw))
	if err != nil || points < 0 {
		l.logger.Warn("ignoring corrupt points value", zap.String("key", key), zap.ByteString("value", raw))
		return nil
	}

	l.mu.Lock()
	l.profile.Points = points
	l.mu.Unlock()
	return nil
}

// AddPoints начисляет n очков за результат сканирования. Повторное начисление
// за тот же результат ничего не меняет и возвращает added == false.
func (l *Ledger) AddPoints(resultID string, n int) (model.UserProfile, bool, error) {
	if n < 0 {
		return l.Profile(), false, ErrNegativePoints
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, done := l.credited[resultID]; done {
		return l.snapshotLocked(), false, nil
	}
	l.credited[resultID] = struct{}{}
	l.profile.Points += n
	l.persistPointsLocked()

	return l.snapshotLocked(), true, nil
}

// Credit засчитывает подтверждённый результат: начисляет очки и увеличивает оба счётчика.
// Как и AddPoints, срабатывает для результата не более одного раза.
func (l *Ledger) Credit(resultID string, n int) (model.UserProfile, bool, error) {
	if n < 0 {
		return l.Profile(), false, ErrNegativePoints
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, done := l.credited[resultID]; done {
		return l.snapshotLocked(), false, nil
	}
	l.credited[resultID] = struct{}{}
	l.profile.Points += n
	l.profile.Scans++
	l.profile.CorrectSorts++
	l.persistPointsLocked()

	return l.snapshotLocked(), true, nil
}

// Credited сообщает, были ли уже начислены очки за результат.
func (l *Ledger) Credited(resultID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.credited[resultID]
	return ok
}

// IncrementScanCount увеличивает счётчик сканирований на единицу.
func (l *Ledger) IncrementScanCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.profile.Scans++
	return l.profile.Scans
}

// IncrementCorrectSorts увеличивает счётчик правильных сортировок на единицу.
func (l *Ledger) IncrementCorrectSorts() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.profile.CorrectSorts++
	return l.profile.CorrectSorts
}

// Reset обнуляет очки. Уже засчитанные результаты повторно не засчитываются.
func (l *Ledger) Reset() model.UserProfile {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.profile.Points = 0
	l.persistPointsLocked()
	return l.snapshotLocked()
}

// UpdateIdentity меняет отображаемое имя и почту профиля.
func (l *Ledger) UpdateIdentity(name, email string) model.UserProfile {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.profile.Name = name
	l.profile.Email = email
	return l.snapshotLocked()
}

// Profile возвращает снимок профиля с вычисленными наградами.
func (l *Ledger) Profile() model.UserProfile {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.snapshotLocked()
}

func (l *Ledger) snapshotLocked() model.UserProfile {
	p := l.profile
	p.Badges = DeriveBadges(l.badges, p.Points)
	p.Impact = EstimateImpact(p.CorrectSorts)
	return p
}

func (l *Ledger) persistPointsLocked() {
	if l.writer == nil {
		return
	}
	l.writer.Set(storage.PointsKey(l.profile.ID), []byte(strconv.Itoa(l.profile.Points)))
}

// DeriveBadges вычисляет признак разблокировки каждой награды по текущим очкам.
func DeriveBadges(defs []model.Badge, points int) []model.Badge {
	res := make([]model.Badge, len(defs))
	for i, b := range defs {
		b.Unlocked = points >= b.Threshold
		res[i] = b
	}
	return res
}

// EstimateImpact оценивает экологический эффект по числу правильных сортировок.
func EstimateImpact(correctSorts int) model.Impact {
	n := float64(correctSorts)
	return model.Impact{
		CO2SavedKg:        roundTo(n*0.5, 1),
		WaterSavedLiters:  roundTo(n*10, 0),
		EnergySavedKWh:    roundTo(n*0.25, 1),
		LandfillReducedKg: roundTo(n*0.2, 1),
	}
}

func roundTo(v float64, digits int) float64 {
	p := math.Pow(10, float64(digits))
	return math.Round(v*p) / p
}
