// Package scanflow реализует конечный автомат сценария сканирования:
// съёмка, классификация, показ результата и начисление очков.
package scanflow

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mmeshcher/litterally/internal/classifier"
	"github.com/mmeshcher/litterally/internal/model"
)

// DefaultRevealDelay задаёт, через сколько скрывается плашка с очками.
const DefaultRevealDelay = 5 * time.Second

// State описывает состояние сценария сканирования.
type State string

const (
	StatePermissionRequired State = "permission_required"
	StateIdle               State = "idle"
	StateCapturing          State = "capturing"
	StateReviewing          State = "reviewing"
	StateClassifying        State = "classifying"
	StateClassified         State = "classified"
)

// Facing указывает, какая камера активна.
type Facing string

const (
	FacingBack  Facing = "back"
	FacingFront Facing = "front"
)

// Camera делает снимок и возвращает ссылку на него.
type Camera interface {
	Capture(ctx context.Context) (model.ImageHandle, error)
}

// PermissionRequester запрашивает у пользователя доступ к камере.
type PermissionRequester interface {
	RequestPermission(ctx context.Context) (bool, error)
}

// Rewarder засчитывает подтверждённый результат не более одного раза.
type Rewarder interface {
	Credit(resultID string, points int) (model.UserProfile, bool, error)
}

// Recorder сохраняет завершённые результаты в историю.
type Recorder interface {
	Record(result model.ScanResult)
}

// PhotoReleaser освобождает снимок, который покинул сценарий без результата.
type PhotoReleaser interface {
	Release(handle model.ImageHandle)
}

// EventType обозначает тип события сценария.
type EventType string

const (
	EventStateChanged   EventType = "scan_state"
	EventOverlayHidden  EventType = "points_overlay_hidden"
	EventProfileUpdated EventType = "profile_updated"
)

// Event публикуется при каждом изменении состояния сценария.
type Event struct {
	Type     EventType          `json:"type"`
	Snapshot Snapshot           `json:"snapshot"`
	Profile  *model.UserProfile `json:"profile,omitempty"`
}

// Notifier получает события сценария. События доставляются по одному и в
// порядке изменения состояния; Notify может обращаться к контроллеру.
type Notifier interface {
	Notify(ev Event)
}

// Snapshot содержит наблюдаемое состояние контроллера.
type Snapshot struct {
	State            State             `json:"state"`
	Facing           Facing            `json:"facing"`
	PermissionDenied bool              `json:"permissionDenied"`
	ImageURI         model.ImageHandle `json:"imageUri,omitempty"`
	Result           *model.ScanResult `json:"result,omitempty"`
	Quote            string            `json:"quote,omitempty"`
	PointsVisible    bool              `json:"pointsVisible"`
	PointsAdded      bool              `json:"pointsAdded"`
}

// Config содержит зависимости контроллера.
type Config struct {
	Classifier  classifier.Classifier
	Rewarder    Rewarder
	Recorder    Recorder
	Notifier    Notifier
	Photos      PhotoReleaser
	RevealDelay time.Duration
	Logger      *zap.Logger
}

// Controller реализует конечный автомат одного сеанса сканирования.
// Во время съёмки и классификации блокировка не удерживается, а переходные
// состояния отклоняют любые конкурирующие запросы.
type Controller struct {
	classifier  classifier.Classifier
	rewarder    Rewarder
	recorder    Recorder
	notifier    Notifier
	photos      PhotoReleaser
	revealDelay time.Duration
	logger      *zap.Logger

	mu               sync.Mutex
	state            State
	facing           Facing
	permissionDenied bool
	image            model.ImageHandle
	result           *model.ScanResult
	pointsAdded      bool
	pointsVisible    bool
	reveal           *time.Timer
	revealGen        uint64
	closed           bool

	// очередь событий; доставляет их только одна горутина за раз
	pending    []Event
	delivering bool
}

// New создаёт контроллер в состоянии ожидания разрешения камеры.
func New(cfg Config) *Controller {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.RevealDelay <= 0 {
		cfg.RevealDelay = DefaultRevealDelay
	}
	return &Controller{
		classifier:  cfg.Classifier,
		rewarder:    cfg.Rewarder,
		recorder:    cfg.Recorder,
		notifier:    cfg.Notifier,
		photos:      cfg.Photos,
		revealDelay: cfg.RevealDelay,
		logger:      cfg.Logger,
		state:       StatePermissionRequired,
		facing:      FacingBack,
	}
}

// Snapshot возвращает текущее состояние.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// RequestPermission запрашивает доступ к камере. Повторный запрос после отказа
// разрешён всегда; автоматических повторов нет.
func (c *Controller) RequestPermission(ctx context.Context, p PermissionRequester) (Snapshot, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return Snapshot{}, ErrClosed
	}
	if c.state != StatePermissionRequired {
		snap := c.snapshotLocked()
		c.mu.Unlock()
		return snap, nil
	}
	c.mu.Unlock()

	granted, err := p.RequestPermission(ctx)
	if err != nil {
		return c.Snapshot(), fmt.Errorf("request permission: %w", err)
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return Snapshot{}, ErrClosed
	}
	if c.state != StatePermissionRequired {
		snap := c.snapshotLocked()
		c.mu.Unlock()
		return snap, nil
	}
	if granted {
		c.state = StateIdle
		c.permissionDenied = false
	} else {
		c.permissionDenied = true
	}
	snap := c.publishLocked(EventStateChanged, nil)
	c.unlockAndDeliver()

	if !granted {
		return snap, ErrPermissionDenied
	}
	return snap, nil
}

// FlipCamera переключает фронтальную и основную камеры. Допустимо только при живой камере.
func (c *Controller) FlipCamera() (Snapshot, error) {
	c.mu.Lock()
	if err := c.checkLocked(StateIdle); err != nil {
		c.mu.Unlock()
		return c.Snapshot(), err
	}
	if c.facing == FacingBack {
		c.facing = FacingFront
	} else {
		c.facing = FacingBack
	}
	snap := c.publishLocked(EventStateChanged, nil)
	c.unlockAndDeliver()
	return snap, nil
}

// Capture делает снимок. При успехе сценарий переходит к просмотру снимка,
// при сбое возвращается в Idle с CaptureError.
func (c *Controller) Capture(ctx context.Context, cam Camera) (Snapshot, error) {
	c.mu.Lock()
	if err := c.checkLocked(StateIdle); err != nil {
		c.mu.Unlock()
		return c.Snapshot(), err
	}
	c.state = StateCapturing
	c.publishLocked(EventStateChanged, nil)
	c.unlockAndDeliver()

	handle, err := cam.Capture(ctx)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		if err == nil {
			c.release(handle)
		}
		return Snapshot{}, ErrClosed
	}
	if err != nil {
		c.state = StateIdle
		snap := c.publishLocked(EventStateChanged, nil)
		c.unlockAndDeliver()

		c.logger.Warn("capture failed", zap.Error(err))
		return snap, &CaptureError{Err: err}
	}
	c.state = StateReviewing
	c.image = handle
	snap := c.publishLocked(EventStateChanged, nil)
	c.unlockAndDeliver()
	return snap, nil
}

// Discard отбрасывает снимок и возвращает живую камеру. Снимок освобождается.
func (c *Controller) Discard() (Snapshot, error) {
	c.mu.Lock()
	if err := c.checkLocked(StateReviewing); err != nil {
		c.mu.Unlock()
		return c.Snapshot(), err
	}
	image := c.image
	c.state = StateIdle
	c.image = ""
	snap := c.publishLocked(EventStateChanged, nil)
	c.unlockAndDeliver()

	c.release(image)
	return snap, nil
}

// Classify отправляет снимок в классификатор. Результат сохраняется в историю,
// а плашка с очками показывается на фиксированное время. При сбое сценарий
// остаётся на просмотре снимка, и классификацию можно повторить.
func (c *Controller) Classify(ctx context.Context) (Snapshot, error) {
	c.mu.Lock()
	if err := c.checkLocked(StateReviewing); err != nil {
		c.mu.Unlock()
		return c.Snapshot(), err
	}
	c.state = StateClassifying
	photo := c.image
	c.publishLocked(EventStateChanged, nil)
	c.unlockAndDeliver()

	result, err := c.classifier.Classify(ctx, photo)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return Snapshot{}, ErrClosed
	}
	if err != nil {
		c.state = StateReviewing
		snap := c.publishLocked(EventStateChanged, nil)
		c.unlockAndDeliver()

		var cerr *classifier.Error
		if !errors.As(err, &cerr) {
			err = &classifier.Error{Err: err}
		}
		c.logger.Warn("classification failed", zap.Error(err))
		return snap, err
	}

	c.state = StateClassified
	c.result = &result
	c.pointsAdded = false
	c.startRevealLocked()
	if c.recorder != nil {
		c.recorder.Record(result)
	}
	snap := c.publishLocked(EventStateChanged, nil)
	c.unlockAndDeliver()
	return snap, nil
}

// ClaimPoints засчитывает текущий результат. Повторный вызов ничего не начисляет.
func (c *Controller) ClaimPoints() (Snapshot, model.UserProfile, error) {
	c.mu.Lock()
	if err := c.checkLocked(StateClassified); err != nil {
		c.mu.Unlock()
		return c.Snapshot(), model.UserProfile{}, err
	}
	profile, added, err := c.creditLocked()
	if err != nil {
		snap := c.snapshotLocked()
		c.mu.Unlock()
		return snap, profile, err
	}

	snap := c.snapshotLocked()
	if added {
		c.publishLocked(EventProfileUpdated, &profile)
	}
	c.unlockAndDeliver()
	return snap, profile, nil
}

// Retake убирает результат и возвращает к просмотру того же снимка.
func (c *Controller) Retake() (Snapshot, error) {
	c.mu.Lock()
	if err := c.checkLocked(StateClassified); err != nil {
		c.mu.Unlock()
		return c.Snapshot(), err
	}
	c.stopRevealLocked()
	c.state = StateReviewing
	c.result = nil
	c.pointsAdded = false
	snap := c.publishLocked(EventStateChanged, nil)
	c.unlockAndDeliver()
	return snap, nil
}

// Confirm засчитывает результат (если это ещё не сделано), очищает снимок,
// результат и цитату, сбрасывает курсор классификатора и возвращает живую камеру.
func (c *Controller) Confirm() (Snapshot, model.UserProfile, error) {
	c.mu.Lock()
	if err := c.checkLocked(StateClassified); err != nil {
		c.mu.Unlock()
		return c.Snapshot(), model.UserProfile{}, err
	}
	profile, added, err := c.creditLocked()
	if err != nil {
		snap := c.snapshotLocked()
		c.mu.Unlock()
		return snap, profile, err
	}

	c.stopRevealLocked()
	c.state = StateIdle
	c.image = ""
	c.result = nil
	c.pointsAdded = false
	if r, ok := c.classifier.(classifier.Resetter); ok {
		r.Reset()
	}
	if added {
		c.publishLocked(EventProfileUpdated, &profile)
	}
	snap := c.publishLocked(EventStateChanged, nil)
	c.unlockAndDeliver()
	return snap, profile, nil
}

// Close отменяет таймер плашки и запрещает дальнейшие переходы.
// Недоставленные события отбрасываются.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopRevealLocked()
	c.closed = true
	c.pending = nil
}

func (c *Controller) checkLocked(want State) error {
	if c.closed {
		return ErrClosed
	}
	if c.state == want {
		return nil
	}
	switch c.state {
	case StateCapturing, StateClassifying:
		return ErrBusy
	case StatePermissionRequired:
		return ErrPermissionDenied
	}
	return fmt.Errorf("%w: want state %s, current state %s", ErrInvalidTransition, want, c.state)
}

func (c *Controller) creditLocked() (model.UserProfile, bool, error) {
	if c.rewarder == nil || c.result == nil {
		return model.UserProfile{}, false, nil
	}
	profile, added, err := c.rewarder.Credit(c.result.ID, c.result.Item.Points)
	if err != nil {
		return profile, false, fmt.Errorf("credit result: %w", err)
	}
	c.pointsAdded = true
	return profile, added, nil
}

func (c *Controller) startRevealLocked() {
	c.stopRevealLocked()
	c.pointsVisible = true
	gen := c.revealGen
	c.reveal = time.AfterFunc(c.revealDelay, func() {
		c.hidePoints(gen)
	})
}

func (c *Controller) stopRevealLocked() {
	if c.reveal != nil {
		c.reveal.Stop()
		c.reveal = nil
	}
	c.revealGen++
	c.pointsVisible = false
}

func (c *Controller) hidePoints(gen uint64) {
	c.mu.Lock()
	// таймер мог сработать одновременно с остановкой
	if c.closed || gen != c.revealGen {
		c.mu.Unlock()
		return
	}
	c.pointsVisible = false
	c.reveal = nil
	c.publishLocked(EventOverlayHidden, nil)
	c.unlockAndDeliver()
}

func (c *Controller) snapshotLocked() Snapshot {
	snap := Snapshot{
		State:            c.state,
		Facing:           c.facing,
		PermissionDenied: c.permissionDenied,
		ImageURI:         c.image,
		PointsVisible:    c.pointsVisible,
		PointsAdded:      c.pointsAdded,
	}
	if c.result != nil {
		res := *c.result
		snap.Result = &res
		snap.Quote = res.Quote
	}
	return snap
}

// publishLocked ставит событие с текущим состоянием в очередь и возвращает это состояние.
func (c *Controller) publishLocked(t EventType, profile *model.UserProfile) Snapshot {
	snap := c.snapshotLocked()
	if c.notifier != nil {
		c.pending = append(c.pending, Event{Type: t, Snapshot: snap, Profile: profile})
	}
	return snap
}

// unlockAndDeliver снимает блокировку и доставляет очередь событий. Если
// доставкой уже занята другая горутина, события достанутся ей в том же порядке.
func (c *Controller) unlockAndDeliver() {
	if c.delivering {
		c.mu.Unlock()
		return
	}
	c.delivering = true
	for len(c.pending) > 0 {
		ev := c.pending[0]
		c.pending[0] = Event{}
		c.pending = c.pending[1:]
		c.mu.Unlock()

		c.notifier.Notify(ev)

		c.mu.Lock()
	}
	c.pending = nil
	c.delivering = false
	c.mu.Unlock()
}

func (c *Controller) release(handle model.ImageHandle) {
	if c.photos == nil || handle == "" {
		return
	}
	c.photos.Release(handle)
}
