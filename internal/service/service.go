// Package service реализует бизнес-логику сервиса: сеансы устройств,
// сценарий сканирования, очки и настройки.
package service

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mmeshcher/litterally/internal/catalog"
	"github.com/mmeshcher/litterally/internal/classifier"
	"github.com/mmeshcher/litterally/internal/ledger"
	"github.com/mmeshcher/litterally/internal/model"
	"github.com/mmeshcher/litterally/internal/photo"
	"github.com/mmeshcher/litterally/internal/scanflow"
	"github.com/mmeshcher/litterally/internal/settings"
	"github.com/mmeshcher/litterally/internal/storage"
)

const defaultProfileName = "Guest"

// Writer принимает записи в долговременное хранилище без ожидания их завершения.
type Writer interface {
	Set(key string, value []byte)
}

// PhotoStore сохраняет и отдаёт снимки.
type PhotoStore interface {
	Save(ctx context.Context, data []byte) (model.ImageHandle, error)
	Open(name string) (io.ReadCloser, string, error)
	OpenHandle(handle model.ImageHandle) (io.ReadCloser, string, error)
	Remove(handle model.ImageHandle) error
}

// Notifiers выдаёт получателя событий для профиля.
type Notifiers interface {
	Notifier(profileID string) scanflow.Notifier
}

// Config содержит зависимости сервиса.
type Config struct {
	Catalog           *catalog.Catalog
	KV                storage.KV
	Writer            Writer
	Photos            PhotoStore
	Notifiers         Notifiers
	Policy            classifier.Policy
	ClassifierAddress string
	RevealDelay       time.Duration
	HistoryLimit      int
	Logger            *zap.Logger
}

// Session объединяет состояние одного устройства.
type Session struct {
	ID         string
	Controller *scanflow.Controller
	Ledger     *ledger.Ledger
	Settings   *settings.Store
	History    *History
}

// Service содержит бизнес-логику сервиса.
type Service struct {
	cfg    Config
	logger *zap.Logger
	now    func() time.Time

	mu       sync.Mutex
	sessions map[string]*Session
	closed   bool
}

// NewService создаёт сервис. Сеансы создаются лениво при первом обращении устройства.
func NewService(cfg Config) *Service {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Policy == "" {
		cfg.Policy = classifier.PolicyRoundRobin
	}
	return &Service{
		cfg:      cfg,
		logger:   cfg.Logger,
		now:      time.Now,
		sessions: make(map[string]*Session),
	}
}

// Close закрывает все сеансы.
func (s *Service) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	for id, sess := range s.sessions {
		sess.Controller.Close()
		delete(s.sessions, id)
	}
	return nil
}

// Session возвращает сеанс устройства, создавая и загружая его при необходимости.
func (s *Service) Session(ctx context.Context, deviceID string) (*Session, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, scanflow.ErrClosed
	}
	if sess, ok := s.sessions[deviceID]; ok {
		s.mu.Unlock()
		return sess, nil
	}
	s.mu.Unlock()

	sess, err := s.newSession(ctx, deviceID)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		sess.Controller.Close()
		return nil, scanflow.ErrClosed
	}
	// параллельный запрос мог успеть создать сеанс первым
	if existing, ok := s.sessions[deviceID]; ok {
		sess.Controller.Close()
		return existing, nil
	}
	s.sessions[deviceID] = sess
	s.logger.Info("session created", zap.String("device", deviceID))
	return sess, nil
}

func (s *Service) newSession(ctx context.Context, deviceID string) (*Session, error) {
	profile := model.UserProfile{
		ID:       deviceID,
		Name:     defaultProfileName,
		JoinDate: s.now().Format("January 2006"),
	}

	l := ledger.New(profile, s.cfg.Catalog.Badges(), s.cfg.KV, s.cfg.Writer, s.logger)
	if err := l.Load(ctx); err != nil {
		return nil, fmt.Errorf("load session %s: %w", deviceID, err)
	}

	st := settings.NewStore(deviceID, s.cfg.KV, s.cfg.Writer, s.logger)
	if err := st.Load(ctx); err != nil {
		return nil, fmt.Errorf("load session %s: %w", deviceID, err)
	}

	cl, err := s.newClassifier()
	if err != nil {
		return nil, err
	}

	history := NewHistory(s.cfg.HistoryLimit)

	var notifier scanflow.Notifier
	if s.cfg.Notifiers != nil {
		notifier = s.cfg.Notifiers.Notifier(deviceID)
	}

	ctrl := scanflow.New(scanflow.Config{
		Classifier:  cl,
		Rewarder:    l,
		Recorder:    history,
		Notifier:    notifier,
		Photos:      &sessionPhotos{store: s.cfg.Photos, history: history, logger: s.logger},
		RevealDelay: s.cfg.RevealDelay,
		Logger:      s.logger.With(zap.String("device", deviceID)),
	})

	return &Session{
		ID:         deviceID,
		Controller: ctrl,
		Ledger:     l,
		Settings:   st,
		History:    history,
	}, nil
}

func (s *Service) newClassifier() (classifier.Classifier, error) {
	if s.cfg.ClassifierAddress != "" {
		return classifier.NewRemote(s.cfg.ClassifierAddress, s.cfg.Photos, s.cfg.Catalog), nil
	}
	cl, err := classifier.New(s.cfg.Policy, s.cfg.Catalog)
	if err != nil {
		return nil, fmt.Errorf("create classifier: %w", err)
	}
	return cl, nil
}

// Categories возвращает все категории отходов.
func (s *Service) Categories() []model.WasteCategory {
	return s.cfg.Catalog.Categories()
}

// Category возвращает категорию по идентификатору.
func (s *Service) Category(id string) (model.WasteCategory, error) {
	return s.cfg.Catalog.Category(id)
}

// Items возвращает все предметы справочника.
func (s *Service) Items() []model.Item {
	return s.cfg.Catalog.Items()
}

// Profile возвращает профиль устройства.
func (s *Service) Profile(ctx context.Context, deviceID string) (model.UserProfile, error) {
	sess, err := s.Session(ctx, deviceID)
	if err != nil {
		return model.UserProfile{}, err
	}
	return sess.Ledger.Profile(), nil
}

// UpdateProfile меняет имя и почту профиля. Значения проверяет вызывающий.
func (s *Service) UpdateProfile(ctx context.Context, deviceID, name, email string) (model.UserProfile, error) {
	sess, err := s.Session(ctx, deviceID)
	if err != nil {
		return model.UserProfile{}, err
	}
	return sess.Ledger.UpdateIdentity(name, email), nil
}

// ResetPoints обнуляет очки профиля.
func (s *Service) ResetPoints(ctx context.Context, deviceID string) (model.UserProfile, error) {
	sess, err := s.Session(ctx, deviceID)
	if err != nil {
		return model.UserProfile{}, err
	}
	return sess.Ledger.Reset(), nil
}

// Settings возвращает настройки устройства.
func (s *Service) Settings(ctx context.Context, deviceID string) (model.Settings, error) {
	sess, err := s.Session(ctx, deviceID)
	if err != nil {
		return model.Settings{}, err
	}
	return sess.Settings.Get(), nil
}

// UpdateSettings применяет change к настройкам устройства.
func (s *Service) UpdateSettings(ctx context.Context, deviceID string, change func(*model.Settings)) (model.Settings, error) {
	sess, err := s.Session(ctx, deviceID)
	if err != nil {
		return model.Settings{}, err
	}
	return sess.Settings.Update(change)
}

// ScanState возвращает состояние сценария сканирования.
func (s *Service) ScanState(ctx context.Context, deviceID string) (scanflow.Snapshot, error) {
	sess, err := s.Session(ctx, deviceID)
	if err != nil {
		return scanflow.Snapshot{}, err
	}
	return sess.Controller.Snapshot(), nil
}

// RequestPermission передаёт контроллеру ответ пользователя на запрос доступа к камере.
func (s *Service) RequestPermission(ctx context.Context, deviceID string, granted bool) (scanflow.Snapshot, error) {
	sess, err := s.Session(ctx, deviceID)
	if err != nil {
		return scanflow.Snapshot{}, err
	}
	return sess.Controller.RequestPermission(ctx, photo.Permission(granted))
}

// FlipCamera переключает камеру.
func (s *Service) FlipCamera(ctx context.Context, deviceID string) (scanflow.Snapshot, error) {
	sess, err := s.Session(ctx, deviceID)
	if err != nil {
		return scanflow.Snapshot{}, err
	}
	return sess.Controller.FlipCamera()
}

// Capture сохраняет присланный кадр как снимок сценария.
func (s *Service) Capture(ctx context.Context, deviceID string, data []byte) (scanflow.Snapshot, error) {
	sess, err := s.Session(ctx, deviceID)
	if err != nil {
		return scanflow.Snapshot{}, err
	}
	return sess.Controller.Capture(ctx, photo.NewUpload(s.cfg.Photos, data))
}

// Classify классифицирует текущий снимок.
func (s *Service) Classify(ctx context.Context, deviceID string) (scanflow.Snapshot, error) {
	sess, err := s.Session(ctx, deviceID)
	if err != nil {
		return scanflow.Snapshot{}, err
	}
	return sess.Controller.Classify(ctx)
}

// ClaimPoints засчитывает текущий результат.
func (s *Service) ClaimPoints(ctx context.Context, deviceID string) (scanflow.Snapshot, model.UserProfile, error) {
	sess, err := s.Session(ctx, deviceID)
	if err != nil {
		return scanflow.Snapshot{}, model.UserProfile{}, err
	}
	return sess.Controller.ClaimPoints()
}

// Retake возвращает сценарий к просмотру снимка.
func (s *Service) Retake(ctx context.Context, deviceID string) (scanflow.Snapshot, error) {
	sess, err := s.Session(ctx, deviceID)
	if err != nil {
		return scanflow.Snapshot{}, err
	}
	return sess.Controller.Retake()
}

// Discard отбрасывает снимок.
func (s *Service) Discard(ctx context.Context, deviceID string) (scanflow.Snapshot, error) {
	sess, err := s.Session(ctx, deviceID)
	if err != nil {
		return scanflow.Snapshot{}, err
	}
	return sess.Controller.Discard()
}

// Confirm подтверждает результат и возвращает живую камеру.
func (s *Service) Confirm(ctx context.Context, deviceID string) (scanflow.Snapshot, model.UserProfile, error) {
	sess, err := s.Session(ctx, deviceID)
	if err != nil {
		return scanflow.Snapshot{}, model.UserProfile{}, err
	}
	return sess.Controller.Confirm()
}

// History возвращает результаты классификации устройства, начиная с последнего.
func (s *Service) History(ctx context.Context, deviceID string) ([]model.ScanResult, error) {
	sess, err := s.Session(ctx, deviceID)
	if err != nil {
		return nil, err
	}
	return sess.History.List(), nil
}

// OpenPhoto открывает снимок, если он принадлежит устройству: это текущий
// снимок сценария или снимок из истории.
func (s *Service) OpenPhoto(ctx context.Context, deviceID, name string) (io.ReadCloser, string, error) {
	sess, err := s.Session(ctx, deviceID)
	if err != nil {
		return nil, "", err
	}

	handle := model.ImageHandle(photo.HandlePrefix + name)
	if sess.Controller.Snapshot().ImageURI != handle && !sess.History.Contains(handle) {
		return nil, "", photo.ErrNotFound
	}
	return s.cfg.Photos.Open(name)
}

// sessionPhotos удаляет снимки, на которые не ссылается история сеанса.
type sessionPhotos struct {
	store   PhotoStore
	history *History
	logger  *zap.Logger
}

func (p *sessionPhotos) Release(handle model.ImageHandle) {
	if p.store == nil || p.history.Contains(handle) {
		return
	}
	if err := p.store.Remove(handle); err != nil {
		p.logger.Warn("failed to remove photo", zap.String("photo", string(handle)), zap.Error(err))
	}
}
