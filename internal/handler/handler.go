// Package handler содержит HTTP-обработчики API сервиса.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/mmeshcher/litterally/internal/catalog"
	"github.com/mmeshcher/litterally/internal/classifier"
	"github.com/mmeshcher/litterally/internal/middleware"
	"github.com/mmeshcher/litterally/internal/model"
	"github.com/mmeshcher/litterally/internal/photo"
	"github.com/mmeshcher/litterally/internal/scanflow"
	"github.com/mmeshcher/litterally/internal/validation"
)

// MaxUploadSize ограничивает размер тела запроса со снимком.
const MaxUploadSize = photo.DefaultMaxSize

// Service определяет контракт бизнес-логики, используемой HTTP-обработчиками.
type Service interface {
	Categories() []model.WasteCategory
	Category(id string) (model.WasteCategory, error)
	Items() []model.Item

	Profile(ctx context.Context, deviceID string) (model.UserProfile, error)
	UpdateProfile(ctx context.Context, deviceID, name, email string) (model.UserProfile, error)
	ResetPoints(ctx context.Context, deviceID string) (model.UserProfile, error)
	Settings(ctx context.Context, deviceID string) (model.Settings, error)
	UpdateSettings(ctx context.Context, deviceID string, change func(*model.Settings)) (model.Settings, error)

	ScanState(ctx context.Context, deviceID string) (scanflow.Snapshot, error)
	RequestPermission(ctx context.Context, deviceID string, granted bool) (scanflow.Snapshot, error)
	FlipCamera(ctx context.Context, deviceID string) (scanflow.Snapshot, error)
	Capture(ctx context.Context, deviceID string, data []byte) (scanflow.Snapshot, error)
	Classify(ctx context.Context, deviceID string) (scanflow.Snapshot, error)
	ClaimPoints(ctx context.Context, deviceID string) (scanflow.Snapshot, model.UserProfile, error)
	Retake(ctx context.Context, deviceID string) (scanflow.Snapshot, error)
	Discard(ctx context.Context, deviceID string) (scanflow.Snapshot, error)
	Confirm(ctx context.Context, deviceID string) (scanflow.Snapshot, model.UserProfile, error)

	History(ctx context.Context, deviceID string) ([]model.ScanResult, error)
	OpenPhoto(ctx context.Context, deviceID, name string) (io.ReadCloser, string, error)
}

// EventStream подписывает WebSocket-соединение на события устройства.
type EventStream interface {
	ServeWS(w http.ResponseWriter, r *http.Request, profileID string)
}

// Handler реализует HTTP-обработчики API сервиса.
type Handler struct {
	service          Service
	events           EventStream
	logger           *zap.Logger
	deviceMiddleware *middleware.DeviceMiddleware
}

// NewHandler создаёт новый экземпляр обработчика HTTP-запросов.
func NewHandler(s Service, events EventStream, logger *zap.Logger, device *middleware.DeviceMiddleware) *Handler {
	return &Handler{
		service:          s,
		events:           events,
		logger:           logger,
		deviceMiddleware: device,
	}
}

type errorResponse struct {
	Error string             `json:"error"`
	Scan  *scanflow.Snapshot `json:"scan,omitempty"`
}

type rewardResponse struct {
	Scan    scanflow.Snapshot `json:"scan"`
	Profile model.UserProfile `json:"profile"`
}

type permissionRequest struct {
	Granted bool `json:"granted"`
}

type profileRequest struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

type settingsRequest struct {
	Notifications    *bool `json:"notifications"`
	DarkMode         *bool `json:"darkMode"`
	LocationServices *bool `json:"locationServices"`
}

func (req settingsRequest) apply(st *model.Settings) {
	if req.Notifications != nil {
		st.Notifications = *req.Notifications
	}
	if req.DarkMode != nil {
		st.DarkMode = *req.DarkMode
	}
	if req.LocationServices != nil {
		st.LocationServices = *req.LocationServices
	}
}

// GetCategories возвращает справочник категорий.
func (h *Handler) GetCategories(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.service.Categories())
}

// GetCategory возвращает категорию по идентификатору.
func (h *Handler) GetCategory(w http.ResponseWriter, r *http.Request) {
	cat, err := h.service.Category(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err, nil)
		return
	}
	h.writeJSON(w, http.StatusOK, cat)
}

// GetItems возвращает справочник предметов.
func (h *Handler) GetItems(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.service.Items())
}

// GetProfile возвращает профиль текущего устройства.
func (h *Handler) GetProfile(w http.ResponseWriter, r *http.Request) {
	deviceID, ok := h.deviceID(w, r)
	if !ok {
		return
	}

	profile, err := h.service.Profile(r.Context(), deviceID)
	if err != nil {
		h.writeError(w, r, err, nil)
		return
	}
	h.writeJSON(w, http.StatusOK, profile)
}

// UpdateProfile меняет имя и почту профиля.
func (h *Handler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	deviceID, ok := h.deviceID(w, r)
	if !ok {
		return
	}

	var req profileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	if !validation.IsValidDisplayName(req.Name) || !validation.IsValidEmail(req.Email) {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	profile, err := h.service.UpdateProfile(r.Context(), deviceID, req.Name, req.Email)
	if err != nil {
		h.writeError(w, r, err, nil)
		return
	}
	h.writeJSON(w, http.StatusOK, profile)
}

// ResetPoints обнуляет очки профиля.
func (h *Handler) ResetPoints(w http.ResponseWriter, r *http.Request) {
	deviceID, ok := h.deviceID(w, r)
	if !ok {
		return
	}

	profile, err := h.service.ResetPoints(r.Context(), deviceID)
	if err != nil {
		h.writeError(w, r, err, nil)
		return
	}
	h.writeJSON(w, http.StatusOK, profile)
}

// GetSettings возвращает настройки устройства.
func (h *Handler) GetSettings(w http.ResponseWriter, r *http.Request) {
	deviceID, ok := h.deviceID(w, r)
	if !ok {
		return
	}

	st, err := h.service.Settings(r.Context(), deviceID)
	if err != nil {
		h.writeError(w, r, err, nil)
		return
	}
	h.writeJSON(w, http.StatusOK, st)
}

// UpdateSettings меняет переданные в запросе настройки, остальные остаются прежними.
func (h *Handler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	deviceID, ok := h.deviceID(w, r)
	if !ok {
		return
	}

	var req settingsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	st, err := h.service.UpdateSettings(r.Context(), deviceID, req.apply)
	if err != nil {
		h.writeError(w, r, err, nil)
		return
	}
	h.writeJSON(w, http.StatusOK, st)
}

// GetScan возвращает состояние сценария сканирования.
func (h *Handler) GetScan(w http.ResponseWriter, r *http.Request) {
	h.scanOp(w, r, func(ctx context.Context, deviceID string) (scanflow.Snapshot, error) {
		return h.service.ScanState(ctx, deviceID)
	})
}

// RequestPermission принимает ответ пользователя в системном диалоге доступа к камере.
func (h *Handler) RequestPermission(w http.ResponseWriter, r *http.Request) {
	var req permissionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	h.scanOp(w, r, func(ctx context.Context, deviceID string) (scanflow.Snapshot, error) {
		return h.service.RequestPermission(ctx, deviceID, req.Granted)
	})
}

// FlipCamera переключает камеру.
func (h *Handler) FlipCamera(w http.ResponseWriter, r *http.Request) {
	h.scanOp(w, r, func(ctx context.Context, deviceID string) (scanflow.Snapshot, error) {
		return h.service.FlipCamera(ctx, deviceID)
	})
}

// Capture принимает кадр в теле запроса.
func (h *Handler) Capture(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxUploadSize))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			http.Error(w, http.StatusText(http.StatusRequestEntityTooLarge), http.StatusRequestEntityTooLarge)
			return
		}
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	h.scanOp(w, r, func(ctx context.Context, deviceID string) (scanflow.Snapshot, error) {
		return h.service.Capture(ctx, deviceID, data)
	})
}

// Classify классифицирует текущий снимок.
func (h *Handler) Classify(w http.ResponseWriter, r *http.Request) {
	h.scanOp(w, r, func(ctx context.Context, deviceID string) (scanflow.Snapshot, error) {
		return h.service.Classify(ctx, deviceID)
	})
}

// Retake возвращает к просмотру снимка.
func (h *Handler) Retake(w http.ResponseWriter, r *http.Request) {
	h.scanOp(w, r, func(ctx context.Context, deviceID string) (scanflow.Snapshot, error) {
		return h.service.Retake(ctx, deviceID)
	})
}

// Discard отбрасывает снимок.
func (h *Handler) Discard(w http.ResponseWriter, r *http.Request) {
	h.scanOp(w, r, func(ctx context.Context, deviceID string) (scanflow.Snapshot, error) {
		return h.service.Discard(ctx, deviceID)
	})
}

// ClaimPoints засчитывает текущий результат.
func (h *Handler) ClaimPoints(w http.ResponseWriter, r *http.Request) {
	h.rewardOp(w, r, h.service.ClaimPoints)
}

// Confirm подтверждает результат и возвращает живую камеру.
func (h *Handler) Confirm(w http.ResponseWriter, r *http.Request) {
	h.rewardOp(w, r, h.service.Confirm)
}

// GetHistory возвращает результаты классификации устройства.
func (h *Handler) GetHistory(w http.ResponseWriter, r *http.Request) {
	deviceID, ok := h.deviceID(w, r)
	if !ok {
		return
	}

	history, err := h.service.History(r.Context(), deviceID)
	if err != nil {
		h.writeError(w, r, err, nil)
		return
	}
	if len(history) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	h.writeJSON(w, http.StatusOK, history)
}

// GetPhoto отдаёт снимок устройства.
func (h *Handler) GetPhoto(w http.ResponseWriter, r *http.Request) {
	deviceID, ok := h.deviceID(w, r)
	if !ok {
		return
	}

	name := chi.URLParam(r, "name")
	if !validation.IsValidPhotoName(name) {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
		return
	}

	rc, contentType, err := h.service.OpenPhoto(r.Context(), deviceID, name)
	if err != nil {
		h.writeError(w, r, err, nil)
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", "private, max-age=86400")
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, rc); err != nil {
		h.logger.Warn("send photo error", zap.Error(err), zap.String("photo", name))
	}
}

// Events подписывает клиента на события устройства по WebSocket.
func (h *Handler) Events(w http.ResponseWriter, r *http.Request) {
	deviceID, ok := h.deviceID(w, r)
	if !ok {
		return
	}
	h.events.ServeWS(w, r, deviceID)
}

func (h *Handler) scanOp(w http.ResponseWriter, r *http.Request, op func(ctx context.Context, deviceID string) (scanflow.Snapshot, error)) {
	deviceID, ok := h.deviceID(w, r)
	if !ok {
		return
	}

	snap, err := op(r.Context(), deviceID)
	if err != nil {
		h.writeError(w, r, err, &snap)
		return
	}
	h.writeJSON(w, http.StatusOK, snap)
}

func (h *Handler) rewardOp(w http.ResponseWriter, r *http.Request, op func(ctx context.Context, deviceID string) (scanflow.Snapshot, model.UserProfile, error)) {
	deviceID, ok := h.deviceID(w, r)
	if !ok {
		return
	}

	snap, profile, err := op(r.Context(), deviceID)
	if err != nil {
		h.writeError(w, r, err, &snap)
		return
	}
	h.writeJSON(w, http.StatusOK, rewardResponse{Scan: snap, Profile: profile})
}

func (h *Handler) deviceID(w http.ResponseWriter, r *http.Request) (string, bool) {
	deviceID, ok := middleware.GetDeviceIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return "", false
	}
	return deviceID, true
}

// statusFor сопоставляет ошибку предметной области с HTTP-статусом.
func statusFor(err error) int {
	var capErr *scanflow.CaptureError
	var clsErr *classifier.Error

	switch {
	case errors.Is(err, scanflow.ErrPermissionDenied):
		return http.StatusForbidden
	case errors.As(err, &capErr):
		return http.StatusUnprocessableEntity
	case errors.As(err, &clsErr):
		return http.StatusBadGateway
	case errors.Is(err, scanflow.ErrInvalidTransition), errors.Is(err, scanflow.ErrBusy):
		return http.StatusConflict
	case errors.Is(err, catalog.ErrCategoryNotFound), errors.Is(err, catalog.ErrItemNotFound),
		errors.Is(err, photo.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, scanflow.ErrClosed):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error, snap *scanflow.Snapshot) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		h.logger.Error("request failed", zap.Error(err), zap.String("uri", r.RequestURI))
		snap = nil
	}

	var clsErr *classifier.Error
	if errors.As(err, &clsErr) && clsErr.RetryAfter > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(int(clsErr.RetryAfter.Seconds())))
	}

	resp := errorResponse{Error: err.Error(), Scan: snap}
	if status == http.StatusInternalServerError {
		resp.Error = http.StatusText(status)
	}
	h.writeJSON(w, status, resp)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Warn("encode response error", zap.Error(err))
	}
}
