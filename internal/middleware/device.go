// Package middleware содержит HTTP middleware сервиса.
package middleware

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

type contextKey string

const deviceIDKey contextKey = "deviceID"

const (
	deviceCookieName = "device_token"
	deviceCookieTTL  = 365 * 24 * time.Hour

	// DeviceHeader дублирует cookie для клиентов, которые не хранят cookie.
	DeviceHeader = "X-Device-Token"
)

// DeviceMiddleware определяет устройство по подписанному токену и выдаёт новый токен,
// если его нет или подпись не сходится.
type DeviceMiddleware struct {
	secretKey []byte
	newID     func() string
}

// NewDeviceMiddleware создаёт middleware с указанным секретным ключом.
// Пустой ключ заменяется случайным: токены тогда живут до перезапуска.
func NewDeviceMiddleware(secret string) *DeviceMiddleware {
	key := []byte(secret)
	if len(key) == 0 {
		randomKey := make([]byte, 32)
		if _, err := rand.Read(randomKey); err == nil {
			key = randomKey
		} else {
			key = []byte("default-secret-key")
		}
	}

	return &DeviceMiddleware{
		secretKey: key,
		newID:     uuid.NewString,
	}
}

// Middleware добавляет идентификатор устройства в контекст запроса.
func (d *DeviceMiddleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		deviceID, ok := d.deviceFromRequest(r)
		if !ok {
			deviceID = d.newID()
			d.SetDeviceToken(w, deviceID)
		}

		ctx := context.WithValue(r.Context(), deviceIDKey, deviceID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// SetDeviceToken выдаёт клиенту подписанный токен устройства в cookie и заголовке ответа.
func (d *DeviceMiddleware) SetDeviceToken(w http.ResponseWriter, deviceID string) {
	value := d.sign(deviceID)

	http.SetCookie(w, &http.Cookie{
		Name:     deviceCookieName,
		Value:    value,
		Path:     "/",
		Expires:  time.Now().Add(deviceCookieTTL),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	w.Header().Set(DeviceHeader, value)
}

func (d *DeviceMiddleware) deviceFromRequest(r *http.Request) (string, bool) {
	if token := r.Header.Get(DeviceHeader); token != "" {
		return d.parseToken(token)
	}
	cookie, err := r.Cookie(deviceCookieName)
	if err != nil {
		return "", false
	}
	return d.parseToken(cookie.Value)
}

func (d *DeviceMiddleware) sign(deviceID string) string {
	mac := hmac.New(sha256.New, d.secretKey)
	mac.Write([]byte(deviceID))
	return deviceID + "." + hex.EncodeToString(mac.Sum(nil))
}

func (d *DeviceMiddleware) parseToken(token string) (string, bool) {
	deviceID, signature, ok := strings.Cut(token, ".")
	if !ok {
		return "", false
	}
	if _, err := uuid.Parse(deviceID); err != nil {
		return "", false
	}

	_, expected, _ := strings.Cut(d.sign(deviceID), ".")
	if !hmac.Equal([]byte(signature), []byte(expected)) {
		return "", false
	}
	return deviceID, true
}

// GetDeviceIDFromContext извлекает идентификатор устройства из контекста запроса.
func GetDeviceIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(deviceIDKey).(string)
	return id, ok
}
