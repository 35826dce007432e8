package classifier

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/mmeshcher/litterally/internal/catalog"
	"github.com/mmeshcher/litterally/internal/model"
)

// PhotoSource открывает содержимое сохранённой фотографии по её ссылке.
type PhotoSource interface {
	OpenHandle(handle model.ImageHandle) (io.ReadCloser, string, error)
}

// ItemLookup ищет предмет справочника по идентификатору.
type ItemLookup interface {
	Item(id string) (model.Item, error)
}

// Remote отправляет фотографию во внешний сервис распознавания.
type Remote struct {
	baseURL    string
	httpClient *http.Client
	photos     PhotoSource
	items      ItemLookup
	opts       options
}

// RemoteAnswer описывает ответ внешнего сервиса распознавания.
type RemoteAnswer struct {
	ItemID     string  `json:"itemId"`
	Confidence float64 `json:"confidence,omitempty"`
}

// NewRemote создаёт HTTP-клиент сервиса распознавания по указанному адресу.
func NewRemote(baseURL string, photos PhotoSource, items ItemLookup, opts ...Option) *Remote {
	base := strings.TrimRight(baseURL, "/")
	if base != "" && !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "http://" + base
	}

	return &Remote{
		baseURL: base,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		photos: photos,
		items:  items,
		opts:   buildOptions(opts),
	}
}

// Classify загружает фотографию в сервис распознавания и сопоставляет ответ со справочником.
func (c *Remote) Classify(ctx context.Context, photo model.ImageHandle) (model.ScanResult, error) {
	if c == nil || c.baseURL == "" {
		return model.ScanResult{}, &Error{Err: errors.New("remote classifier not configured")}
	}

	body, contentType, err := c.photos.OpenHandle(photo)
	if err != nil {
		return model.ScanResult{}, &Error{Err: fmt.Errorf("open photo: %w", err)}
	}
	defer body.Close()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/classify", body)
	if err != nil {
		return model.ScanResult{}, &Error{Err: fmt.Errorf("create request: %w", err)}
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return model.ScanResult{}, &Error{Err: fmt.Errorf("do request: %w", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		retryAfter := time.Duration(0)
		if v := resp.Header.Get("Retry-After"); v != "" {
			if seconds, parseErr := strconv.Atoi(v); parseErr == nil {
				retryAfter = time.Duration(seconds) * time.Second
			}
		}
		return model.ScanResult{}, &Error{
			StatusCode: resp.StatusCode,
			RetryAfter: retryAfter,
			Err:        errors.New("rate limited"),
		}
	}

	if resp.StatusCode != http.StatusOK {
		return model.ScanResult{}, &Error{
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("unexpected status: %d", resp.StatusCode),
		}
	}

	var answer RemoteAnswer
	if err := json.NewDecoder(resp.Body).Decode(&answer); err != nil {
		return model.ScanResult{}, &Error{StatusCode: resp.StatusCode, Err: fmt.Errorf("decode response: %w", err)}
	}

	item, err := c.items.Item(answer.ItemID)
	if err != nil {
		return model.ScanResult{}, &Error{StatusCode: resp.StatusCode, Err: err}
	}

	return model.ScanResult{
		ID:        c.opts.newID(),
		Item:      catalog.CloneItem(item),
		ImageURI:  photo,
		Timestamp: c.opts.now(),
	}, nil
}
