package service

import (
	"sync"

	"github.com/mmeshcher/litterally/internal/model"
)

// History хранит результаты классификации сеанса, при limit > 0 только последние limit.
type History struct {
	limit int

	mu      sync.Mutex
	results []model.ScanResult
}

// NewHistory создаёт пустую историю.
func NewHistory(limit int) *History {
	return &History{limit: limit}
}

// Record добавляет результат в историю.
func (h *History) Record(result model.ScanResult) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.results = append(h.results, result)
	if h.limit > 0 && len(h.results) > h.limit {
		h.results = append([]model.ScanResult(nil), h.results[len(h.results)-h.limit:]...)
	}
}

// List возвращает результаты, начиная с самого свежего.
func (h *History) List() []model.ScanResult {
	h.mu.Lock()
	defer h.mu.Unlock()

	res := make([]model.ScanResult, len(h.results))
	for i, r := range h.results {
		res[len(h.results)-1-i] = r
	}
	return res
}

// Contains сообщает, есть ли в истории результат с таким снимком.
func (h *History) Contains(image model.ImageHandle) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, r := range h.results {
		if r.ImageURI == image {
			return true
		}
	}
	return false
}
