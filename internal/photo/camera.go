package photo

import (
	"context"

	"github.com/mmeshcher/litterally/internal/model"
)

// Saver сохраняет данные снимка и возвращает ссылку на него.
type Saver interface {
	Save(ctx context.Context, data []byte) (model.ImageHandle, error)
}

// Upload играет роль камеры для кадра, присланного клиентом.
type Upload struct {
	store Saver
	data  []byte
}

// NewUpload создаёт камеру для одного загруженного кадра.
func NewUpload(store Saver, data []byte) *Upload {
	return &Upload{store: store, data: data}
}

// Capture сохраняет присланный кадр.
func (u *Upload) Capture(ctx context.Context) (model.ImageHandle, error) {
	return u.store.Save(ctx, u.data)
}

// Permission хранит ответ пользователя в системном диалоге доступа к камере.
type Permission bool

// RequestPermission возвращает ответ, полученный от клиента.
func (p Permission) RequestPermission(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	return bool(p), nil
}
