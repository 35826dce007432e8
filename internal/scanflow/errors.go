package scanflow

import (
	"errors"
	"fmt"
)

var (
	// ErrPermissionDenied возвращается, пока пользователь не разрешил доступ к камере.
	ErrPermissionDenied = errors.New("camera permission denied")
	// ErrInvalidTransition возвращается для операции, недопустимой в текущем состоянии.
	ErrInvalidTransition = errors.New("invalid scan flow transition")
	// ErrBusy возвращается, пока выполняется съёмка или классификация.
	ErrBusy = errors.New("scan flow operation in progress")
	// ErrClosed возвращается после закрытия контроллера.
	ErrClosed = errors.New("scan flow closed")
)

// CaptureError описывает сбой съёмки. Съёмку можно сразу повторить.
type CaptureError struct {
	Err error
}

func (e *CaptureError) Error() string {
	return fmt.Sprintf("capture failed: %v", e.Err)
}

func (e *CaptureError) Unwrap() error {
	return e.Err
}
