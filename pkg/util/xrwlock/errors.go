package xrwlock

import "errors"

var (
	// ErrNotHeld 表示守卫已释放或已降级。
	// Release/Downgrade 第二次及后续调用时返回此错误。
	ErrNotHeld = errors.New("xrwlock: lock not held")

	// ErrNilContext 表示传入的 context 为 nil。
	ErrNilContext = errors.New("xrwlock: nil context")
)
