package connection

import "errors"

// Errors
var (
	ErrConnectFailed      = errors.New("connect failed")
	ErrSendFailed         = errors.New("send failed")
	ErrNotConnected       = errors.New("not connected")
	ErrReconnectExhausted = errors.New("reconnect attempts exhausted")
	ErrRateLimited        = errors.New("send rate limited")
	ErrInvalidConfig      = errors.New("invalid client config")
)
