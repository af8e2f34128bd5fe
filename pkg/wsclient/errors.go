package wsclient

import "errors"

var (
	ErrNotConnected = errors.New("websocket not connected")
)
