package httpserver

import "errors"

var (
	// ErrStart indicates the server failed to start or run.
	ErrStart = errors.New("failed to start http server")
	// ErrShutdown indicates the server failed to shut down cleanly.
	ErrShutdown = errors.New("failed to shut down http server")
)
