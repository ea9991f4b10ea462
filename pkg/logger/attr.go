package logger

import "log/slog"

// Error creates an attribute for a single error under the key "error".
// If err is nil, it returns an empty Attr.
func Error(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.Any("error", err)
}

// Component records the component name under the key "component".
func Component(name string) slog.Attr {
	return slog.String("component", name)
}

// FileID records the file identifier under the key "file_id".
func FileID(id string) slog.Attr {
	return slog.String("file_id", id)
}

// Backend records the active storage backend under the key "backend".
func Backend(name string) slog.Attr {
	return slog.String("backend", name)
}

// Filename records the sanitized filename under the key "filename".
func Filename(name string) slog.Attr {
	return slog.String("filename", name)
}

// Size records a byte count under the key "size".
func Size(n int64) slog.Attr {
	return slog.Int64("size", n)
}

// RequestID records the request identifier under the key "request_id".
func RequestID(id string) slog.Attr {
	if id == "" {
		return slog.Attr{}
	}
	return slog.String("request_id", id)
}
