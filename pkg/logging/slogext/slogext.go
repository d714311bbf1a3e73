package slogext

import (
	"fmt"
	"log/slog"
)

func Err(err error) slog.Attr {
	if err == nil {
		return slog.String("error", "<nil>")
	}
	return slog.String("error", err.Error())
}

// Handle renders a node handle the way it appears in dumps: 0x-prefixed hex.
func Handle(key string, h uint32) slog.Attr {
	return slog.String(key, fmt.Sprintf("%#08x", h))
}
