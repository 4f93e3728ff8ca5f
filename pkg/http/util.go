package http

import (
	"time"

	xutil "FinRange/pkg/util"
)

// ParseDateDefault parses YYYY-MM-DD (or any ParseTime layout) or returns def.
func ParseDateDefault(s string, def time.Time) time.Time {
	if s == "" {
		return def
	}
	if d, ok := xutil.ParseDate(s); ok {
		return d
	}
	return xutil.ParseTimeDefault(s, def)
}
