package storage

import (
	"net/url"
	"strings"
)

func safeFilename(name string) string {
	decoded, err := url.QueryUnescape(name)
	if err != nil {
		decoded = name
	}
	decoded = strings.TrimPrefix(decoded, "/")

	var b strings.Builder
	for _, r := range decoded {
		switch {
		case r >= 'A' && r <= 'Z', r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_', r == '.', r == '-':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	out := b.String()
	if out == "" {
		return "index.html"
	}
	return out
}
