// Package blobstore holds sample images. Backends return a public URL on Put
// and can map that URL back to the key for later deletion.
package blobstore

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/oklog/ulid/v2"

	"github.com/vbonduro/fgsamples/internal/domain"
)

var ErrNotFound = domain.ErrNotFound

type Store interface {
	Put(ctx context.Context, key, mimeType string, r io.Reader) (url string, err error)
	Get(ctx context.Context, key string) (io.ReadCloser, string, error)
	Delete(ctx context.Context, key string) error
	// KeyFromURL reports the key behind a URL previously returned by Put.
	KeyFromURL(url string) (string, bool)
}

// NewKey builds "{brand}/{description}/{file}_{ulid}{ext}" from normalized
// components. The ULID keeps re-uploads of the same file apart.
func NewKey(brand, description, filename, mimeType string) string {
	base := strings.TrimSuffix(path.Base(filename), path.Ext(filename))
	base = domain.Normalize(base)
	if base == "" || base == "." || base == "/" {
		base = "image"
	}
	return fmt.Sprintf("%s/%s/%s_%s%s",
		domain.Normalize(brand),
		domain.Normalize(description),
		sanitize(base),
		ulid.Make().String(),
		ExtForMIME(mimeType),
	)
}

func sanitize(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_', r == '-':
			return r
		default:
			return -1
		}
	}, s)
}

func ExtForMIME(mimeType string) string {
	switch mimeType {
	case "image/png":
		return ".png"
	case "image/gif":
		return ".gif"
	case "image/webp":
		return ".webp"
	default:
		return ".jpg"
	}
}

func MIMEForKey(key string) string {
	switch strings.ToLower(path.Ext(key)) {
	case ".png":
		return "image/png"
	case ".gif":
		return "image/gif"
	case ".webp":
		return "image/webp"
	default:
		return "image/jpeg"
	}
}
