// Package photo validates uploaded sample images and optionally shrinks
// oversized ones before they reach the blob store.
package photo

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"

	"github.com/disintegration/imaging"
)

// MaxUploadSize caps multipart bodies carrying an image.
const MaxUploadSize = 20 * 1024 * 1024

var ErrUnsupportedFormat = errors.New("unsupported image format")

// allowedTypes are the formats imaging can re-encode. WebP is accepted too
// but always stored as uploaded.
var allowedTypes = map[string]imaging.Format{
	"image/jpeg": imaging.JPEG,
	"image/png":  imaging.PNG,
	"image/gif":  imaging.GIF,
}

func isWebP(data []byte) bool {
	return len(data) >= 12 &&
		string(data[0:4]) == "RIFF" &&
		string(data[8:12]) == "WEBP"
}

// DetectMIME returns the image MIME type of data, or ErrUnsupportedFormat.
func DetectMIME(data []byte) (string, error) {
	if isWebP(data) {
		return "image/webp", nil
	}
	mime := http.DetectContentType(data)
	if _, ok := allowedTypes[mime]; ok {
		return mime, nil
	}
	return "", ErrUnsupportedFormat
}

// Prepare sniffs data and, when maxDimension > 0, scales JPEG, PNG and GIF
// images down so neither side exceeds it. WebP and images already within
// bounds are returned untouched.
func Prepare(data []byte, maxDimension int) ([]byte, string, error) {
	mime, err := DetectMIME(data)
	if err != nil {
		return nil, "", err
	}
	format, ok := allowedTypes[mime]
	if maxDimension <= 0 || !ok {
		return data, mime, nil
	}

	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, "", fmt.Errorf("failed to decode image: %w", err)
	}
	b := img.Bounds()
	if b.Dx() <= maxDimension && b.Dy() <= maxDimension {
		return data, mime, nil
	}

	var buf bytes.Buffer
	resized := imaging.Fit(img, maxDimension, maxDimension, imaging.Lanczos)
	if err := imaging.Encode(&buf, resized, format, imaging.JPEGQuality(85)); err != nil {
		return nil, "", fmt.Errorf("failed to encode image: %w", err)
	}
	return buf.Bytes(), mime, nil
}
