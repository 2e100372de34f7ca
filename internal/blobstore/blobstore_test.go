package blobstore

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewKey(t *testing.T) {
	key := NewKey("Delish", "Choc Bar", "IMG 0001.JPG", "image/jpeg")

	assert.True(t, strings.HasPrefix(key, "delish/choc_bar/img_0001_"), key)
	assert.True(t, strings.HasSuffix(key, ".jpg"), key)
}

func TestNewKeyIsUnique(t *testing.T) {
	a := NewKey("Delish", "Choc Bar", "photo.png", "image/png")
	b := NewKey("Delish", "Choc Bar", "photo.png", "image/png")
	assert.NotEqual(t, a, b)
}

func TestNewKeyStripsUnsafeFilename(t *testing.T) {
	key := NewKey("Delish", "Choc Bar", "../../etc/pass?wd.png", "image/png")

	assert.True(t, strings.HasPrefix(key, "delish/choc_bar/passwd_"), key)
	assert.NotContains(t, key, "..")
}

func TestMIMERoundTrip(t *testing.T) {
	for _, mime := range []string{"image/jpeg", "image/png", "image/gif", "image/webp"} {
		assert.Equal(t, mime, MIMEForKey("x"+ExtForMIME(mime)))
	}
}
