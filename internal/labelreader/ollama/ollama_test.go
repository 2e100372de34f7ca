package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOllamaRead(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/generate", r.URL.Path)
		var req generateRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		assert.Len(t, req.Images, 1)
		assert.False(t, req.Stream)

		resp := map[string]any{
			"model":    req.Model,
			"response": "description: Choc Bar\nbatch: B77",
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(resp); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	}))
	defer server.Close()

	reader := NewReader(server.URL, "llava")

	label, err := reader.Read(context.Background(), bytes.NewReader([]byte{0xFF, 0xD8, 0xFF, 0xE0}), "image/jpeg")
	require.NoError(t, err)
	assert.Equal(t, "Choc Bar", label.Description)
	assert.Equal(t, "B77", label.BatchNumber)
}

func TestOllamaReadNetworkError(t *testing.T) {
	reader := NewReader("http://localhost:99999", "llava")

	_, err := reader.Read(context.Background(), bytes.NewReader([]byte{0xFF, 0xD8}), "image/jpeg")
	assert.Error(t, err)
}

func TestOllamaReadServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	_, err := NewReader(server.URL, "llava").Read(context.Background(), bytes.NewReader([]byte{0xFF, 0xD8}), "image/jpeg")
	assert.Error(t, err)
}

func TestOllamaReadReadError(t *testing.T) {
	_, err := NewReader("http://localhost:11434", "llava").Read(context.Background(), errReader{}, "image/jpeg")
	assert.Error(t, err)
}

type errReader struct{}

func (errReader) Read(_ []byte) (int, error) {
	return 0, io.ErrUnexpectedEOF
}
