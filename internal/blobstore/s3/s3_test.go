package s3

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"testing"

	aws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vbonduro/fgsamples/internal/blobstore"
)

// fakeS3 answers the handful of path-style object calls the store makes.
type fakeS3 struct {
	mu      sync.Mutex
	objects map[string]fakeObject
}

type fakeObject struct {
	body        []byte
	contentType string
}

func (f *fakeS3) RoundTrip(req *http.Request) (*http.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	parts := strings.SplitN(strings.TrimPrefix(req.URL.Path, "/"), "/", 2)
	key := ""
	if len(parts) == 2 {
		key = parts[1]
	}

	switch req.Method {
	case http.MethodPut:
		body, _ := io.ReadAll(req.Body)
		if dec, ok := decodeChunked(body); ok {
			body = dec
		}
		f.objects[key] = fakeObject{body: body, contentType: req.Header.Get("Content-Type")}
		return response(http.StatusOK, nil, http.Header{"ETag": {`"etag"`}}), nil
	case http.MethodGet:
		obj, ok := f.objects[key]
		if !ok {
			return response(http.StatusNotFound,
				[]byte(`<?xml version="1.0"?><Error><Code>NoSuchKey</Code><Message>missing</Message></Error>`),
				http.Header{"Content-Type": {"application/xml"}}), nil
		}
		return response(http.StatusOK, obj.body, http.Header{
			"Content-Type":   {obj.contentType},
			"Content-Length": {strconv.Itoa(len(obj.body))},
		}), nil
	case http.MethodDelete:
		delete(f.objects, key)
		return response(http.StatusNoContent, nil, http.Header{}), nil
	}
	return response(http.StatusNotImplemented, nil, http.Header{}), nil
}

func response(status int, body []byte, header http.Header) *http.Response {
	return &http.Response{StatusCode: status, Body: io.NopCloser(bytes.NewReader(body)), Header: header}
}

// decodeChunked unwraps a single-chunk aws-chunked payload.
func decodeChunked(b []byte) ([]byte, bool) {
	parts := strings.Split(string(b), "\r\n")
	if len(parts) < 3 || parts[2] != "0" {
		return nil, false
	}
	size, err := strconv.ParseInt(strings.Split(parts[0], ";")[0], 16, 64)
	if err != nil || int64(len(parts[1])) != size {
		return nil, false
	}
	return []byte(parts[1]), true
}

func newFakeStore(t *testing.T, cfg Config) (*Store, *fakeS3) {
	t.Helper()
	fake := &fakeS3{objects: make(map[string]fakeObject)}
	client := s3.New(s3.Options{
		Region:                     "us-east-1",
		Credentials:                credentials.NewStaticCredentialsProvider("AKIA", "SECRET", ""),
		HTTPClient:                 &http.Client{Transport: fake},
		BaseEndpoint:               aws.String("https://mock.s3.local"),
		UsePathStyle:               true,
		RequestChecksumCalculation: aws.RequestChecksumCalculationWhenRequired,
		ResponseChecksumValidation: aws.ResponseChecksumValidationWhenRequired,
	})
	cfg.Bucket = "samples"
	cfg.Endpoint = "https://mock.s3.local"
	cfg.PathStyle = true
	return NewWithClient(client, cfg), fake
}

func TestPutGetDelete(t *testing.T) {
	store, fake := newFakeStore(t, Config{})
	ctx := context.Background()

	url, err := store.Put(ctx, "delish/choc_bar/img_1.png", "image/png", strings.NewReader("pngdata"))
	require.NoError(t, err)
	assert.Equal(t, "https://mock.s3.local/samples/delish/choc_bar/img_1.png", url)
	assert.Equal(t, []byte("pngdata"), fake.objects["delish/choc_bar/img_1.png"].body)

	rc, mimeType, err := store.Get(ctx, "delish/choc_bar/img_1.png")
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	assert.Equal(t, "pngdata", string(data))
	assert.Equal(t, "image/png", mimeType)

	require.NoError(t, store.Delete(ctx, "delish/choc_bar/img_1.png"))
	_, _, err = store.Get(ctx, "delish/choc_bar/img_1.png")
	assert.ErrorIs(t, err, blobstore.ErrNotFound)
}

func TestKeyFromURL(t *testing.T) {
	store, _ := newFakeStore(t, Config{})

	key, ok := store.KeyFromURL("https://mock.s3.local/samples/a/b.jpg")
	assert.True(t, ok)
	assert.Equal(t, "a/b.jpg", key)

	_, ok = store.KeyFromURL("https://other.example.com/a/b.jpg")
	assert.False(t, ok)
}

func TestBaseURL(t *testing.T) {
	assert.Equal(t, "https://samples.s3.ap-southeast-1.amazonaws.com",
		baseURL(Config{Bucket: "samples", Region: "ap-southeast-1"}))
	assert.Equal(t, "http://minio:9000/samples",
		baseURL(Config{Bucket: "samples", Endpoint: "http://minio:9000/", PathStyle: true}))
	assert.Equal(t, "https://samples.storage.example.com",
		baseURL(Config{Bucket: "samples", Endpoint: "https://storage.example.com"}))
	assert.Equal(t, "https://cdn.example.com",
		baseURL(Config{Bucket: "samples", PublicURL: "https://cdn.example.com/"}))
}

func TestNewRequiresBucket(t *testing.T) {
	_, err := New(context.Background(), Config{})
	assert.Error(t, err)
}
