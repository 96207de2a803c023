package downloader

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"telegram-uploader/internal/files"
	"telegram-uploader/internal/logging"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNameFromURL(t *testing.T) {
	t.Parallel()
	cases := []struct {
		in   string
		want string
	}{
		{"https://example.com/report.pdf?x=1", "report.pdf"},
		{"https://example.com/a/b/archive.tar.gz", "archive.tar.gz"},
		{"https://example.com/file.zip#frag", "file.zip"},
		{"https://example.com/my%20file.txt", "my%20file.txt"},
		{"https://example.com/a%2Fb.txt", "a%2Fb.txt"},
		{"https://example.com/", files.FallbackName},
		{"https://example.com", files.FallbackName},
		{"https://example.com/dir/?q=1", files.FallbackName},
		{"https://example.com/..", files.FallbackName},
		{"", files.FallbackName},
	}
	for i, tc := range cases {
		got := NameFromURL(tc.in)
		if got != tc.want {
			t.Fatalf("case %d: NameFromURL(%q) = %q; want %q", i, tc.in, got, tc.want)
		}
	}
}

func TestFromUpload(t *testing.T) {
	t.Parallel()

	src := FromUpload(Upload{Name: "photo.jpg", Body: bytes.NewReader([]byte("abc"))}, "")
	assert.Equal(t, "photo.jpg", src.Name)
	assert.Equal(t, int64(3), src.Size)
	b, err := io.ReadAll(src.Body)
	require.NoError(t, err)
	assert.Equal(t, "abc", string(b))

	src = FromUpload(Upload{Name: "photo.jpg", Body: strings.NewReader("abc")}, "renamed.jpg")
	assert.Equal(t, "renamed.jpg", src.Name)

	src = FromUpload(Upload{Name: "photo.jpg", Body: strings.NewReader("abc")}, "   ")
	assert.Equal(t, "photo.jpg", src.Name)

	src = FromUpload(Upload{Body: io.MultiReader(strings.NewReader("abc"))}, "")
	assert.Equal(t, files.FallbackName, src.Name)
	assert.Equal(t, int64(-1), src.Size)
}

func TestFromURL_Success(t *testing.T) {
	t.Parallel()
	payload := bytes.Repeat([]byte{0x5a}, 500)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/report.pdf", r.URL.Path)
		assert.Equal(t, "1", r.URL.Query().Get("x"))
		_, _ = w.Write(payload)
	}))
	defer srv.Close()

	f := NewFetcher(5*time.Second, logging.Discard())
	src, err := f.FromURL(context.Background(), srv.URL+"/report.pdf?x=1", "")
	require.NoError(t, err)
	defer src.Body.Close()

	assert.Equal(t, "report.pdf", src.Name)
	b, err := io.ReadAll(src.Body)
	require.NoError(t, err)
	assert.Equal(t, payload, b)
}

func TestFromURL_Override(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "data")
	}))
	defer srv.Close()

	f := NewFetcher(5*time.Second, logging.Discard())
	src, err := f.FromURL(context.Background(), srv.URL+"/", "custom.bin")
	require.NoError(t, err)
	defer src.Body.Close()
	assert.Equal(t, "custom.bin", src.Name)
}

func TestFromURL_BadStatus(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusNotFound)
	}))
	defer srv.Close()

	f := NewFetcher(5*time.Second, logging.Discard())
	_, err := f.FromURL(context.Background(), srv.URL+"/missing.pdf", "")
	require.Error(t, err)

	var fe *RemoteFetchError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, http.StatusNotFound, fe.Status)
	assert.Contains(t, err.Error(), "404")
}

func TestFromURL_ConnectionError(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.NotFoundHandler())
	addr := srv.URL
	srv.Close()

	f := NewFetcher(2*time.Second, logging.Discard())
	_, err := f.FromURL(context.Background(), addr+"/file.bin", "")
	require.Error(t, err)

	var fe *RemoteFetchError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, 0, fe.Status)
	assert.NotNil(t, fe.Err)
}

func TestFromURL_HeaderTimeout(t *testing.T) {
	t.Parallel()
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	f := NewFetcher(100*time.Millisecond, logging.Discard())
	_, err := f.FromURL(context.Background(), srv.URL+"/slow.bin", "")
	require.Error(t, err)
	var fe *RemoteFetchError
	assert.True(t, errors.As(err, &fe))
}

func TestFromURL_BodyErrorIsFetchError(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "1000")
		_, _ = io.WriteString(w, "short")
	}))
	defer srv.Close()

	f := NewFetcher(5*time.Second, logging.Discard())
	src, err := f.FromURL(context.Background(), srv.URL+"/cut.bin", "")
	require.NoError(t, err)
	defer src.Body.Close()
	assert.Equal(t, int64(1000), src.Size)

	_, err = io.ReadAll(src.Body)
	require.Error(t, err)
	var fe *RemoteFetchError
	assert.True(t, errors.As(err, &fe))
	assert.True(t, errors.Is(err, io.ErrUnexpectedEOF))
}
