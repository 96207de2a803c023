package downloader

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"telegram-uploader/internal/files"

	"github.com/charmbracelet/log"
	"github.com/dustin/go-humanize"
)

// Upload — файл, полученный от пользователя целиком (форма или CLI)
type Upload struct {
	Name string
	Body io.Reader
}

// Source — байты для одного действия и итоговое имя файла
type Source struct {
	Name string
	Body io.ReadCloser
	// Size — заявленный размер, -1 если неизвестен
	Size int64
}

// RemoteFetchError — скачивание по URL не удалось
type RemoteFetchError struct {
	URL    string
	Status int
	Err    error
}

func (e *RemoteFetchError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("download %s: unexpected status %d %s", e.URL, e.Status, http.StatusText(e.Status))
	}
	return fmt.Sprintf("download %s: %v", e.URL, e.Err)
}

func (e *RemoteFetchError) Unwrap() error { return e.Err }

// FromUpload — источник из загруженного буфера; содержимое не меняется
func FromUpload(u Upload, override string) Source {
	name := firstNonEmpty(override, u.Name)
	if name == "" {
		name = files.FallbackName
	}
	size := int64(-1)
	if l, ok := u.Body.(interface{ Len() int }); ok {
		size = int64(l.Len())
	}
	return Source{Name: name, Body: io.NopCloser(u.Body), Size: size}
}

// Fetcher — потоковое скачивание по URL
type Fetcher struct {
	client *http.Client
	log    *log.Logger
}

// NewFetcher — timeout ограничивает соединение и ожидание заголовков ответа,
// само тело читается без общего дедлайна
func NewFetcher(timeout time.Duration, logger *log.Logger) *Fetcher {
	dialer := &net.Dialer{Timeout: timeout, KeepAlive: 30 * time.Second}
	tr := http.DefaultTransport.(*http.Transport).Clone()
	tr.DialContext = dialer.DialContext
	tr.TLSHandshakeTimeout = timeout
	tr.ResponseHeaderTimeout = timeout
	return &Fetcher{client: &http.Client{Transport: tr}, log: logger}
}

// FromURL — GET по ссылке; тело отдаётся потоком, закрывает вызывающий
func (f *Fetcher) FromURL(ctx context.Context, rawURL, override string) (*Source, error) {
	rawURL = strings.TrimSpace(rawURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, &RemoteFetchError{URL: rawURL, Err: err}
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, &RemoteFetchError{URL: rawURL, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_ = resp.Body.Close()
		return nil, &RemoteFetchError{URL: rawURL, Status: resp.StatusCode}
	}

	name := firstNonEmpty(override, NameFromURL(rawURL))
	f.log.Debug("download started", "url", rawURL, "name", name, "length", resp.ContentLength)
	body := &progressReader{rc: resp.Body, url: rawURL, name: name, log: f.log, step: 64 << 20}
	return &Source{Name: name, Body: body, Size: resp.ContentLength}, nil
}

// NameFromURL — последний сегмент пути как есть (без декодирования %XX),
// без query и fragment, иначе FallbackName
func NameFromURL(rawURL string) string {
	var seg string
	if u, err := url.Parse(strings.TrimSpace(rawURL)); err == nil {
		seg = u.EscapedPath()
	} else {
		seg, _, _ = strings.Cut(rawURL, "?")
		seg, _, _ = strings.Cut(seg, "#")
	}
	if i := strings.LastIndex(seg, "/"); i >= 0 {
		seg = seg[i+1:]
	}
	seg = strings.TrimSpace(seg)
	if seg == "" || seg == "." || seg == ".." || strings.Contains(seg, `\`) {
		return files.FallbackName
	}
	return seg
}

// progressReader — счётчик скачанного, пишет прогресс в debug-лог;
// ошибки чтения тела возвращаются как RemoteFetchError
type progressReader struct {
	rc   io.ReadCloser
	url  string
	name string
	log  *log.Logger

	total uint64
	step  uint64
	next  uint64
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.rc.Read(b)
	p.total += uint64(n)
	if p.total >= p.next {
		p.log.Debug("downloading", "name", p.name, "received", humanize.Bytes(p.total))
		p.next = p.total + p.step
	}
	switch {
	case err == io.EOF:
		p.log.Debug("download complete", "name", p.name, "received", humanize.Bytes(p.total))
	case err != nil:
		err = &RemoteFetchError{URL: p.url, Err: err}
	}
	return n, err
}

func (p *progressReader) Close() error { return p.rc.Close() }

func firstNonEmpty(a, b string) string {
	if strings.TrimSpace(a) != "" {
		return strings.TrimSpace(a)
	}
	return strings.TrimSpace(b)
}
