package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"telegram-uploader/internal/downloader"
	"telegram-uploader/internal/files"
	"telegram-uploader/internal/telegram"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
)

// BinaryLimit — максимальный размер документа для Bot API (2 GiB), граница включительно
const BinaryLimit int64 = 2 * 1024 * 1024 * 1024

// State — состояние одного действия пользователя
type State string

const (
	StateIdle      State = "idle"
	StateAcquiring State = "acquiring"
	StatePersisted State = "persisted"
	StateRelaying  State = "relaying"
	StateNotifying State = "notifying"
	StateDone      State = "done"
	StateFailed    State = "failed"
)

// Route — способ доставки в чат
type Route string

const (
	RouteNone     Route = ""
	RouteDocument Route = "document"
	RouteMessage  Route = "message"
)

// ErrNoInput — не передан ни файл, ни URL
var ErrNoInput = errors.New("please upload a file or provide a URL")

// LocalWriteError — не удалось сохранить файл локально
type LocalWriteError struct {
	Name string
	Err  error
}

func (e *LocalWriteError) Error() string { return fmt.Sprintf("save %s: %v", e.Name, e.Err) }
func (e *LocalWriteError) Unwrap() error { return e.Err }

// RelayError — файл сохранён, но отправка в Telegram не удалась
type RelayError struct {
	Name  string
	Route Route
	Err   error
}

func (e *RelayError) Error() string {
	return fmt.Sprintf("telegram %s for %s failed: %v", e.Route, e.Name, e.Err)
}
func (e *RelayError) Unwrap() error { return e.Err }

// Request — одно действие пользователя; Upload имеет приоритет над URL
type Request struct {
	Upload   *downloader.Upload
	URL      string
	Override string
}

// Result — итог действия
type Result struct {
	ID       string            `json:"id"`
	State    State             `json:"state"`
	Route    Route             `json:"route,omitempty"`
	File     *files.StoredFile `json:"file,omitempty"`
	Outcome  *telegram.Outcome `json:"outcome,omitempty"`
	Err      error             `json:"-"`
	Duration time.Duration     `json:"duration"`
}

// Message — текст статуса для пользователя
func (r Result) Message() string {
	switch {
	case r.State == StateDone && r.Route == RouteMessage:
		return fmt.Sprintf("Saved %s (%s) locally. File exceeds Telegram's 2 GB limit, info message sent instead.", r.File.Name, files.HumanSize(r.File.Size))
	case r.State == StateDone:
		return fmt.Sprintf("Saved %s (%s) locally and sent it to Telegram.", r.File.Name, files.HumanSize(r.File.Size))
	case r.Err != nil:
		var re *RelayError
		if errors.As(r.Err, &re) && r.File != nil {
			return fmt.Sprintf("Saved %s (%s) locally, but Telegram upload failed: %v", r.File.Name, files.HumanSize(r.File.Size), errors.Unwrap(re))
		}
		return r.Err.Error()
	default:
		return string(r.State)
	}
}

// Store — локальное хранилище
type Store interface {
	Save(name string, r io.Reader) (files.StoredFile, error)
	Stat(name string) (files.StoredFile, error)
	MaxSize() int64
}

// Fetcher — скачивание по URL
type Fetcher interface {
	FromURL(ctx context.Context, rawURL, override string) (*downloader.Source, error)
}

// Relay — отправка в чат
type Relay interface {
	SendDocument(ctx context.Context, path string) (telegram.Outcome, error)
	SendMessage(ctx context.Context, text string) (telegram.Outcome, error)
}

// Pipeline — получить байты, сохранить, выбрать маршрут по размеру, отправить
type Pipeline struct {
	store   Store
	fetcher Fetcher
	relay   Relay
	log     *log.Logger
}

func New(store Store, fetcher Fetcher, relay Relay, logger *log.Logger) *Pipeline {
	return &Pipeline{store: store, fetcher: fetcher, relay: relay, log: logger}
}

// ChooseRoute — документ до BinaryLimit включительно, иначе сообщение
func ChooseRoute(size int64) Route {
	if files.TooLarge(size, BinaryLimit) {
		return RouteMessage
	}
	return RouteDocument
}

// NotifyText — сообщение вместо файла, превышающего лимит
func NotifyText(sf files.StoredFile) string {
	return fmt.Sprintf("📦 File saved locally: %s (%s)", sf.Name, files.HumanSize(sf.Size))
}

// Run — обработка одного действия; каждое действие начинается с чистого состояния
func (p *Pipeline) Run(ctx context.Context, req Request) Result {
	start := time.Now()
	res := Result{ID: uuid.NewString(), State: StateIdle}
	logger := p.log.With("action", res.ID)

	res = p.run(ctx, req, res, logger)
	res.Duration = time.Since(start)
	report(logger, res)
	return res
}

func (p *Pipeline) run(ctx context.Context, req Request, res Result, logger *log.Logger) Result {
	if req.Upload == nil && strings.TrimSpace(req.URL) == "" {
		return fail(res, ErrNoInput)
	}

	res.State = StateAcquiring
	var src downloader.Source
	if req.Upload != nil {
		src = downloader.FromUpload(*req.Upload, req.Override)
		logger.Debug("using uploaded file", "name", src.Name)
	} else {
		s, err := p.fetcher.FromURL(ctx, req.URL, req.Override)
		if err != nil {
			return fail(res, err)
		}
		src = *s
	}

	// заявленный размер больше предела: не начинаем запись
	if capBytes := p.store.MaxSize(); capBytes > 0 && src.Size > capBytes {
		_ = src.Body.Close()
		return fail(res, &LocalWriteError{Name: src.Name, Err: fmt.Errorf("%w: %s is %s, limit %s",
			files.ErrTooLarge, src.Name, files.HumanSize(src.Size), files.HumanSize(capBytes))})
	}

	sf, err := p.store.Save(src.Name, src.Body)
	_ = src.Body.Close()
	if err != nil {
		// обрыв скачивания посреди записи остаётся ошибкой источника
		var fe *downloader.RemoteFetchError
		if errors.As(err, &fe) {
			return fail(res, err)
		}
		return fail(res, &LocalWriteError{Name: src.Name, Err: err})
	}
	res.State = StatePersisted
	res.File = &sf
	logger.Info("file saved", "name", sf.Name, "size", files.HumanSize(sf.Size))

	return p.relayFile(ctx, res, sf)
}

// Resend — повторная отправка уже сохранённого файла (кнопка в списке файлов)
func (p *Pipeline) Resend(ctx context.Context, name string) Result {
	start := time.Now()
	res := Result{ID: uuid.NewString(), State: StateIdle}
	logger := p.log.With("action", res.ID, "resend", true)

	sf, err := p.store.Stat(name)
	if err != nil {
		res = fail(res, err)
	} else {
		res.State = StatePersisted
		res.File = &sf
		res = p.relayFile(ctx, res, sf)
	}
	res.Duration = time.Since(start)
	report(logger, res)
	return res
}

func (p *Pipeline) relayFile(ctx context.Context, res Result, sf files.StoredFile) Result {
	res.Route = ChooseRoute(sf.Size)

	var (
		out telegram.Outcome
		err error
	)
	switch res.Route {
	case RouteMessage:
		res.State = StateNotifying
		out, err = p.relay.SendMessage(ctx, NotifyText(sf))
	default:
		res.State = StateRelaying
		out, err = p.relay.SendDocument(ctx, sf.Path)
	}
	res.Outcome = &out
	if err != nil {
		return fail(res, &RelayError{Name: sf.Name, Route: res.Route, Err: err})
	}
	res.State = StateDone
	return res
}

func fail(res Result, err error) Result {
	res.State = StateFailed
	res.Err = err
	return res
}

func report(logger *log.Logger, res Result) {
	if res.State == StateFailed {
		logger.Error("action failed", "err", res.Err, "took", res.Duration)
		return
	}
	logger.Info("action done", "name", res.File.Name, "route", res.Route, "took", res.Duration)
}
