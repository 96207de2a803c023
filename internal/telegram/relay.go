package telegram

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"telegram-uploader/internal/config"

	"github.com/charmbracelet/log"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/spf13/afero"
)

const (
	MethodSendDocument = "sendDocument"
	MethodSendMessage  = "sendMessage"
)

// Outcome — результат одного вызова Bot API
type Outcome struct {
	OK     bool            `json:"ok"`
	Status int             `json:"status,omitempty"`
	Body   string          `json:"body,omitempty"`
	Result json.RawMessage `json:"-"`
}

// TransportError — вызов Bot API не удался: сеть, статус не 2xx, ok=false или битое тело
type TransportError struct {
	Method string
	Status int
	Body   string
	Err    error

	detail string
}

func (e *TransportError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("telegram %s failed: %s", e.Method, e.Body)
	}
	return fmt.Sprintf("telegram %s failed: %s", e.Method, e.detail)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Relay — отправка в один фиксированный чат
type Relay struct {
	token    string
	chatID   string
	endpoint string

	docClient *http.Client
	msgClient *http.Client
	fs        afero.Fs
	log       *log.Logger
}

func NewRelay(cfg *config.Config, fs afero.Fs, logger *log.Logger) *Relay {
	endpoint := cfg.APIEndpoint
	if endpoint == "" {
		endpoint = tgbotapi.APIEndpoint
	}
	return &Relay{
		token:     cfg.TelegramToken,
		chatID:    cfg.ChatID,
		endpoint:  endpoint,
		docClient: &http.Client{Timeout: cfg.DocumentTimeout()},
		msgClient: &http.Client{Timeout: cfg.MessageTimeout()},
		fs:        fs,
		log:       logger,
	}
}

// SendDocument — multipart-загрузка файла; имя в запросе — базовое имя файла
func (r *Relay) SendDocument(ctx context.Context, path string) (Outcome, error) {
	f, err := r.fs.Open(path)
	if err != nil {
		return Outcome{}, fmt.Errorf("open %s: %w", path, err)
	}
	// tgbotapi закрывает reader после отправки, повторный Close безвреден
	defer f.Close()

	doc := tgbotapi.NewDocument(0, tgbotapi.FileReader{Name: filepath.Base(path), Reader: f})
	r.target(&doc.BaseChat)
	return r.call(ctx, MethodSendDocument, r.docClient, doc)
}

// SendMessage — текстовое сообщение в чат
func (r *Relay) SendMessage(ctx context.Context, text string) (Outcome, error) {
	msg := tgbotapi.NewMessage(0, text)
	r.target(&msg.BaseChat)
	return r.call(ctx, MethodSendMessage, r.msgClient, msg)
}

func (r *Relay) call(ctx context.Context, method string, client *http.Client, c tgbotapi.Chattable) (Outcome, error) {
	rec := &recordingClient{ctx: ctx, client: client}
	resp, err := newBotAPI(r.token, r.endpoint, rec).Request(c)

	out := Outcome{Status: rec.status, Body: string(rec.body)}
	if resp != nil {
		out.Result = resp.Result
	}
	if err == nil && (rec.status < 200 || rec.status >= 300) {
		err = fmt.Errorf("unexpected status %d", rec.status)
	}
	if err != nil {
		r.log.Warn("telegram request failed", "method", method, "status", rec.status, "err", r.redact(err.Error()))
		return out, &TransportError{Method: method, Status: rec.status, Body: out.Body, Err: err, detail: r.redact(err.Error())}
	}

	out.OK = true
	r.log.Info("telegram request ok", "method", method, "status", rec.status)
	return out, nil
}

// target — числовой id в chat_id, иначе строка как есть (@channel)
func (r *Relay) target(bc *tgbotapi.BaseChat) {
	if id, err := strconv.ParseInt(r.chatID, 10, 64); err == nil {
		bc.ChatID = id
		return
	}
	bc.ChannelUsername = r.chatID
}

// redact — ошибки net/http содержат URL вместе с токеном
func (r *Relay) redact(s string) string {
	if r.token == "" {
		return s
	}
	return strings.ReplaceAll(s, r.token, "<token>")
}
