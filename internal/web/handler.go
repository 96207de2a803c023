package web

import (
	"context"
	"errors"
	"io"
	"mime"
	"mime/multipart"
	"net/http"

	"telegram-uploader/internal/downloader"
	"telegram-uploader/internal/files"
	"telegram-uploader/internal/pipeline"
	"telegram-uploader/internal/state"

	"github.com/charmbracelet/log"
	"github.com/gabriel-vasile/mimetype"
	"github.com/gin-gonic/gin"
	"github.com/spf13/afero"
)

// Runner — конвейер загрузки
type Runner interface {
	Run(ctx context.Context, req pipeline.Request) pipeline.Result
	Resend(ctx context.Context, name string) pipeline.Result
}

// Files — чтение каталога загрузок
type Files interface {
	List() ([]files.StoredFile, error)
	Open(name string) (afero.File, files.StoredFile, error)
	MaxSize() int64
}

// Handler — HTTP-интерфейс: страница, форма, список файлов, JSON API
type Handler struct {
	runner  Runner
	files   Files
	flashes *state.Store
	log     *log.Logger
}

func NewHandler(runner Runner, fs Files, flashes *state.Store, logger *log.Logger) *Handler {
	return &Handler{runner: runner, files: fs, flashes: flashes, log: logger}
}

func (h *Handler) RegisterRoutes(server *gin.Engine) {
	server.GET("/", h.Index)
	server.POST("/upload", h.Upload)
	server.POST("/files/:name/send", h.Send)
	server.GET("/files/:name", h.Download)

	api := server.Group("/api")
	api.GET("/files", h.ListJSON)
	api.POST("/upload", h.UploadJSON)
	api.POST("/files/:name/send", h.SendJSON)
}

type indexView struct {
	Flash      *state.Flash
	Files      []files.StoredFile
	ListError  string
	LimitHuman string
	CapHuman   string
}

func (h *Handler) Index(c *gin.Context) {
	view := indexView{LimitHuman: files.HumanSize(pipeline.BinaryLimit)}
	if capBytes := h.files.MaxSize(); capBytes > 0 {
		view.CapHuman = files.HumanSize(capBytes)
	}
	if tok := c.Query("flash"); tok != "" {
		if f, ok := h.flashes.Take(tok); ok {
			view.Flash = &f
		}
	}
	list, err := h.files.List()
	if err != nil {
		h.log.Error("list files failed", "err", err)
		view.ListError = err.Error()
	}
	view.Files = list
	c.HTML(http.StatusOK, "index.html", view)
}

func (h *Handler) Upload(c *gin.Context) {
	res, err := h.runUpload(c)
	if err != nil {
		h.redirect(c, state.Flash{Level: state.LevelError, Text: err.Error()})
		return
	}
	h.redirect(c, flashFor(res))
}

func (h *Handler) Send(c *gin.Context) {
	res := h.runner.Resend(actionContext(c), c.Param("name"))
	h.redirect(c, flashFor(res))
}

func (h *Handler) Download(c *gin.Context) {
	f, sf, err := h.files.Open(c.Param("name"))
	if err != nil {
		c.String(statusFor(err), err.Error())
		return
	}
	defer f.Close()

	ctype := "application/octet-stream"
	if mt, err := mimetype.DetectReader(f); err == nil {
		ctype = mt.String()
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		c.String(http.StatusInternalServerError, err.Error())
		return
	}
	disposition := mime.FormatMediaType("attachment", map[string]string{"filename": sf.Name})
	c.DataFromReader(http.StatusOK, sf.Size, ctype, f, map[string]string{"Content-Disposition": disposition})
}

func (h *Handler) ListJSON(c *gin.Context) {
	list, err := h.files.List()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"files": list})
}

func (h *Handler) UploadJSON(c *gin.Context) {
	res, err := h.runUpload(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"state": pipeline.StateFailed, "error": err.Error()})
		return
	}
	writeResult(c, res)
}

func (h *Handler) SendJSON(c *gin.Context) {
	writeResult(c, h.runner.Resend(actionContext(c), c.Param("name")))
}

// runUpload — собрать запрос из формы: файл, url, name
func (h *Handler) runUpload(c *gin.Context) (pipeline.Result, error) {
	req := pipeline.Request{URL: c.PostForm("url"), Override: c.PostForm("name")}

	fh, err := c.FormFile("file")
	switch {
	case err == nil:
		var f multipart.File
		f, err = fh.Open()
		if err != nil {
			return pipeline.Result{}, err
		}
		defer f.Close()
		req.Upload = &downloader.Upload{Name: fh.Filename, Body: f}
	case errors.Is(err, http.ErrMissingFile), errors.Is(err, http.ErrNotMultipart):
	default:
		return pipeline.Result{}, err
	}
	return h.runner.Run(actionContext(c), req), nil
}

// actionContext — уход пользователя со страницы не прерывает начатую отправку;
// время ограничено таймаутами клиентов скачивания и Bot API
func actionContext(c *gin.Context) context.Context {
	return context.WithoutCancel(c.Request.Context())
}

func (h *Handler) redirect(c *gin.Context, f state.Flash) {
	tok := h.flashes.Put(f)
	c.Redirect(http.StatusSeeOther, "/?flash="+tok)
}

func flashFor(res pipeline.Result) state.Flash {
	level := state.LevelSuccess
	switch {
	case res.State == pipeline.StateFailed:
		level = state.LevelError
	case res.Route == pipeline.RouteMessage:
		level = state.LevelWarning
	}
	return state.Flash{Level: level, Text: res.Message()}
}

func writeResult(c *gin.Context, res pipeline.Result) {
	body := gin.H{
		"id":      res.ID,
		"state":   res.State,
		"message": res.Message(),
	}
	if res.Route != pipeline.RouteNone {
		body["route"] = res.Route
	}
	if res.File != nil {
		body["file"] = res.File
	}
	if res.Outcome != nil {
		body["outcome"] = res.Outcome
	}
	if res.Err != nil {
		body["error"] = res.Err.Error()
		c.JSON(statusFor(res.Err), body)
		return
	}
	c.JSON(http.StatusOK, body)
}

// statusFor — HTTP-статус по виду ошибки
func statusFor(err error) int {
	var (
		fetchErr *downloader.RemoteFetchError
		relayErr *pipeline.RelayError
	)
	switch {
	case errors.Is(err, pipeline.ErrNoInput), errors.Is(err, files.ErrInvalidName):
		return http.StatusBadRequest
	case errors.Is(err, files.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, files.ErrTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.As(err, &fetchErr), errors.As(err, &relayErr):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
