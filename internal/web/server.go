package web

import (
	"embed"
	"html/template"
	"net/url"
	"time"

	"telegram-uploader/internal/files"

	"github.com/charmbracelet/log"
	"github.com/gin-gonic/gin"
)

//go:embed templates/*.html
var templatesFS embed.FS

var funcs = template.FuncMap{
	"humanSize":  files.HumanSize,
	"pathEscape": url.PathEscape,
	"stamp": func(t time.Time) string {
		return t.Local().Format("2006-01-02 15:04:05")
	},
}

// NewRouter — gin без стандартного логгера, запросы пишутся в общий логгер
func NewRouter(h *Handler, logger *log.Logger) *gin.Engine {
	server := gin.New()
	server.Use(gin.Recovery(), requestLogger(logger))
	server.SetHTMLTemplate(template.Must(template.New("").Funcs(funcs).ParseFS(templatesFS, "templates/*.html")))
	h.RegisterRoutes(server)
	return server
}

func requestLogger(logger *log.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Info("http request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"took", time.Since(start))
	}
}
