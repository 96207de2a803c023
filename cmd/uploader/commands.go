package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os/signal"
	"path/filepath"
	"syscall"
	"text/tabwriter"
	"time"

	"telegram-uploader/internal/config"
	"telegram-uploader/internal/downloader"
	"telegram-uploader/internal/files"
	"telegram-uploader/internal/logging"
	"telegram-uploader/internal/pipeline"
	"telegram-uploader/internal/state"
	"telegram-uploader/internal/telegram"
	"telegram-uploader/internal/web"

	"github.com/charmbracelet/log"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
)

// App — общие зависимости команд
type App struct {
	FS     afero.Fs
	Out    io.Writer
	LogOut io.Writer

	// ConfigDir — где искать .env и config.yaml
	ConfigDir string
}

func NewRootCommand(app *App) *cobra.Command {
	cobra.EnableCommandSorting = false
	root := &cobra.Command{
		Use:          "uploader",
		Short:        "Save files locally and relay them to a Telegram chat.",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&app.ConfigDir, "config-dir", ".", "directory with .env and config.yaml")

	root.AddCommand(NewServeCommand(app))
	root.AddCommand(NewSendCommand(app))
	root.AddCommand(NewListCommand(app))
	root.AddCommand(NewCleanupCommand(app))
	return root
}

func NewServeCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the web interface",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(app.ConfigDir)
			if err != nil {
				return err
			}
			logger := logging.New(app.LogOut, cfg.Debug)
			store, err := app.openStore(cfg, logger)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			// GC статусов и очистка старых файлов
			flashes := state.NewStore(10 * time.Minute)
			flashes.StartGC(ctx, 5*time.Minute)
			files.StartCleanup(ctx, store, cfg.Retention(), logger)

			h := web.NewHandler(app.pipeline(cfg, store, logger), store, flashes, logger)
			srv := &http.Server{
				Addr:              cfg.ListenAddr,
				Handler:           web.NewRouter(h, logger),
				ReadHeaderTimeout: 10 * time.Second,
				IdleTimeout:       120 * time.Second,
			}
			return serve(ctx, srv, logger)
		},
	}
}

// serve — ListenAndServe до сигнала, затем graceful shutdown
func serve(ctx context.Context, srv *http.Server, logger *log.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	return nil
}

func NewSendCommand(app *App) *cobra.Command {
	var filePath, rawURL, name string
	cmd := &cobra.Command{
		Use:   "send",
		Short: "Save one file (local path or URL) and relay it to the chat",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(app.ConfigDir)
			if err != nil {
				return err
			}
			logger := logging.New(app.LogOut, cfg.Debug)
			store, err := app.openStore(cfg, logger)
			if err != nil {
				return err
			}

			req := pipeline.Request{URL: rawURL, Override: name}
			if filePath != "" {
				f, err := app.FS.Open(filePath)
				if err != nil {
					return err
				}
				defer f.Close()
				req.Upload = &downloader.Upload{Name: filepath.Base(filePath), Body: f}
			}

			res := app.pipeline(cfg, store, logger).Run(cmd.Context(), req)
			if res.State == pipeline.StateFailed {
				return errors.New(res.Message())
			}
			fmt.Fprintln(app.Out, res.Message())
			return nil
		},
	}
	cmd.Flags().StringVar(&filePath, "file", "", "local file to upload (takes precedence over --url)")
	cmd.Flags().StringVar(&rawURL, "url", "", "remote file to download")
	cmd.Flags().StringVar(&name, "name", "", "override the stored file name")
	return cmd
}

func NewListCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List stored files, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Read(app.ConfigDir)
			if err != nil {
				return err
			}
			store, err := app.openStore(cfg, logging.New(app.LogOut, cfg.Debug))
			if err != nil {
				return err
			}
			list, err := store.List()
			if err != nil {
				return err
			}
			if len(list) == 0 {
				fmt.Fprintln(app.Out, "No files uploaded yet.")
				return nil
			}
			tw := tabwriter.NewWriter(app.Out, 0, 4, 2, ' ', 0)
			for _, sf := range list {
				fmt.Fprintf(tw, "%s\t%s\t%s\n", sf.Name, files.HumanSize(sf.Size), sf.ModTime.Local().Format("2006-01-02 15:04:05"))
			}
			return tw.Flush()
		},
	}
}

func NewCleanupCommand(app *App) *cobra.Command {
	var olderThan time.Duration
	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Remove stored files older than the given age",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Read(app.ConfigDir)
			if err != nil {
				return err
			}
			if olderThan <= 0 {
				olderThan = cfg.Retention()
			}
			if olderThan <= 0 {
				return errors.New("retention is disabled: pass --older-than or set RETENTION_HOURS")
			}
			store, err := app.openStore(cfg, logging.New(app.LogOut, cfg.Debug))
			if err != nil {
				return err
			}
			n, err := store.CleanupOnce(olderThan)
			if err != nil {
				return err
			}
			fmt.Fprintf(app.Out, "removed %d file(s) older than %s\n", n, olderThan)
			return nil
		},
	}
	cmd.Flags().DurationVar(&olderThan, "older-than", 0, "age threshold, defaults to RETENTION_HOURS")
	return cmd
}

func (app *App) openStore(cfg *config.Config, logger *log.Logger) (*files.Store, error) {
	store := files.NewStore(app.FS, cfg.UploadDir, cfg.MaxLocalBytes(), logger)
	if err := store.EnsureRoot(); err != nil {
		return nil, fmt.Errorf("prepare upload dir: %w", err)
	}
	return store, nil
}

func (app *App) pipeline(cfg *config.Config, store *files.Store, logger *log.Logger) *pipeline.Pipeline {
	fetcher := downloader.NewFetcher(cfg.FetchTimeout(), logger)
	relay := telegram.NewRelay(cfg, app.FS, logger)
	return pipeline.New(store, fetcher, relay, logger)
}
