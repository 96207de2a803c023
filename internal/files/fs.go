package files

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/afero"
)

// FallbackName — имя, когда его не удалось получить ни из override, ни из источника
const FallbackName = "downloaded_file"

var (
	ErrInvalidName = errors.New("invalid file name")
	ErrTooLarge    = errors.New("file exceeds local size limit")
	ErrNotFound    = errors.New("file not found")
)

// HumanSize — человекочитаемый размер: 1024-кратные единицы, один знак после точки
func HumanSize(b int64) string {
	n := float64(b)
	for _, unit := range []string{"B", "KB", "MB", "GB", "TB"} {
		if n < 1024 {
			return fmt.Sprintf("%.1f%s", n, unit)
		}
		n /= 1024
	}
	return fmt.Sprintf("%.1fPB", n)
}

// TooLarge — проверка на превышение лимита в байтах
func TooLarge(sizeBytes, limit int64) bool {
	return sizeBytes > limit
}

// SafeJoin — соединяет корень и имя файла; имя должно быть одним сегментом пути
func SafeJoin(baseDir, name string) (string, error) {
	if strings.TrimSpace(name) == "" || name == "." || name == ".." {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	if strings.ContainsAny(name, `/\`) || strings.ContainsRune(name, 0) {
		return "", fmt.Errorf("%w: %q contains a path separator", ErrInvalidName, name)
	}
	p := filepath.Join(baseDir, name)
	if filepath.Dir(p) != filepath.Clean(baseDir) {
		return "", fmt.Errorf("%w: %q escapes upload directory", ErrInvalidName, name)
	}
	return p, nil
}

// StartCleanup — фоновая очистка старых файлов; ttl <= 0 — выключено
func StartCleanup(ctx context.Context, s *Store, ttl time.Duration, logger *log.Logger) {
	if ttl <= 0 {
		return
	}
	interval := time.Hour
	if ttl < interval {
		interval = ttl
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				n, err := s.CleanupOnce(ttl)
				if err != nil {
					logger.Error("cleanup failed", "err", err)
					continue
				}
				if n > 0 {
					logger.Info("cleanup removed files", "count", n)
				}
			}
		}
	}()
}

// CleanupOnce — разовая очистка файлов старше заданного возраста
func (s *Store) CleanupOnce(olderThan time.Duration) (int, error) {
	cutoff := time.Now().Add(-olderThan)
	entries, err := afero.ReadDir(s.fs, s.root)
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, fi := range entries {
		if fi.IsDir() || !fi.ModTime().Before(cutoff) {
			continue
		}
		p := filepath.Join(s.root, fi.Name())
		unlock := s.lock(fi.Name())
		err := s.fs.Remove(p)
		unlock()
		if err != nil {
			s.log.Warn("cleanup remove failed", "path", p, "err", err)
			continue
		}
		removed++
	}
	return removed, nil
}
