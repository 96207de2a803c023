package files

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/afero"
)

// chunkSize — размер буфера записи, ограничивает пиковую память при скачивании
const chunkSize = 8 * 1024

// StoredFile — файл в каталоге загрузок
type StoredFile struct {
	Name    string    `json:"name"`
	Size    int64     `json:"size"`
	ModTime time.Time `json:"mod_time"`
	Path    string    `json:"path"`
}

// Store — плоский каталог загрузок
type Store struct {
	fs      afero.Fs
	root    string
	maxSize int64
	log     *log.Logger

	mu    sync.Mutex
	locks map[string]*nameLock
}

type nameLock struct {
	mu   sync.Mutex
	refs int
}

// NewStore — maxSize <= 0 снимает ограничение на размер файла
func NewStore(fs afero.Fs, root string, maxSize int64, logger *log.Logger) *Store {
	if abs, err := filepath.Abs(root); err == nil {
		root = abs
	}
	return &Store{fs: fs, root: root, maxSize: maxSize, log: logger, locks: make(map[string]*nameLock)}
}

func (s *Store) Root() string { return s.root }

func (s *Store) MaxSize() int64 { return s.maxSize }

// EnsureRoot — создать каталог, если нет
func (s *Store) EnsureRoot() error { return s.fs.MkdirAll(s.root, 0o755) }

// Save — записать поток в <root>/<name> с перезаписью существующего файла.
// Если оборвался источник, неполный файл удаляется; при ошибке файловой
// системы на диске может остаться обрезанный файл.
func (s *Store) Save(name string, r io.Reader) (StoredFile, error) {
	p, err := SafeJoin(s.root, name)
	if err != nil {
		return StoredFile{}, err
	}

	unlock := s.lock(name)
	defer unlock()

	f, err := s.fs.OpenFile(p, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return StoredFile{}, err
	}

	if s.maxSize > 0 {
		r = io.LimitReader(r, s.maxSize+1)
	}
	src := &onlyReader{r: r}
	n, err := io.CopyBuffer(onlyWriter{f}, src, make([]byte, chunkSize))
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		if src.err != nil {
			if rerr := s.fs.Remove(p); rerr != nil {
				s.log.Warn("remove partial file failed", "path", p, "err", rerr)
			}
		}
		return StoredFile{}, err
	}
	if s.maxSize > 0 && n > s.maxSize {
		if rerr := s.fs.Remove(p); rerr != nil {
			s.log.Warn("remove oversized file failed", "path", p, "err", rerr)
		}
		return StoredFile{}, fmt.Errorf("%w: %s is larger than %s", ErrTooLarge, name, HumanSize(s.maxSize))
	}

	fi, err := s.fs.Stat(p)
	if err != nil {
		return StoredFile{}, err
	}
	s.log.Debug("file saved", "name", name, "size", fi.Size())
	return toStored(p, fi), nil
}

// Stat — сведения о сохранённом файле
func (s *Store) Stat(name string) (StoredFile, error) {
	p, err := SafeJoin(s.root, name)
	if err != nil {
		return StoredFile{}, err
	}
	fi, err := s.fs.Stat(p)
	if errors.Is(err, os.ErrNotExist) || (err == nil && fi.IsDir()) {
		return StoredFile{}, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	if err != nil {
		return StoredFile{}, err
	}
	return toStored(p, fi), nil
}

// Open — открыть сохранённый файл на чтение
func (s *Store) Open(name string) (afero.File, StoredFile, error) {
	sf, err := s.Stat(name)
	if err != nil {
		return nil, StoredFile{}, err
	}
	f, err := s.fs.Open(sf.Path)
	if err != nil {
		return nil, StoredFile{}, err
	}
	return f, sf, nil
}

// List — файлы каталога, новые первыми
func (s *Store) List() ([]StoredFile, error) {
	entries, err := afero.ReadDir(s.fs, s.root)
	if err != nil {
		return nil, err
	}
	out := make([]StoredFile, 0, len(entries))
	for _, fi := range entries {
		if !fi.Mode().IsRegular() {
			continue
		}
		out = append(out, toStored(filepath.Join(s.root, fi.Name()), fi))
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].ModTime.Equal(out[j].ModTime) {
			return out[i].ModTime.After(out[j].ModTime)
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

// lock — мьютекс на имя файла, чтобы параллельные записи не перемешивались
func (s *Store) lock(name string) func() {
	s.mu.Lock()
	l, ok := s.locks[name]
	if !ok {
		l = &nameLock{}
		s.locks[name] = l
	}
	l.refs++
	s.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		s.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(s.locks, name)
		}
		s.mu.Unlock()
	}
}

func toStored(p string, fi os.FileInfo) StoredFile {
	return StoredFile{Name: fi.Name(), Size: fi.Size(), ModTime: fi.ModTime(), Path: p}
}

// onlyReader и onlyWriter скрывают WriterTo/ReaderFrom, чтобы копирование шло кусками chunkSize
type onlyReader struct {
	r   io.Reader
	err error
}

// Read — запоминает ошибку источника, чтобы отличить её от ошибки записи
func (o *onlyReader) Read(p []byte) (int, error) {
	n, err := o.r.Read(p)
	if err != nil && err != io.EOF {
		o.err = err
	}
	return n, err
}

type onlyWriter struct{ io.Writer }
