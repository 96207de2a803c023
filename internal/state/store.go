package state

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Level — вид статусного сообщения
type Level string

const (
	LevelSuccess Level = "success"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// Flash — статус действия, показывается один раз после редиректа
type Flash struct {
	Level Level
	Text  string
}

type entry struct {
	f         Flash
	expiresAt time.Time
}

// Store — простое in-memory хранилище с TTL
type Store struct {
	mu   sync.Mutex
	data map[string]entry
	ttl  time.Duration
	now  func() time.Time
}

func NewStore(ttl time.Duration) *Store {
	return &Store{data: make(map[string]entry), ttl: ttl, now: time.Now}
}

// Put — сохранить статус, вернуть токен для ссылки
func (s *Store) Put(f Flash) string {
	token := uuid.NewString()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[token] = entry{f: f, expiresAt: s.now().Add(s.ttl)}
	return token
}

// Take — получить статус и удалить его
func (s *Store) Take(token string) (Flash, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.data[token]
	if !ok {
		return Flash{}, false
	}
	delete(s.data, token)
	if s.now().After(e.expiresAt) {
		return Flash{}, false
	}
	return e.f, true
}

func (s *Store) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.data)
}

func (s *Store) StartGC(ctx context.Context, interval time.Duration) {
	go func() {
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				s.gc()
			}
		}
	}()
}

func (s *Store) gc() {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	for k, e := range s.data {
		if now.After(e.expiresAt) {
			delete(s.data, k)
		}
	}
}
