// File: /services/captcha_service.go
package services

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// CaptchaStore keeps challenge answers. Take removes the entry it returns,
// so every challenge can be answered at most once.
type CaptchaStore interface {
	Save(ctx context.Context, id, answer string, ttl time.Duration) error
	Take(ctx context.Context, id string) (string, bool, error)
}

type Challenge struct {
	Question  string `json:"question"`
	CaptchaID string `json:"captcha_id"`
}

type CaptchaService struct {
	store CaptchaStore
	ttl   time.Duration
}

func NewCaptchaService(store CaptchaStore, ttl time.Duration) *CaptchaService {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &CaptchaService{store: store, ttl: ttl}
}

// New creates an addition challenge with both operands in 1..9.
func (s *CaptchaService) New(ctx context.Context) (*Challenge, error) {
	a, err := randomDigit()
	if err != nil {
		return nil, err
	}
	b, err := randomDigit()
	if err != nil {
		return nil, err
	}

	id := uuid.NewString()
	if err := s.store.Save(ctx, id, strconv.Itoa(a+b), s.ttl); err != nil {
		return nil, fmt.Errorf("save captcha: %w", err)
	}
	return &Challenge{Question: fmt.Sprintf("%d + %d = ?", a, b), CaptchaID: id}, nil
}

// Verify consumes the challenge whether or not the answer is right.
func (s *CaptchaService) Verify(ctx context.Context, id, answer string) (bool, error) {
	if id == "" {
		return false, nil
	}
	expected, ok, err := s.store.Take(ctx, id)
	if err != nil {
		return false, fmt.Errorf("take captcha: %w", err)
	}
	return ok && expected == strings.TrimSpace(answer), nil
}

func randomDigit() (int, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(9))
	if err != nil {
		return 0, fmt.Errorf("generate captcha: %w", err)
	}
	return int(n.Int64()) + 1, nil
}

type captchaEntry struct {
	answer    string
	expiresAt time.Time
}

// MemoryCaptchaStore is a process-local store. Expired entries are dropped
// lazily and by Cleanup.
type MemoryCaptchaStore struct {
	mu      sync.Mutex
	entries map[string]captchaEntry
	now     func() time.Time
}

func NewMemoryCaptchaStore() *MemoryCaptchaStore {
	return &MemoryCaptchaStore{entries: make(map[string]captchaEntry), now: time.Now}
}

func (m *MemoryCaptchaStore) Save(_ context.Context, id, answer string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[id] = captchaEntry{answer: answer, expiresAt: m.now().Add(ttl)}
	return nil
}

func (m *MemoryCaptchaStore) Take(_ context.Context, id string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[id]
	if !ok {
		return "", false, nil
	}
	delete(m.entries, id)
	if !m.now().Before(e.expiresAt) {
		return "", false, nil
	}
	return e.answer, true, nil
}

// Cleanup removes expired challenges and returns how many were dropped.
func (m *MemoryCaptchaStore) Cleanup() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	removed := 0
	for id, e := range m.entries {
		if !now.Before(e.expiresAt) {
			delete(m.entries, id)
			removed++
		}
	}
	return removed
}

// RedisCaptchaStore shares challenges between API instances.
type RedisCaptchaStore struct {
	client redis.UniversalClient
	prefix string
}

func NewRedisCaptchaStore(client redis.UniversalClient, keyPrefix string) *RedisCaptchaStore {
	return &RedisCaptchaStore{client: client, prefix: keyPrefix + "captcha:"}
}

func (r *RedisCaptchaStore) Save(ctx context.Context, id, answer string, ttl time.Duration) error {
	return r.client.Set(ctx, r.prefix+id, answer, ttl).Err()
}

func (r *RedisCaptchaStore) Take(ctx context.Context, id string) (string, bool, error) {
	answer, err := r.client.GetDel(ctx, r.prefix+id).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return answer, true, nil
}
