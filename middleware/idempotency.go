package middleware

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
)

// cachedResponse is the first response recorded for a request id, replayed
// byte-for-byte on duplicates.
type cachedResponse struct {
	status      int
	contentType string
	body        []byte
	expireAt    time.Time
}

// IdempotencyStore deduplicates logical actions within a bounded window. It is
// an injected dependency with an explicit lifecycle (construct at boot, Close
// at shutdown) so the process holds no hidden globals.
type IdempotencyStore struct {
	mu      sync.Mutex
	entries map[string]*cachedResponse
	ttl     time.Duration
	done    chan struct{}
	once    sync.Once
}

func NewIdempotencyStore(ttl time.Duration) *IdempotencyStore {
	s := &IdempotencyStore{
		entries: make(map[string]*cachedResponse),
		ttl:     ttl,
		done:    make(chan struct{}),
	}
	go s.evictLoop()
	return s
}

func (s *IdempotencyStore) evictLoop() {
	ticker := time.NewTicker(s.ttl)
	defer ticker.Stop()
	for {
		select {
		case <-s.done:
			return
		case now := <-ticker.C:
			s.mu.Lock()
			for k, v := range s.entries {
				if now.After(v.expireAt) {
					delete(s.entries, k)
				}
			}
			s.mu.Unlock()
		}
	}
}

func (s *IdempotencyStore) Close() {
	s.once.Do(func() { close(s.done) })
}

func (s *IdempotencyStore) get(key string) *cachedResponse {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[key]
	if !ok || time.Now().After(entry.expireAt) {
		return nil
	}
	return entry
}

func (s *IdempotencyStore) put(key string, entry *cachedResponse) {
	entry.expireAt = time.Now().Add(s.ttl)
	s.mu.Lock()
	s.entries[key] = entry
	s.mu.Unlock()
}

// requestKey pulls the caller-supplied request id from the body or header.
// Its absence simply forgoes replay protection for that call.
func requestKey(c *fiber.Ctx) string {
	var body struct {
		RequestID      string `json:"requestId"`
		IdempotencyKey string `json:"idempotencyKey"`
	}
	if err := json.Unmarshal(c.Body(), &body); err == nil {
		if body.RequestID != "" {
			return body.RequestID
		}
		if body.IdempotencyKey != "" {
			return body.IdempotencyKey
		}
	}
	return c.Get("X-Idempotency-Key")
}

// Idempotency replays the cached response for a duplicated request id instead
// of re-executing side effects. Keys are scoped per user so one caller cannot
// poison another's replay.
func Idempotency(store *IdempotencyStore) fiber.Handler {
	return func(c *fiber.Ctx) error {
		key := requestKey(c)
		if key == "" {
			return c.Next()
		}
		uid, _ := c.Locals("user_id").(string)
		key = "pvp:" + uid + ":" + key

		if cached := store.get(key); cached != nil {
			c.Set(fiber.HeaderContentType, cached.contentType)
			return c.Status(cached.status).Send(cached.body)
		}

		if err := c.Next(); err != nil {
			return err
		}

		body := make([]byte, len(c.Response().Body()))
		copy(body, c.Response().Body())
		store.put(key, &cachedResponse{
			status:      c.Response().StatusCode(),
			contentType: string(c.Response().Header.ContentType()),
			body:        body,
		})
		return nil
	}
}
