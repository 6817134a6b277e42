// Package devotp captures outgoing links and codes per subject so they can be read back through
// GET /dev/outbox/{subjectID} when no real mail or SMS channel is configured. Never wired in production.
package devotp

import (
	"context"
	"errors"
	"sync"
	"time"
)

// DefaultTTL bounds how long a captured message stays readable.
const DefaultTTL = 15 * time.Minute

// maxPerSubject caps the messages kept per subject; oldest are dropped first.
const maxPerSubject = 10

// Message is one captured notification.
type Message struct {
	Recipient  string            `json:"recipient"`
	TemplateID string            `json:"template_id"`
	Data       map[string]string `json:"data"`
	CapturedAt time.Time         `json:"captured_at"`
	ExpiresAt  time.Time         `json:"expires_at"`
}

// Store holds captured messages by subject ID for dev-only retrieval.
type Store interface {
	// Put stores msg for subjectID.
	Put(ctx context.Context, subjectID string, msg Message)
	// Get returns the unexpired messages for subjectID, newest first. ok is false when there are none.
	Get(ctx context.Context, subjectID string) (msgs []Message, ok bool)
}

// ErrNoSubject is returned by Send when data carries no subject_id.
var ErrNoSubject = errors.New("devotp: message has no subject_id")

// MemoryStore is an in-memory Store that also implements notify.Notifier.
type MemoryStore struct {
	mu   sync.RWMutex
	m    map[string][]Message
	ttl  time.Duration
	nowF func() time.Time
}

// NewMemoryStore returns a new in-memory dev outbox.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		m:    make(map[string][]Message),
		ttl:  DefaultTTL,
		nowF: func() time.Time { return time.Now().UTC() },
	}
}

// Put stores msg for subjectID.
func (s *MemoryStore) Put(ctx context.Context, subjectID string, msg Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := append(s.m[subjectID], msg)
	if len(list) > maxPerSubject {
		list = list[len(list)-maxPerSubject:]
	}
	s.m[subjectID] = list
}

// Get returns unexpired messages for subjectID, newest first; expired ones are dropped.
func (s *MemoryStore) Get(ctx context.Context, subjectID string) ([]Message, bool) {
	now := s.nowF()
	s.mu.Lock()
	defer s.mu.Unlock()
	var live []Message
	for _, m := range s.m[subjectID] {
		if m.ExpiresAt.After(now) {
			live = append(live, m)
		}
	}
	if len(live) == 0 {
		delete(s.m, subjectID)
		return nil, false
	}
	s.m[subjectID] = live
	out := make([]Message, len(live))
	for i := range live {
		out[len(live)-1-i] = live[i]
	}
	return out, true
}

// Send implements notify.Notifier by capturing the message under data["subject_id"].
func (s *MemoryStore) Send(ctx context.Context, recipient, templateID string, data map[string]string) error {
	subjectID := data["subject_id"]
	if subjectID == "" {
		return ErrNoSubject
	}
	now := s.nowF()
	cp := make(map[string]string, len(data))
	for k, v := range data {
		cp[k] = v
	}
	s.Put(ctx, subjectID, Message{
		Recipient:  recipient,
		TemplateID: templateID,
		Data:       cp,
		CapturedAt: now,
		ExpiresAt:  now.Add(s.ttl),
	})
	return nil
}
