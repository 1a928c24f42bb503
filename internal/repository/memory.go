package repository

import (
	"context"
	"sync"
	"time"

	"chatbook/internal/domain"
	"chatbook/internal/models"
)

// MemoryDraftRepository keeps drafts in process with the same TTL semantics
// as the Redis store.
type MemoryDraftRepository struct {
	mu         sync.Mutex
	drafts     map[string]draftEntry
	rateLimits map[string]*rateLimitEntry
	ttl        time.Duration
	now        func() time.Time
}

var _ domain.DraftRepository = (*MemoryDraftRepository)(nil)

type draftEntry struct {
	draft     models.Draft
	expiresAt time.Time
}

type rateLimitEntry struct {
	count     int
	expiresAt time.Time
}

func NewMemoryDraftRepository(ttl time.Duration) *MemoryDraftRepository {
	return &MemoryDraftRepository{
		drafts:     make(map[string]draftEntry),
		rateLimits: make(map[string]*rateLimitEntry),
		ttl:        ttl,
		now:        time.Now,
	}
}

func (r *MemoryDraftRepository) GetDraft(_ context.Context, botID, conversationID string) (*models.Draft, error) {
	key := draftKey(botID, conversationID)

	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.drafts[key]
	if !ok {
		return nil, nil
	}
	if r.ttl > 0 && !r.now().Before(entry.expiresAt) {
		delete(r.drafts, key)
		return nil, nil
	}
	draft := entry.draft
	draft.Fields = copyFields(entry.draft.Fields)
	return &draft, nil
}

func (r *MemoryDraftRepository) SetDraft(_ context.Context, draft *models.Draft) error {
	stored := *draft
	stored.Fields = copyFields(draft.Fields)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.drafts[draftKey(draft.BotID, draft.ConversationID)] = draftEntry{draft: stored, expiresAt: r.now().Add(r.ttl)}
	r.sweepLocked()
	return nil
}

func (r *MemoryDraftRepository) ClearDraft(_ context.Context, botID, conversationID string) error {
	r.mu.Lock()
	delete(r.drafts, draftKey(botID, conversationID))
	r.mu.Unlock()
	return nil
}

func (r *MemoryDraftRepository) CheckRateLimit(_ context.Context, key string, limit int, window time.Duration) (bool, error) {
	now := r.now()

	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.rateLimits[key]
	if !ok || !now.Before(entry.expiresAt) {
		entry = &rateLimitEntry{expiresAt: now.Add(window)}
		r.rateLimits[key] = entry
	}
	entry.count++
	return entry.count <= limit, nil
}

// sweepLocked drops expired drafts so abandoned conversations do not pile up.
func (r *MemoryDraftRepository) sweepLocked() {
	if r.ttl <= 0 {
		return
	}
	now := r.now()
	for k, e := range r.drafts {
		if !now.Before(e.expiresAt) {
			delete(r.drafts, k)
		}
	}
}

func copyFields(in map[string]string) map[string]string {
	if in == nil {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
