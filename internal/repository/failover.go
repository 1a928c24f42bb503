package repository

import (
	"context"
	"sync"
	"time"

	"chatbook/internal/domain"
	"chatbook/internal/models"

	"github.com/rs/zerolog"
)

const recoveryInterval = time.Minute

// FailoverDraftRepository uses primary until it errors, then serves from
// fallback and retries primary once per recoveryInterval.
type FailoverDraftRepository struct {
	primary  domain.DraftRepository
	fallback domain.DraftRepository
	logger   *zerolog.Logger

	mu        sync.Mutex
	isDown    bool
	lastCheck time.Time
	now       func() time.Time
}

var _ domain.DraftRepository = (*FailoverDraftRepository)(nil)

func NewFailoverDraftRepository(primary, fallback domain.DraftRepository, logger *zerolog.Logger) *FailoverDraftRepository {
	return &FailoverDraftRepository{
		primary:  primary,
		fallback: fallback,
		logger:   logger,
		now:      time.Now,
	}
}

// usePrimary reports whether the next call should go to primary.
func (r *FailoverDraftRepository) usePrimary() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.isDown {
		return true
	}
	if r.now().Sub(r.lastCheck) > recoveryInterval {
		r.lastCheck = r.now()
		return true
	}
	return false
}

func (r *FailoverDraftRepository) markDown(err error) {
	r.mu.Lock()
	wasDown := r.isDown
	r.isDown = true
	r.lastCheck = r.now()
	r.mu.Unlock()
	if !wasDown {
		r.logger.Error().Err(err).Msg("Primary draft repository failed, falling back to memory")
	}
}

func (r *FailoverDraftRepository) markUp() {
	r.mu.Lock()
	wasDown := r.isDown
	r.isDown = false
	r.mu.Unlock()
	if wasDown {
		r.logger.Info().Msg("Primary draft repository recovered")
	}
}

// Down reports whether calls are currently served by the fallback.
func (r *FailoverDraftRepository) Down() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.isDown
}

func (r *FailoverDraftRepository) GetDraft(ctx context.Context, botID, conversationID string) (*models.Draft, error) {
	if r.usePrimary() {
		draft, err := r.primary.GetDraft(ctx, botID, conversationID)
		if err == nil {
			r.markUp()
			return draft, nil
		}
		r.markDown(err)
	}

	return r.fallback.GetDraft(ctx, botID, conversationID)
}

func (r *FailoverDraftRepository) SetDraft(ctx context.Context, draft *models.Draft) error {
	if r.usePrimary() {
		err := r.primary.SetDraft(ctx, draft)
		if err == nil {
			r.markUp()
			return nil
		}
		r.markDown(err)
	}

	return r.fallback.SetDraft(ctx, draft)
}

func (r *FailoverDraftRepository) ClearDraft(ctx context.Context, botID, conversationID string) error {
	// Clear both: a draft may have been written to fallback while primary was down.
	fbErr := r.fallback.ClearDraft(ctx, botID, conversationID)
	if r.usePrimary() {
		err := r.primary.ClearDraft(ctx, botID, conversationID)
		if err == nil {
			r.markUp()
			return nil
		}
		r.markDown(err)
	}

	return fbErr
}

func (r *FailoverDraftRepository) CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	if r.usePrimary() {
		allowed, err := r.primary.CheckRateLimit(ctx, key, limit, window)
		if err == nil {
			r.markUp()
			return allowed, nil
		}
		r.markDown(err)
	}

	return r.fallback.CheckRateLimit(ctx, key, limit, window)
}
