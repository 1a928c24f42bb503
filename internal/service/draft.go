package service

import (
	"context"
	"strings"
	"time"

	"chatbook/internal/domain"
	"chatbook/internal/models"

	"github.com/rs/zerolog"
)

// DraftService keeps partially collected booking requests between turns.
type DraftService struct {
	draftRepo domain.DraftRepository
	now       func() time.Time
	logger    *zerolog.Logger
}

var _ domain.DraftManager = (*DraftService)(nil)

func NewDraftService(draftRepo domain.DraftRepository, logger *zerolog.Logger) *DraftService {
	return &DraftService{
		draftRepo: draftRepo,
		now:       time.Now,
		logger:    logger,
	}
}

// GetDraft returns nil without error when the conversation has no draft.
func (s *DraftService) GetDraft(ctx context.Context, botID, conversationID string) (*models.Draft, error) {
	draft, err := s.draftRepo.GetDraft(ctx, botID, conversationID)
	if err != nil {
		s.logger.Error().Err(err).Str("bot_id", botID).Str("conversation_id", conversationID).Msg("failed to get draft")
		return nil, err
	}

	return draft, nil
}

// SaveDraft merges fields into the stored draft. An empty value removes the
// field; a blank intent keeps the previous one.
func (s *DraftService) SaveDraft(ctx context.Context, botID, conversationID, intent string, fields map[string]string) (*models.Draft, error) {
	draft, err := s.draftRepo.GetDraft(ctx, botID, conversationID)
	if err != nil {
		return nil, err
	}
	if draft == nil {
		draft = &models.Draft{
			BotID:          botID,
			ConversationID: conversationID,
			Fields:         make(map[string]string),
		}
	}

	if intent = strings.TrimSpace(intent); intent != "" {
		draft.Intent = intent
	}
	draft.Merge(fields)
	draft.UpdatedAt = s.now().UTC()

	if err := s.draftRepo.SetDraft(ctx, draft); err != nil {
		s.logger.Error().Err(err).Str("bot_id", botID).Str("conversation_id", conversationID).Msg("failed to save draft")
		return nil, err
	}
	return draft, nil
}

func (s *DraftService) ClearDraft(ctx context.Context, botID, conversationID string) error {
	return s.draftRepo.ClearDraft(ctx, botID, conversationID)
}

func (s *DraftService) CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	return s.draftRepo.CheckRateLimit(ctx, key, limit, window)
}
