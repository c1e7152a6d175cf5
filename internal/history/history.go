// Package history manages per-session conversation transcripts and keeps
// them bounded by compacting old turns into LLM-written summaries.
package history

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/robilabs/robi/internal/llm"
	"github.com/robilabs/robi/internal/storage"
	"github.com/robilabs/robi/pkg/types"
)

// Roles stored in the transcript.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// Service wraps a HistoryStore with compaction.
type Service struct {
	store     storage.HistoryStore
	llm       llm.Provider
	threshold int
	keep      int
	logger    *zap.Logger
}

// NewService builds a history service. Compaction triggers when a session
// reaches threshold messages and keeps the newest keep messages verbatim.
func NewService(store storage.HistoryStore, provider llm.Provider, threshold, keep int, logger *zap.Logger) *Service {
	if threshold <= 0 {
		threshold = 20
	}
	if keep <= 0 || keep >= threshold {
		keep = 6
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: store, llm: provider, threshold: threshold, keep: keep, logger: logger}
}

// Add appends one message to the session transcript.
func (s *Service) Add(ctx context.Context, sessionID, role, content string) error {
	if content == "" {
		return nil
	}
	return s.store.AppendMessage(ctx, &types.ConversationMessage{
		SessionID: sessionID,
		Role:      role,
		Content:   content,
	})
}

// Messages returns the transcript for a session, oldest first. Compacted
// summaries appear as system-role messages in their slot.
func (s *Service) Messages(ctx context.Context, sessionID string) ([]*types.ConversationMessage, error) {
	return s.store.SessionMessages(ctx, sessionID)
}

// CompactIfNeeded folds the oldest messages into a summary once the
// transcript reaches the threshold. A failed or empty summary leaves the
// transcript untouched.
func (s *Service) CompactIfNeeded(ctx context.Context, sessionID string) error {
	msgs, err := s.store.SessionMessages(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("history: failed to load transcript: %w", err)
	}
	if len(msgs) < s.threshold {
		return nil
	}

	cut := len(msgs) - s.keep
	old := msgs[:cut]
	keepFrom := msgs[cut].Index

	summary, err := s.llm.Complete(ctx, &llm.Request{
		Messages: []llm.Message{llm.TextMessage(llm.RoleUser, llm.CompactionPrompt(old))},
	})
	if err != nil {
		s.logger.Warn("history compaction summary failed, keeping full transcript",
			zap.String("session_id", sessionID),
			zap.Int("messages", len(msgs)),
			zap.Error(err))
		return nil
	}
	if summary == "" {
		s.logger.Warn("history compaction produced empty summary, skipping",
			zap.String("session_id", sessionID))
		return nil
	}

	err = s.store.ReplacePrefix(ctx, sessionID, keepFrom, &types.ConversationMessage{
		Role:    RoleSystem,
		Content: summary,
	})
	if err != nil {
		return fmt.Errorf("history: failed to replace compacted prefix: %w", err)
	}

	s.logger.Info("compacted conversation history",
		zap.String("session_id", sessionID),
		zap.Int("compacted", len(old)),
		zap.Int("kept", s.keep))
	return nil
}
