package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/hpol369/ItsNadchos/internal/models"
	"github.com/hpol369/ItsNadchos/internal/repository"
	"github.com/hpol369/ItsNadchos/internal/responder"
)

const (
	sessionWindow    = 4 * time.Hour
	contextMessages  = 30
	contextMemories  = 20
	memoryMaxLength  = 200
	onboardingLimit  = 3
)

// ConversationService maintains per-user conversation state and assembles the
// context handed to the responder.
type ConversationService struct {
	conversations *repository.ConversationRepository
	messages      *repository.MessageRepository
	memories      *repository.MemoryRepository
}

func NewConversationService(conversations *repository.ConversationRepository, messages *repository.MessageRepository, memories *repository.MemoryRepository) *ConversationService {
	return &ConversationService{
		conversations: conversations,
		messages:      messages,
		memories:      memories,
	}
}

// EnsureState returns the user's conversation state, creating the initial
// onboarding row on first contact.
func (s *ConversationService) EnsureState(ctx context.Context, userID int64) (*models.ConversationState, error) {
	state, err := s.conversations.Get(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get conversation state: %w", err)
	}
	if state != nil {
		return state, nil
	}
	if err := s.conversations.Create(ctx, userID); err != nil {
		return nil, fmt.Errorf("create conversation state: %w", err)
	}
	state, err = s.conversations.Get(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("reload conversation state: %w", err)
	}
	return state, nil
}

// BuildContext gathers the recent session window plus long-term memories for
// the responder. Only messages inside the session window count as history.
func (s *ConversationService) BuildContext(ctx context.Context, user *models.User, now time.Time) (responder.Context, error) {
	since := now.Add(-sessionWindow)
	history, err := s.messages.ListRecent(ctx, user.ID, since, contextMessages)
	if err != nil {
		return responder.Context{}, fmt.Errorf("list messages: %w", err)
	}
	memories, err := s.memories.ListRecent(ctx, user.ID, contextMemories)
	if err != nil {
		return responder.Context{}, fmt.Errorf("list memories: %w", err)
	}

	rc := responder.Context{DisplayName: user.DisplayName}
	for _, m := range history {
		rc.Messages = append(rc.Messages, responder.Message{Role: m.Role, Content: m.Content})
	}
	for _, m := range memories {
		rc.Memories = append(rc.Memories, m.Content)
	}
	return rc, nil
}

func (s *ConversationService) RecordInbound(ctx context.Context, userID int64, text string) error {
	if _, err := s.messages.Append(ctx, userID, "user", text); err != nil {
		return fmt.Errorf("append inbound message: %w", err)
	}
	return nil
}

func (s *ConversationService) RecordOutbound(ctx context.Context, userID int64, text string) error {
	if _, err := s.messages.Append(ctx, userID, "assistant", text); err != nil {
		return fmt.Errorf("append outbound message: %w", err)
	}
	return nil
}

// CaptureMemory stores a durable fact extracted from the user's message.
// Extraction is deliberately simple: first-person statements of preference or
// identity are kept verbatim, truncated to a sane length.
func (s *ConversationService) CaptureMemory(ctx context.Context, userID int64, text string) error {
	fact := extractMemory(text)
	if fact == "" {
		return nil
	}
	if err := s.memories.Add(ctx, userID, fact); err != nil {
		return fmt.Errorf("add memory: %w", err)
	}
	return nil
}

var memoryPrefixes = []string{
	"my name is ", "i am ", "i'm ", "i like ", "i love ", "i hate ",
	"i work ", "i live ", "my favorite ", "my favourite ", "call me ",
}

func extractMemory(text string) string {
	lower := strings.ToLower(strings.TrimSpace(text))
	for _, prefix := range memoryPrefixes {
		if strings.HasPrefix(lower, prefix) {
			fact := strings.TrimSpace(text)
			if len(fact) > memoryMaxLength {
				fact = fact[:memoryMaxLength]
			}
			return fact
		}
	}
	return ""
}

// AdvancePhase moves a user out of onboarding once they have exchanged enough
// messages to count as engaged.
func (s *ConversationService) AdvancePhase(ctx context.Context, state *models.ConversationState, totalMessages int) error {
	if state.CurrentState == models.PhaseOnboarding && totalMessages >= onboardingLimit {
		if err := s.conversations.SetPhase(ctx, state.UserID, models.PhaseFreeChat); err != nil {
			return fmt.Errorf("advance phase: %w", err)
		}
		state.CurrentState = models.PhaseFreeChat
	}
	return nil
}

// NoteUpsellShown resets the message-since-upsell counter and arms the cooldown.
func (s *ConversationService) NoteUpsellShown(ctx context.Context, userID int64, now time.Time) error {
	if err := s.conversations.RecordUpsellShown(ctx, userID, now, now.Add(upsellCooldown)); err != nil {
		return fmt.Errorf("record upsell shown: %w", err)
	}
	return nil
}

func (s *ConversationService) NoteMessage(ctx context.Context, userID int64) error {
	if err := s.conversations.IncrementMessagesSinceUpsell(ctx, userID); err != nil {
		return fmt.Errorf("increment upsell counter: %w", err)
	}
	return nil
}

// SetTier records a purchased content tier if it outranks the current one.
func (s *ConversationService) SetTier(ctx context.Context, userID int64, tier models.Tier) error {
	if err := s.conversations.SetTier(ctx, userID, tier); err != nil {
		return fmt.Errorf("set tier: %w", err)
	}
	return nil
}
