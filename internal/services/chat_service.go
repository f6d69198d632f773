package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	domain "github.com/pawmart/api/internal/domain"
	"github.com/pawmart/api/internal/platform/cache"
	"github.com/pawmart/api/internal/repositories"
)

var (
	// ErrChatInvalidInput signals the caller provided invalid data.
	ErrChatInvalidInput = errors.New("chat: invalid input")
	// ErrChatNotFound indicates the chat does not exist.
	ErrChatNotFound = errors.New("chat: not found")
	// ErrChatBookingNotFound indicates the backing booking does not exist.
	ErrChatBookingNotFound = errors.New("chat: booking not found")
	// ErrChatUnauthorized indicates the caller is not a participant.
	ErrChatUnauthorized = errors.New("chat: unauthorized")
	// ErrChatInactive indicates the thread no longer accepts messages.
	ErrChatInactive = errors.New("chat: inactive")
	// ErrChatConflict indicates a concurrent chat update collided.
	ErrChatConflict = errors.New("chat: conflict")
)

// ChatServiceDeps bundles collaborators required to construct the chat service.
type ChatServiceDeps struct {
	Chats    repositories.ChatRepository
	Bookings repositories.BookingRepository
	Cache    cache.Store
	CacheTTL time.Duration
	Events   LifecycleEventPublisher
	Clock    func() time.Time
	Logger   Logger
}

type chatService struct {
	chats    repositories.ChatRepository
	bookings repositories.BookingRepository
	cache    cacheSyncer
	events   LifecycleEventPublisher
	clock    func() time.Time
	logger   Logger
}

// NewChatService wires dependencies into a concrete ChatService implementation.
func NewChatService(deps ChatServiceDeps) (ChatService, error) {
	if deps.Chats == nil {
		return nil, errors.New("chat service: chat repository is required")
	}
	if deps.Bookings == nil {
		return nil, errors.New("chat service: booking repository is required")
	}

	logger := normalizeLogger(deps.Logger)
	return &chatService{
		chats:    deps.Chats,
		bookings: deps.Bookings,
		cache:    newCacheSyncer(deps.Cache, deps.CacheTTL, logger),
		events:   deps.Events,
		clock:    utcClock(deps.Clock),
		logger:   logger,
	}, nil
}

// Initialize opens the chat thread for a booking, or hands back the
// existing one so repeated calls are safe.
func (s *chatService) Initialize(ctx context.Context, cmd InitializeChatCommand) (Chat, error) {
	callerID := strings.TrimSpace(cmd.CallerID)
	bookingID := strings.TrimSpace(cmd.BookingID)
	if callerID == "" {
		return Chat{}, fmt.Errorf("%w: caller id is required", ErrChatInvalidInput)
	}
	if bookingID == "" {
		return Chat{}, fmt.Errorf("%w: booking id is required", ErrChatInvalidInput)
	}

	booking, err := s.bookings.FindByID(ctx, bookingID)
	if err != nil {
		return Chat{}, s.mapRepositoryError(err, ErrChatBookingNotFound)
	}
	if booking.UserID != callerID && booking.DoctorID != callerID {
		return Chat{}, fmt.Errorf("%w: booking %s belongs to another user", ErrChatUnauthorized, bookingID)
	}

	existing, err := s.chats.FindByBooking(ctx, bookingID)
	if err == nil {
		return existing, nil
	}
	var repoErr repositories.RepositoryError
	if !errors.As(err, &repoErr) || !repoErr.IsNotFound() {
		return Chat{}, s.mapRepositoryError(err, ErrChatNotFound)
	}

	now := s.clock()
	chat := domain.Chat{
		ID:        newEntityID(chatIDPrefix),
		BookingID: bookingID,
		UserID:    booking.UserID,
		DoctorID:  booking.DoctorID,
		Active:    true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.chats.Insert(ctx, chat); err != nil {
		// A concurrent initialize may have won the race; fall back to
		// the thread it created.
		if errors.As(err, &repoErr) && repoErr.IsConflict() {
			if existing, findErr := s.chats.FindByBooking(ctx, bookingID); findErr == nil {
				return existing, nil
			}
		}
		return Chat{}, s.mapRepositoryError(err, ErrChatNotFound)
	}

	s.cache.publish(ctx, cacheKindChat, chat.ID, chat)
	publishLifecycle(ctx, s.events, s.logger, LifecycleEvent{
		Type:       "chat.opened",
		EntityKind: "chat",
		EntityID:   chat.ID,
		ActorID:    callerID,
		OccurredAt: now,
		Metadata:   map[string]any{"booking_id": bookingID},
	})

	return chat, nil
}

func (s *chatService) SendMessage(ctx context.Context, cmd SendMessageCommand) (Chat, error) {
	callerID := strings.TrimSpace(cmd.CallerID)
	chatID := strings.TrimSpace(cmd.ChatID)
	content := strings.TrimSpace(cmd.Content)
	if callerID == "" || chatID == "" {
		return Chat{}, fmt.Errorf("%w: caller id and chat id are required", ErrChatInvalidInput)
	}
	if content == "" {
		return Chat{}, fmt.Errorf("%w: message content is required", ErrChatInvalidInput)
	}
	if cmd.Sender != domain.SenderUser && cmd.Sender != domain.SenderDoctor {
		return Chat{}, fmt.Errorf("%w: unknown sender kind %q", ErrChatInvalidInput, cmd.Sender)
	}

	chat, err := s.participantChat(ctx, callerID, chatID)
	if err != nil {
		return Chat{}, err
	}
	if !chat.Active {
		return Chat{}, fmt.Errorf("%w: chat %s is closed", ErrChatInactive, chatID)
	}

	now := s.clock()
	chat.Messages = append(chat.Messages, domain.ChatMessage{
		ID:       newEntityID(messageIDPrefix),
		SenderID: callerID,
		Sender:   cmd.Sender,
		Content:  content,
		SentAt:   now,
	})
	chat.LastMessage = now
	chat.UpdatedAt = now

	if err := s.chats.Update(ctx, chat); err != nil {
		return Chat{}, s.mapRepositoryError(err, ErrChatNotFound)
	}
	s.cache.publish(ctx, cacheKindChat, chat.ID, chat)
	return chat, nil
}

func (s *chatService) History(ctx context.Context, callerID, chatID string) (Chat, error) {
	callerID = strings.TrimSpace(callerID)
	chatID = strings.TrimSpace(chatID)
	if callerID == "" || chatID == "" {
		return Chat{}, fmt.Errorf("%w: caller id and chat id are required", ErrChatInvalidInput)
	}

	var cached domain.Chat
	if s.cache.fetch(ctx, cacheKindChat, chatID, &cached) && cached.ID == chatID {
		if cached.UserID != callerID && cached.DoctorID != callerID {
			return Chat{}, fmt.Errorf("%w: chat %s belongs to another conversation", ErrChatUnauthorized, chatID)
		}
		return cached, nil
	}

	chat, err := s.participantChat(ctx, callerID, chatID)
	if err != nil {
		return Chat{}, err
	}
	s.cache.publish(ctx, cacheKindChat, chat.ID, chat)
	return chat, nil
}

func (s *chatService) ListChats(ctx context.Context, participantID string) ([]Chat, error) {
	participantID = strings.TrimSpace(participantID)
	if participantID == "" {
		return nil, fmt.Errorf("%w: participant id is required", ErrChatInvalidInput)
	}
	chats, err := s.chats.ListByParticipant(ctx, participantID)
	if err != nil {
		return nil, s.mapRepositoryError(err, ErrChatNotFound)
	}
	return chats, nil
}

// MarkRead flags every message sent by the other side as read.
func (s *chatService) MarkRead(ctx context.Context, callerID, chatID string) (Chat, error) {
	callerID = strings.TrimSpace(callerID)
	chatID = strings.TrimSpace(chatID)
	if callerID == "" || chatID == "" {
		return Chat{}, fmt.Errorf("%w: caller id and chat id are required", ErrChatInvalidInput)
	}

	chat, err := s.participantChat(ctx, callerID, chatID)
	if err != nil {
		return Chat{}, err
	}

	changed := false
	for i := range chat.Messages {
		if chat.Messages[i].SenderID != callerID && !chat.Messages[i].Read {
			chat.Messages[i].Read = true
			changed = true
		}
	}
	if !changed {
		return chat, nil
	}

	chat.UpdatedAt = s.clock()
	if err := s.chats.Update(ctx, chat); err != nil {
		return Chat{}, s.mapRepositoryError(err, ErrChatNotFound)
	}
	s.cache.publish(ctx, cacheKindChat, chat.ID, chat)
	return chat, nil
}

// participantChat loads the chat and verifies the caller is one of its
// two participants.
func (s *chatService) participantChat(ctx context.Context, callerID, chatID string) (domain.Chat, error) {
	chat, err := s.chats.FindByID(ctx, chatID)
	if err != nil {
		return domain.Chat{}, s.mapRepositoryError(err, ErrChatNotFound)
	}
	if chat.UserID != callerID && chat.DoctorID != callerID {
		return domain.Chat{}, fmt.Errorf("%w: chat %s belongs to another conversation", ErrChatUnauthorized, chatID)
	}
	return chat, nil
}

func (s *chatService) mapRepositoryError(err error, notFound error) error {
	if err == nil {
		return nil
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", notFound, err)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %v", ErrChatConflict, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("chat: repository unavailable: %w", err)
		}
	}
	return err
}

var _ ChatService = (*chatService)(nil)
