package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	domain "github.com/pawmart/api/internal/domain"
	"github.com/pawmart/api/internal/platform/cache"
)

func TestNewChatService(t *testing.T) {
	if _, err := NewChatService(ChatServiceDeps{Bookings: &stubBookingRepository{}}); err == nil {
		t.Fatalf("expected error when chat repository missing")
	}
	if _, err := NewChatService(ChatServiceDeps{Chats: &stubChatRepository{}}); err == nil {
		t.Fatalf("expected error when booking repository missing")
	}
}

func TestChatServiceInitialize(t *testing.T) {
	now := time.Date(2025, time.March, 12, 9, 30, 0, 0, time.UTC)
	booking := domain.Booking{ID: "bkg_001", UserID: "usr_001", DoctorID: "doc_001", Status: domain.BookingStatusProcessing}

	t.Run("opens a thread for the booking participants", func(t *testing.T) {
		bookings := &stubBookingRepository{bookings: map[string]domain.Booking{booking.ID: booking}}
		chats := &stubChatRepository{}
		events := &recordingPublisher{}
		svc := newChatServiceForTest(t, chats, bookings, nil, events, now)

		chat, err := svc.Initialize(context.Background(), InitializeChatCommand{CallerID: "usr_001", BookingID: "bkg_001"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.HasPrefix(chat.ID, "chat_") {
			t.Fatalf("expected chat_ id, got %q", chat.ID)
		}
		if chat.UserID != "usr_001" || chat.DoctorID != "doc_001" {
			t.Fatalf("expected both participants pinned, got %#v", chat)
		}
		if !chat.Active {
			t.Fatalf("expected an active thread")
		}
		if len(events.events) != 1 || events.events[0].Type != "chat.opened" {
			t.Fatalf("expected chat.opened event, got %#v", events.events)
		}
	})

	t.Run("is idempotent per booking", func(t *testing.T) {
		bookings := &stubBookingRepository{bookings: map[string]domain.Booking{booking.ID: booking}}
		existing := domain.Chat{ID: "chat_001", BookingID: "bkg_001", UserID: "usr_001", DoctorID: "doc_001", Active: true}
		chats := &stubChatRepository{chats: map[string]domain.Chat{existing.ID: existing}}
		svc := newChatServiceForTest(t, chats, bookings, nil, nil, now)

		chat, err := svc.Initialize(context.Background(), InitializeChatCommand{CallerID: "doc_001", BookingID: "bkg_001"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if chat.ID != "chat_001" {
			t.Fatalf("expected the existing thread, got %q", chat.ID)
		}
		if chats.insertCalls != 0 {
			t.Fatalf("expected no second insert, got %d", chats.insertCalls)
		}
	})

	t.Run("rejects strangers", func(t *testing.T) {
		bookings := &stubBookingRepository{bookings: map[string]domain.Booking{booking.ID: booking}}
		svc := newChatServiceForTest(t, &stubChatRepository{}, bookings, nil, nil, now)

		if _, err := svc.Initialize(context.Background(), InitializeChatCommand{CallerID: "usr_999", BookingID: "bkg_001"}); !errors.Is(err, ErrChatUnauthorized) {
			t.Fatalf("expected unauthorized, got %v", err)
		}
	})

	t.Run("maps a missing booking to not found", func(t *testing.T) {
		svc := newChatServiceForTest(t, &stubChatRepository{}, &stubBookingRepository{}, nil, nil, now)

		if _, err := svc.Initialize(context.Background(), InitializeChatCommand{CallerID: "usr_001", BookingID: "bkg_404"}); !errors.Is(err, ErrChatBookingNotFound) {
			t.Fatalf("expected booking not found, got %v", err)
		}
	})
}

func TestChatServiceSendMessage(t *testing.T) {
	now := time.Date(2025, time.March, 12, 9, 30, 0, 0, time.UTC)
	thread := domain.Chat{ID: "chat_001", BookingID: "bkg_001", UserID: "usr_001", DoctorID: "doc_001", Active: true}

	t.Run("appends the message and bumps the thread", func(t *testing.T) {
		chats := &stubChatRepository{chats: map[string]domain.Chat{thread.ID: thread}}
		svc := newChatServiceForTest(t, chats, &stubBookingRepository{}, nil, nil, now)

		chat, err := svc.SendMessage(context.Background(), SendMessageCommand{CallerID: "doc_001", Sender: domain.SenderDoctor, ChatID: "chat_001", Content: "  How is the appetite today?  "})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(chat.Messages) != 1 {
			t.Fatalf("expected one message, got %d", len(chat.Messages))
		}
		msg := chat.Messages[0]
		if !strings.HasPrefix(msg.ID, "msg_") {
			t.Fatalf("expected msg_ id, got %q", msg.ID)
		}
		if msg.Content != "How is the appetite today?" {
			t.Fatalf("expected trimmed content, got %q", msg.Content)
		}
		if msg.Sender != domain.SenderDoctor || msg.SenderID != "doc_001" {
			t.Fatalf("unexpected sender %#v", msg)
		}
		if msg.Read {
			t.Fatalf("expected message to start unread")
		}
		if !chat.LastMessage.Equal(now) {
			t.Fatalf("expected LastMessage bumped, got %v", chat.LastMessage)
		}
	})

	t.Run("rejects a closed thread", func(t *testing.T) {
		closed := thread
		closed.Active = false
		chats := &stubChatRepository{chats: map[string]domain.Chat{closed.ID: closed}}
		svc := newChatServiceForTest(t, chats, &stubBookingRepository{}, nil, nil, now)

		if _, err := svc.SendMessage(context.Background(), SendMessageCommand{CallerID: "usr_001", Sender: domain.SenderUser, ChatID: "chat_001", Content: "hello"}); !errors.Is(err, ErrChatInactive) {
			t.Fatalf("expected inactive chat error, got %v", err)
		}
	})

	t.Run("rejects non participants", func(t *testing.T) {
		chats := &stubChatRepository{chats: map[string]domain.Chat{thread.ID: thread}}
		svc := newChatServiceForTest(t, chats, &stubBookingRepository{}, nil, nil, now)

		if _, err := svc.SendMessage(context.Background(), SendMessageCommand{CallerID: "usr_999", Sender: domain.SenderUser, ChatID: "chat_001", Content: "hello"}); !errors.Is(err, ErrChatUnauthorized) {
			t.Fatalf("expected unauthorized, got %v", err)
		}
	})

	t.Run("rejects empty content", func(t *testing.T) {
		chats := &stubChatRepository{chats: map[string]domain.Chat{thread.ID: thread}}
		svc := newChatServiceForTest(t, chats, &stubBookingRepository{}, nil, nil, now)

		if _, err := svc.SendMessage(context.Background(), SendMessageCommand{CallerID: "usr_001", Sender: domain.SenderUser, ChatID: "chat_001", Content: "   "}); !errors.Is(err, ErrChatInvalidInput) {
			t.Fatalf("expected invalid input, got %v", err)
		}
	})
}

func TestChatServiceHistory(t *testing.T) {
	now := time.Date(2025, time.March, 12, 9, 30, 0, 0, time.UTC)
	thread := domain.Chat{ID: "chat_001", UserID: "usr_001", DoctorID: "doc_001", Active: true, Messages: []domain.ChatMessage{{ID: "msg_001", SenderID: "usr_001", Content: "hi"}}}

	t.Run("returns the thread to a participant and caches it", func(t *testing.T) {
		store := cache.NewMemoryStore()
		chats := &stubChatRepository{chats: map[string]domain.Chat{thread.ID: thread}}
		svc := newChatServiceForTest(t, chats, &stubBookingRepository{}, store, nil, now)

		chat, err := svc.History(context.Background(), "doc_001", "chat_001")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(chat.Messages) != 1 {
			t.Fatalf("expected one message, got %d", len(chat.Messages))
		}
		var snapshot domain.Chat
		if err := cache.FetchJSON(context.Background(), store, cache.Key("chat", "chat_001"), &snapshot); err != nil {
			t.Fatalf("expected chat snapshot in cache: %v", err)
		}
	})

	t.Run("rejects non participants even on a cache hit", func(t *testing.T) {
		store := cache.NewMemoryStore()
		if err := cache.PublishJSON(context.Background(), store, cache.Key("chat", "chat_001"), thread, time.Minute); err != nil {
			t.Fatalf("seed cache: %v", err)
		}
		svc := newChatServiceForTest(t, &stubChatRepository{}, &stubBookingRepository{}, store, nil, now)

		if _, err := svc.History(context.Background(), "usr_999", "chat_001"); !errors.Is(err, ErrChatUnauthorized) {
			t.Fatalf("expected unauthorized, got %v", err)
		}
	})
}

func TestChatServiceMarkRead(t *testing.T) {
	now := time.Date(2025, time.March, 12, 9, 30, 0, 0, time.UTC)
	thread := domain.Chat{
		ID: "chat_001", UserID: "usr_001", DoctorID: "doc_001", Active: true,
		Messages: []domain.ChatMessage{
			{ID: "msg_001", SenderID: "doc_001", Sender: domain.SenderDoctor, Content: "hello"},
			{ID: "msg_002", SenderID: "usr_001", Sender: domain.SenderUser, Content: "hi"},
			{ID: "msg_003", SenderID: "doc_001", Sender: domain.SenderDoctor, Content: "any update?"},
		},
	}

	t.Run("flags the other side's messages", func(t *testing.T) {
		chats := &stubChatRepository{chats: map[string]domain.Chat{thread.ID: thread}}
		svc := newChatServiceForTest(t, chats, &stubBookingRepository{}, nil, nil, now)

		chat, err := svc.MarkRead(context.Background(), "usr_001", "chat_001")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !chat.Messages[0].Read || !chat.Messages[2].Read {
			t.Fatalf("expected doctor messages read, got %#v", chat.Messages)
		}
		if chat.Messages[1].Read {
			t.Fatalf("expected own message untouched, got %#v", chat.Messages[1])
		}
		if chats.updateCalls != 1 {
			t.Fatalf("expected one update, got %d", chats.updateCalls)
		}
	})

	t.Run("skips the write when nothing is unread", func(t *testing.T) {
		clean := thread
		clean.Messages = []domain.ChatMessage{{ID: "msg_001", SenderID: "usr_001", Content: "hi"}}
		chats := &stubChatRepository{chats: map[string]domain.Chat{clean.ID: clean}}
		svc := newChatServiceForTest(t, chats, &stubBookingRepository{}, nil, nil, now)

		if _, err := svc.MarkRead(context.Background(), "usr_001", "chat_001"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if chats.updateCalls != 0 {
			t.Fatalf("expected no update, got %d", chats.updateCalls)
		}
	})
}

func newChatServiceForTest(t *testing.T, chats *stubChatRepository, bookings *stubBookingRepository, store cache.Store, events LifecycleEventPublisher, now time.Time) ChatService {
	t.Helper()
	svc, err := NewChatService(ChatServiceDeps{
		Chats:    chats,
		Bookings: bookings,
		Cache:    store,
		CacheTTL: time.Minute,
		Events:   events,
		Clock:    func() time.Time { return now },
	})
	if err != nil {
		t.Fatalf("unexpected constructor error: %v", err)
	}
	return svc
}

type stubChatRepository struct {
	chats       map[string]domain.Chat
	insertCalls int
	insertErr   error
	updateCalls int
	updateErr   error
}

func (s *stubChatRepository) Insert(_ context.Context, chat domain.Chat) error {
	s.insertCalls++
	if s.insertErr != nil {
		return s.insertErr
	}
	if s.chats == nil {
		s.chats = map[string]domain.Chat{}
	}
	s.chats[chat.ID] = chat
	return nil
}

func (s *stubChatRepository) FindByID(_ context.Context, chatID string) (domain.Chat, error) {
	chat, ok := s.chats[chatID]
	if !ok {
		return domain.Chat{}, cartStubError{notFound: true}
	}
	return chat, nil
}

func (s *stubChatRepository) FindByBooking(_ context.Context, bookingID string) (domain.Chat, error) {
	for _, chat := range s.chats {
		if chat.BookingID == bookingID {
			return chat, nil
		}
	}
	return domain.Chat{}, cartStubError{notFound: true}
}

func (s *stubChatRepository) ListByParticipant(_ context.Context, participantID string) ([]domain.Chat, error) {
	var out []domain.Chat
	for _, chat := range s.chats {
		if chat.UserID == participantID || chat.DoctorID == participantID {
			out = append(out, chat)
		}
	}
	return out, nil
}

func (s *stubChatRepository) Update(_ context.Context, chat domain.Chat) error {
	s.updateCalls++
	if s.updateErr != nil {
		return s.updateErr
	}
	if s.chats == nil {
		s.chats = map[string]domain.Chat{}
	}
	s.chats[chat.ID] = chat
	return nil
}
