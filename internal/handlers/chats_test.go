package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/pawmart/api/internal/domain"
	"github.com/pawmart/api/internal/platform/auth"
	"github.com/pawmart/api/internal/services"
)

func TestChatHandlersInitializeSuccess(t *testing.T) {
	var captured services.InitializeChatCommand
	service := &stubChatService{
		initializeFunc: func(ctx context.Context, cmd services.InitializeChatCommand) (services.Chat, error) {
			captured = cmd
			return services.Chat{
				ID:        "chat_1",
				BookingID: cmd.BookingID,
				UserID:    cmd.CallerID,
				DoctorID:  "doc_1",
				Active:    true,
			}, nil
		},
	}

	rr := serveChats(t, service, http.MethodPost, "/chats", `{"booking_id":"bkg_1"}`, "user-7", auth.RoleUser)
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", rr.Code, rr.Body.String())
	}
	if captured.CallerID != "user-7" || captured.BookingID != "bkg_1" {
		t.Fatalf("unexpected command %+v", captured)
	}

	var resp chatResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Chat.ID != "chat_1" || !resp.Chat.Active {
		t.Fatalf("unexpected chat %+v", resp.Chat)
	}
}

func TestChatHandlersInitializeMapsMissingBooking(t *testing.T) {
	service := &stubChatService{
		initializeFunc: func(ctx context.Context, cmd services.InitializeChatCommand) (services.Chat, error) {
			return services.Chat{}, services.ErrChatBookingNotFound
		},
	}

	rr := serveChats(t, service, http.MethodPost, "/chats", `{"booking_id":"bkg_missing"}`, "user-7", auth.RoleUser)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", rr.Code)
	}
	if code := errorCode(t, rr); code != "booking_not_found" {
		t.Fatalf("unexpected error code %q", code)
	}
}

func TestChatHandlersSendMessageDerivesSenderFromRole(t *testing.T) {
	var captured services.SendMessageCommand
	service := &stubChatService{
		sendFunc: func(ctx context.Context, cmd services.SendMessageCommand) (services.Chat, error) {
			captured = cmd
			return services.Chat{ID: cmd.ChatID, Active: true}, nil
		},
	}

	rr := serveChats(t, service, http.MethodPost, "/chats/chat_1/messages", `{"content":"How is the appetite today?"}`, "doc_1", auth.RoleDoctor)
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", rr.Code, rr.Body.String())
	}
	if captured.Sender != domain.SenderDoctor {
		t.Fatalf("expected doctor sender, got %q", captured.Sender)
	}
	if captured.ChatID != "chat_1" || captured.Content != "How is the appetite today?" {
		t.Fatalf("unexpected command %+v", captured)
	}

	rr = serveChats(t, service, http.MethodPost, "/chats/chat_1/messages", `{"content":"She ate well."}`, "user-7", auth.RoleUser)
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", rr.Code, rr.Body.String())
	}
	if captured.Sender != domain.SenderUser {
		t.Fatalf("expected user sender, got %q", captured.Sender)
	}
}

func TestChatHandlersSendMessageMapsClosedThread(t *testing.T) {
	service := &stubChatService{
		sendFunc: func(ctx context.Context, cmd services.SendMessageCommand) (services.Chat, error) {
			return services.Chat{}, services.ErrChatInactive
		},
	}

	rr := serveChats(t, service, http.MethodPost, "/chats/chat_1/messages", `{"content":"hello"}`, "user-7", auth.RoleUser)
	if rr.Code != http.StatusConflict {
		t.Fatalf("expected status 409, got %d", rr.Code)
	}
	if code := errorCode(t, rr); code != "chat_inactive" {
		t.Fatalf("unexpected error code %q", code)
	}
}

func TestChatHandlersHistorySerialisesMessages(t *testing.T) {
	sent := time.Date(2025, 3, 17, 10, 15, 0, 0, time.UTC)
	service := &stubChatService{
		historyFunc: func(ctx context.Context, callerID, chatID string) (services.Chat, error) {
			return services.Chat{
				ID:        chatID,
				BookingID: "bkg_1",
				UserID:    "user-7",
				DoctorID:  "doc_1",
				Active:    true,
				Messages: []services.ChatMessage{
					{ID: "msg_1", SenderID: "doc_1", Sender: domain.SenderDoctor, Content: "How is the appetite today?", SentAt: sent},
				},
				LastMessage: sent,
			}, nil
		},
	}

	rr := serveChats(t, service, http.MethodGet, "/chats/chat_1", "", "user-7", auth.RoleUser)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}

	var resp chatResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(resp.Chat.Messages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(resp.Chat.Messages))
	}
	message := resp.Chat.Messages[0]
	if message.Sender != string(domain.SenderDoctor) || message.Content != "How is the appetite today?" {
		t.Fatalf("unexpected message %+v", message)
	}
	if message.SentAt != "2025-03-17T10:15:00Z" {
		t.Fatalf("unexpected sent_at %q", message.SentAt)
	}
	if resp.Chat.LastMessage != "2025-03-17T10:15:00Z" {
		t.Fatalf("unexpected last_message_at %q", resp.Chat.LastMessage)
	}
}

func TestChatHandlersHistoryMapsStranger(t *testing.T) {
	service := &stubChatService{
		historyFunc: func(ctx context.Context, callerID, chatID string) (services.Chat, error) {
			return services.Chat{}, services.ErrChatUnauthorized
		},
	}

	rr := serveChats(t, service, http.MethodGet, "/chats/chat_1", "", "user-9", auth.RoleUser)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected status 403, got %d", rr.Code)
	}
}

func TestChatHandlersList(t *testing.T) {
	service := &stubChatService{
		listFunc: func(ctx context.Context, participantID string) ([]services.Chat, error) {
			if participantID != "user-7" {
				t.Fatalf("unexpected participant %q", participantID)
			}
			return []services.Chat{{ID: "chat_1"}, {ID: "chat_2"}}, nil
		},
	}

	rr := serveChats(t, service, http.MethodGet, "/chats", "", "user-7", auth.RoleUser)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}

	var resp chatListResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(resp.Chats) != 2 {
		t.Fatalf("expected 2 chats, got %d", len(resp.Chats))
	}
}

func TestChatHandlersMarkRead(t *testing.T) {
	service := &stubChatService{
		markReadFunc: func(ctx context.Context, callerID, chatID string) (services.Chat, error) {
			return services.Chat{ID: chatID}, nil
		},
	}

	rr := serveChats(t, service, http.MethodPatch, "/chats/chat_1/read", "", "user-7", auth.RoleUser)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
}

func serveChats(t *testing.T, service services.ChatService, method, target, body, uid, role string) *httptest.ResponseRecorder {
	t.Helper()

	handler := NewChatHandlers(service)
	router := chi.NewRouter()
	router.Route("/chats", handler.Routes)

	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if uid != "" {
		req = req.WithContext(auth.WithIdentity(req.Context(), &auth.Identity{UID: uid, Role: role}))
	}

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

type stubChatService struct {
	initializeFunc func(ctx context.Context, cmd services.InitializeChatCommand) (services.Chat, error)
	sendFunc       func(ctx context.Context, cmd services.SendMessageCommand) (services.Chat, error)
	historyFunc    func(ctx context.Context, callerID, chatID string) (services.Chat, error)
	listFunc       func(ctx context.Context, participantID string) ([]services.Chat, error)
	markReadFunc   func(ctx context.Context, callerID, chatID string) (services.Chat, error)
}

func (s *stubChatService) Initialize(ctx context.Context, cmd services.InitializeChatCommand) (services.Chat, error) {
	if s.initializeFunc != nil {
		return s.initializeFunc(ctx, cmd)
	}
	return services.Chat{}, errors.New("not implemented")
}

func (s *stubChatService) SendMessage(ctx context.Context, cmd services.SendMessageCommand) (services.Chat, error) {
	if s.sendFunc != nil {
		return s.sendFunc(ctx, cmd)
	}
	return services.Chat{}, errors.New("not implemented")
}

func (s *stubChatService) History(ctx context.Context, callerID, chatID string) (services.Chat, error) {
	if s.historyFunc != nil {
		return s.historyFunc(ctx, callerID, chatID)
	}
	return services.Chat{}, errors.New("not implemented")
}

func (s *stubChatService) ListChats(ctx context.Context, participantID string) ([]services.Chat, error) {
	if s.listFunc != nil {
		return s.listFunc(ctx, participantID)
	}
	return nil, errors.New("not implemented")
}

func (s *stubChatService) MarkRead(ctx context.Context, callerID, chatID string) (services.Chat, error) {
	if s.markReadFunc != nil {
		return s.markReadFunc(ctx, callerID, chatID)
	}
	return services.Chat{}, errors.New("not implemented")
}
