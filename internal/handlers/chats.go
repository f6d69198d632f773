package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	domain "github.com/pawmart/api/internal/domain"
	"github.com/pawmart/api/internal/platform/auth"
	"github.com/pawmart/api/internal/platform/httpx"
	"github.com/pawmart/api/internal/services"
)

// ChatHandlers exposes the consultation chat endpoints. Both pet owners
// and doctors use the same surface; the sender side is derived from the
// caller's role.
type ChatHandlers struct {
	chats services.ChatService
}

// NewChatHandlers constructs handlers backed by the chat service.
func NewChatHandlers(chats services.ChatService) *ChatHandlers {
	return &ChatHandlers{chats: chats}
}

// Routes wires the /chats endpoints onto the provided router.
func (h *ChatHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/", h.initialize)
	r.Get("/", h.list)
	r.Get("/{chatID}", h.history)
	r.Post("/{chatID}/messages", h.sendMessage)
	r.Patch("/{chatID}/read", h.markRead)
}

func (h *ChatHandlers) initialize(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := callerIdentity(ctx, w)
	if !ok {
		return
	}

	var req initializeChatRequest
	if err := decodeBody(r, &req); err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	chat, err := h.chats.Initialize(ctx, services.InitializeChatCommand{
		CallerID:  identity.UID,
		BookingID: strings.TrimSpace(req.BookingID),
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, chatResponse{Chat: buildChatPayload(chat)})
}

func (h *ChatHandlers) list(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := callerIdentity(ctx, w)
	if !ok {
		return
	}

	chats, err := h.chats.ListChats(ctx, identity.UID)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}

	payload := make([]chatPayload, 0, len(chats))
	for _, chat := range chats {
		payload = append(payload, buildChatPayload(chat))
	}
	httpx.WriteJSON(w, http.StatusOK, chatListResponse{Chats: payload})
}

func (h *ChatHandlers) history(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := callerIdentity(ctx, w)
	if !ok {
		return
	}

	chat, err := h.chats.History(ctx, identity.UID, chi.URLParam(r, "chatID"))
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, chatResponse{Chat: buildChatPayload(chat)})
}

func (h *ChatHandlers) sendMessage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := callerIdentity(ctx, w)
	if !ok {
		return
	}

	var req sendMessageRequest
	if err := decodeBody(r, &req); err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	sender := domain.SenderUser
	if identity.HasRole(auth.RoleDoctor) {
		sender = domain.SenderDoctor
	}

	chat, err := h.chats.SendMessage(ctx, services.SendMessageCommand{
		CallerID: identity.UID,
		Sender:   sender,
		ChatID:   chi.URLParam(r, "chatID"),
		Content:  req.Content,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, chatResponse{Chat: buildChatPayload(chat)})
}

func (h *ChatHandlers) markRead(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := callerIdentity(ctx, w)
	if !ok {
		return
	}

	chat, err := h.chats.MarkRead(ctx, identity.UID, chi.URLParam(r, "chatID"))
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, chatResponse{Chat: buildChatPayload(chat)})
}

type initializeChatRequest struct {
	BookingID string `json:"booking_id"`
}

type sendMessageRequest struct {
	Content string `json:"content"`
}

type chatResponse struct {
	Chat chatPayload `json:"chat"`
}

type chatListResponse struct {
	Chats []chatPayload `json:"chats"`
}

type chatPayload struct {
	ID          string               `json:"id"`
	BookingID   string               `json:"booking_id"`
	UserID      string               `json:"user_id"`
	DoctorID    string               `json:"doctor_id"`
	Active      bool                 `json:"active"`
	Messages    []chatMessagePayload `json:"messages"`
	LastMessage string               `json:"last_message_at,omitempty"`
	CreatedAt   string               `json:"created_at,omitempty"`
	UpdatedAt   string               `json:"updated_at,omitempty"`
}

type chatMessagePayload struct {
	ID       string `json:"id"`
	SenderID string `json:"sender_id"`
	Sender   string `json:"sender"`
	Content  string `json:"content"`
	Read     bool   `json:"read"`
	SentAt   string `json:"sent_at,omitempty"`
}

func buildChatPayload(chat services.Chat) chatPayload {
	payload := chatPayload{
		ID:        chat.ID,
		BookingID: chat.BookingID,
		UserID:    chat.UserID,
		DoctorID:  chat.DoctorID,
		Active:    chat.Active,
		Messages:  make([]chatMessagePayload, 0, len(chat.Messages)),
	}
	for _, message := range chat.Messages {
		entry := chatMessagePayload{
			ID:       message.ID,
			SenderID: message.SenderID,
			Sender:   string(message.Sender),
			Content:  message.Content,
			Read:     message.Read,
		}
		if !message.SentAt.IsZero() {
			entry.SentAt = message.SentAt.UTC().Format(timeFormat)
		}
		payload.Messages = append(payload.Messages, entry)
	}
	if !chat.LastMessage.IsZero() {
		payload.LastMessage = chat.LastMessage.UTC().Format(timeFormat)
	}
	if !chat.CreatedAt.IsZero() {
		payload.CreatedAt = chat.CreatedAt.UTC().Format(timeFormat)
	}
	if !chat.UpdatedAt.IsZero() {
		payload.UpdatedAt = chat.UpdatedAt.UTC().Format(timeFormat)
	}
	return payload
}
