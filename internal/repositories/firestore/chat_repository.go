package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/pawmart/api/internal/domain"
	pfirestore "github.com/pawmart/api/internal/platform/firestore"
	"github.com/pawmart/api/internal/repositories"
)

const chatCollection = "chats"

// ChatRepository persists consultation chats within Firestore.
type ChatRepository struct {
	base *pfirestore.BaseRepository[chatDocument]
}

// NewChatRepository constructs a Firestore-backed chat repository.
func NewChatRepository(provider *pfirestore.Provider) (*ChatRepository, error) {
	if provider == nil {
		return nil, errors.New("chat repository requires firestore provider")
	}
	return &ChatRepository{
		base: pfirestore.NewBaseRepository[chatDocument](provider, chatCollection, nil, nil),
	}, nil
}

// Insert writes a new chat document. A second chat for the same booking
// surfaces as a conflict through the booking-keyed lookup done by the
// service before insert.
func (r *ChatRepository) Insert(ctx context.Context, chat domain.Chat) error {
	chatID := strings.TrimSpace(chat.ID)
	if chatID == "" {
		return errors.New("chat repository: chat id is required")
	}
	_, err := r.base.Create(ctx, chatID, chatToDocument(chat))
	return err
}

// FindByID loads a single chat.
func (r *ChatRepository) FindByID(ctx context.Context, chatID string) (domain.Chat, error) {
	doc, err := r.base.Get(ctx, strings.TrimSpace(chatID))
	if err != nil {
		return domain.Chat{}, err
	}
	return chatFromDocument(doc.ID, doc.Data), nil
}

// FindByBooking returns the chat attached to the booking.
func (r *ChatRepository) FindByBooking(ctx context.Context, bookingID string) (domain.Chat, error) {
	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("bookingId", "==", strings.TrimSpace(bookingID)).Limit(1)
	})
	if err != nil {
		return domain.Chat{}, err
	}
	if len(docs) == 0 {
		return domain.Chat{}, pfirestore.NotFound("chats.find_by_booking", "chat not found")
	}
	return chatFromDocument(docs[0].ID, docs[0].Data), nil
}

// ListByParticipant returns chats where the id matches either side,
// most recently active first.
func (r *ChatRepository) ListByParticipant(ctx context.Context, participantID string) ([]domain.Chat, error) {
	participantID = strings.TrimSpace(participantID)

	seen := make(map[string]bool)
	var chats []domain.Chat
	for _, field := range []string{"userId", "doctorId"} {
		field := field
		docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
			return q.Where(field, "==", participantID).OrderBy("lastMessage", firestore.Desc)
		})
		if err != nil {
			return nil, err
		}
		for _, doc := range docs {
			if seen[doc.ID] {
				continue
			}
			seen[doc.ID] = true
			chats = append(chats, chatFromDocument(doc.ID, doc.Data))
		}
	}
	return chats, nil
}

// Update rewrites the chat document.
func (r *ChatRepository) Update(ctx context.Context, chat domain.Chat) error {
	chatID := strings.TrimSpace(chat.ID)
	if chatID == "" {
		return errors.New("chat repository: chat id is required")
	}
	_, err := r.base.Set(ctx, chatID, chatToDocument(chat))
	return err
}

func chatToDocument(chat domain.Chat) chatDocument {
	doc := chatDocument{
		BookingID:   chat.BookingID,
		UserID:      chat.UserID,
		DoctorID:    chat.DoctorID,
		LastMessage: chat.LastMessage.UTC(),
		Active:      chat.Active,
		CreatedAt:   chat.CreatedAt.UTC(),
		UpdatedAt:   chat.UpdatedAt.UTC(),
	}
	for _, message := range chat.Messages {
		doc.Messages = append(doc.Messages, chatMessageDocument{
			ID:       message.ID,
			SenderID: message.SenderID,
			Sender:   string(message.Sender),
			Content:  message.Content,
			Read:     message.Read,
			SentAt:   message.SentAt.UTC(),
		})
	}
	return doc
}

func chatFromDocument(id string, doc chatDocument) domain.Chat {
	chat := domain.Chat{
		ID:          id,
		BookingID:   doc.BookingID,
		UserID:      doc.UserID,
		DoctorID:    doc.DoctorID,
		LastMessage: doc.LastMessage,
		Active:      doc.Active,
		CreatedAt:   doc.CreatedAt,
		UpdatedAt:   doc.UpdatedAt,
	}
	for _, message := range doc.Messages {
		chat.Messages = append(chat.Messages, domain.ChatMessage{
			ID:       message.ID,
			SenderID: message.SenderID,
			Sender:   domain.SenderKind(message.Sender),
			Content:  message.Content,
			Read:     message.Read,
			SentAt:   message.SentAt,
		})
	}
	return chat
}

type chatDocument struct {
	BookingID   string                `firestore:"bookingId"`
	UserID      string                `firestore:"userId"`
	DoctorID    string                `firestore:"doctorId"`
	Messages    []chatMessageDocument `firestore:"messages,omitempty"`
	LastMessage time.Time             `firestore:"lastMessage"`
	Active      bool                  `firestore:"active"`
	CreatedAt   time.Time             `firestore:"createdAt"`
	UpdatedAt   time.Time             `firestore:"updatedAt"`
}

type chatMessageDocument struct {
	ID       string    `firestore:"id"`
	SenderID string    `firestore:"senderId"`
	Sender   string    `firestore:"sender"`
	Content  string    `firestore:"content"`
	Read     bool      `firestore:"readStatus"`
	SentAt   time.Time `firestore:"sentAt"`
}

var _ repositories.ChatRepository = (*ChatRepository)(nil)
