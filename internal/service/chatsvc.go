package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"legalchat/internal/assistant"
	"legalchat/internal/domain"
)

type ConversationsStore interface {
	CreateConversation(ctx context.Context, userID, name string) (domain.Conversation, error)
	GetConversation(ctx context.Context, id, userID string) (domain.Conversation, error)
	ListConversations(ctx context.Context, userID string) ([]domain.Conversation, error)
	SetRemoteID(ctx context.Context, id, remoteID string) error
	RenameConversation(ctx context.Context, id, userID, name string, when time.Time) (domain.Conversation, error)
	TouchConversation(ctx context.Context, id string, when time.Time) error
	DeleteConversation(ctx context.Context, id, userID string) error
}

type MessagesStore interface {
	CreateMessage(ctx context.Context, conversationID, remoteID, query, answer string) (domain.Message, error)
	ListMessages(ctx context.Context, conversationID string) ([]domain.Message, error)
}

type AssistantClient interface {
	SendMessage(ctx context.Context, query, userID, conversationID string) (assistant.ChatResult, error)
	RenameConversation(ctx context.Context, conversationID, userID, name string) error
	DeleteConversation(ctx context.Context, conversationID, userID string) error
}

const newConversationName = "New Chat"

// autoRenameLimit is how much of the first message becomes the
// conversation name.
const autoRenameLimit = 30

// ChatService owns local conversation state and relays chat turns to the
// upstream assistant. The upstream conversation id is created lazily on the
// first message; local state is authoritative for everything else.
type ChatService struct {
	Conversations ConversationsStore
	Messages      MessagesStore
	Assistant     AssistantClient
	Logger        *slog.Logger
	Now           func() time.Time
}

func (s *ChatService) NewConversation(ctx context.Context, userID string) (domain.Conversation, error) {
	return s.Conversations.CreateConversation(ctx, userID, newConversationName)
}

type ChatTurn struct {
	Conversation domain.Conversation
	Message      domain.Message
}

// SendMessage relays one turn. With an empty conversationID a local
// conversation is created first; the upstream id is captured from the
// first response.
func (s *ChatService) SendMessage(ctx context.Context, user domain.User, conversationID, text string) (ChatTurn, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return ChatTurn{}, domain.NewValidationError(map[string]string{"message": "required"})
	}

	var (
		conv domain.Conversation
		err  error
	)
	if conversationID == "" {
		conv, err = s.Conversations.CreateConversation(ctx, user.ID, newConversationName)
	} else {
		conv, err = s.Conversations.GetConversation(ctx, conversationID, user.ID)
	}
	if err != nil {
		return ChatTurn{}, err
	}

	result, err := s.Assistant.SendMessage(ctx, text, user.Username, conv.RemoteID)
	if err != nil {
		return ChatTurn{}, fmt.Errorf("%w: %v", domain.ErrUpstreamUnavailable, err)
	}

	if conv.RemoteID == "" {
		if err := s.Conversations.SetRemoteID(ctx, conv.ID, result.ConversationID); err != nil {
			return ChatTurn{}, err
		}
		conv.RemoteID = result.ConversationID
	}

	msg, err := s.Messages.CreateMessage(ctx, conv.ID, result.MessageID, text, result.Answer)
	if err != nil {
		return ChatTurn{}, err
	}

	if conv.Name == newConversationName {
		conv, err = s.Conversations.RenameConversation(ctx, conv.ID, user.ID, truncateName(text), msg.CreatedAt)
		if err != nil {
			return ChatTurn{}, err
		}
	} else {
		if err := s.Conversations.TouchConversation(ctx, conv.ID, msg.CreatedAt); err != nil {
			return ChatTurn{}, err
		}
		conv.UpdatedAt = msg.CreatedAt
	}

	return ChatTurn{Conversation: conv, Message: msg}, nil
}

func (s *ChatService) ListConversations(ctx context.Context, userID string) ([]domain.Conversation, error) {
	return s.Conversations.ListConversations(ctx, userID)
}

func (s *ChatService) History(ctx context.Context, userID, conversationID string) (domain.Conversation, []domain.Message, error) {
	conv, err := s.Conversations.GetConversation(ctx, conversationID, userID)
	if err != nil {
		return domain.Conversation{}, nil, err
	}
	msgs, err := s.Messages.ListMessages(ctx, conv.ID)
	if err != nil {
		return domain.Conversation{}, nil, err
	}
	return conv, msgs, nil
}

// Rename updates the local name; the upstream rename is best-effort and a
// failure only logs.
func (s *ChatService) Rename(ctx context.Context, user domain.User, conversationID, name string) (domain.Conversation, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return domain.Conversation{}, domain.NewValidationError(map[string]string{"name": "required"})
	}

	conv, err := s.Conversations.GetConversation(ctx, conversationID, user.ID)
	if err != nil {
		return domain.Conversation{}, err
	}

	if conv.RemoteID != "" {
		if err := s.Assistant.RenameConversation(ctx, conv.RemoteID, user.Username, name); err != nil {
			s.logger().Warn("upstream rename failed", "conversation_id", conv.ID, "err", err)
		}
	}

	return s.Conversations.RenameConversation(ctx, conv.ID, user.ID, name, s.now())
}

// Delete removes the conversation locally; the upstream delete is
// best-effort and a failure only logs.
func (s *ChatService) Delete(ctx context.Context, user domain.User, conversationID string) error {
	conv, err := s.Conversations.GetConversation(ctx, conversationID, user.ID)
	if err != nil {
		return err
	}

	if conv.RemoteID != "" {
		if err := s.Assistant.DeleteConversation(ctx, conv.RemoteID, user.Username); err != nil {
			s.logger().Warn("upstream delete failed", "conversation_id", conv.ID, "err", err)
		}
	}

	return s.Conversations.DeleteConversation(ctx, conv.ID, user.ID)
}

func (s *ChatService) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}

func (s *ChatService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now().UTC()
}

func truncateName(text string) string {
	runes := []rune(text)
	if len(runes) <= autoRenameLimit {
		return text
	}
	return string(runes[:autoRenameLimit]) + "..."
}
