package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"legalchat/internal/assistant"
	"legalchat/internal/domain"
)

type stubConversationsStore struct {
	t *testing.T

	createConversationFunc func(context.Context, string, string) (domain.Conversation, error)
	getConversationFunc    func(context.Context, string, string) (domain.Conversation, error)
	listConversationsFunc  func(context.Context, string) ([]domain.Conversation, error)
	setRemoteIDFunc        func(context.Context, string, string) error
	renameConversationFunc func(context.Context, string, string, string, time.Time) (domain.Conversation, error)
	touchConversationFunc  func(context.Context, string, time.Time) error
	deleteConversationFunc func(context.Context, string, string) error
}

func (s *stubConversationsStore) CreateConversation(ctx context.Context, userID, name string) (domain.Conversation, error) {
	if s.createConversationFunc != nil {
		return s.createConversationFunc(ctx, userID, name)
	}
	s.t.Fatalf("CreateConversation called unexpectedly")
	return domain.Conversation{}, errors.New("unexpected call")
}

func (s *stubConversationsStore) GetConversation(ctx context.Context, id, userID string) (domain.Conversation, error) {
	if s.getConversationFunc != nil {
		return s.getConversationFunc(ctx, id, userID)
	}
	s.t.Fatalf("GetConversation called unexpectedly")
	return domain.Conversation{}, errors.New("unexpected call")
}

func (s *stubConversationsStore) ListConversations(ctx context.Context, userID string) ([]domain.Conversation, error) {
	if s.listConversationsFunc != nil {
		return s.listConversationsFunc(ctx, userID)
	}
	s.t.Fatalf("ListConversations called unexpectedly")
	return nil, errors.New("unexpected call")
}

func (s *stubConversationsStore) SetRemoteID(ctx context.Context, id, remoteID string) error {
	if s.setRemoteIDFunc != nil {
		return s.setRemoteIDFunc(ctx, id, remoteID)
	}
	s.t.Fatalf("SetRemoteID called unexpectedly")
	return errors.New("unexpected call")
}

func (s *stubConversationsStore) RenameConversation(ctx context.Context, id, userID, name string, when time.Time) (domain.Conversation, error) {
	if s.renameConversationFunc != nil {
		return s.renameConversationFunc(ctx, id, userID, name, when)
	}
	s.t.Fatalf("RenameConversation called unexpectedly")
	return domain.Conversation{}, errors.New("unexpected call")
}

func (s *stubConversationsStore) TouchConversation(ctx context.Context, id string, when time.Time) error {
	if s.touchConversationFunc != nil {
		return s.touchConversationFunc(ctx, id, when)
	}
	s.t.Fatalf("TouchConversation called unexpectedly")
	return errors.New("unexpected call")
}

func (s *stubConversationsStore) DeleteConversation(ctx context.Context, id, userID string) error {
	if s.deleteConversationFunc != nil {
		return s.deleteConversationFunc(ctx, id, userID)
	}
	s.t.Fatalf("DeleteConversation called unexpectedly")
	return errors.New("unexpected call")
}

type stubMessagesStore struct {
	t *testing.T

	createMessageFunc func(context.Context, string, string, string, string) (domain.Message, error)
	listMessagesFunc  func(context.Context, string) ([]domain.Message, error)
}

func (s *stubMessagesStore) CreateMessage(ctx context.Context, conversationID, remoteID, query, answer string) (domain.Message, error) {
	if s.createMessageFunc != nil {
		return s.createMessageFunc(ctx, conversationID, remoteID, query, answer)
	}
	s.t.Fatalf("CreateMessage called unexpectedly")
	return domain.Message{}, errors.New("unexpected call")
}

func (s *stubMessagesStore) ListMessages(ctx context.Context, conversationID string) ([]domain.Message, error) {
	if s.listMessagesFunc != nil {
		return s.listMessagesFunc(ctx, conversationID)
	}
	s.t.Fatalf("ListMessages called unexpectedly")
	return nil, errors.New("unexpected call")
}

type stubAssistant struct {
	t *testing.T

	sendMessageFunc        func(context.Context, string, string, string) (assistant.ChatResult, error)
	renameConversationFunc func(context.Context, string, string, string) error
	deleteConversationFunc func(context.Context, string, string) error
}

func (s *stubAssistant) SendMessage(ctx context.Context, query, userID, conversationID string) (assistant.ChatResult, error) {
	if s.sendMessageFunc != nil {
		return s.sendMessageFunc(ctx, query, userID, conversationID)
	}
	s.t.Fatalf("SendMessage called unexpectedly")
	return assistant.ChatResult{}, errors.New("unexpected call")
}

func (s *stubAssistant) RenameConversation(ctx context.Context, conversationID, userID, name string) error {
	if s.renameConversationFunc != nil {
		return s.renameConversationFunc(ctx, conversationID, userID, name)
	}
	s.t.Fatalf("RenameConversation called unexpectedly")
	return errors.New("unexpected call")
}

func (s *stubAssistant) DeleteConversation(ctx context.Context, conversationID, userID string) error {
	if s.deleteConversationFunc != nil {
		return s.deleteConversationFunc(ctx, conversationID, userID)
	}
	s.t.Fatalf("DeleteConversation called unexpectedly")
	return errors.New("unexpected call")
}

func chatUser() domain.User {
	return domain.User{ID: "user-1", Email: "alice@example.com", Username: "alice", Active: true}
}

func TestChatServiceSendMessageFirstTurn(t *testing.T) {
	now := time.Date(2025, 4, 1, 12, 0, 0, 0, time.UTC)

	remoteIDSet := false
	convs := &stubConversationsStore{
		t: t,
		createConversationFunc: func(_ context.Context, userID, name string) (domain.Conversation, error) {
			if userID != "user-1" || name != "New Chat" {
				t.Fatalf("unexpected create args: %s %s", userID, name)
			}
			return domain.Conversation{ID: "conv-1", UserID: userID, Name: name}, nil
		},
		setRemoteIDFunc: func(_ context.Context, id, remoteID string) error {
			if id != "conv-1" || remoteID != "remote-1" {
				t.Fatalf("unexpected remote id args: %s %s", id, remoteID)
			}
			remoteIDSet = true
			return nil
		},
		renameConversationFunc: func(_ context.Context, id, userID, name string, when time.Time) (domain.Conversation, error) {
			if name != "What are my tenant rights?" {
				t.Fatalf("unexpected auto-rename: %q", name)
			}
			return domain.Conversation{ID: id, UserID: userID, Name: name, RemoteID: "remote-1", UpdatedAt: when}, nil
		},
	}
	msgs := &stubMessagesStore{
		t: t,
		createMessageFunc: func(_ context.Context, conversationID, remoteID, query, answer string) (domain.Message, error) {
			if conversationID != "conv-1" || remoteID != "msg-remote-1" {
				t.Fatalf("unexpected message args: %s %s", conversationID, remoteID)
			}
			if query != "What are my tenant rights?" || answer != "You have several protections." {
				t.Fatalf("unexpected message body: %q %q", query, answer)
			}
			return domain.Message{ID: "msg-1", ConversationID: conversationID, Query: query, Answer: answer, CreatedAt: now}, nil
		},
	}
	ai := &stubAssistant{
		t: t,
		sendMessageFunc: func(_ context.Context, query, userID, conversationID string) (assistant.ChatResult, error) {
			if userID != "alice" {
				t.Fatalf("unexpected upstream user: %s", userID)
			}
			if conversationID != "" {
				t.Fatalf("first turn must not carry an upstream conversation id")
			}
			return assistant.ChatResult{ConversationID: "remote-1", MessageID: "msg-remote-1", Answer: "You have several protections."}, nil
		},
	}

	svc := &ChatService{Conversations: convs, Messages: msgs, Assistant: ai}

	turn, err := svc.SendMessage(context.Background(), chatUser(), "", "What are my tenant rights?")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !remoteIDSet {
		t.Fatalf("upstream conversation id was not captured")
	}
	if turn.Conversation.Name != "What are my tenant rights?" {
		t.Fatalf("unexpected conversation name: %q", turn.Conversation.Name)
	}
	if turn.Message.ID != "msg-1" {
		t.Fatalf("unexpected message: %+v", turn.Message)
	}
}

func TestChatServiceSendMessageExistingConversation(t *testing.T) {
	now := time.Date(2025, 4, 1, 12, 0, 0, 0, time.UTC)

	touched := false
	convs := &stubConversationsStore{
		t: t,
		getConversationFunc: func(_ context.Context, id, userID string) (domain.Conversation, error) {
			if id != "conv-1" || userID != "user-1" {
				t.Fatalf("unexpected lookup: %s %s", id, userID)
			}
			return domain.Conversation{ID: id, UserID: userID, Name: "Tenant rights", RemoteID: "remote-1"}, nil
		},
		touchConversationFunc: func(_ context.Context, id string, when time.Time) error {
			touched = true
			return nil
		},
	}
	msgs := &stubMessagesStore{
		t: t,
		createMessageFunc: func(_ context.Context, conversationID, remoteID, query, answer string) (domain.Message, error) {
			return domain.Message{ID: "msg-2", ConversationID: conversationID, CreatedAt: now}, nil
		},
	}
	ai := &stubAssistant{
		t: t,
		sendMessageFunc: func(_ context.Context, _, _, conversationID string) (assistant.ChatResult, error) {
			if conversationID != "remote-1" {
				t.Fatalf("follow-up must carry the upstream conversation id, got %q", conversationID)
			}
			return assistant.ChatResult{ConversationID: "remote-1", MessageID: "msg-remote-2", Answer: "More detail."}, nil
		},
	}

	svc := &ChatService{Conversations: convs, Messages: msgs, Assistant: ai}

	turn, err := svc.SendMessage(context.Background(), chatUser(), "conv-1", "Tell me more")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !touched {
		t.Fatalf("conversation was not touched")
	}
	if turn.Conversation.Name != "Tenant rights" {
		t.Fatalf("named conversation must not be auto-renamed: %q", turn.Conversation.Name)
	}
	if !turn.Conversation.UpdatedAt.Equal(now) {
		t.Fatalf("unexpected updated at: %s", turn.Conversation.UpdatedAt)
	}
}

func TestChatServiceSendMessageTruncatesLongName(t *testing.T) {
	long := strings.Repeat("a", 40)

	convs := &stubConversationsStore{
		t: t,
		createConversationFunc: func(_ context.Context, userID, name string) (domain.Conversation, error) {
			return domain.Conversation{ID: "conv-1", UserID: userID, Name: name}, nil
		},
		setRemoteIDFunc: func(_ context.Context, _, _ string) error { return nil },
		renameConversationFunc: func(_ context.Context, id, userID, name string, when time.Time) (domain.Conversation, error) {
			if name != strings.Repeat("a", 30)+"..." {
				t.Fatalf("unexpected truncated name: %q", name)
			}
			return domain.Conversation{ID: id, Name: name}, nil
		},
	}
	msgs := &stubMessagesStore{
		t: t,
		createMessageFunc: func(_ context.Context, conversationID, _, _, _ string) (domain.Message, error) {
			return domain.Message{ID: "msg-1", ConversationID: conversationID}, nil
		},
	}
	ai := &stubAssistant{
		t: t,
		sendMessageFunc: func(_ context.Context, _, _, _ string) (assistant.ChatResult, error) {
			return assistant.ChatResult{ConversationID: "remote-1", MessageID: "m", Answer: "ok"}, nil
		},
	}

	svc := &ChatService{Conversations: convs, Messages: msgs, Assistant: ai}

	if _, err := svc.SendMessage(context.Background(), chatUser(), "", long); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestChatServiceSendMessageUpstreamDown(t *testing.T) {
	convs := &stubConversationsStore{
		t: t,
		getConversationFunc: func(_ context.Context, id, userID string) (domain.Conversation, error) {
			return domain.Conversation{ID: id, UserID: userID, Name: "Tenant rights", RemoteID: "remote-1"}, nil
		},
	}
	ai := &stubAssistant{
		t: t,
		sendMessageFunc: func(_ context.Context, _, _, _ string) (assistant.ChatResult, error) {
			return assistant.ChatResult{}, errors.New("connection refused")
		},
	}

	svc := &ChatService{Conversations: convs, Messages: &stubMessagesStore{t: t}, Assistant: ai}

	_, err := svc.SendMessage(context.Background(), chatUser(), "conv-1", "hello")
	if !errors.Is(err, domain.ErrUpstreamUnavailable) {
		t.Fatalf("expected upstream unavailable, got %v", err)
	}
}

func TestChatServiceSendMessageEmptyText(t *testing.T) {
	svc := &ChatService{
		Conversations: &stubConversationsStore{t: t},
		Messages:      &stubMessagesStore{t: t},
		Assistant:     &stubAssistant{t: t},
	}

	_, err := svc.SendMessage(context.Background(), chatUser(), "conv-1", "   ")
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestChatServiceSendMessageForeignConversation(t *testing.T) {
	convs := &stubConversationsStore{
		t: t,
		getConversationFunc: func(_ context.Context, _, _ string) (domain.Conversation, error) {
			return domain.Conversation{}, domain.ErrNotFound
		},
	}
	svc := &ChatService{Conversations: convs, Messages: &stubMessagesStore{t: t}, Assistant: &stubAssistant{t: t}}

	_, err := svc.SendMessage(context.Background(), chatUser(), "someone-elses", "hello")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestChatServiceRenameUpstreamFailureIsBestEffort(t *testing.T) {
	now := time.Date(2025, 4, 1, 12, 0, 0, 0, time.UTC)

	convs := &stubConversationsStore{
		t: t,
		getConversationFunc: func(_ context.Context, id, userID string) (domain.Conversation, error) {
			return domain.Conversation{ID: id, UserID: userID, Name: "Old name", RemoteID: "remote-1"}, nil
		},
		renameConversationFunc: func(_ context.Context, id, userID, name string, when time.Time) (domain.Conversation, error) {
			if name != "New name" {
				t.Fatalf("unexpected name: %q", name)
			}
			return domain.Conversation{ID: id, Name: name, UpdatedAt: when}, nil
		},
	}
	ai := &stubAssistant{
		t: t,
		renameConversationFunc: func(_ context.Context, conversationID, userID, name string) error {
			if conversationID != "remote-1" {
				t.Fatalf("unexpected upstream id: %s", conversationID)
			}
			return errors.New("upstream down")
		},
	}

	svc := &ChatService{
		Conversations: convs,
		Messages:      &stubMessagesStore{t: t},
		Assistant:     ai,
		Now:           func() time.Time { return now },
	}

	conv, err := svc.Rename(context.Background(), chatUser(), "conv-1", "New name")
	if err != nil {
		t.Fatalf("local rename must win even when upstream fails: %v", err)
	}
	if conv.Name != "New name" {
		t.Fatalf("unexpected conversation: %+v", conv)
	}
}

func TestChatServiceRenameSkipsUpstreamWithoutRemoteID(t *testing.T) {
	convs := &stubConversationsStore{
		t: t,
		getConversationFunc: func(_ context.Context, id, userID string) (domain.Conversation, error) {
			return domain.Conversation{ID: id, UserID: userID, Name: "New Chat"}, nil
		},
		renameConversationFunc: func(_ context.Context, id, _, name string, _ time.Time) (domain.Conversation, error) {
			return domain.Conversation{ID: id, Name: name}, nil
		},
	}
	// No remote id yet, so the assistant stub must not be called.
	svc := &ChatService{Conversations: convs, Messages: &stubMessagesStore{t: t}, Assistant: &stubAssistant{t: t}}

	if _, err := svc.Rename(context.Background(), chatUser(), "conv-1", "Named"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestChatServiceDelete(t *testing.T) {
	upstreamDeleted := false
	localDeleted := false
	convs := &stubConversationsStore{
		t: t,
		getConversationFunc: func(_ context.Context, id, userID string) (domain.Conversation, error) {
			return domain.Conversation{ID: id, UserID: userID, RemoteID: "remote-1"}, nil
		},
		deleteConversationFunc: func(_ context.Context, id, userID string) error {
			if id != "conv-1" || userID != "user-1" {
				t.Fatalf("unexpected delete args: %s %s", id, userID)
			}
			localDeleted = true
			return nil
		},
	}
	ai := &stubAssistant{
		t: t,
		deleteConversationFunc: func(_ context.Context, conversationID, userID string) error {
			if conversationID != "remote-1" || userID != "alice" {
				t.Fatalf("unexpected upstream delete args: %s %s", conversationID, userID)
			}
			upstreamDeleted = true
			return nil
		},
	}

	svc := &ChatService{Conversations: convs, Messages: &stubMessagesStore{t: t}, Assistant: ai}

	if err := svc.Delete(context.Background(), chatUser(), "conv-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !upstreamDeleted || !localDeleted {
		t.Fatalf("upstream=%v local=%v", upstreamDeleted, localDeleted)
	}
}

func TestChatServiceHistory(t *testing.T) {
	convs := &stubConversationsStore{
		t: t,
		getConversationFunc: func(_ context.Context, id, userID string) (domain.Conversation, error) {
			return domain.Conversation{ID: id, UserID: userID, Name: "Tenant rights"}, nil
		},
	}
	msgs := &stubMessagesStore{
		t: t,
		listMessagesFunc: func(_ context.Context, conversationID string) ([]domain.Message, error) {
			return []domain.Message{{ID: "msg-1", ConversationID: conversationID}}, nil
		},
	}
	svc := &ChatService{Conversations: convs, Messages: msgs, Assistant: &stubAssistant{t: t}}

	conv, history, err := svc.History(context.Background(), "user-1", "conv-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if conv.ID != "conv-1" || len(history) != 1 {
		t.Fatalf("unexpected history: %+v %v", conv, history)
	}
}
