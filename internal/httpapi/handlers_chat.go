package httpapi

import (
	"net/http"
	"time"

	"legalchat/internal/domain"
)

type conversationResponse struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func newConversationResponse(c domain.Conversation) conversationResponse {
	return conversationResponse{
		ID:        c.ID,
		Name:      c.Name,
		CreatedAt: c.CreatedAt,
		UpdatedAt: c.UpdatedAt,
	}
}

type messageResponse struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	Query          string    `json:"query"`
	Answer         string    `json:"answer"`
	CreatedAt      time.Time `json:"created_at"`
}

func newMessageResponse(m domain.Message) messageResponse {
	return messageResponse{
		ID:             m.ID,
		ConversationID: m.ConversationID,
		Query:          m.Query,
		Answer:         m.Answer,
		CreatedAt:      m.CreatedAt,
	}
}

func (a *api) handleChatConversationCreate(w http.ResponseWriter, r *http.Request) {
	u, ok := CurrentUser(r.Context())
	if !ok {
		WriteDomainError(w, domain.ErrUnauthorized)
		return
	}

	conv, err := a.chatSvc.NewConversation(r.Context(), u.ID)
	if err != nil {
		WriteDomainError(w, err)
		return
	}

	WriteJSON(w, http.StatusCreated, newConversationResponse(conv))
}

func (a *api) handleChatConversationList(w http.ResponseWriter, r *http.Request) {
	u, ok := CurrentUser(r.Context())
	if !ok {
		WriteDomainError(w, domain.ErrUnauthorized)
		return
	}

	convs, err := a.chatSvc.ListConversations(r.Context(), u.ID)
	if err != nil {
		WriteDomainError(w, err)
		return
	}

	out := make([]conversationResponse, 0, len(convs))
	for _, c := range convs {
		out = append(out, newConversationResponse(c))
	}
	WriteJSON(w, http.StatusOK, map[string]any{"conversations": out})
}

func (a *api) handleChatConversationGet(w http.ResponseWriter, r *http.Request) {
	u, ok := CurrentUser(r.Context())
	if !ok {
		WriteDomainError(w, domain.ErrUnauthorized)
		return
	}

	conv, msgs, err := a.chatSvc.History(r.Context(), u.ID, r.PathValue("id"))
	if err != nil {
		WriteDomainError(w, err)
		return
	}

	out := make([]messageResponse, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, newMessageResponse(m))
	}
	WriteJSON(w, http.StatusOK, map[string]any{
		"conversation": newConversationResponse(conv),
		"messages":     out,
	})
}

type renameConversationRequest struct {
	Name string `json:"name"`
}

func (a *api) handleChatConversationRename(w http.ResponseWriter, r *http.Request) {
	u, ok := CurrentUser(r.Context())
	if !ok {
		WriteDomainError(w, domain.ErrUnauthorized)
		return
	}

	var req renameConversationRequest
	if err := decodeJSON(w, r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "bad_json", "invalid json")
		return
	}

	conv, err := a.chatSvc.Rename(r.Context(), u, r.PathValue("id"), req.Name)
	if err != nil {
		WriteDomainError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, newConversationResponse(conv))
}

func (a *api) handleChatConversationDelete(w http.ResponseWriter, r *http.Request) {
	u, ok := CurrentUser(r.Context())
	if !ok {
		WriteDomainError(w, domain.ErrUnauthorized)
		return
	}

	if err := a.chatSvc.Delete(r.Context(), u, r.PathValue("id")); err != nil {
		WriteDomainError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

type sendMessageRequest struct {
	ConversationID string `json:"conversation_id"`
	Message        string `json:"message"`
}

type sendMessageResponse struct {
	Conversation conversationResponse `json:"conversation"`
	Message      messageResponse      `json:"message"`
}

func (a *api) handleChatSendMessage(w http.ResponseWriter, r *http.Request) {
	u, ok := CurrentUser(r.Context())
	if !ok {
		WriteDomainError(w, domain.ErrUnauthorized)
		return
	}

	var req sendMessageRequest
	if err := decodeJSON(w, r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "bad_json", "invalid json")
		return
	}

	turn, err := a.chatSvc.SendMessage(r.Context(), u, req.ConversationID, req.Message)
	if err != nil {
		WriteDomainError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, sendMessageResponse{
		Conversation: newConversationResponse(turn.Conversation),
		Message:      newMessageResponse(turn.Message),
	})
}
