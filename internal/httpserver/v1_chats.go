package httpserver

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"chatwave-backend/internal/storage"
)

type createChatRequest struct {
	Name           *string  `json:"name,omitempty"`
	ParticipantIDs []string `json:"participantIds"`
}

type chatItem struct {
	ID              string  `json:"id"`
	Kind            string  `json:"kind"`
	Name            *string `json:"name,omitempty"`
	CreatorID       string  `json:"creatorId"`
	LastMessageText *string `json:"lastMessageText,omitempty"`
	LastMessageAtMs *int64  `json:"lastMessageAtMs,omitempty"`
	CreatedAtMs     int64   `json:"createdAtMs"`
}

type listChatsResponse struct {
	Chats []chatItem `json:"chats"`
}

type sendMessageRequest struct {
	Text string `json:"text"`
}

type messageItem struct {
	ID          string `json:"id"`
	ChatID      string `json:"chatId"`
	SenderID    string `json:"senderId"`
	Text        string `json:"text"`
	CreatedAtMs int64  `json:"createdAtMs"`
}

type listMessagesResponse struct {
	Messages []messageItem `json:"messages"`
	HasMore  bool          `json:"hasMore"`
}

type participantsResponse struct {
	ParticipantIDs []string `json:"participantIds"`
}

func chatToItem(c storage.ChatRow) chatItem {
	return chatItem{
		ID:              c.ID,
		Kind:            c.Kind,
		Name:            c.Name,
		CreatorID:       c.CreatorID,
		LastMessageText: c.LastMessageText,
		LastMessageAtMs: c.LastMessageAtMs,
		CreatedAtMs:     c.CreatedAtMs,
	}
}

func (api *v1API) handleChats(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		api.handleListChats(w, r)
	case http.MethodPost:
		api.handleCreateChat(w, r)
	default:
		writeAPIError(w, ErrCodeMethodNotAllowed, "method not allowed")
	}
}

func (api *v1API) handleListChats(w http.ResponseWriter, r *http.Request) {
	userID := getUserIDFromContext(r.Context())
	if userID == "" {
		writeAPIError(w, ErrCodeInvalidSession, "authentication required")
		return
	}

	chats, err := api.store.ListChatsForUser(r.Context(), userID)
	if err != nil {
		api.logger.Error("list chats failed", "error", err)
		writeAPIError(w, ErrCodeInternal, "internal error")
		return
	}

	items := make([]chatItem, 0, len(chats))
	for _, c := range chats {
		items = append(items, chatToItem(c))
	}
	writeJSON(w, http.StatusOK, listChatsResponse{Chats: items})
}

func (api *v1API) handleCreateChat(w http.ResponseWriter, r *http.Request) {
	userID := getUserIDFromContext(r.Context())
	if userID == "" {
		writeAPIError(w, ErrCodeInvalidSession, "authentication required")
		return
	}

	var req createChatRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeAPIError(w, ErrCodeValidation, "invalid JSON body")
		return
	}
	if len(req.ParticipantIDs) == 0 {
		writeAPIError(w, ErrCodeValidation, "participantIds is required")
		return
	}

	if !api.admit(w, r, userID, storage.ActionCreateChat) {
		return
	}

	for _, id := range req.ParticipantIDs {
		if _, err := api.store.GetUserByID(r.Context(), id); err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				writeAPIError(w, ErrCodeUserNotFound, "participant not found")
				return
			}
			api.logger.Error("participant lookup failed", "error", err)
			writeAPIError(w, ErrCodeInternal, "internal error")
			return
		}
	}

	nowMs := time.Now().UnixMilli()
	chat, err := api.store.CreateChat(r.Context(), userID, req.Name, req.ParticipantIDs, nowMs)
	if err != nil {
		api.logger.Error("create chat failed", "error", err)
		writeAPIError(w, ErrCodeInternal, "internal error")
		return
	}

	api.logger.Info("chat created", "chatID", chat.ID, "kind", chat.Kind)
	writeJSON(w, http.StatusCreated, chatToItem(chat))
}

func (api *v1API) handleChatSubroutes(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/v1/chats/")
	parts := splitPath(rest)

	switch {
	case len(parts) == 2 && parts[1] == "messages":
		api.handleChatMessages(w, r, parts[0])
	case len(parts) == 2 && parts[1] == "participants":
		api.handleChatParticipants(w, r, parts[0])
	default:
		writeAPIError(w, ErrCodeNotFound, "not found")
	}
}

func (api *v1API) handleChatMessages(w http.ResponseWriter, r *http.Request, chatID string) {
	userID := getUserIDFromContext(r.Context())
	if userID == "" {
		writeAPIError(w, ErrCodeInvalidSession, "authentication required")
		return
	}

	switch r.Method {
	case http.MethodGet:
		limit := 50
		beforeID := r.URL.Query().Get("before")
		messages, hasMore, err := api.store.ListMessages(r.Context(), chatID, userID, limit, beforeID)
		if err != nil {
			if errors.Is(err, storage.ErrNotParticipant) {
				writeAPIError(w, ErrCodeUserNotInChat, "user not in chat")
				return
			}
			api.logger.Error("list messages failed", "error", err, "chatID", chatID)
			writeAPIError(w, ErrCodeInternal, "internal error")
			return
		}

		items := make([]messageItem, 0, len(messages))
		for _, m := range messages {
			items = append(items, messageItem{
				ID:          m.ID,
				ChatID:      m.ChatID,
				SenderID:    m.SenderID,
				Text:        m.Text,
				CreatedAtMs: m.CreatedAtMs,
			})
		}
		writeJSON(w, http.StatusOK, listMessagesResponse{Messages: items, HasMore: hasMore})

	case http.MethodPost:
		var req sendMessageRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeAPIError(w, ErrCodeValidation, "invalid JSON body")
			return
		}
		req.Text = strings.TrimSpace(req.Text)
		if req.Text == "" {
			writeAPIError(w, ErrCodeValidation, "text is required")
			return
		}

		if !api.admit(w, r, userID, storage.ActionSendMessage) {
			return
		}

		nowMs := time.Now().UnixMilli()
		msg, err := api.store.CreateMessage(r.Context(), chatID, userID, req.Text, nowMs)
		if err != nil {
			if errors.Is(err, storage.ErrNotParticipant) {
				writeAPIError(w, ErrCodeUserNotInChat, "user not in chat")
				return
			}
			api.logger.Error("create message failed", "error", err, "chatID", chatID)
			writeAPIError(w, ErrCodeInternal, "internal error")
			return
		}

		writeJSON(w, http.StatusCreated, messageItem{
			ID:          msg.ID,
			ChatID:      msg.ChatID,
			SenderID:    msg.SenderID,
			Text:        msg.Text,
			CreatedAtMs: msg.CreatedAtMs,
		})

	default:
		writeAPIError(w, ErrCodeMethodNotAllowed, "method not allowed")
	}
}

func (api *v1API) handleChatParticipants(w http.ResponseWriter, r *http.Request, chatID string) {
	if r.Method != http.MethodGet {
		writeAPIError(w, ErrCodeMethodNotAllowed, "method not allowed")
		return
	}

	userID := getUserIDFromContext(r.Context())
	if userID == "" {
		writeAPIError(w, ErrCodeInvalidSession, "authentication required")
		return
	}

	if !api.requireChatParticipant(w, r, chatID, userID) {
		return
	}

	ids, err := api.store.ListChatParticipants(r.Context(), chatID)
	if err != nil {
		api.logger.Error("list participants failed", "error", err, "chatID", chatID)
		writeAPIError(w, ErrCodeInternal, "internal error")
		return
	}

	writeJSON(w, http.StatusOK, participantsResponse{ParticipantIDs: ids})
}
