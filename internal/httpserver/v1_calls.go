package httpserver

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"chatwave-backend/internal/storage"
	"chatwave-backend/internal/videosdk"
)

type startCallRequest struct {
	ChatID   string `json:"chatId"`
	CallType string `json:"callType,omitempty"` // voice|video
	CallUUID string `json:"callUuid,omitempty"`
}

type startCallResponse struct {
	ChannelName string `json:"channelName"`
	MeetingID   string `json:"meetingId"`
	Token       string `json:"token"`
	UID         string `json:"uid"`
	CallerName  string `json:"callerName"`
	CallType    string `json:"callType"`
	CallUUID    string `json:"callUuid"`
}

type acceptCallRequest struct {
	ChatID    string `json:"chatId"`
	MeetingID string `json:"meetingId"`
	CallUUID  string `json:"callUuid"`
}

type acceptCallResponse struct {
	ChannelName string `json:"channelName"`
	MeetingID   string `json:"meetingId"`
	Token       string `json:"token"`
	CallType    string `json:"callType"`
	UID         string `json:"uid"`
	CallUUID    string `json:"callUuid"`
}

type endCallRequest struct {
	ChatID   string `json:"chatId"`
	CallUUID string `json:"callUuid"`
}

type endCallResponse struct {
	Success bool `json:"success"`
}

type notifyCallRequest struct {
	ChatID      string `json:"chatId"`
	CallerName  string `json:"callerName,omitempty"`
	ChannelName string `json:"channelName,omitempty"`
	MeetingID   string `json:"meetingId,omitempty"`
	Token       string `json:"token,omitempty"`
	CallType    string `json:"callType,omitempty"`
	CallUUID    string `json:"callUuid,omitempty"`
}

type notifyCallResponse struct {
	RecipientsCount int    `json:"recipientsCount"`
	CallUUID        string `json:"callUuid"`
}

type callHistoryItem struct {
	ID          string `json:"id"`
	ChatID      string `json:"chatId"`
	ChannelName string `json:"channelName"`
	MeetingID   string `json:"meetingId"`
	CallType    string `json:"callType"`
	CallUUID    string `json:"callUuid"`
	Status      string `json:"status"`
	StartedAtMs int64  `json:"startedAtMs"`
	EndedAtMs   *int64 `json:"endedAtMs,omitempty"`
}

type callHistoryResponse struct {
	Calls []callHistoryItem `json:"calls"`
}

func (api *v1API) handleCallRoutes(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/v1/calls/")
	parts := splitPath(rest)
	if len(parts) != 1 {
		writeAPIError(w, ErrCodeNotFound, "not found")
		return
	}

	switch parts[0] {
	case "start":
		if r.Method != http.MethodPost {
			writeAPIError(w, ErrCodeMethodNotAllowed, "method not allowed")
			return
		}
		api.handleStartCall(w, r)
	case "accept":
		if r.Method != http.MethodPost {
			writeAPIError(w, ErrCodeMethodNotAllowed, "method not allowed")
			return
		}
		api.handleAcceptCall(w, r)
	case "end":
		if r.Method != http.MethodPost {
			writeAPIError(w, ErrCodeMethodNotAllowed, "method not allowed")
			return
		}
		api.handleEndCall(w, r)
	case "notify":
		if r.Method != http.MethodPost {
			writeAPIError(w, ErrCodeMethodNotAllowed, "method not allowed")
			return
		}
		api.handleNotifyCall(w, r)
	case "history":
		if r.Method != http.MethodGet {
			writeAPIError(w, ErrCodeMethodNotAllowed, "method not allowed")
			return
		}
		api.handleCallHistory(w, r)
	default:
		writeAPIError(w, ErrCodeNotFound, "not found")
	}
}

func normalizeCallType(callType string) string {
	if callType == storage.CallTypeVideo {
		return storage.CallTypeVideo
	}
	return storage.CallTypeVoice
}

// requireChatParticipant resolves the membership precondition shared by the
// call endpoints. It writes the error response itself and reports whether the
// caller may proceed.
func (api *v1API) requireChatParticipant(w http.ResponseWriter, r *http.Request, chatID, userID string) bool {
	if _, err := api.store.GetChatByID(r.Context(), chatID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeAPIError(w, ErrCodeInvalidChatID, "invalid chat ID")
			return false
		}
		api.logger.Error("get chat failed", "error", err)
		writeAPIError(w, ErrCodeInternal, "internal error")
		return false
	}

	member, err := api.store.IsChatParticipant(r.Context(), chatID, userID)
	if err != nil {
		api.logger.Error("participant check failed", "error", err)
		writeAPIError(w, ErrCodeInternal, "internal error")
		return false
	}
	if !member {
		writeAPIError(w, ErrCodeUserNotInChat, "user not in chat")
		return false
	}
	return true
}

func (api *v1API) handleStartCall(w http.ResponseWriter, r *http.Request) {
	userID := getUserIDFromContext(r.Context())
	if userID == "" {
		writeAPIError(w, ErrCodeInvalidSession, "authentication required")
		return
	}

	var req startCallRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeAPIError(w, ErrCodeValidation, "invalid JSON body")
		return
	}

	req.ChatID = strings.TrimSpace(req.ChatID)
	if req.ChatID == "" {
		writeAPIError(w, ErrCodeInvalidChatID, "invalid chat ID")
		return
	}
	callType := normalizeCallType(strings.TrimSpace(req.CallType))
	callUUID := strings.TrimSpace(req.CallUUID)
	if callUUID == "" {
		callUUID = uuid.NewString()
	}

	if !api.requireChatParticipant(w, r, req.ChatID, userID) {
		return
	}
	if !api.admit(w, r, userID, storage.ActionStartCall) {
		return
	}

	caller, err := api.store.GetUserByID(r.Context(), userID)
	if err != nil {
		api.logger.Error("get caller failed", "error", err)
		writeAPIError(w, ErrCodeInternal, "internal error")
		return
	}

	// Provider round-trips finish before the storage transaction opens so a
	// stalled room service can never hold row locks.
	token, err := api.rooms.IssueToken()
	if err != nil {
		api.logger.Error("issue capability token failed", "error", err)
		writeAPIError(w, ErrCodeProviderUnavailable, "call room provider unavailable")
		return
	}

	channelName := "chat_" + req.ChatID
	meetingID, err := api.rooms.CreateRoom(r.Context(), token, channelName)
	if err != nil {
		api.logger.Error("create room failed", "error", err, "chatID", req.ChatID)
		if errors.Is(err, videosdk.ErrUnavailable) {
			writeAPIError(w, ErrCodeProviderUnavailable, "call room provider unavailable")
		} else {
			writeAPIError(w, ErrCodeInternal, "internal error")
		}
		return
	}

	nowMs := time.Now().UnixMilli()
	call, notified, err := api.store.StartCall(r.Context(), storage.StartCallParams{
		ChatID:      req.ChatID,
		InitiatorID: userID,
		CallerName:  caller.Username,
		ChannelName: channelName,
		MeetingID:   meetingID,
		Token:       token,
		CallType:    callType,
		CallUUID:    callUUID,
		NowMs:       nowMs,
	})
	if err != nil {
		api.logger.Error("start call failed", "error", err, "chatID", req.ChatID)
		writeAPIError(w, ErrCodeInternal, "internal error")
		return
	}

	api.logger.Info("call started",
		"chatID", call.ChatID, "callUUID", call.CallUUID, "callType", call.CallType,
		"meetingID", call.MeetingID, "recipients", notified)

	writeJSON(w, http.StatusOK, startCallResponse{
		ChannelName: call.ChannelName,
		MeetingID:   call.MeetingID,
		Token:       call.Token,
		UID:         userID,
		CallerName:  caller.Username,
		CallType:    call.CallType,
		CallUUID:    call.CallUUID,
	})
}

func (api *v1API) handleAcceptCall(w http.ResponseWriter, r *http.Request) {
	userID := getUserIDFromContext(r.Context())
	if userID == "" {
		writeAPIError(w, ErrCodeInvalidSession, "authentication required")
		return
	}

	var req acceptCallRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeAPIError(w, ErrCodeValidation, "invalid JSON body")
		return
	}

	req.ChatID = strings.TrimSpace(req.ChatID)
	req.MeetingID = strings.TrimSpace(req.MeetingID)
	req.CallUUID = strings.TrimSpace(req.CallUUID)
	if req.ChatID == "" || req.MeetingID == "" || req.CallUUID == "" {
		writeAPIError(w, ErrCodeValidation, "chatId, meetingId and callUuid are required")
		return
	}

	if !api.requireChatParticipant(w, r, req.ChatID, userID) {
		return
	}
	if !api.admit(w, r, userID, storage.ActionAcceptCall) {
		return
	}

	nowMs := time.Now().UnixMilli()
	call, err := api.store.AcceptCall(r.Context(), req.ChatID, req.MeetingID, req.CallUUID, userID, nowMs)
	if err != nil {
		if errors.Is(err, storage.ErrNoActiveCall) {
			writeAPIError(w, ErrCodeNoActiveCall, "no active call found")
			return
		}
		api.logger.Error("accept call failed", "error", err, "chatID", req.ChatID)
		writeAPIError(w, ErrCodeInternal, "internal error")
		return
	}

	writeJSON(w, http.StatusOK, acceptCallResponse{
		ChannelName: call.ChannelName,
		MeetingID:   call.MeetingID,
		Token:       call.Token,
		CallType:    call.CallType,
		UID:         userID,
		CallUUID:    call.CallUUID,
	})
}

func (api *v1API) handleEndCall(w http.ResponseWriter, r *http.Request) {
	userID := getUserIDFromContext(r.Context())
	if userID == "" {
		writeAPIError(w, ErrCodeInvalidSession, "authentication required")
		return
	}

	var req endCallRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeAPIError(w, ErrCodeValidation, "invalid JSON body")
		return
	}

	req.ChatID = strings.TrimSpace(req.ChatID)
	req.CallUUID = strings.TrimSpace(req.CallUUID)
	if req.ChatID == "" || req.CallUUID == "" {
		writeAPIError(w, ErrCodeValidation, "chatId and callUuid are required")
		return
	}

	if !api.admit(w, r, userID, storage.ActionEndCall) {
		return
	}

	// Idempotent by design: clients call this freely during error recovery.
	nowMs := time.Now().UnixMilli()
	if err := api.store.EndCall(r.Context(), req.ChatID, req.CallUUID, nowMs); err != nil {
		api.logger.Error("end call failed", "error", err, "chatID", req.ChatID)
		writeAPIError(w, ErrCodeInternal, "internal error")
		return
	}

	writeJSON(w, http.StatusOK, endCallResponse{Success: true})
}

func (api *v1API) handleNotifyCall(w http.ResponseWriter, r *http.Request) {
	userID := getUserIDFromContext(r.Context())
	if userID == "" {
		writeAPIError(w, ErrCodeInvalidSession, "authentication required")
		return
	}

	var req notifyCallRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeAPIError(w, ErrCodeValidation, "invalid JSON body")
		return
	}

	req.ChatID = strings.TrimSpace(req.ChatID)
	if req.ChatID == "" {
		writeAPIError(w, ErrCodeInvalidChatID, "invalid chat ID")
		return
	}

	caller, err := api.store.GetUserByID(r.Context(), userID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeAPIError(w, ErrCodeInvalidCallerID, "invalid caller ID")
			return
		}
		api.logger.Error("get caller failed", "error", err)
		writeAPIError(w, ErrCodeInternal, "internal error")
		return
	}

	if !api.admit(w, r, userID, storage.ActionNotifyCall) {
		return
	}

	channelName := strings.TrimSpace(req.ChannelName)
	if channelName == "" {
		channelName = "chat_" + req.ChatID
	}
	meetingID := strings.TrimSpace(req.MeetingID)
	if meetingID == "" {
		meetingID = channelName
	}
	token := strings.TrimSpace(req.Token)
	if token == "" {
		token, err = api.rooms.IssueToken()
		if err != nil {
			api.logger.Error("issue capability token failed", "error", err)
			writeAPIError(w, ErrCodeProviderUnavailable, "call room provider unavailable")
			return
		}
	}
	callUUID := strings.TrimSpace(req.CallUUID)
	if callUUID == "" {
		callUUID = uuid.NewString()
	}

	nowMs := time.Now().UnixMilli()
	count, err := api.store.NotifyCall(r.Context(), storage.NotifyCallParams{
		ChatID:      req.ChatID,
		CallerID:    userID,
		CallerName:  caller.Username,
		ChannelName: channelName,
		MeetingID:   meetingID,
		Token:       token,
		CallType:    normalizeCallType(strings.TrimSpace(req.CallType)),
		CallUUID:    callUUID,
		NowMs:       nowMs,
	})
	if err != nil {
		if errors.Is(err, storage.ErrNoRecipients) {
			writeAPIError(w, ErrCodeNoRecipientsFound, "no recipients found for chat")
			return
		}
		api.logger.Error("notify call failed", "error", err, "chatID", req.ChatID)
		writeAPIError(w, ErrCodeInternal, "internal error")
		return
	}

	writeJSON(w, http.StatusOK, notifyCallResponse{
		RecipientsCount: count,
		CallUUID:        callUUID,
	})
}

func (api *v1API) handleCallHistory(w http.ResponseWriter, r *http.Request) {
	userID := getUserIDFromContext(r.Context())
	if userID == "" {
		writeAPIError(w, ErrCodeInvalidSession, "authentication required")
		return
	}

	calls, err := api.store.ListCallHistory(r.Context(), userID, 50)
	if err != nil {
		api.logger.Error("list call history failed", "error", err)
		writeAPIError(w, ErrCodeInternal, "internal error")
		return
	}

	items := make([]callHistoryItem, 0, len(calls))
	for _, c := range calls {
		items = append(items, callHistoryItem{
			ID:          c.ID,
			ChatID:      c.ChatID,
			ChannelName: c.ChannelName,
			MeetingID:   c.MeetingID,
			CallType:    c.CallType,
			CallUUID:    c.CallUUID,
			Status:      c.Status,
			StartedAtMs: c.StartedAtMs,
			EndedAtMs:   c.EndedAtMs,
		})
	}

	writeJSON(w, http.StatusOK, callHistoryResponse{Calls: items})
}
