package httpserver

import (
	"net/http"
	"time"
)

type notificationItem struct {
	ID          string `json:"id"`
	ChatID      string `json:"chatId"`
	CallerID    string `json:"callerId"`
	CallerName  string `json:"callerName"`
	ChannelName string `json:"channelName"`
	MeetingID   string `json:"meetingId"`
	Token       string `json:"token"`
	CallType    string `json:"callType"`
	CallUUID    string `json:"callUuid"`
	Status      string `json:"status"`
	CreatedAtMs int64  `json:"createdAtMs"`
}

type pollNotificationsResponse struct {
	Notifications []notificationItem `json:"notifications"`
}

// handlePollNotifications drains the caller's fresh call notifications.
// Returned rows are marked processed in the same transaction, so every
// notification is delivered at most once.
func (api *v1API) handlePollNotifications(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeAPIError(w, ErrCodeMethodNotAllowed, "method not allowed")
		return
	}

	userID := getUserIDFromContext(r.Context())
	if userID == "" {
		writeAPIError(w, ErrCodeInvalidSession, "authentication required")
		return
	}

	nowMs := time.Now().UnixMilli()
	rows, err := api.store.PollNotifications(r.Context(), userID, nowMs)
	if err != nil {
		api.logger.Error("poll notifications failed", "error", err)
		writeAPIError(w, ErrCodeInternal, "internal error")
		return
	}

	items := make([]notificationItem, 0, len(rows))
	for _, n := range rows {
		items = append(items, notificationItem{
			ID:          n.ID,
			ChatID:      n.ChatID,
			CallerID:    n.CallerID,
			CallerName:  n.CallerName,
			ChannelName: n.ChannelName,
			MeetingID:   n.MeetingID,
			Token:       n.Token,
			CallType:    n.CallType,
			CallUUID:    n.CallUUID,
			Status:      n.Status,
			CreatedAtMs: n.CreatedAtMs,
		})
	}

	writeJSON(w, http.StatusOK, pollNotificationsResponse{Notifications: items})
}
