package httpserver

import (
	"context"
	"net/http"

	"log/slog"

	"chatwave-backend/internal/storage"
)

type Store interface {
	Ready(ctx context.Context) error

	CreateUser(ctx context.Context, username, email, passwordHash string, nowMs int64) (storage.UserRow, error)
	GetUserByID(ctx context.Context, userID string) (storage.UserRow, error)
	GetUserByUsername(ctx context.Context, username string) (storage.UserRow, error)

	IssueSession(ctx context.Context, userID string, nowMs int64) (storage.SessionRow, error)
	ValidateSession(ctx context.Context, token string, nowMs int64) (storage.SessionRow, error)
	RevokeSession(ctx context.Context, token string) error

	AdmitAction(ctx context.Context, userID, action string, nowMs int64) (bool, error)

	CreateChat(ctx context.Context, creatorID string, name *string, participantIDs []string, nowMs int64) (storage.ChatRow, error)
	GetChatByID(ctx context.Context, chatID string) (storage.ChatRow, error)
	ListChatsForUser(ctx context.Context, userID string) ([]storage.ChatRow, error)
	IsChatParticipant(ctx context.Context, chatID, userID string) (bool, error)
	ListChatParticipants(ctx context.Context, chatID string) ([]string, error)

	CreateMessage(ctx context.Context, chatID, senderID, text string, nowMs int64) (storage.MessageRow, error)
	ListMessages(ctx context.Context, chatID, userID string, limit int, beforeID string) ([]storage.MessageRow, bool, error)

	StartCall(ctx context.Context, p storage.StartCallParams) (storage.CallRow, int, error)
	AcceptCall(ctx context.Context, chatID, meetingID, callUUID, recipientID string, nowMs int64) (storage.CallRow, error)
	EndCall(ctx context.Context, chatID, callUUID string, nowMs int64) error
	NotifyCall(ctx context.Context, p storage.NotifyCallParams) (int, error)
	ListCallHistory(ctx context.Context, userID string, limit int) ([]storage.CallRow, error)

	PollNotifications(ctx context.Context, userID string, nowMs int64) ([]storage.CallNotificationRow, error)
}

// RoomProvider is the external call-room service: a self-minted capability
// token plus room allocation. Both calls happen strictly before any storage
// transaction opens.
type RoomProvider interface {
	IssueToken() (string, error)
	CreateRoom(ctx context.Context, token, customRoomID string) (string, error)
}

func NewHandler(logger *slog.Logger, store Store, rooms RoomProvider) http.Handler {
	mux := http.NewServeMux()
	api := newV1API(logger, store, rooms)

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if err := store.Ready(r.Context()); err != nil {
			logger.Warn("ready check failed", "error", err)
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("not ready"))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	mux.HandleFunc("/v1/auth/", api.handleAuth)
	mux.HandleFunc("/v1/chats", api.handleChats)
	mux.HandleFunc("/v1/chats/", api.handleChatSubroutes)
	mux.HandleFunc("/v1/calls/", api.handleCallRoutes)
	mux.HandleFunc("/v1/notifications/poll", api.handlePollNotifications)

	return chain(
		mux,
		recoverMiddleware(logger),
		requestLogMiddleware(logger),
		corsMiddleware(),
		sessionAuthMiddleware(logger, store),
	)
}
