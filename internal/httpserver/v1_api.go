package httpserver

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"log/slog"
)

type v1API struct {
	logger *slog.Logger
	store  Store
	rooms  RoomProvider
}

func newV1API(logger *slog.Logger, store Store, rooms RoomProvider) *v1API {
	return &v1API{
		logger: logger.With("component", "v1"),
		store:  store,
		rooms:  rooms,
	}
}

type apiErrorEnvelope struct {
	Error apiError `json:"error"`
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}

func writeAPIError(w http.ResponseWriter, code ErrorCode, message string) {
	writeJSON(w, httpStatusForCode(code), apiErrorEnvelope{
		Error: apiError{
			Code:    string(code),
			Message: message,
		},
	})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		return err
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return errors.New("unexpected extra JSON input")
	}
	return nil
}

func splitPath(path string) []string {
	path = strings.Trim(path, "/")
	if path == "" {
		return nil
	}
	return strings.Split(path, "/")
}

// admit runs the write gate for the action. A storage error while checking
// counts as admitted (fail-open: availability over strict limiting, matching
// long-standing behavior); a clean denial writes the 429.
func (api *v1API) admit(w http.ResponseWriter, r *http.Request, userID, action string) bool {
	nowMs := time.Now().UnixMilli()
	ok, err := api.store.AdmitAction(r.Context(), userID, action, nowMs)
	if err != nil {
		api.logger.Warn("rate limit check failed, allowing", "error", err, "action", action)
		return true
	}
	if !ok {
		writeAPIError(w, ErrCodeRateLimited, "too many requests, try again later")
		return false
	}
	return true
}
