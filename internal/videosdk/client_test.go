package videosdk

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/golang-jwt/jwt/v5"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func TestIssueToken_ClaimsAndSignature(t *testing.T) {
	c := NewClient(testLogger(), "api-key-1", "super-secret", "https://example.invalid/v2")

	token, err := c.IssueToken()
	if err != nil {
		t.Fatalf("IssueToken() error = %v", err)
	}

	parsed, err := jwt.Parse(token, func(tok *jwt.Token) (interface{}, error) {
		if _, ok := tok.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return []byte("super-secret"), nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil {
		t.Fatalf("jwt.Parse() error = %v", err)
	}
	if !parsed.Valid {
		t.Fatal("token is not valid")
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		t.Fatal("claims are not MapClaims")
	}
	if claims["apikey"] != "api-key-1" {
		t.Fatalf("apikey = %v, want %q", claims["apikey"], "api-key-1")
	}
	perms, ok := claims["permissions"].([]interface{})
	if !ok || len(perms) != 2 {
		t.Fatalf("permissions = %v, want [allow_join allow_mod]", claims["permissions"])
	}
}

func TestIssueToken_MissingCredentials(t *testing.T) {
	c := NewClient(testLogger(), "", "", "https://example.invalid/v2")
	if _, err := c.IssueToken(); err == nil {
		t.Fatal("expected error for missing credentials")
	}
}

func TestCreateRoom_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/rooms" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if r.Header.Get("Authorization") == "" {
			t.Error("missing Authorization header")
		}
		var body map[string]string
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode body: %v", err)
		}
		if body["customRoomId"] != "chat_abc" {
			t.Errorf("customRoomId = %q, want %q", body["customRoomId"], "chat_abc")
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"roomId": "room-42"})
	}))
	defer srv.Close()

	c := NewClient(testLogger(), "k", "s", srv.URL)
	roomID, err := c.CreateRoom(context.Background(), "tok", "chat_abc")
	if err != nil {
		t.Fatalf("CreateRoom() error = %v", err)
	}
	if roomID != "room-42" {
		t.Fatalf("roomID = %q, want %q", roomID, "room-42")
	}
}

func TestCreateRoom_Non2xxIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewClient(testLogger(), "k", "s", srv.URL)
	_, err := c.CreateRoom(context.Background(), "tok", "chat_abc")
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("error = %v, want ErrUnavailable", err)
	}
}

func TestCreateRoom_MalformedBodyIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "{not json")
	}))
	defer srv.Close()

	c := NewClient(testLogger(), "k", "s", srv.URL)
	_, err := c.CreateRoom(context.Background(), "tok", "chat_abc")
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("error = %v, want ErrUnavailable", err)
	}
}

func TestCreateRoom_MissingRoomIDIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"other":"x"}`)
	}))
	defer srv.Close()

	c := NewClient(testLogger(), "k", "s", srv.URL)
	_, err := c.CreateRoom(context.Background(), "tok", "chat_abc")
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("error = %v, want ErrUnavailable", err)
	}
	if !strings.Contains(err.Error(), "roomId") {
		t.Fatalf("error %q should mention roomId", err)
	}
}
