package videosdk

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"log/slog"

	"github.com/golang-jwt/jwt/v5"
)

// ErrUnavailable is returned for any non-2xx or malformed response from the
// room service. Callers must not retry; the surrounding operation fails
// before any state is persisted.
var ErrUnavailable = errors.New("videosdk unavailable")

const tokenTTL = 24 * time.Hour

type Client struct {
	logger     *slog.Logger
	apiKey     string
	secretKey  string
	endpoint   string
	httpClient *http.Client
}

func NewClient(logger *slog.Logger, apiKey, secretKey, endpoint string) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		logger:    logger.With("component", "videosdk"),
		apiKey:    apiKey,
		secretKey: secretKey,
		endpoint:  strings.TrimRight(endpoint, "/"),
		httpClient: &http.Client{
			Timeout: 8 * time.Second,
		},
	}
}

// IssueToken mints a short-lived capability token for joining and moderating
// rooms. It is self-issued and never persisted here.
func (c *Client) IssueToken() (string, error) {
	if strings.TrimSpace(c.apiKey) == "" || strings.TrimSpace(c.secretKey) == "" {
		return "", fmt.Errorf("videosdk credentials not configured")
	}

	now := time.Now()
	claims := jwt.MapClaims{
		"apikey":      c.apiKey,
		"permissions": []string{"allow_join", "allow_mod"},
		"iat":         now.Unix(),
		"exp":         now.Add(tokenTTL).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(c.secretKey))
}

type createRoomRequest struct {
	CustomRoomID string `json:"customRoomId"`
}

type createRoomResponse struct {
	RoomID string `json:"roomId"`
}

// CreateRoom allocates a named room. The bearer token is the capability
// token this client mints.
func (c *Client) CreateRoom(ctx context.Context, token, customRoomID string) (string, error) {
	if strings.TrimSpace(token) == "" {
		return "", fmt.Errorf("missing token")
	}

	body, err := json.Marshal(createRoomRequest{CustomRoomID: customRoomID})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/rooms", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", token)
	req.Header.Set("Content-Type", "application/json")

	res, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer res.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("%w: read response: %v", ErrUnavailable, err)
	}

	if res.StatusCode < 200 || res.StatusCode > 299 {
		c.logger.Warn("room creation failed", "status", res.StatusCode, "customRoomID", customRoomID)
		return "", fmt.Errorf("%w: status %d", ErrUnavailable, res.StatusCode)
	}

	var parsed createRoomResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", fmt.Errorf("%w: decode response: %v", ErrUnavailable, err)
	}
	if parsed.RoomID == "" {
		return "", fmt.Errorf("%w: response missing roomId", ErrUnavailable)
	}

	return parsed.RoomID, nil
}
