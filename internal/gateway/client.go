package gateway

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

	"go.uber.org/zap"

	"github.com/xaenox/pocheck/internal/models"
)

// ErrUnreachable wraps every failed round trip: transport errors, non-2xx
// statuses and undecodable bodies.
var ErrUnreachable = errors.New("gateway unreachable")

const (
	chatPath    = "/api/chat"
	profilePath = "/api/user-profile"
)

// Client calls the chat gateway and the profile service. It never retries.
type Client struct {
	baseURL string
	http    *http.Client
	logger  *zap.Logger
}

// NewClient builds a client for baseURL. A zero timeout leaves the
// platform default in place.
func NewClient(baseURL string, timeout time.Duration, logger *zap.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

// Chat sends one utterance with its history and filter context and returns
// the gateway's content field.
func (c *Client) Chat(ctx context.Context, req models.ChatRequest) (string, error) {
	if req.History == nil {
		req.History = []models.Turn{}
	}
	if req.Context == nil {
		req.Context = map[string]string{}
	}
	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("encode chat request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+chatPath, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	var resp models.ChatResponse
	if err := c.do(httpReq, &resp); err != nil {
		return "", err
	}
	return resp.Content, nil
}

// Profile fetches the current user's profile.
func (c *Client) Profile(ctx context.Context) (models.UserProfile, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+profilePath, nil)
	if err != nil {
		return models.UserProfile{}, fmt.Errorf("%w: %v", ErrUnreachable, err)
	}

	var profile models.UserProfile
	if err := c.do(httpReq, &profile); err != nil {
		return models.UserProfile{}, err
	}
	return profile, nil
}

// ProfileOrOffline returns the remote profile, or the offline profile when
// the service cannot be reached.
func (c *Client) ProfileOrOffline(ctx context.Context) models.UserProfile {
	profile, err := c.Profile(ctx)
	if err != nil {
		c.logger.Warn("Profile service not reachable, using offline profile", zap.Error(err))
		return OfflineProfile(time.Now())
	}
	return profile
}

// OfflineProfile is substituted when the profile service is down.
func OfflineProfile(now time.Time) models.UserProfile {
	return models.UserProfile{
		UserID:     "OFFLINE_USER",
		FullName:   "Local User",
		Email:      "local@example.com",
		Role:       "Procurement Analyst",
		Department: "Finance",
		LastLogin:  now.Format("2006-01-02 03:04 PM"),
		Location:   "Remote",
	}
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%w: %s %s returned %d: %s",
			ErrUnreachable, req.Method, req.URL.Path, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode %s: %v", ErrUnreachable, req.URL.Path, err)
	}
	return nil
}
