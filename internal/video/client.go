package video

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// Client talks to the external video room provider. Room provisioning
// goes through a circuit breaker so a dead provider fails calls fast
// instead of stalling every invite on the HTTP timeout.
type Client struct {
	baseURL     string
	apiKey      string
	tokenSecret []byte
	tokenTTL    time.Duration
	httpClient  *http.Client
	cb          *gobreaker.CircuitBreaker
	logger      *zap.SugaredLogger
}

func NewClient(baseURL, apiKey, tokenSecret string, tokenTTL time.Duration, logger *zap.SugaredLogger) *Client {
	st := gobreaker.Settings{
		Name:        "video-provider",
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Infow("circuit breaker state", "name", name, "from", from.String(), "to", to.String())
		},
	}
	return &Client{
		baseURL:     baseURL,
		apiKey:      apiKey,
		tokenSecret: []byte(tokenSecret),
		tokenTTL:    tokenTTL,
		httpClient:  &http.Client{Timeout: 10 * time.Second},
		cb:          gobreaker.NewCircuitBreaker(st),
		logger:      logger,
	}
}

type roomResponse struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// GetOrCreateRoom returns the room URL for the given name, creating the
// room on the provider if it does not exist yet.
func (c *Client) GetOrCreateRoom(ctx context.Context, name string) (string, error) {
	out, err := c.cb.Execute(func() (any, error) {
		if room, err := c.fetchRoom(ctx, name); err == nil {
			return room.URL, nil
		}
		room, err := c.createRoom(ctx, name)
		if err != nil {
			return "", err
		}
		return room.URL, nil
	})
	if err != nil {
		return "", err
	}
	return out.(string), nil
}

func (c *Client) fetchRoom(ctx context.Context, name string) (*roomResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/rooms/"+name, nil)
	if err != nil {
		return nil, err
	}
	return c.do(req)
}

func (c *Client) createRoom(ctx context.Context, name string) (*roomResponse, error) {
	body, err := json.Marshal(map[string]any{
		"name":    name,
		"privacy": "private",
	})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/rooms", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req)
}

func (c *Client) do(req *http.Request) (*roomResponse, error) {
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("video provider: %s %s returned %d", req.Method, req.URL.Path, resp.StatusCode)
	}
	var room roomResponse
	if err := json.NewDecoder(resp.Body).Decode(&room); err != nil {
		return nil, fmt.Errorf("video provider: decode response: %w", err)
	}
	return &room, nil
}

// MintToken signs a short-lived access token scoped to one room for one
// user. The provider validates the same shared secret.
func (c *Client) MintToken(room string, userID int64) (string, error) {
	now := time.Now().UTC()
	claims := jwt.MapClaims{
		"sub":  strconv.FormatInt(userID, 10),
		"room": room,
		"iat":  now.Unix(),
		"exp":  now.Add(c.tokenTTL).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(c.tokenSecret)
	if err != nil {
		return "", fmt.Errorf("sign room token: %w", err)
	}
	return signed, nil
}
