// Package apiclient talks to the HTTP API as a logged in user.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"converse-backend/internal/apperr"
	"converse-backend/internal/models"
)

type Client struct {
	BaseURL    string
	HTTPClient *http.Client

	mutex sync.RWMutex
	token string
}

func New(baseURL string) *Client {
	return &Client{
		BaseURL:    strings.TrimSuffix(baseURL, "/"),
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *Client) SetToken(token string) {
	c.mutex.Lock()
	c.token = token
	c.mutex.Unlock()
}

func (c *Client) Token() string {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return c.token
}

// do sends in as the JSON body and decodes the response into out. Error
// responses come back as *apperr.Error with the server's message.
func (c *Client) do(ctx context.Context, method string, path string, in any, out any) error {
	var body io.Reader
	if in != nil {
		encoded, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		body = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := c.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if resp.StatusCode >= 400 {
		var errResp struct {
			Error string `json:"error"`
		}
		json.Unmarshal(respBody, &errResp)
		if errResp.Error == "" {
			errResp.Error = http.StatusText(resp.StatusCode)
		}
		return apperr.New(apperr.KindForStatus(resp.StatusCode), errResp.Error)
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("decoding %s %s response: %w", method, path, err)
	}
	return nil
}

func idPath(format string, id int64) string {
	return fmt.Sprintf(format, strconv.FormatInt(id, 10))
}

type authResponse struct {
	Token string      `json:"token"`
	User  models.User `json:"user"`
}

// Register creates the account and keeps its token for later calls.
func (c *Client) Register(ctx context.Context, username string, email string, password string) (models.User, error) {
	var resp authResponse
	err := c.do(ctx, http.MethodPost, "/api/auth/register", map[string]string{
		"username": username,
		"email":    email,
		"password": password,
	}, &resp)
	if err != nil {
		return models.User{}, err
	}
	c.SetToken(resp.Token)
	return resp.User, nil
}

func (c *Client) Login(ctx context.Context, email string, password string) (models.User, error) {
	var resp authResponse
	err := c.do(ctx, http.MethodPost, "/api/auth/login", map[string]string{
		"email":    email,
		"password": password,
	}, &resp)
	if err != nil {
		return models.User{}, err
	}
	c.SetToken(resp.Token)
	return resp.User, nil
}

func (c *Client) Me(ctx context.Context) (models.User, error) {
	var resp struct {
		User models.User `json:"user"`
	}
	err := c.do(ctx, http.MethodGet, "/api/auth/me", nil, &resp)
	return resp.User, err
}

func (c *Client) CreateCommunity(ctx context.Context, name string, description string) (models.Community, error) {
	var resp struct {
		Community models.Community `json:"community"`
	}
	err := c.do(ctx, http.MethodPost, "/api/communities", map[string]string{
		"name":        name,
		"description": description,
	}, &resp)
	return resp.Community, err
}

func (c *Client) JoinCommunity(ctx context.Context, communityID int64) (models.Community, error) {
	var resp struct {
		Community models.Community `json:"community"`
	}
	err := c.do(ctx, http.MethodPost, idPath("/api/communities/%s/join", communityID), nil, &resp)
	return resp.Community, err
}

func (c *Client) ListChannels(ctx context.Context, communityID int64) ([]models.Channel, error) {
	var resp struct {
		Channels []models.Channel `json:"channels"`
	}
	err := c.do(ctx, http.MethodGet, idPath("/api/channels/community/%s", communityID), nil, &resp)
	return resp.Channels, err
}

// ListMessages returns one page of the channel, oldest first.
func (c *Client) ListMessages(ctx context.Context, channelID int64, limit int, skip int) ([]models.Message, error) {
	query := url.Values{}
	query.Set("limit", strconv.Itoa(limit))
	query.Set("skip", strconv.Itoa(skip))

	var resp struct {
		Messages []models.Message `json:"messages"`
	}
	err := c.do(ctx, http.MethodGet, idPath("/api/messages/channel/%s", channelID)+"?"+query.Encode(), nil, &resp)
	return resp.Messages, err
}

func (c *Client) CreateMessage(ctx context.Context, channelID int64, content string, messageType models.MessageType) (models.Message, error) {
	var resp struct {
		Message models.Message `json:"message"`
	}
	err := c.do(ctx, http.MethodPost, "/api/messages", map[string]string{
		"content":   content,
		"channelId": strconv.FormatInt(channelID, 10),
		"type":      string(messageType),
	}, &resp)
	return resp.Message, err
}

func (c *Client) EditMessage(ctx context.Context, messageID int64, content string) (models.Message, error) {
	var resp struct {
		Message models.Message `json:"message"`
	}
	err := c.do(ctx, http.MethodPut, idPath("/api/messages/%s", messageID), map[string]string{"content": content}, &resp)
	return resp.Message, err
}

func (c *Client) DeleteMessage(ctx context.Context, messageID int64) error {
	return c.do(ctx, http.MethodDelete, idPath("/api/messages/%s", messageID), nil, nil)
}
