package backend

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/mirovoy/companion/internal/config"
	"github.com/mirovoy/companion/internal/model/chat"
)

var ErrNotConfigured = errors.New("backend is not configured, set COMPANION_API_URL")

// TokenSource supplies the bearer credential attached to every
// request. The auth manager implements it.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// Client talks to the companion API over plain HTTP request/response.
type Client struct {
	baseURL    string
	tokens     TokenSource
	httpClient *http.Client
}

// NewClient builds a backend client from configuration.
func NewClient(cfg config.BackendConfig, tokens TokenSource) *Client {
	return &Client{
		baseURL:    cfg.BaseURL,
		tokens:     tokens,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
}

// TurnResult is the backend's answer to one processed utterance.
type TurnResult struct {
	Transcription string `json:"transcription"`
	Response      string `json:"response"`
	Emotion       string `json:"emotion"`
	Voice         string `json:"voice,omitempty"`
	Audio         string `json:"audio,omitempty"`
}

// ReplyAudio decodes the base64 reply audio, if any.
func (r *TurnResult) ReplyAudio() ([]byte, error) {
	if r.Audio == "" {
		return nil, nil
	}
	data, err := base64.StdEncoding.DecodeString(r.Audio)
	if err != nil {
		return nil, fmt.Errorf("decode reply audio: %w", err)
	}
	return data, nil
}

// User is the backend's profile record for the authenticated user.
type User struct {
	ID      int    `json:"id"`
	Auth0ID string `json:"auth0_id"`
	Name    string `json:"name,omitempty"`
	Email   string `json:"email,omitempty"`
	Picture string `json:"picture,omitempty"`
}

type historyMessage struct {
	Type      string    `json:"type"`
	Text      string    `json:"text"`
	Emotion   string    `json:"emotion,omitempty"`
	Timestamp time.Time `json:"timestamp,omitempty"`
}

type historyResponse struct {
	Messages []historyMessage `json:"messages"`
}

type errorResponse struct {
	Detail string `json:"detail"`
}

// ProcessAudio uploads one captured utterance as a multipart form with
// a single "audio" file field and returns the backend's turn result.
func (c *Client) ProcessAudio(ctx context.Context, wavData []byte) (*TurnResult, error) {
	if c.baseURL == "" {
		return nil, ErrNotConfigured
	}

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("audio", "utterance.wav")
	if err != nil {
		return nil, fmt.Errorf("build multipart form: %w", err)
	}
	if _, err := part.Write(wavData); err != nil {
		return nil, fmt.Errorf("write audio field: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("finalize multipart form: %w", err)
	}

	req, err := c.newRequest(ctx, http.MethodPost, "/api/process-audio", body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("process audio request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.errorFromResponse(resp)
	}

	var result TurnResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode process-audio response: %w", err)
	}
	return &result, nil
}

// History fetches the stored conversation in chronological order.
func (c *Client) History(ctx context.Context) ([]chat.Message, error) {
	if c.baseURL == "" {
		return nil, ErrNotConfigured
	}

	req, err := c.newRequest(ctx, http.MethodGet, "/api/history", nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("history request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.errorFromResponse(resp)
	}

	var history historyResponse
	if err := json.NewDecoder(resp.Body).Decode(&history); err != nil {
		return nil, fmt.Errorf("decode history response: %w", err)
	}

	messages := make([]chat.Message, 0, len(history.Messages))
	for _, m := range history.Messages {
		role := chat.RoleUser
		if m.Type == "assistant" {
			role = chat.RoleAssistant
		}
		messages = append(messages, chat.Message{
			Role:      role,
			Text:      m.Text,
			Emotion:   m.Emotion,
			CreatedAt: m.Timestamp,
		})
	}
	return messages, nil
}

// Profile fetches the backend's record of the authenticated user.
func (c *Client) Profile(ctx context.Context) (*User, error) {
	if c.baseURL == "" {
		return nil, ErrNotConfigured
	}

	req, err := c.newRequest(ctx, http.MethodGet, "/api/user", nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("user request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.errorFromResponse(resp)
	}

	var user User
	if err := json.NewDecoder(resp.Body).Decode(&user); err != nil {
		return nil, fmt.Errorf("decode user response: %w", err)
	}
	return &user, nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	return req, nil
}

// errorFromResponse turns a non-2xx reply into an error, preferring
// the backend's {"detail": ...} body when present.
func (c *Client) errorFromResponse(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	var detail errorResponse
	if err := json.Unmarshal(body, &detail); err == nil && detail.Detail != "" {
		return fmt.Errorf("backend returned %s: %s", resp.Status, detail.Detail)
	}

	trimmed := strings.TrimSpace(string(body))
	if trimmed != "" {
		return fmt.Errorf("backend returned %s: %s", resp.Status, trimmed)
	}
	return fmt.Errorf("backend returned %s", resp.Status)
}
