package ai

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
)

// RemoteGenerator calls the hosted AI service over HTTP.
type RemoteGenerator struct {
	BaseURL string
	APIKey  string
	Client  *http.Client
}

func NewRemoteGenerator(baseURL, apiKey string) *RemoteGenerator {
	if baseURL == "" {
		baseURL = "https://openrouter.ai/api/v1"
	}
	return &RemoteGenerator{
		BaseURL: baseURL,
		APIKey:  apiKey,
		Client:  &http.Client{Timeout: 30 * time.Second},
	}
}

type generateReq struct {
	Kind    string          `json:"kind"`
	Payload json.RawMessage `json:"payload"`
}

type generateResp struct {
	Result json.RawMessage `json:"result"`
	Error  *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func (g *RemoteGenerator) Generate(ctx context.Context, kind string, payload json.RawMessage) (json.RawMessage, error) {
	if g.Client == nil {
		return nil, errors.New("ai: http client is nil")
	}
	if strings.TrimSpace(g.APIKey) == "" {
		return nil, errors.New("ai: api key is required")
	}

	b, err := json.Marshal(generateReq{Kind: kind, Payload: payload})
	if err != nil {
		return nil, err
	}

	url := fmt.Sprintf("%s/generate", strings.TrimRight(g.BaseURL, "/"))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+g.APIKey)

	resp, err := g.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4*1024))
		msg := strings.TrimSpace(string(body))
		if msg == "" {
			msg = fmt.Sprintf("status %d", resp.StatusCode)
		}
		return nil, &Error{StatusCode: resp.StatusCode, Message: msg}
	}

	var decoded generateResp
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, err
	}
	if decoded.Error != nil && decoded.Error.Message != "" {
		return nil, &Error{StatusCode: resp.StatusCode, Message: decoded.Error.Message}
	}
	if len(decoded.Result) == 0 {
		return nil, &Error{StatusCode: resp.StatusCode, Message: "empty result"}
	}
	return decoded.Result, nil
}
