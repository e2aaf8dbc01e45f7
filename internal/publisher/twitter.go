package publisher

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

type TwitterPublisher struct {
	BaseURL string
	Client  *http.Client
}

func NewTwitterPublisher(baseURL string) *TwitterPublisher {
	if baseURL == "" {
		baseURL = "https://api.twitter.com/2"
	}
	return &TwitterPublisher{BaseURL: baseURL, Client: newHTTPClient()}
}

func (p *TwitterPublisher) Platform() string { return "twitter" }

type tweetReq struct {
	Text string `json:"text"`
}

type tweetResp struct {
	Data struct {
		ID string `json:"id"`
	} `json:"data"`
}

func (p *TwitterPublisher) Publish(ctx context.Context, accessToken string, content Content) (*Result, error) {
	text := content.Text
	if content.LinkURL != "" {
		text = text + " " + content.LinkURL
	}
	if strings.TrimSpace(text) == "" {
		return nil, &Error{Platform: p.Platform(), StatusCode: 400, Message: "tweet text is empty"}
	}

	b, err := json.Marshal(tweetReq{Text: text})
	if err != nil {
		return nil, err
	}

	url := fmt.Sprintf("%s/tweets", strings.TrimRight(p.BaseURL, "/"))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := p.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, apiError(p.Platform(), resp)
	}

	var decoded tweetResp
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, err
	}
	if decoded.Data.ID == "" {
		return nil, &Error{Platform: p.Platform(), StatusCode: resp.StatusCode, Message: "empty tweet id in response"}
	}

	return &Result{
		RemoteID: decoded.Data.ID,
		URL:      "https://twitter.com/i/web/status/" + decoded.Data.ID,
	}, nil
}
