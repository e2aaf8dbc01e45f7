package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

type FacebookPublisher struct {
	BaseURL string
	Client  *http.Client
}

func NewFacebookPublisher(baseURL string) *FacebookPublisher {
	if baseURL == "" {
		baseURL = "https://graph.facebook.com/v19.0"
	}
	return &FacebookPublisher{BaseURL: baseURL, Client: newHTTPClient()}
}

func (p *FacebookPublisher) Platform() string { return "facebook" }

type facebookPostResp struct {
	ID string `json:"id"`
}

func (p *FacebookPublisher) Publish(ctx context.Context, accessToken string, content Content) (*Result, error) {
	if content.AccountID == "" {
		return nil, &Error{Platform: p.Platform(), StatusCode: 400, Message: "account_id (page id) is required"}
	}

	form := url.Values{}
	form.Set("message", content.Text)
	if content.LinkURL != "" {
		form.Set("link", content.LinkURL)
	}
	form.Set("access_token", accessToken)

	endpoint := fmt.Sprintf("%s/%s/feed", strings.TrimRight(p.BaseURL, "/"), content.AccountID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, apiError(p.Platform(), resp)
	}

	var decoded facebookPostResp
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, err
	}
	if decoded.ID == "" {
		return nil, &Error{Platform: p.Platform(), StatusCode: resp.StatusCode, Message: "empty post id in response"}
	}

	return &Result{
		RemoteID: decoded.ID,
		URL:      "https://www.facebook.com/" + decoded.ID,
	}, nil
}
