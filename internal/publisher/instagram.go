package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// InstagramPublisher posts via the Graph API's two-phase flow: create a
// media container, then publish it. Both phases stay inside this adapter so
// the executor still sees a single publish call.
type InstagramPublisher struct {
	BaseURL string
	Client  *http.Client
}

func NewInstagramPublisher(baseURL string) *InstagramPublisher {
	if baseURL == "" {
		baseURL = "https://graph.facebook.com/v19.0"
	}
	return &InstagramPublisher{BaseURL: baseURL, Client: newHTTPClient()}
}

func (p *InstagramPublisher) Platform() string { return "instagram" }

type igIDResp struct {
	ID string `json:"id"`
}

func (p *InstagramPublisher) Publish(ctx context.Context, accessToken string, content Content) (*Result, error) {
	if content.AccountID == "" {
		return nil, &Error{Platform: p.Platform(), StatusCode: 400, Message: "account_id (ig business account id) is required"}
	}
	if len(content.MediaURLs) == 0 {
		return nil, &Error{Platform: p.Platform(), StatusCode: 400, Message: "instagram posts require at least one media url"}
	}

	containerID, err := p.createContainer(ctx, accessToken, content)
	if err != nil {
		return nil, err
	}
	return p.publishContainer(ctx, accessToken, content.AccountID, containerID)
}

func (p *InstagramPublisher) createContainer(ctx context.Context, accessToken string, content Content) (string, error) {
	form := url.Values{}
	form.Set("image_url", content.MediaURLs[0])
	if content.Text != "" {
		form.Set("caption", content.Text)
	}
	form.Set("access_token", accessToken)

	endpoint := fmt.Sprintf("%s/%s/media", strings.TrimRight(p.BaseURL, "/"), content.AccountID)
	decoded, err := p.postForm(ctx, endpoint, form)
	if err != nil {
		return "", err
	}
	if decoded.ID == "" {
		return "", &Error{Platform: p.Platform(), StatusCode: 200, Message: "empty container id in response"}
	}
	return decoded.ID, nil
}

func (p *InstagramPublisher) publishContainer(ctx context.Context, accessToken, accountID, containerID string) (*Result, error) {
	form := url.Values{}
	form.Set("creation_id", containerID)
	form.Set("access_token", accessToken)

	endpoint := fmt.Sprintf("%s/%s/media_publish", strings.TrimRight(p.BaseURL, "/"), accountID)
	decoded, err := p.postForm(ctx, endpoint, form)
	if err != nil {
		return nil, err
	}
	if decoded.ID == "" {
		return nil, &Error{Platform: p.Platform(), StatusCode: 200, Message: "empty media id in response"}
	}
	return &Result{
		RemoteID: decoded.ID,
		URL:      "https://www.instagram.com/p/" + decoded.ID,
	}, nil
}

func (p *InstagramPublisher) postForm(ctx context.Context, endpoint string, form url.Values) (*igIDResp, error) {
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

	var decoded igIDResp
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, err
	}
	return &decoded, nil
}
