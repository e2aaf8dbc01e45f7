package publisher

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

type LinkedInPublisher struct {
	BaseURL string
	Client  *http.Client
}

func NewLinkedInPublisher(baseURL string) *LinkedInPublisher {
	if baseURL == "" {
		baseURL = "https://api.linkedin.com/v2"
	}
	return &LinkedInPublisher{BaseURL: baseURL, Client: newHTTPClient()}
}

func (p *LinkedInPublisher) Platform() string { return "linkedin" }

type linkedInShareReq struct {
	Author          string                  `json:"author"`
	LifecycleState  string                  `json:"lifecycleState"`
	SpecificContent linkedInSpecificContent `json:"specificContent"`
	Visibility      map[string]string       `json:"visibility"`
}

type linkedInSpecificContent struct {
	ShareContent linkedInShareContent `json:"com.linkedin.ugc.ShareContent"`
}

type linkedInShareContent struct {
	ShareCommentary    linkedInText    `json:"shareCommentary"`
	ShareMediaCategory string          `json:"shareMediaCategory"`
	Media              []linkedInMedia `json:"media,omitempty"`
}

type linkedInText struct {
	Text string `json:"text"`
}

type linkedInMedia struct {
	Status      string `json:"status"`
	OriginalURL string `json:"originalUrl"`
}

type linkedInShareResp struct {
	ID string `json:"id"`
}

func (p *LinkedInPublisher) Publish(ctx context.Context, accessToken string, content Content) (*Result, error) {
	if content.AccountID == "" {
		return nil, &Error{Platform: p.Platform(), StatusCode: 400, Message: "account_id (author urn) is required"}
	}

	share := linkedInShareReq{
		Author:         "urn:li:person:" + strings.TrimPrefix(content.AccountID, "urn:li:person:"),
		LifecycleState: "PUBLISHED",
		SpecificContent: linkedInSpecificContent{
			ShareContent: linkedInShareContent{
				ShareCommentary:    linkedInText{Text: content.Text},
				ShareMediaCategory: "NONE",
			},
		},
		Visibility: map[string]string{
			"com.linkedin.ugc.MemberNetworkVisibility": "PUBLIC",
		},
	}
	if content.LinkURL != "" {
		share.SpecificContent.ShareContent.ShareMediaCategory = "ARTICLE"
		share.SpecificContent.ShareContent.Media = []linkedInMedia{
			{Status: "READY", OriginalURL: content.LinkURL},
		}
	}

	b, err := json.Marshal(share)
	if err != nil {
		return nil, err
	}

	url := fmt.Sprintf("%s/ugcPosts", strings.TrimRight(p.BaseURL, "/"))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("X-Restli-Protocol-Version", "2.0.0")

	resp, err := p.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, apiError(p.Platform(), resp)
	}

	var decoded linkedInShareResp
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, err
	}
	if decoded.ID == "" {
		return nil, &Error{Platform: p.Platform(), StatusCode: resp.StatusCode, Message: "empty share id in response"}
	}

	return &Result{
		RemoteID: decoded.ID,
		URL:      "https://www.linkedin.com/feed/update/" + decoded.ID,
	}, nil
}
