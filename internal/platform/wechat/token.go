package wechat

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/oauth2"
)

// accessTokenSource fetches client-credential access tokens. It is wrapped in
// oauth2.ReuseTokenSource so a token is reused until shortly before expiry.
type accessTokenSource struct {
	ctx     context.Context
	baseURL string
	appID   string
	secret  string
	client  *http.Client
}

type tokenResponse struct {
	apiStatus
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
}

// Token implements oauth2.TokenSource.
func (s *accessTokenSource) Token() (*oauth2.Token, error) {
	q := url.Values{}
	q.Set("grant_type", "client_credential")
	q.Set("appid", s.appID)
	q.Set("secret", s.secret)

	req, err := http.NewRequestWithContext(s.ctx, http.MethodGet, s.baseURL+"/cgi-bin/token?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch access token: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	var tr tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return nil, fmt.Errorf("failed to decode access token response: %w", err)
	}
	if err := tr.err(); err != nil {
		return nil, err
	}
	if tr.AccessToken == "" {
		return nil, fmt.Errorf("%w: empty access token", ErrAPI)
	}

	return &oauth2.Token{
		AccessToken: tr.AccessToken,
		TokenType:   "Bearer",
		Expiry:      time.Now().Add(time.Duration(tr.ExpiresIn) * time.Second),
	}, nil
}
