// Package google wraps the Google OAuth token endpoints and the Business
// Profile APIs used for review polling.
package google

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Scopes requested on connect. business.manage covers account, location and
// review access.
var Scopes = []string{
	"openid",
	"email",
	"https://www.googleapis.com/auth/business.manage",
}

// Config holds OAuth client credentials.
type Config struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
	HTTPClient   *http.Client

	// Endpoint overrides for tests. Zero values select the public Google
	// endpoints.
	AuthBaseURL      string
	TokenURL         string
	AccountsBaseURL  string
	LocationsBaseURL string
	ReviewsBaseURL   string
}

// Client talks to Google.
type Client struct {
	cfg        Config
	httpClient *http.Client
}

// New creates a client.
func New(cfg Config) *Client {
	if cfg.AuthBaseURL == "" {
		cfg.AuthBaseURL = "https://accounts.google.com/o/oauth2/v2/auth"
	}
	if cfg.TokenURL == "" {
		cfg.TokenURL = "https://oauth2.googleapis.com/token"
	}
	if cfg.AccountsBaseURL == "" {
		cfg.AccountsBaseURL = "https://mybusinessaccountmanagement.googleapis.com/v1"
	}
	if cfg.LocationsBaseURL == "" {
		cfg.LocationsBaseURL = "https://mybusinessbusinessinformation.googleapis.com/v1"
	}
	if cfg.ReviewsBaseURL == "" {
		cfg.ReviewsBaseURL = "https://mybusiness.googleapis.com/v4"
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{cfg: cfg, httpClient: httpClient}
}

// AuthURL builds the consent URL. access_type=offline plus prompt=consent
// makes Google return a refresh token on reconnects too.
func (c *Client) AuthURL(state string) string {
	p := url.Values{}
	p.Set("response_type", "code")
	p.Set("access_type", "offline")
	p.Set("prompt", "consent")
	p.Set("client_id", c.cfg.ClientID)
	p.Set("redirect_uri", c.cfg.RedirectURI)
	p.Set("scope", strings.Join(Scopes, " "))
	p.Set("state", state)
	p.Set("include_granted_scopes", "true")
	return c.cfg.AuthBaseURL + "?" + p.Encode()
}

// TokenResponse is a token endpoint response.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	ExpiresIn    int    `json:"expires_in,omitempty"`
	Scope        string `json:"scope,omitempty"`
	TokenType    string `json:"token_type,omitempty"`
	IDToken      string `json:"id_token,omitempty"`
}

// ExchangeCode swaps an authorization code for tokens.
func (c *Client) ExchangeCode(ctx context.Context, code string) (TokenResponse, error) {
	form := url.Values{}
	form.Set("code", code)
	form.Set("client_id", c.cfg.ClientID)
	form.Set("client_secret", c.cfg.ClientSecret)
	form.Set("redirect_uri", c.cfg.RedirectURI)
	form.Set("grant_type", "authorization_code")
	return c.token(ctx, form)
}

// RefreshToken obtains a fresh access token from a refresh token.
func (c *Client) RefreshToken(ctx context.Context, refreshToken string) (TokenResponse, error) {
	form := url.Values{}
	form.Set("refresh_token", refreshToken)
	form.Set("client_id", c.cfg.ClientID)
	form.Set("client_secret", c.cfg.ClientSecret)
	form.Set("grant_type", "refresh_token")
	return c.token(ctx, form)
}

func (c *Client) token(ctx context.Context, form url.Values) (TokenResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.TokenURL,
		strings.NewReader(form.Encode()))
	if err != nil {
		return TokenResponse{}, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return TokenResponse{}, fmt.Errorf("google token: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		raw, _ := io.ReadAll(resp.Body)
		return TokenResponse{}, fmt.Errorf("google token: status %d: %s",
			resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	var out TokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return TokenResponse{}, fmt.Errorf("google token: decode: %w", err)
	}
	return out, nil
}

// Account is a Business Profile account.
type Account struct {
	Name        string `json:"name"`
	AccountName string `json:"accountName,omitempty"`
}

// ListAccounts lists the Business Profile accounts visible to the token.
func (c *Client) ListAccounts(ctx context.Context, accessToken string) ([]Account, error) {
	var out struct {
		Accounts []Account `json:"accounts"`
	}
	if err := c.get(ctx, accessToken, c.cfg.AccountsBaseURL+"/accounts", &out); err != nil {
		return nil, err
	}
	return out.Accounts, nil
}

// Location is a Business Profile location under an account.
type Location struct {
	Name  string `json:"name"`
	Title string `json:"title,omitempty"`
}

// ListLocations lists locations under an account resource name
// (e.g. "accounts/123").
func (c *Client) ListLocations(ctx context.Context, accessToken, account string) ([]Location, error) {
	u := fmt.Sprintf("%s/%s/locations?readMask=name,title",
		c.cfg.LocationsBaseURL, account)
	var out struct {
		Locations []Location `json:"locations"`
	}
	if err := c.get(ctx, accessToken, u, &out); err != nil {
		return nil, err
	}
	return out.Locations, nil
}

// Review is a Business Profile review.
type Review struct {
	ReviewID   string `json:"reviewId,omitempty"`
	StarRating string `json:"starRating,omitempty"`
	Comment    string `json:"comment,omitempty"`
	Reviewer   struct {
		DisplayName string `json:"displayName,omitempty"`
	} `json:"reviewer,omitempty"`
	CreateTime string `json:"createTime,omitempty"`
	UpdateTime string `json:"updateTime,omitempty"`
	Name       string `json:"name,omitempty"`
}

// ListReviews lists reviews for a location, newest update first. The
// location argument is the full resource name including the account prefix.
func (c *Client) ListReviews(ctx context.Context, accessToken, location string) ([]Review, error) {
	u := fmt.Sprintf("%s/%s/reviews?%s", c.cfg.ReviewsBaseURL, location,
		url.Values{"orderBy": {"updateTime desc"}, "pageSize": {"20"}}.Encode())
	var out struct {
		Reviews []Review `json:"reviews"`
	}
	if err := c.get(ctx, accessToken, u, &out); err != nil {
		return nil, err
	}
	return out.Reviews, nil
}

func (c *Client) get(ctx context.Context, accessToken, u string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("google api: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		raw, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("google api: status %d: %s",
			resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	return json.NewDecoder(resp.Body).Decode(v)
}

// StarToNumber converts the star rating enum to 1..5; unknown values map to
// nil.
func StarToNumber(star string) *int {
	var n int
	switch star {
	case "ONE":
		n = 1
	case "TWO":
		n = 2
	case "THREE":
		n = 3
	case "FOUR":
		n = 4
	case "FIVE":
		n = 5
	default:
		return nil
	}
	return &n
}
