// Package salla talks to the Salla merchant platform: the OAuth install flow
// and the account lookup that names the installing store.
package salla

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/ferpoks/wabridge/internal/config"
	"golang.org/x/oauth2"
)

var (
	ErrExchange  = errors.New("salla token exchange failed")
	ErrStoreInfo = errors.New("salla store lookup failed")
)

// Scopes requested at install time.
var Scopes = []string{"read_orders", "read_customers", "webhooks"}

// defaultTokenLifetime applies when the token response carries no expiry.
const defaultTokenLifetime = time.Hour

// Authorization is the outcome of a completed install.
type Authorization struct {
	StoreID      string
	StoreDomain  string
	AccessToken  string
	RefreshToken string
	ExpiresIn    time.Duration
}

type Client struct {
	oauth       *oauth2.Config
	userInfoURL string
	http        *http.Client
}

// NewClient builds a client whose redirect target is appURL + "/callback".
func NewClient(cfg config.SallaConfig, appURL string) *Client {
	return &Client{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  strings.TrimRight(appURL, "/") + "/callback",
			Scopes:       Scopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:   cfg.AuthURL,
				TokenURL:  cfg.TokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		userInfoURL: cfg.UserInfoURL,
		http:        &http.Client{Timeout: cfg.Timeout},
	}
}

// AuthCodeURL is where /install sends the merchant.
func (c *Client) AuthCodeURL(state string) string {
	return c.oauth.AuthCodeURL(state)
}

// Authorize trades an authorization code for tokens and looks up which
// store granted them.
func (c *Client) Authorize(ctx context.Context, code string) (*Authorization, error) {
	tok, err := c.oauth.Exchange(context.WithValue(ctx, oauth2.HTTPClient, c.http), code)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExchange, err)
	}

	info, err := c.StoreInfo(ctx, tok.AccessToken)
	if err != nil {
		return nil, err
	}

	expiresIn := defaultTokenLifetime
	if !tok.Expiry.IsZero() {
		expiresIn = time.Until(tok.Expiry)
	}

	return &Authorization{
		StoreID:      info.ID,
		StoreDomain:  info.Domain,
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		ExpiresIn:    expiresIn,
	}, nil
}

// StoreInfo identifies the merchant behind accessToken.
type StoreInfo struct {
	ID     string
	Domain string
}

type userInfoResponse struct {
	Data struct {
		Merchant struct {
			ID     json.Number `json:"id"`
			Domain string      `json:"domain"`
		} `json:"merchant"`
	} `json:"data"`
}

func (c *Client) StoreInfo(ctx context.Context, accessToken string) (*StoreInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.userInfoURL, nil)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreInfo, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", ErrStoreInfo, resp.StatusCode)
	}

	var body userInfoResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("%w: decoding response: %v", ErrStoreInfo, err)
	}
	id := body.Data.Merchant.ID.String()
	if id == "" {
		return nil, fmt.Errorf("%w: response has no merchant id", ErrStoreInfo)
	}

	return &StoreInfo{ID: id, Domain: body.Data.Merchant.Domain}, nil
}
