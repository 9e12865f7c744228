package identity

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/viant/amgproxy/fault"
	"github.com/viant/amgproxy/internal/collection"
	"github.com/viant/amgproxy/internal/conv"
	"golang.org/x/oauth2"
)

const apiVersion = "2019-08-01"

// defaultLifetime applies when neither expires_on nor an exp claim is readable.
const defaultLifetime = 5 * time.Minute

// Config locates the managed identity endpoint.
type Config struct {
	Endpoint string
	Header   string
	ClientID string
	Timeout  time.Duration
}

// Provider hands out token sources keyed by resource.
type Provider struct {
	config  Config
	client  *http.Client
	sources *collection.SyncMap[string, oauth2.TokenSource]
}

// New creates a provider.
func New(config Config) *Provider {
	if config.Timeout <= 0 {
		config.Timeout = 20 * time.Second
	}
	return &Provider{
		config:  config,
		client:  &http.Client{Timeout: config.Timeout},
		sources: collection.NewSyncMap[string, oauth2.TokenSource](),
	}
}

// Available reports whether a managed identity endpoint is configured.
func (p *Provider) Available() bool {
	return p.config.Endpoint != "" && p.config.Header != ""
}

// TokenSource returns a cached source for resource. Tokens are refreshed once
// they expire.
func (p *Provider) TokenSource(resource string) oauth2.TokenSource {
	return p.sources.GetOrPut(resource, func() oauth2.TokenSource {
		return oauth2.ReuseTokenSource(nil, &source{provider: p, resource: resource})
	})
}

type source struct {
	provider *Provider
	resource string
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresOn   any    `json:"expires_on"`
}

func (s *source) Token() (*oauth2.Token, error) {
	return s.provider.fetch(context.Background(), s.resource)
}

func (p *Provider) fetch(ctx context.Context, resource string) (*oauth2.Token, error) {
	if !p.Available() {
		return nil, fault.New(fault.Unreachable, "identity", "managed identity endpoint not available (IDENTITY_ENDPOINT/IDENTITY_HEADER missing)")
	}
	query := url.Values{}
	query.Set("api-version", apiVersion)
	query.Set("resource", resource)
	if p.config.ClientID != "" {
		query.Set("client_id", p.config.ClientID)
	}
	separator := "?"
	if strings.Contains(p.config.Endpoint, "?") {
		separator = "&"
	}
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, p.config.Endpoint+separator+query.Encode(), nil)
	if err != nil {
		return nil, fault.Wrap(fault.Unreachable, "identity", err)
	}
	request.Header.Set("X-IDENTITY-HEADER", p.config.Header)
	request.Header.Set("Metadata", "true")
	response, err := p.client.Do(request)
	if err != nil {
		return nil, fault.Wrap(fault.Unreachable, "identity", err)
	}
	defer response.Body.Close()
	data, err := io.ReadAll(response.Body)
	if err != nil {
		return nil, fault.Wrap(fault.Unreachable, "identity", err)
	}
	if response.StatusCode != http.StatusOK {
		return nil, fault.Newf(fault.Unreachable, "identity", "token request for %v failed (HTTP %d)", resource, response.StatusCode)
	}
	payload := &tokenResponse{}
	if err = json.Unmarshal(data, payload); err != nil {
		return nil, fault.Wrap(fault.Unreachable, "identity", fmt.Errorf("failed to decode token response: %w", err))
	}
	if payload.AccessToken == "" {
		return nil, fault.New(fault.Unreachable, "identity", "managed identity token response missing access_token")
	}
	tokenType := payload.TokenType
	if tokenType == "" {
		tokenType = "Bearer"
	}
	return &oauth2.Token{
		AccessToken: payload.AccessToken,
		TokenType:   tokenType,
		Expiry:      expiry(payload),
	}, nil
}

// expiry prefers expires_on, then the token's own exp claim, then defaultLifetime.
// A zero expiry would make oauth2 cache the token forever.
func expiry(payload *tokenResponse) time.Time {
	if seconds, ok := conv.AsInt64(payload.ExpiresOn); ok && seconds > 0 {
		return time.Unix(seconds, 0)
	}
	claims := jwt.MapClaims{}
	if _, _, err := new(jwt.Parser).ParseUnverified(payload.AccessToken, &claims); err == nil {
		if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
			return exp.Time
		}
	}
	return time.Now().Add(defaultLifetime)
}
