package gitengine

import (
	"strings"

	"github.com/go-git/go-git/v5/plumbing/transport"
	"github.com/go-git/go-git/v5/plumbing/transport/http"
)

// Provider supplies credentials for the remotes of one hosting service.
type Provider interface {
	// Name returns the provider name (e.g., "github")
	Name() string

	// Matches reports whether the remote endpoint belongs to this provider
	Matches(ep *transport.Endpoint) bool

	// Auth returns the authentication method for this provider (nil if no auth)
	Auth() transport.AuthMethod
}

// Credentials picks transport auth for remote URLs. Only HTTP(S) remotes
// get provider credentials; SSH and local remotes use the transport
// defaults.
type Credentials struct {
	providers []Provider
}

// NewCredentials creates credentials backed by providers, checked in order.
func NewCredentials(providers ...Provider) *Credentials {
	return &Credentials{providers: providers}
}

// Add appends a provider.
func (c *Credentials) Add(p Provider) {
	c.providers = append(c.providers, p)
}

// Provider returns the provider of url, or nil.
func (c *Credentials) Provider(url string) Provider {
	ep, err := transport.NewEndpoint(url)
	if err != nil {
		return nil
	}
	if ep.Protocol != "http" && ep.Protocol != "https" {
		return nil
	}
	for _, p := range c.providers {
		if p.Matches(ep) {
			return p
		}
	}
	return nil
}

// For returns the auth for url, or nil for anonymous access.
func (c *Credentials) For(url string) transport.AuthMethod {
	if p := c.Provider(url); p != nil {
		return p.Auth()
	}
	return nil
}

// TokenProvider authenticates one host with a token sent as basic auth.
type TokenProvider struct {
	name  string
	host  string
	user  string
	token string
}

// NewTokenProvider creates a provider for host. An empty token means
// anonymous access.
func NewTokenProvider(name, host, user, token string) *TokenProvider {
	return &TokenProvider{name: name, host: strings.ToLower(host), user: user, token: token}
}

// NewGitHubProvider creates a provider for github.com with an optional
// personal access token.
func NewGitHubProvider(token string) *TokenProvider {
	// GitHub ignores the user name of token auth
	return NewTokenProvider("github", "github.com", "git", token)
}

func (p *TokenProvider) Name() string {
	return p.name
}

func (p *TokenProvider) Matches(ep *transport.Endpoint) bool {
	return strings.ToLower(ep.Host) == p.host
}

func (p *TokenProvider) Auth() transport.AuthMethod {
	if p.token == "" {
		return nil
	}
	return &http.BasicAuth{
		Username: p.user,
		Password: p.token,
	}
}
