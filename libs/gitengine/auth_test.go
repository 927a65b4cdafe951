package gitengine

import (
	"testing"

	"github.com/go-git/go-git/v5/plumbing/transport/http"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCredentialsFor(t *testing.T) {
	c := NewCredentials(NewGitHubProvider("secret"))

	auth := c.For("https://GitHub.com/gomantics/gitmcp.git")
	require.NotNil(t, auth)
	basic, ok := auth.(*http.BasicAuth)
	require.True(t, ok)
	assert.Equal(t, "git", basic.Username)
	assert.Equal(t, "secret", basic.Password)

	assert.Nil(t, c.For("https://gitlab.com/a/b.git"))
	assert.Nil(t, c.For("https://github.com.evil.example/a/b.git"))
	assert.Nil(t, c.For("/local/path"))
	assert.Nil(t, c.Provider("git@github.com:a/b.git"))
}

func TestCredentialsProviderOrder(t *testing.T) {
	c := NewCredentials(NewGitHubProvider(""))
	c.Add(NewTokenProvider("forge", "git.example.com", "oauth2", "tok"))

	p := c.Provider("https://github.com/a/b")
	require.NotNil(t, p)
	assert.Equal(t, "github", p.Name())
	assert.Nil(t, c.For("https://github.com/a/b"))

	p = c.Provider("https://git.example.com:8443/a/b.git")
	require.NotNil(t, p)
	assert.Equal(t, "forge", p.Name())
	basic := c.For("https://git.example.com/a/b.git").(*http.BasicAuth)
	assert.Equal(t, "oauth2", basic.Username)
}
