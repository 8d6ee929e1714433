package talk

import (
	"context"
	"sort"
	"sync"

	"talksync/pkg/errors"
	"talksync/pkg/logger"
)

// CredentialSet holds the access token of each group for one run. Tokens
// are written once before syncing starts and read concurrently afterwards.
type CredentialSet struct {
	mu     sync.RWMutex
	tokens map[string]string
}

// NewCredentialSet returns an empty set
func NewCredentialSet() *CredentialSet {
	return &CredentialSet{tokens: make(map[string]string)}
}

// Set stores the access token of group
func (s *CredentialSet) Set(group, token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[group] = token
}

// Get returns the access token of group
func (s *CredentialSet) Get(group string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	token, ok := s.tokens[group]
	return token, ok
}

// Groups lists the groups holding a token
func (s *CredentialSet) Groups() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	groups := make([]string, 0, len(s.tokens))
	for g := range s.tokens {
		groups = append(groups, g)
	}
	sort.Strings(groups)
	return groups
}

// ExchangeToken trades a refresh token for an access token
func (c *Client) ExchangeToken(ctx context.Context, refreshToken string) (string, error) {
	if refreshToken == "" {
		return "", errors.New(errors.ErrorTypeTokenExchange, "no refresh token configured")
	}

	var resp TokenResponse
	if err := c.PostJSON(ctx, c.group.TokenURL(), TokenRequest{RefreshToken: refreshToken}, &resp); err != nil {
		return "", errors.Wrap(errors.ErrorTypeTokenExchange, err, "token exchange failed")
	}
	if resp.AccessToken == "" {
		return "", errors.New(errors.ErrorTypeTokenExchange, "token response carried no access_token")
	}
	return resp.AccessToken, nil
}

// TokenTarget pairs a group client with its refresh token
type TokenTarget struct {
	Client       *Client
	RefreshToken string
}

// TokenManager acquires access tokens and records them in a CredentialSet
type TokenManager struct {
	creds  *CredentialSet
	logger logger.Logger
}

// NewTokenManager creates a manager with an empty credential set
func NewTokenManager(log logger.Logger) *TokenManager {
	if log == nil {
		log = logger.GetLogger()
	}
	return &TokenManager{creds: NewCredentialSet(), logger: log}
}

// Credentials returns the tokens acquired so far
func (m *TokenManager) Credentials() *CredentialSet {
	return m.creds
}

// AcquireAccessToken exchanges the refresh token of one group. On failure
// the group has no access token for the rest of the run.
func (m *TokenManager) AcquireAccessToken(ctx context.Context, target TokenTarget) (string, error) {
	group := target.Client.Group().ID

	token, err := target.Client.ExchangeToken(ctx, target.RefreshToken)
	if err != nil {
		m.logger.WithError(err).ErrorWithFields("failed to acquire access token", map[string]interface{}{
			"group": group,
		})
		return "", err
	}

	m.creds.Set(group, token)
	m.logger.InfoWithFields("access token acquired", map[string]interface{}{
		"group": group,
	})
	return token, nil
}

// AcquireAll acquires tokens one group at a time and returns the failures
// keyed by group id
func (m *TokenManager) AcquireAll(ctx context.Context, targets []TokenTarget) map[string]error {
	failures := make(map[string]error)
	for _, target := range targets {
		if _, err := m.AcquireAccessToken(ctx, target); err != nil {
			failures[target.Client.Group().ID] = err
		}
	}
	return failures
}
