package auth

import (
	"fmt"
	"os"
	"strings"
	"time"

	"talksync/pkg/talk"
)

// KnownGroups are the groups the keyring and environment stores list
var KnownGroups = talk.GroupIDs()

// EnvironmentStore reads refresh tokens from TALKSYNC_<GROUP>_REFRESH_TOKEN.
// It is read-only.
type EnvironmentStore struct{}

// NewEnvironmentStore creates a new environment-based credential store
func NewEnvironmentStore() *EnvironmentStore {
	return &EnvironmentStore{}
}

// EnvVar returns the variable holding the refresh token of group
func EnvVar(group string) string {
	return fmt.Sprintf("TALKSYNC_%s_REFRESH_TOKEN", strings.ToUpper(group))
}

// Store is not supported for environment variables
func (e *EnvironmentStore) Store(cred *Credential) error {
	return ErrStoreUnavailable
}

// Retrieve gets the refresh token of group from the environment
func (e *EnvironmentStore) Retrieve(group string) (*Credential, error) {
	if group == "" {
		return nil, ErrInvalidCredentials
	}

	token := os.Getenv(EnvVar(group))
	if token == "" {
		return nil, ErrCredentialsNotFound
	}

	return &Credential{
		Group:        group,
		RefreshToken: token,
		LastModified: time.Now(),
	}, nil
}

// List returns a credential for every known group set in the environment
func (e *EnvironmentStore) List() ([]*Credential, error) {
	var creds []*Credential
	for _, group := range KnownGroups {
		if cred, err := e.Retrieve(group); err == nil {
			creds = append(creds, cred)
		}
	}
	return creds, nil
}

// Delete is not supported for environment variables
func (e *EnvironmentStore) Delete(group string) error {
	return ErrStoreUnavailable
}

// Exists checks if the environment holds a token for group
func (e *EnvironmentStore) Exists(group string) bool {
	return group != "" && os.Getenv(EnvVar(group)) != ""
}
