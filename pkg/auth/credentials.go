package auth

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"time"
)

// Credential is the long-lived refresh token of one group
type Credential struct {
	Group        string    `json:"group"`
	RefreshToken string    `json:"refresh_token"`
	LastModified time.Time `json:"last_modified"`
}

// CredentialStore is the interface for storing and retrieving credentials
type CredentialStore interface {
	// Store saves the credential of a group
	Store(cred *Credential) error

	// Retrieve gets the credential of a group
	Retrieve(group string) (*Credential, error)

	// List returns all stored credentials
	List() ([]*Credential, error)

	// Delete removes the credential of a group
	Delete(group string) error

	// Exists checks if a credential exists for a group
	Exists(group string) bool
}

// Manager handles credential storage with fallback mechanisms
type Manager struct {
	stores []CredentialStore
}

// NewManager creates a credential manager backed by the system keyring when
// available, then an encrypted file, then environment variables
func NewManager() (*Manager, error) {
	var stores []CredentialStore

	keyringStore, err := NewKeyringStore(KnownGroups...)
	if err == nil {
		stores = append(stores, keyringStore)
	}

	configDir, err := getConfigDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get config directory: %w", err)
	}

	encryptedStore, err := NewEncryptedFileStore(filepath.Join(configDir, "credentials.enc"))
	if err != nil {
		return nil, fmt.Errorf("failed to create encrypted store: %w", err)
	}
	stores = append(stores, encryptedStore)

	stores = append(stores, NewEnvironmentStore())

	return &Manager{stores: stores}, nil
}

// Store saves the credential in the first store that accepts it
func (m *Manager) Store(cred *Credential) error {
	if cred == nil || cred.Group == "" {
		return errors.New("group is required")
	}
	if cred.RefreshToken == "" {
		return errors.New("refresh token is required")
	}

	cred.LastModified = time.Now()

	var lastErr error
	for _, store := range m.stores {
		if err := store.Store(cred); err == nil {
			return nil
		} else {
			lastErr = err
		}
	}

	if lastErr != nil {
		return fmt.Errorf("failed to store credentials: %w", lastErr)
	}
	return errors.New("no available credential stores")
}

// Retrieve gets the credential from the first store that has it
func (m *Manager) Retrieve(group string) (*Credential, error) {
	for _, store := range m.stores {
		if cred, err := store.Retrieve(group); err == nil && cred != nil {
			return cred, nil
		}
	}
	return nil, fmt.Errorf("%w for group: %s", ErrCredentialsNotFound, group)
}

// RefreshToken returns the stored refresh token of group
func (m *Manager) RefreshToken(group string) (string, error) {
	cred, err := m.Retrieve(group)
	if err != nil {
		return "", err
	}
	return cred.RefreshToken, nil
}

// List returns the newest credential of every group across all stores
func (m *Manager) List() ([]*Credential, error) {
	byGroup := make(map[string]*Credential)

	for _, store := range m.stores {
		creds, err := store.List()
		if err != nil {
			continue
		}
		for _, cred := range creds {
			if existing, ok := byGroup[cred.Group]; !ok || cred.LastModified.After(existing.LastModified) {
				byGroup[cred.Group] = cred
			}
		}
	}

	result := make([]*Credential, 0, len(byGroup))
	for _, cred := range byGroup {
		result = append(result, cred)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Group < result[j].Group })

	return result, nil
}

// Delete removes the credential from all stores
func (m *Manager) Delete(group string) error {
	var deleted bool
	var lastErr error

	for _, store := range m.stores {
		if err := store.Delete(group); err == nil {
			deleted = true
		} else {
			lastErr = err
		}
	}

	if !deleted && lastErr != nil {
		return fmt.Errorf("failed to delete credentials: %w", lastErr)
	}
	if !deleted {
		return fmt.Errorf("%w for group: %s", ErrCredentialsNotFound, group)
	}

	return nil
}

// getConfigDir returns the per-user talksync configuration directory
func getConfigDir() (string, error) {
	var configDir string

	switch runtime.GOOS {
	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		configDir = filepath.Join(home, "Library", "Application Support", "talksync")
	case "windows":
		configDir = filepath.Join(os.Getenv("APPDATA"), "talksync")
	default:
		if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
			configDir = filepath.Join(xdgConfig, "talksync")
		} else {
			home, err := os.UserHomeDir()
			if err != nil {
				return "", err
			}
			configDir = filepath.Join(home, ".config", "talksync")
		}
	}

	if err := os.MkdirAll(configDir, 0700); err != nil {
		return "", fmt.Errorf("failed to create config directory: %w", err)
	}

	return configDir, nil
}

// SanitizeCredential returns a copy with the token masked
func SanitizeCredential(cred *Credential) *Credential {
	if cred == nil {
		return nil
	}

	return &Credential{
		Group:        cred.Group,
		RefreshToken: MaskToken(cred.RefreshToken),
		LastModified: cred.LastModified,
	}
}

// MaskToken masks all but the first 4 and last 4 characters of a token
func MaskToken(s string) string {
	if len(s) <= 8 {
		return "********"
	}
	return s[:4] + "..." + s[len(s)-4:]
}

// Errors
var (
	ErrCredentialsNotFound = errors.New("credentials not found")
	ErrInvalidCredentials  = errors.New("invalid credentials")
	ErrStoreUnavailable    = errors.New("credential store unavailable")
)
