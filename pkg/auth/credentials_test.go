package auth

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestCredentialManager(t *testing.T) {
	manager, mockStore := NewMockManager()

	cred := &Credential{Group: "nogi", RefreshToken: "refresh_token_1234567890"}
	if err := manager.Store(cred); err != nil {
		t.Fatalf("Failed to store credential: %v", err)
	}
	if cred.LastModified.IsZero() {
		t.Error("Store should stamp LastModified")
	}

	token, err := manager.RefreshToken("nogi")
	if err != nil {
		t.Fatalf("Failed to retrieve token: %v", err)
	}
	if token != cred.RefreshToken {
		t.Errorf("Token mismatch: got %s, want %s", token, cred.RefreshToken)
	}

	creds, err := manager.List()
	if err != nil {
		t.Fatalf("Failed to list credentials: %v", err)
	}
	if len(creds) != 1 || creds[0].Group != "nogi" {
		t.Errorf("Unexpected list: %+v", creds)
	}

	sanitized := SanitizeCredential(cred)
	if sanitized.RefreshToken != "refr...7890" {
		t.Errorf("Token should be masked, got %s", sanitized.RefreshToken)
	}
	if sanitized.Group != "nogi" {
		t.Error("Group should not be masked")
	}

	if err := manager.Delete("nogi"); err != nil {
		t.Errorf("Failed to delete credential: %v", err)
	}
	if _, err := manager.Retrieve("nogi"); !errors.Is(err, ErrCredentialsNotFound) {
		t.Errorf("Expected ErrCredentialsNotFound, got %v", err)
	}
	if mockStore.Count() != 0 {
		t.Errorf("Expected 0 credentials after deletion, got %d", mockStore.Count())
	}
}

func TestManagerStoreValidation(t *testing.T) {
	manager, _ := NewMockManager()

	if err := manager.Store(&Credential{RefreshToken: "x"}); err == nil {
		t.Error("Expected error for missing group")
	}
	if err := manager.Store(&Credential{Group: "saku"}); err == nil {
		t.Error("Expected error for missing refresh token")
	}
}

func TestManagerFallsBackToEnvironment(t *testing.T) {
	t.Setenv(EnvVar("hina"), "env-refresh")

	failing := NewMockStore()
	failing.RetrieveError = ErrStoreUnavailable
	manager := NewManagerWithStores(failing, NewEnvironmentStore())

	token, err := manager.RefreshToken("hina")
	if err != nil {
		t.Fatalf("Expected env fallback, got %v", err)
	}
	if token != "env-refresh" {
		t.Errorf("Expected env-refresh, got %s", token)
	}

	// writes skip the failing store's neighbours only when it rejects them
	failing.StoreError = ErrStoreUnavailable
	if err := manager.Store(&Credential{Group: "hina", RefreshToken: "x"}); err == nil {
		t.Error("Expected error when no store accepts the credential")
	}
}

func TestEncryptedFileStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credentials.enc")
	t.Setenv("TALKSYNC_PASSPHRASE", "test_passphrase_123")

	store, err := NewEncryptedFileStore(path)
	if err != nil {
		t.Fatalf("Failed to create encrypted store: %v", err)
	}

	for _, cred := range []*Credential{
		{Group: "nogi", RefreshToken: "secret_nogi_token"},
		{Group: "saku", RefreshToken: "secret_saku_token"},
	} {
		if err := store.Store(cred); err != nil {
			t.Fatalf("Failed to store in encrypted file: %v", err)
		}
	}

	retrieved, err := store.Retrieve("saku")
	if err != nil {
		t.Fatalf("Failed to retrieve from encrypted file: %v", err)
	}
	if retrieved.RefreshToken != "secret_saku_token" {
		t.Errorf("Token mismatch after encryption/decryption")
	}

	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if bytes.Contains(content, []byte("secret_nogi_token")) {
		t.Error("File contains a plaintext refresh token")
	}

	// a second store with the same passphrase reads the same file
	reopened, err := NewEncryptedFileStore(path)
	if err != nil {
		t.Fatal(err)
	}
	list, err := reopened.List()
	if err != nil || len(list) != 2 {
		t.Fatalf("Expected 2 credentials, got %d (%v)", len(list), err)
	}

	if err := store.Delete("nogi"); err != nil {
		t.Fatal(err)
	}
	if err := store.Delete("saku"); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("Expected file to be removed with the last credential")
	}
}

func TestEncryptedFileStoreWrongPassphrase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credentials.enc")

	t.Setenv("TALKSYNC_PASSPHRASE", "first")
	store, err := NewEncryptedFileStore(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := store.Store(&Credential{Group: "nogi", RefreshToken: "t"}); err != nil {
		t.Fatal(err)
	}

	t.Setenv("TALKSYNC_PASSPHRASE", "second")
	other, err := NewEncryptedFileStore(path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := other.Retrieve("nogi"); err == nil || errors.Is(err, ErrCredentialsNotFound) {
		t.Errorf("Expected a decryption error, got %v", err)
	}
}

func TestEnvironmentStore(t *testing.T) {
	t.Setenv("TALKSYNC_SAKU_REFRESH_TOKEN", "env_refresh")

	store := NewEnvironmentStore()

	cred, err := store.Retrieve("saku")
	if err != nil {
		t.Fatalf("Failed to retrieve from environment: %v", err)
	}
	if cred.RefreshToken != "env_refresh" {
		t.Errorf("Token mismatch: got %s, want env_refresh", cred.RefreshToken)
	}

	if _, err := store.Retrieve("nogi"); !errors.Is(err, ErrCredentialsNotFound) {
		t.Errorf("Expected ErrCredentialsNotFound, got %v", err)
	}
	if !store.Exists("saku") || store.Exists("nogi") {
		t.Error("Exists does not match the environment")
	}

	list, _ := store.List()
	if len(list) != 1 || list[0].Group != "saku" {
		t.Errorf("Unexpected list: %+v", list)
	}

	if err := store.Store(&Credential{}); err != ErrStoreUnavailable {
		t.Error("Expected ErrStoreUnavailable for environment store")
	}
}

func TestMockStoreErrorInjection(t *testing.T) {
	store := NewMockStore()
	store.ListError = fmt.Errorf("injected error")

	if _, err := store.List(); err == nil || err.Error() != "injected error" {
		t.Error("Expected injected error")
	}
}

func TestShowRefreshTokenGuide(t *testing.T) {
	var buf bytes.Buffer
	ShowRefreshTokenGuide(&buf, "hina")

	out := buf.String()
	for _, want := range []string{"hinaConfig.json", "TALKSYNC_HINA_REFRESH_TOKEN", "keyring"} {
		if !strings.Contains(out, want) {
			t.Errorf("Guide should mention %q", want)
		}
	}
}
