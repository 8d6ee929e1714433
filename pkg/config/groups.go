package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"talksync/pkg/errors"
)

// DefaultRootPath is used when a group config leaves rootPath empty
const DefaultRootPath = "data/messages/"

// Member is one tracked member of a group
type Member struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// UnmarshalJSON accepts the member id as either a JSON string or number
func (m *Member) UnmarshalJSON(data []byte) error {
	var raw struct {
		ID   json.RawMessage `json:"id"`
		Name string          `json:"name"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	m.Name = raw.Name
	m.ID = ""

	id := bytes.TrimSpace(raw.ID)
	if len(id) == 0 || bytes.Equal(id, []byte("null")) {
		return nil
	}
	if id[0] == '"' {
		return json.Unmarshal(id, &m.ID)
	}

	var n json.Number
	dec := json.NewDecoder(bytes.NewReader(id))
	dec.UseNumber()
	if err := dec.Decode(&n); err != nil {
		return fmt.Errorf("member id must be a string or number: %w", err)
	}
	m.ID = n.String()
	return nil
}

// GroupConfig is the per-group input file. It is read once per run and
// never modified while the run is in progress.
type GroupConfig struct {
	Group    string   `json:"-"`
	RootPath string   `json:"rootPath"`
	Token    string   `json:"token"`
	Members  []Member `json:"member"`
}

// groupFile mirrors the on-disk layout including the snake_case aliases
type groupFile struct {
	RootPath     string   `json:"rootPath"`
	RootPathAlt  string   `json:"root_path"`
	Token        string   `json:"token"`
	RefreshToken string   `json:"refresh_token"`
	Member       []Member `json:"member"`
	Members      []Member `json:"members"`
}

// GroupConfigPath returns "<dir>/<group>Config.json"
func GroupConfigPath(dir, group string) string {
	return filepath.Join(dir, group+"Config.json")
}

// LoadGroup reads and validates the config file for group. A missing file
// yields ErrorTypeConfigMissing; unreadable or invalid content yields
// ErrorTypeConfigMalformed.
func LoadGroup(dir, group string) (*GroupConfig, error) {
	path := GroupConfigPath(dir, group)

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Wrap(errors.ErrorTypeConfigMissing, err,
				fmt.Sprintf("no config file for group %s at %s", group, path))
		}
		return nil, errors.Wrap(errors.ErrorTypeConfigMalformed, err,
			fmt.Sprintf("failed to read config file %s", path))
	}

	var raw groupFile
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, errors.Wrap(errors.ErrorTypeConfigMalformed, err,
			fmt.Sprintf("failed to parse config file %s", path))
	}

	cfg := &GroupConfig{
		Group:    group,
		RootPath: firstNonEmpty(raw.RootPath, raw.RootPathAlt, DefaultRootPath),
		Token:    firstNonEmpty(raw.Token, raw.RefreshToken),
		Members:  raw.Member,
	}
	if len(cfg.Members) == 0 {
		cfg.Members = raw.Members
	}

	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(errors.ErrorTypeConfigMalformed, err,
			fmt.Sprintf("invalid config file %s", path))
	}

	return cfg, nil
}

// Validate checks member entries. The refresh token may be empty here since
// it can also come from the credential store.
func (g *GroupConfig) Validate() error {
	seen := make(map[string]bool, len(g.Members))
	for i, m := range g.Members {
		if m.ID == "" {
			return fmt.Errorf("member %d: id is required", i+1)
		}
		if m.Name == "" {
			return fmt.Errorf("member %d: name is required", i+1)
		}
		if m.Name == "." || m.Name == ".." || strings.ContainsAny(m.Name, `/\`) {
			return fmt.Errorf("member %d: name %q is not a valid directory name", i+1, m.Name)
		}
		if seen[m.Name] {
			return fmt.Errorf("member %d: duplicate name %q", i+1, m.Name)
		}
		seen[m.Name] = true
	}
	return nil
}

// MemberDir returns the storage directory for a member
func (g *GroupConfig) MemberDir(m Member) string {
	return filepath.Join(g.RootPath, m.Name)
}

// Save writes the group config to "<dir>/<group>Config.json"
func (g *GroupConfig) Save(dir string) error {
	data, err := json.MarshalIndent(g, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal group config: %w", err)
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(GroupConfigPath(dir, g.Group), data, 0600); err != nil {
		return fmt.Errorf("failed to write group config: %w", err)
	}
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
