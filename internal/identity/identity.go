// Package identity answers "who owns the data" for the store.
package identity

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Provider yields the current owner id, or false when nobody is signed in.
type Provider interface {
	OwnerID() (string, bool)
}

// Static is a fixed owner id. The empty value means no owner.
type Static string

func (s Static) OwnerID() (string, bool) {
	return string(s), s != ""
}

// Credentials is the saved sign-in state, stored at <dir>/auth.json.
type Credentials struct {
	APIKey    string `json:"api_key"`
	UserID    string `json:"user_id"`
	Email     string `json:"email,omitempty"`
	ServerURL string `json:"server_url,omitempty"`
}

// OwnerID reports the signed-in user. Safe on a nil receiver.
func (c *Credentials) OwnerID() (string, bool) {
	if c == nil || c.UserID == "" {
		return "", false
	}
	return c.UserID, true
}

const credentialsFile = "auth.json"

// LoadCredentials reads credentials from dir. Missing file returns nil, nil.
func LoadCredentials(dir string) (*Credentials, error) {
	data, err := os.ReadFile(filepath.Join(dir, credentialsFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var creds Credentials
	if err := json.Unmarshal(data, &creds); err != nil {
		return nil, fmt.Errorf("parse %s: %w", credentialsFile, err)
	}
	return &creds, nil
}

// SaveCredentials writes credentials to dir with 0600 permissions.
func SaveCredentials(dir string, creds *Credentials) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	data, err := json.MarshalIndent(creds, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, credentialsFile), data, 0o600)
}

// ClearCredentials removes the credentials file.
func ClearCredentials(dir string) error {
	err := os.Remove(filepath.Join(dir, credentialsFile))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}
