package dispatch

import (
	"encoding/json"
	"fmt"
	"os"
)

// ServiceAccount holds the fields of a Google service-account key file
// this library uses. The file usually carries more; unknown fields are
// ignored.
type ServiceAccount struct {
	Type         string `json:"type"`
	ProjectID    string `json:"project_id"`
	PrivateKeyID string `json:"private_key_id"`
	PrivateKey   string `json:"private_key"`
	ClientEmail  string `json:"client_email"`
	TokenURI     string `json:"token_uri"`
}

// LoadServiceAccount reads and parses a service-account JSON key file.
func LoadServiceAccount(path string) (*ServiceAccount, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read service account file: %w", err)
	}
	return ParseServiceAccount(data)
}

// ParseServiceAccount parses service-account JSON key material.
func ParseServiceAccount(data []byte) (*ServiceAccount, error) {
	var sa ServiceAccount
	if err := json.Unmarshal(data, &sa); err != nil {
		return nil, fmt.Errorf("parse service account: %w", err)
	}
	if sa.ClientEmail == "" {
		return nil, fmt.Errorf("service account has no client_email")
	}
	if sa.PrivateKey == "" {
		return nil, fmt.Errorf("service account has no private_key")
	}
	return &sa, nil
}
