package api

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Alpaca credential header names.
const (
	HeaderKeyID     = "APCA-API-KEY-ID"
	HeaderKeySecret = "APCA-API-SECRET-KEY"
)

// Profile names a brokerage environment: its base URL and the pair of key
// files that authenticate against it.
type Profile struct {
	Name          string
	BaseURL       string
	KeyIDPath     string
	KeySecretPath string
}

// DefaultKeysDir is where profile key files live unless SNOWBANKER_KEYS_DIR
// overrides it.
const DefaultKeysDir = "keys"

func keysDir() string {
	if v := os.Getenv("SNOWBANKER_KEYS_DIR"); v != "" {
		return v
	}
	return DefaultKeysDir
}

// ResolveProfile maps a selector token to its profile. Recognized tokens are
// "paper"/"p" and "live"/"l"; ok is false for anything else.
func ResolveProfile(token string) (Profile, bool) {
	dir := keysDir()
	switch strings.ToLower(token) {
	case "paper", "p":
		return Profile{
			Name:          "paper",
			BaseURL:       "https://paper-api.alpaca.markets",
			KeyIDPath:     filepath.Join(dir, "alpaca_paper_api.key"),
			KeySecretPath: filepath.Join(dir, "alpaca_paper_secret.key"),
		}, true
	case "live", "l":
		return Profile{
			Name:          "live",
			BaseURL:       "https://api.alpaca.markets",
			KeyIDPath:     filepath.Join(dir, "alpaca_live_api.key"),
			KeySecretPath: filepath.Join(dir, "alpaca_live_secret.key"),
		}, true
	}
	return Profile{}, false
}

// Credentials holds a loaded API key pair.
type Credentials struct {
	KeyID     string
	KeySecret string
}

// LoadCredentials reads both of the profile's key files. Each file is read
// as an opaque string, trimmed of surrounding whitespace. A missing file is
// reported with a message naming which of the two it was.
func (p Profile) LoadCredentials() (Credentials, error) {
	keyID, err := readKeyFile(p.KeyIDPath)
	if err != nil {
		return Credentials{}, fmt.Errorf("failed to load API key file %s: %w", p.KeyIDPath, err)
	}
	keySecret, err := readKeyFile(p.KeySecretPath)
	if err != nil {
		return Credentials{}, fmt.Errorf("failed to load secret key file %s: %w", p.KeySecretPath, err)
	}
	return Credentials{KeyID: keyID, KeySecret: keySecret}, nil
}

func readKeyFile(path string) (string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(b)), nil
}
