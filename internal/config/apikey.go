package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// APIKeyPlaceholder is written into a freshly created API key file.
const APIKeyPlaceholder = "YOUR_API_KEY_HERE"

// APIKeyEnv is consulted when transcribe.api_key is empty.
const APIKeyEnv = "OPENAI_API_KEY"

// APIKeyFile is the layout of the separate API key file.
type APIKeyFile struct {
	Key string `yaml:"key"`
}

// ResolveAPIKey returns the API key from transcribe.api_key, then
// $OPENAI_API_KEY, then transcribe.api_key_file. A missing key file is
// created with a placeholder. created reports whether that happened. An
// empty key with a nil error means none is configured, which is fine for
// local servers.
func ResolveAPIKey(tc *TranscribeConfig) (key string, created bool, err error) {
	if k := normalizeKey(tc.APIKey); k != "" {
		return k, false, nil
	}
	if k := normalizeKey(os.Getenv(APIKeyEnv)); k != "" {
		return k, false, nil
	}
	if tc.APIKeyFile == "" {
		return "", false, nil
	}
	return LoadAPIKeyFile(tc.APIKeyFile)
}

// LoadAPIKeyFile reads the key from path, creating the file with a
// placeholder if it does not exist.
func LoadAPIKeyFile(path string) (key string, created bool, err error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		if err := writeAPIKeyFile(path); err != nil {
			return "", false, err
		}
		return "", true, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("reading API key file: %w", err)
	}

	var f APIKeyFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return "", false, fmt.Errorf("parsing API key file: %w", err)
	}
	return normalizeKey(f.Key), false, nil
}

func writeAPIKeyFile(path string) error {
	data, err := yaml.Marshal(APIKeyFile{Key: APIKeyPlaceholder})
	if err != nil {
		return fmt.Errorf("encoding API key file: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("creating API key dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("writing API key file: %w", err)
	}
	return nil
}

// normalizeKey strips whitespace and a "Bearer " prefix, and maps the
// placeholder to "".
func normalizeKey(k string) string {
	k = strings.TrimSpace(k)
	k = strings.TrimSpace(strings.TrimPrefix(k, "Bearer "))
	if k == APIKeyPlaceholder {
		return ""
	}
	return k
}
