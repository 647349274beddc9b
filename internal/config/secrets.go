package config

import (
	"errors"
	"path/filepath"
)

var errSecretNotFound = errors.New("secret not found")

// secretStore holds values kept out of the plain config file.
type secretStore interface {
	Get(key string) (string, error)
}

// SecretsFilePath is <data dir>/secrets.json.
func SecretsFilePath() string {
	return filepath.Join(defaultDataDir(), "secrets.json")
}

// fileSecrets is an owner-only JSON object mapping config keys to secrets.
type fileSecrets struct {
	path string
}

func (f fileSecrets) read() (map[string]string, error) {
	secrets := map[string]string{}
	if err := readJSONFile(f.path, &secrets); err != nil {
		return nil, err
	}
	if secrets == nil {
		secrets = map[string]string{}
	}
	return secrets, nil
}

func (f fileSecrets) Get(key string) (string, error) {
	secrets, err := f.read()
	if err != nil {
		return "", err
	}
	if v := secrets[key]; v != "" {
		return v, nil
	}
	return "", errSecretNotFound
}

func (f fileSecrets) Set(key, value string) error {
	secrets, err := f.read()
	if err != nil {
		return err
	}
	secrets[key] = value
	return writeJSONFile(f.path, secrets)
}
