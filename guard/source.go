package guard

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/99designs/keyring"
	"github.com/adrg/xdg"
	"github.com/mayanks4367/zero-trust/internal/misc"
)

// ErrNoSecret is returned when neither the keyring nor the config holds a
// shared secret.
var ErrNoSecret = errors.New("no guard shared secret configured")

// KeyringConfig selects the OS keyring entry holding the shared secret.
type KeyringConfig struct {
	Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
	Service string `yaml:"service" mapstructure:"service"`
	Key     string `yaml:"key" mapstructure:"key"`
}

// SourceConfig describes where the shared secret comes from. The keyring
// wins over the inline value when both are set.
type SourceConfig struct {
	SharedSecret string        `yaml:"shared_secret" mapstructure:"shared_secret"`
	Keyring      KeyringConfig `yaml:"keyring" mapstructure:"keyring"`
}

// OpenKeyring opens the OS keyring for cfg, falling back to an encrypted
// file keyring under the XDG data directory.
func OpenKeyring(cfg KeyringConfig) (keyring.Keyring, error) {
	service := cfg.Service
	if service == "" {
		service = misc.AppName
	}

	ring, err := keyring.Open(keyring.Config{
		ServiceName:              service,
		KeychainTrustApplication: true,
		FileDir:                  filepath.Join(xdg.DataHome, misc.AppName, "keyring"),
		FilePasswordFunc:         keyring.TerminalPrompt,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open keyring: %w", err)
	}
	return ring, nil
}

// LoadSecret resolves the shared secret described by cfg.
func LoadSecret(cfg SourceConfig) ([]byte, error) {
	if cfg.Keyring.Enabled {
		ring, err := OpenKeyring(cfg.Keyring)
		if err != nil {
			return nil, err
		}
		return SecretFromKeyring(ring, cfg.Keyring.Key)
	}

	if cfg.SharedSecret == "" {
		return nil, ErrNoSecret
	}
	return []byte(cfg.SharedSecret), nil
}

// SecretFromKeyring reads the shared secret stored under key.
func SecretFromKeyring(ring keyring.Keyring, key string) ([]byte, error) {
	item, err := ring.Get(keyName(key))
	if err != nil {
		if errors.Is(err, keyring.ErrKeyNotFound) {
			return nil, ErrNoSecret
		}
		return nil, fmt.Errorf("keyring get failed: %w", err)
	}
	if len(item.Data) == 0 {
		return nil, ErrNoSecret
	}
	return append([]byte(nil), item.Data...), nil
}

// StoreSecret writes the shared secret under key.
func StoreSecret(ring keyring.Keyring, key string, secret []byte) error {
	if len(secret) == 0 {
		return fmt.Errorf("shared secret is empty")
	}
	err := ring.Set(keyring.Item{
		Key:         keyName(key),
		Data:        secret,
		Label:       "zero-trust guard shared secret",
		Description: "HMAC key for vault unlock tokens",
	})
	if err != nil {
		return fmt.Errorf("keyring set failed: %w", err)
	}
	return nil
}

func keyName(key string) string {
	if key == "" {
		return "guard-shared-secret"
	}
	return key
}
