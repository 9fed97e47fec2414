// Package credentials stores the database password of the fwdata CLI in
// ~/.fwdata/credentials.yaml, encrypted at rest with AES-GCM.
//
// Encryption Key Storage:
// The encryption key is kept in the system keyring:
// - macOS: Keychain
// - Windows: Credential Manager
// - Linux: Secret Service (libsecret)
//
// Without a keyring, set FWDATA_PASSPHRASE to derive the key with Argon2id.
// For CI/testing environments, set FWDATA_ENCRYPTION_KEY to a 64-character
// hex string (32 bytes).
package credentials

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/otherjamesbrown/foodwaste-data/pkg/db"
)

// Credential storage constants.
const (
	DefaultCredentialsDir  = ".fwdata"
	DefaultCredentialsFile = "credentials.yaml"
)

// Common errors.
var (
	// ErrNoCredentials is returned when no credentials are stored.
	ErrNoCredentials = errors.New("no credentials stored")
	// ErrCredentialsMismatch is returned when stored credentials belong to another database.
	ErrCredentialsMismatch = errors.New("stored credentials are for a different database")
	// ErrInvalidCredentials is returned when stored credentials are malformed.
	ErrInvalidCredentials = errors.New("invalid credentials format")
	// ErrEncryptionFailed is returned when encryption/decryption fails.
	ErrEncryptionFailed = errors.New("encryption failed")
)

// Credentials holds the stored database login.
type Credentials struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Database string `yaml:"database"`
	User     string `yaml:"user"`
	// Password is encrypted at rest.
	Password string `yaml:"password"`
	// LastUpdated is when the credentials were last updated.
	LastUpdated time.Time `yaml:"last_updated"`
}

// For builds credentials for the connection described by cfg.
func For(cfg *db.Config, password string) *Credentials {
	return &Credentials{
		Host:     cfg.Host,
		Port:     cfg.Port,
		Database: cfg.Database,
		User:     cfg.User,
		Password: password,
	}
}

// Matches reports whether the credentials were stored for cfg's server,
// database and user. Host names compare case-insensitively.
func (c *Credentials) Matches(cfg *db.Config) bool {
	return strings.EqualFold(c.Host, cfg.Host) &&
		c.Port == cfg.Port &&
		c.Database == cfg.Database &&
		c.User == cfg.User
}

// Store manages credential storage operations.
type Store struct {
	credentialsDir string
	encryptionKey  []byte
	keyProvider    KeyProvider
}

// NewStore creates a credential store in the default directory with the
// default key provider.
func NewStore() (*Store, error) {
	dir, err := CredentialsDir()
	if err != nil {
		return nil, fmt.Errorf("getting credentials directory: %w", err)
	}

	keyProvider, err := GetDefaultKeyProvider(dir)
	if err != nil {
		return nil, fmt.Errorf("initializing key provider: %w", err)
	}

	return NewStoreAt(dir, keyProvider)
}

// NewStoreWithKeyProvider creates a credential store in the default
// directory with a custom key provider.
func NewStoreWithKeyProvider(keyProvider KeyProvider) (*Store, error) {
	dir, err := CredentialsDir()
	if err != nil {
		return nil, fmt.Errorf("getting credentials directory: %w", err)
	}
	return NewStoreAt(dir, keyProvider)
}

// NewStoreAt creates a credential store in dir.
func NewStoreAt(dir string, keyProvider KeyProvider) (*Store, error) {
	if keyProvider == nil {
		return nil, errors.New("key provider is required")
	}

	key, err := keyProvider.GetKey()
	if err != nil {
		return nil, fmt.Errorf("getting encryption key: %w", err)
	}

	return &Store{
		credentialsDir: dir,
		encryptionKey:  key,
		keyProvider:    keyProvider,
	}, nil
}

// KeyDescription describes where the encryption key lives.
func (s *Store) KeyDescription() string {
	return s.keyProvider.Description()
}

// CredentialsDir returns the credentials directory path.
// Uses $FWDATA_CONFIG_DIR if set, otherwise ~/.fwdata
func CredentialsDir() (string, error) {
	if dir := os.Getenv("FWDATA_CONFIG_DIR"); dir != "" {
		return dir, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("getting home directory: %w", err)
	}

	return filepath.Join(home, DefaultCredentialsDir), nil
}

// CredentialsPath returns the full path to the credentials file.
func CredentialsPath() (string, error) {
	dir, err := CredentialsDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, DefaultCredentialsFile), nil
}

func (s *Store) path() string {
	return filepath.Join(s.credentialsDir, DefaultCredentialsFile)
}

// Save stores credentials to the credentials file.
func (s *Store) Save(creds *Credentials) error {
	if creds == nil || creds.Password == "" {
		return fmt.Errorf("%w: password is required", ErrInvalidCredentials)
	}
	if err := s.ensureDir(); err != nil {
		return fmt.Errorf("creating credentials directory: %w", err)
	}

	storageCreds := *creds
	storageCreds.LastUpdated = time.Now().UTC()

	encrypted, err := s.encrypt(storageCreds.Password)
	if err != nil {
		return fmt.Errorf("encrypting password: %w", err)
	}
	storageCreds.Password = encrypted

	data, err := yaml.Marshal(&storageCreds)
	if err != nil {
		return fmt.Errorf("marshaling credentials: %w", err)
	}

	// Write with restrictive permissions
	if err := os.WriteFile(s.path(), data, 0600); err != nil {
		return fmt.Errorf("writing credentials file: %w", err)
	}

	return nil
}

// Load reads credentials from the credentials file.
func (s *Store) Load() (*Credentials, error) {
	data, err := os.ReadFile(s.path())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNoCredentials
		}
		return nil, fmt.Errorf("reading credentials file: %w", err)
	}

	var creds Credentials
	if err := yaml.Unmarshal(data, &creds); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCredentials, err)
	}
	if creds.Password == "" {
		return nil, fmt.Errorf("%w: password missing", ErrInvalidCredentials)
	}

	decrypted, err := s.decrypt(creds.Password)
	if err != nil {
		return nil, fmt.Errorf("decrypting password: %w", err)
	}
	creds.Password = decrypted

	return &creds, nil
}

// Delete removes stored credentials.
func (s *Store) Delete() error {
	if err := os.Remove(s.path()); err != nil {
		if os.IsNotExist(err) {
			return nil // Already deleted
		}
		return fmt.Errorf("removing credentials file: %w", err)
	}

	return nil
}

// Exists checks if credentials file exists.
func (s *Store) Exists() bool {
	_, err := os.Stat(s.path())
	return err == nil
}

// ensureDir creates the credentials directory if it doesn't exist.
func (s *Store) ensureDir() error {
	return os.MkdirAll(s.credentialsDir, 0700)
}

func (s *Store) gcm() (cipher.AEAD, error) {
	block, err := aes.NewCipher(s.encryptionKey)
	if err != nil {
		return nil, fmt.Errorf("%w: creating cipher: %v", ErrEncryptionFailed, err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("%w: creating GCM: %v", ErrEncryptionFailed, err)
	}
	return gcm, nil
}

// encrypt encrypts a string using AES-GCM.
func (s *Store) encrypt(plaintext string) (string, error) {
	gcm, err := s.gcm()
	if err != nil {
		return "", err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("%w: generating nonce: %v", ErrEncryptionFailed, err)
	}

	ciphertext := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(ciphertext), nil
}

// decrypt decrypts an AES-GCM encrypted string.
func (s *Store) decrypt(ciphertext string) (string, error) {
	data, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", fmt.Errorf("%w: decoding base64: %v", ErrEncryptionFailed, err)
	}

	gcm, err := s.gcm()
	if err != nil {
		return "", err
	}

	nonceSize := gcm.NonceSize()
	if len(data) < nonceSize {
		return "", fmt.Errorf("%w: ciphertext too short", ErrEncryptionFailed)
	}

	nonce, ciphertextBytes := data[:nonceSize], data[nonceSize:]
	plaintext, err := gcm.Open(nil, nonce, ciphertextBytes, nil)
	if err != nil {
		return "", fmt.Errorf("%w: decryption failed: %v", ErrEncryptionFailed, err)
	}

	return string(plaintext), nil
}

// ResolvePassword fills cfg.Password when it is empty. A password already
// set (from DB_PASSWORD) wins over stored credentials.
func (s *Store) ResolvePassword(cfg *db.Config) error {
	if cfg.Password != "" {
		return nil
	}

	creds, err := s.Load()
	if err != nil {
		return err
	}
	if !creds.Matches(cfg) {
		return fmt.Errorf("%w: stored for %s@%s:%d/%s", ErrCredentialsMismatch, creds.User, creds.Host, creds.Port, creds.Database)
	}

	cfg.Password = creds.Password
	return nil
}

// MaskCredential returns a masked version of the credential for display.
func MaskCredential(cred string) string {
	if len(cred) <= 8 {
		return strings.Repeat("*", len(cred))
	}
	return cred[:2] + strings.Repeat("*", len(cred)-4) + cred[len(cred)-2:]
}

// FormatAge formats how long ago the credentials were stored.
func FormatAge(updated time.Time, now time.Time) string {
	if updated.IsZero() {
		return "unknown"
	}

	age := now.Sub(updated)
	switch {
	case age < time.Minute:
		return "just now"
	case age < time.Hour:
		return fmt.Sprintf("%d minutes ago", int(age.Minutes()))
	case age < 24*time.Hour:
		return fmt.Sprintf("%d hours ago", int(age.Hours()))
	default:
		return fmt.Sprintf("%d days ago", int(age.Hours()/24))
	}
}
