// Package keyring provides secure credential storage.
// It uses the system keyring when available, falling back to
// encrypted local file storage when not.
package keyring

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/zalando/go-keyring"
	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"

	"github.com/yllada/openvpn3-go/common"
)

// probeKey is written and removed once to find out whether the system
// keyring works.
const probeKey = "ovpn3-probe"

// Key files a credential under its profile and variable name.
func Key(profile, variable string) string {
	return profile + "/" + variable
}

// Store keeps credentials in the system keyring, or in an encrypted
// file when no keyring service is reachable. The backend is chosen on
// first use.
type Store struct {
	mu          sync.RWMutex
	service     string
	filePath    string
	initialized bool
	useLocal    bool
	local       map[string]string
	key         []byte
}

var _ common.CredentialStore = (*Store)(nil)

// New returns a store using the application's keyring service and
// fallback file.
func New() *Store {
	return &Store{service: common.KeyringService}
}

// NewWithFile returns a store whose fallback file is path.
func NewWithFile(service, path string) *Store {
	return &Store{service: service, filePath: path}
}

func (s *Store) init() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.initialized {
		return
	}
	s.initialized = true

	if err := keyring.Set(s.service, probeKey, "probe"); err == nil {
		keyring.Delete(s.service, probeKey)
		return
	}
	common.LogInfo("System keyring unavailable, using encrypted file storage")
	s.initLocalLocked()
}

func (s *Store) initLocalLocked() {
	s.useLocal = true
	s.local = make(map[string]string)

	if s.filePath == "" {
		dir, err := common.GetConfigDir()
		if err != nil {
			common.LogWarn("Credential file unavailable: %v", err)
			return
		}
		s.filePath = filepath.Join(dir, common.CredentialsFileName)
	}

	// Key derived from machine-specific data.
	hostname, _ := os.Hostname()
	secret := fmt.Sprintf("%s-%s-%s-%d", s.service, hostname, machineID(), os.Getuid())
	s.key = argon2.IDKey([]byte(secret), []byte(s.service+"-credentials"), 1, 64*1024, 4, chacha20poly1305.KeySize)

	if err := s.loadLocked(); err != nil && !errors.Is(err, os.ErrNotExist) {
		common.LogWarn("Ignoring unreadable credential file: %v", err)
	}
}

func machineID() string {
	data, err := os.ReadFile("/etc/machine-id")
	if err == nil {
		return strings.TrimSpace(string(data))
	}
	return "default-machine-id"
}

func (s *Store) loadLocked() error {
	data, err := os.ReadFile(s.filePath)
	if err != nil {
		return err
	}
	plain, err := s.decrypt(data)
	if err != nil {
		return err
	}
	return json.Unmarshal(plain, &s.local)
}

func (s *Store) saveLocked() error {
	if s.filePath == "" {
		return common.ErrCredentialStorage
	}
	data, err := json.Marshal(s.local)
	if err != nil {
		return err
	}
	sealed, err := s.encrypt(data)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.filePath), 0700); err != nil {
		return err
	}
	return os.WriteFile(s.filePath, sealed, 0600)
}

func (s *Store) encrypt(plaintext []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(s.key)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, aead.NonceSize(), aead.NonceSize()+len(plaintext)+aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}
	sealed := aead.Seal(nonce, nonce, plaintext, nil)
	return []byte(base64.StdEncoding.EncodeToString(sealed)), nil
}

func (s *Store) decrypt(data []byte) ([]byte, error) {
	sealed, err := base64.StdEncoding.DecodeString(string(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrDecryption, err)
	}
	aead, err := chacha20poly1305.NewX(s.key)
	if err != nil {
		return nil, err
	}
	if len(sealed) < aead.NonceSize() {
		return nil, fmt.Errorf("%w: ciphertext too short", common.ErrDecryption)
	}
	nonce, ciphertext := sealed[:aead.NonceSize()], sealed[aead.NonceSize():]
	plain, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrDecryption, err)
	}
	return plain, nil
}

// UsingFallback reports whether credentials go to the encrypted file.
func (s *Store) UsingFallback() bool {
	s.init()
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.useLocal
}

// Store saves secret under key.
func (s *Store) Store(key, secret string) error {
	if key == "" {
		return errors.New("credential key cannot be empty")
	}
	s.init()

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.useLocal {
		err := keyring.Set(s.service, key, secret)
		if err == nil {
			return nil
		}
		common.LogWarn("Keyring write failed, falling back to file storage: %v", err)
		s.initLocalLocked()
	}
	s.local[key] = secret
	if err := s.saveLocked(); err != nil {
		return fmt.Errorf("%w: %v", common.ErrCredentialStorage, err)
	}
	return nil
}

// Get retrieves the secret stored under key.
func (s *Store) Get(key string) (string, error) {
	if key == "" {
		return "", errors.New("credential key cannot be empty")
	}
	s.init()

	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.useLocal {
		secret, err := keyring.Get(s.service, key)
		if errors.Is(err, keyring.ErrNotFound) {
			return "", common.ErrCredentialsNotFound
		}
		if err != nil {
			return "", fmt.Errorf("%w: %v", common.ErrCredentialStorage, err)
		}
		return secret, nil
	}
	secret, ok := s.local[key]
	if !ok {
		return "", common.ErrCredentialsNotFound
	}
	return secret, nil
}

// Delete removes the secret stored under key. Deleting a missing key
// is not an error.
func (s *Store) Delete(key string) error {
	if key == "" {
		return errors.New("credential key cannot be empty")
	}
	s.init()

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.useLocal {
		err := keyring.Delete(s.service, key)
		if err != nil && !errors.Is(err, keyring.ErrNotFound) {
			return fmt.Errorf("%w: %v", common.ErrCredentialStorage, err)
		}
		return nil
	}
	if _, ok := s.local[key]; !ok {
		return nil
	}
	delete(s.local, key)
	return s.saveLocked()
}

// Exists checks if a credential is stored under key.
func (s *Store) Exists(key string) bool {
	_, err := s.Get(key)
	return err == nil
}
