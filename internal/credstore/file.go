package credstore

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"os"
	"sync"
	"time"

	"golang.org/x/crypto/argon2"

	"github.com/gitcollab/core/internal/classerr"
	"github.com/gitcollab/core/internal/config"
)

// fileDoc is the on-disk shape of the encrypted credential file, per
// decoded only when the version matches and the HMAC verifies.
type fileDoc struct {
	Version    int    `json:"version"`
	Salt       string `json:"salt"`
	Nonce      string `json:"nonce"`
	Ciphertext string `json:"ciphertext"`
	HMAC       string `json:"hmac"`
}

const fileVersion = 1
const saltLen = 16
const nonceLen = 12

// container is the plaintext payload encrypted inside the file.
type container struct {
	Credentials []Credential `json:"credentials"`
}

// cachedKey pairs a derived AES key with its expiry so repeated operations
// skip the Argon2 derivation until the TTL lapses.
type cachedKey struct {
	key       []byte
	expiresAt time.Time
}

// EncryptedFileStore is the C6 file-backed Store: Argon2id KDF, AES-256-GCM,
// HMAC-SHA256 integrity, a TTL'd derived-key cache, and a file mutex
// serializing read-modify-write.
type EncryptedFileStore struct {
	mu       sync.Mutex
	path     string
	password []byte
	cache    *cachedKey
	cacheTTL time.Duration
	now      func() time.Time
}

// NewEncryptedFileStore builds a file store bound to path. The master
// password must be set via SetMasterPassword before any I/O.
func NewEncryptedFileStore(path string, cfg config.CredentialConfig) *EncryptedFileStore {
	ttl := time.Duration(cfg.KeyCacheTTLSeconds) * time.Second
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &EncryptedFileStore{path: path, cacheTTL: ttl, now: time.Now}
}

// SetMasterPassword sets (or replaces) the master password, clearing the
// derived-key cache and wiping the prior password from memory.
func (s *EncryptedFileStore) SetMasterPassword(password string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.password != nil {
		for i := range s.password {
			s.password[i] = 0
		}
	}
	s.password = []byte(password)
	s.cache = nil
}

func (s *EncryptedFileStore) deriveKeyLocked(salt []byte) []byte {
	if s.cache != nil && s.now().Before(s.cache.expiresAt) {
		return s.cache.key
	}
	key := argon2.IDKey(s.password, salt, config.Argon2Iterations, config.Argon2MemoryKiB, config.Argon2Threads, config.Argon2KeyLenBytes)
	s.cache = &cachedKey{key: key, expiresAt: s.now().Add(s.cacheTTL)}
	return key
}

// SweepKeyCache wipes an expired cached key eagerly so the derived key
// does not outlive its TTL in memory. Lazy expiry in deriveKeyLocked
// covers correctness; this bounds exposure between operations.
func (s *EncryptedFileStore) SweepKeyCache(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cache != nil && !now.Before(s.cache.expiresAt) {
		for i := range s.cache.key {
			s.cache.key[i] = 0
		}
		s.cache = nil
	}
}

func (s *EncryptedFileStore) requirePassword() error {
	if s.password == nil {
		return classerr.AuthError("master password not set").Build()
	}
	return nil
}

// loadLocked reads and decrypts the file, returning an empty container if
// the file does not yet exist.
func (s *EncryptedFileStore) loadLocked() (container, error) {
	if err := s.requirePassword(); err != nil {
		return container{}, err
	}
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return container{}, nil
		}
		return container{}, classerr.WrapError(err, classerr.CategoryInternal, "read credential file").Build()
	}

	var doc fileDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return container{}, classerr.WrapError(err, classerr.CategoryAuth, "parse credential file").Build()
	}
	if doc.Version != fileVersion {
		return container{}, classerr.AuthError("unsupported credential file version").Build()
	}

	salt, err := base64.StdEncoding.DecodeString(doc.Salt)
	if err != nil {
		return container{}, classerr.AuthError("invalid credential file salt").Build()
	}
	nonce, err := base64.StdEncoding.DecodeString(doc.Nonce)
	if err != nil {
		return container{}, classerr.AuthError("invalid credential file nonce").Build()
	}
	ciphertext, err := base64.StdEncoding.DecodeString(doc.Ciphertext)
	if err != nil {
		return container{}, classerr.AuthError("invalid credential file ciphertext").Build()
	}
	wantHMAC, err := base64.StdEncoding.DecodeString(doc.HMAC)
	if err != nil {
		return container{}, classerr.AuthError("invalid credential file hmac").Build()
	}

	key := s.deriveKeyLocked(salt)

	mac := hmac.New(sha256.New, key)
	mac.Write(ciphertext)
	gotHMAC := mac.Sum(nil)
	if subtle.ConstantTimeCompare(gotHMAC, wantHMAC) != 1 {
		return container{}, classerr.AuthError("credential file integrity check failed").Build()
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return container{}, classerr.WrapError(err, classerr.CategoryInternal, "build AES cipher").Build()
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return container{}, classerr.WrapError(err, classerr.CategoryInternal, "build AES-GCM").Build()
	}
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return container{}, classerr.AuthError("credential file decryption failed").Build()
	}

	var c container
	if err := json.Unmarshal(plaintext, &c); err != nil {
		return container{}, classerr.WrapError(err, classerr.CategoryInternal, "parse decrypted credential payload").Build()
	}
	return c, nil
}

// saveLocked encrypts c with a freshly-generated salt and nonce and writes
// it atomically with POSIX mode 0600.
func (s *EncryptedFileStore) saveLocked(c container) error {
	if err := s.requirePassword(); err != nil {
		return err
	}

	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return classerr.WrapError(err, classerr.CategoryInternal, "generate salt").Build()
	}
	// A fresh salt forces re-derivation even if the cached key predates it.
	s.cache = nil
	key := s.deriveKeyLocked(salt)

	plaintext, err := json.Marshal(c)
	if err != nil {
		return classerr.WrapError(err, classerr.CategoryInternal, "marshal credential payload").Build()
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return classerr.WrapError(err, classerr.CategoryInternal, "build AES cipher").Build()
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return classerr.WrapError(err, classerr.CategoryInternal, "build AES-GCM").Build()
	}
	nonce := make([]byte, nonceLen)
	if _, err := rand.Read(nonce); err != nil {
		return classerr.WrapError(err, classerr.CategoryInternal, "generate nonce").Build()
	}
	ciphertext := gcm.Seal(nil, nonce, plaintext, nil)

	mac := hmac.New(sha256.New, key)
	mac.Write(ciphertext)
	sum := mac.Sum(nil)

	doc := fileDoc{
		Version:    fileVersion,
		Salt:       base64.StdEncoding.EncodeToString(salt),
		Nonce:      base64.StdEncoding.EncodeToString(nonce),
		Ciphertext: base64.StdEncoding.EncodeToString(ciphertext),
		HMAC:       base64.StdEncoding.EncodeToString(sum),
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return classerr.WrapError(err, classerr.CategoryInternal, "marshal credential file").Build()
	}
	if err := os.WriteFile(s.path, data, 0o600); err != nil {
		return classerr.WrapError(err, classerr.CategoryInternal, "write credential file").Build()
	}
	return os.Chmod(s.path, 0o600)
}

func (s *EncryptedFileStore) Get(host, username string) (Credential, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, err := s.loadLocked()
	if err != nil {
		return Credential{}, false, err
	}
	now := s.now()
	for _, cred := range c.Credentials {
		if cred.Host != host || cred.Expired(now) {
			continue
		}
		// An empty username matches any credential for the host.
		if username == "" || cred.Username == username {
			return cred, true, nil
		}
	}
	return Credential{}, false, nil
}

func (s *EncryptedFileStore) Add(cred Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, err := s.loadLocked()
	if err != nil {
		return err
	}
	for _, existing := range c.Credentials {
		if existing.Host == cred.Host && existing.Username == cred.Username {
			return &ErrAlreadyExists{Host: cred.Host, Username: cred.Username}
		}
	}
	if cred.CreatedAt.IsZero() {
		cred.CreatedAt = s.now()
	}
	c.Credentials = append(c.Credentials, cred)
	return s.saveLocked(c)
}

func (s *EncryptedFileStore) Remove(host, username string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, err := s.loadLocked()
	if err != nil {
		return false, err
	}
	idx := -1
	for i, cred := range c.Credentials {
		if cred.Host == host && cred.Username == username {
			idx = i
			break
		}
	}
	if idx < 0 {
		return false, nil
	}
	c.Credentials[idx].wipe()
	c.Credentials = append(c.Credentials[:idx], c.Credentials[idx+1:]...)
	if err := s.saveLocked(c); err != nil {
		return false, err
	}
	return true, nil
}

func (s *EncryptedFileStore) List() ([]Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, err := s.loadLocked()
	if err != nil {
		return nil, err
	}
	now := s.now()
	out := make([]Credential, 0, len(c.Credentials))
	for _, cred := range c.Credentials {
		if !cred.Expired(now) {
			out = append(out, cred)
		}
	}
	return out, nil
}

func (s *EncryptedFileStore) UpdateLastUsed(host, username string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, err := s.loadLocked()
	if err != nil {
		return err
	}
	for i, cred := range c.Credentials {
		if cred.Host == host && cred.Username == username {
			c.Credentials[i].LastUsedAt = s.now()
			return s.saveLocked(c)
		}
	}
	return &ErrNotFound{Host: host, Username: username}
}

func (s *EncryptedFileStore) Exists(host, username string) (bool, error) {
	_, ok, err := s.Get(host, username)
	return ok, err
}
