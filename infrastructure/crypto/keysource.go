package crypto

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	pretendererrors "github.com/pretender-db/pretender/pkg/errors"
)

// MasterKeySource supplies the process-wide 32-byte master key at startup.
type MasterKeySource interface {
	MasterKey(ctx context.Context) ([]byte, error)
}

// RandomMasterKeySource draws a fresh random key every process start — the
// default when no keys-service is configured. Encrypted data written under
// one process's key becomes unreadable after a restart, so this is only
// appropriate for local/ephemeral use; it logs a warning to make that
// visible.
type RandomMasterKeySource struct {
	logger *zap.Logger
}

// NewRandomMasterKeySource constructs a RandomMasterKeySource.
func NewRandomMasterKeySource(logger *zap.Logger) *RandomMasterKeySource {
	return &RandomMasterKeySource{logger: logger}
}

// MasterKey returns a freshly generated 32-byte key.
func (s *RandomMasterKeySource) MasterKey(ctx context.Context) ([]byte, error) {
	key := make([]byte, masterKeySize)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return nil, pretendererrors.NewInternalError("generating random master key: %v", err)
	}
	if s.logger != nil {
		s.logger.Warn("using a randomly generated master key; encrypted attributes will be unreadable after restart")
	}
	return key, nil
}

// keyResponse is the keys-service contract (spec §6): a PUT-returning-JSON
// interface yielding uuid, hex-encoded key bytes, and an optional envelope.
type keyResponse struct {
	UUID               string              `json:"uuid"`
	Key                string              `json:"key"`
	EncryptionEnvelope *encryptionEnvelope `json:"encryptionEnvelope,omitempty"`
}

type encryptionEnvelope struct {
	KeyID         string `json:"keyId"`
	EncryptedData string `json:"encryptedData"`
	EncryptedKey  string `json:"encryptedKey"`
	IV            string `json:"iv"`
	Algorithm     string `json:"algorithm"`
	AuthTag       string `json:"authTag"`
}

// RemoteMasterKeySource fetches the master key from an external keys
// service collaborator. It uses stdlib net/http directly: a single
// best-effort round trip at startup does not warrant an HTTP client
// library from the rest of the dependency stack.
type RemoteMasterKeySource struct {
	url    string
	client *http.Client
	logger *zap.Logger
}

// NewRemoteMasterKeySource constructs a RemoteMasterKeySource targeting url.
func NewRemoteMasterKeySource(url string, logger *zap.Logger) *RemoteMasterKeySource {
	return &RemoteMasterKeySource{
		url:    url,
		client: &http.Client{Timeout: 10 * time.Second},
		logger: logger,
	}
}

// MasterKey issues the PUT request and decodes the key-service response.
func (s *RemoteMasterKeySource) MasterKey(ctx context.Context) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, s.url, nil)
	if err != nil {
		return nil, pretendererrors.NewInternalError("building keys-service request: %v", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, pretendererrors.NewInternalError("calling keys service: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, pretendererrors.NewInternalError("keys service returned status %d", resp.StatusCode)
	}

	var parsed keyResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, pretendererrors.NewInternalError("decoding keys-service response: %v", err)
	}

	key, err := hex.DecodeString(parsed.Key)
	if err != nil {
		return nil, pretendererrors.NewInternalError("decoding keys-service key field: %v", err)
	}
	switch len(key) {
	case 16, 24, 32:
	default:
		return nil, pretendererrors.NewInternalError("keys service returned a key of unsupported size %d bytes", len(key))
	}
	if len(key) != masterKeySize {
		return nil, pretendererrors.NewInternalError(fmt.Sprintf("keys service returned a %d-byte key, Pretender requires %d (AES-256)", len(key), masterKeySize))
	}

	if s.logger != nil {
		s.logger.Info("loaded master key from keys service", zap.String("keyUUID", parsed.UUID))
	}
	return key, nil
}
