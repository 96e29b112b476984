// Package crypto implements the Encryption Core (spec §4.4): envelope
// encryption of individual attribute values under a per-attribute key
// derived from a process-wide master key.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"io"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/pretender-db/pretender/domain/attrvalue"
	pretendererrors "github.com/pretender-db/pretender/pkg/errors"
)

const (
	masterKeySize = 32 // AES-256
	ivSize        = 12 // 96-bit GCM nonce
	tagSize       = 16 // 128-bit GCM authentication tag
)

// Core performs authenticated per-attribute encryption under a fixed
// master key. A Core is immutable process-wide state set at startup; key
// rotation requires constructing a new Core (and restarting the process).
type Core struct {
	masterKey []byte
}

// NewCore constructs a Core from a 32-byte master key.
func NewCore(masterKey []byte) (*Core, error) {
	if len(masterKey) != masterKeySize {
		return nil, pretendererrors.NewInternalError("master key must be %d bytes, got %d", masterKeySize, len(masterKey))
	}
	return &Core{masterKey: masterKey}, nil
}

// deriveAttributeKey computes HMAC-SHA-256(masterKey, tableName:attributeName).
func (c *Core) deriveAttributeKey(tableName, attributeName string) []byte {
	mac := hmac.New(sha256.New, c.masterKey)
	mac.Write([]byte(tableName + ":" + attributeName))
	return mac.Sum(nil)
}

func additionalData(tableName, attributeName string) []byte {
	return []byte(tableName + ":" + attributeName)
}

// isEncryptable reports whether v's type may be encrypted. List and Map
// variants are explicitly unsupported (spec §4.4).
func isEncryptable(v types.AttributeValue) bool {
	switch v.(type) {
	case *types.AttributeValueMemberL, *types.AttributeValueMemberM:
		return false
	default:
		return true
	}
}

// Encrypt seals v under the key derived for (tableName, attributeName),
// returning a Binary AttributeValue with wire layout IV(12) || ciphertext ||
// authTag(16). The plaintext is the canonical JSON of v tagged with its
// type, so decryption can reconstruct the original variant.
func (c *Core) Encrypt(tableName, attributeName string, v types.AttributeValue) (types.AttributeValue, error) {
	if !isEncryptable(v) {
		return nil, pretendererrors.NewValidationError("attribute %q: List and Map values cannot be encrypted", attributeName)
	}

	plaintext, err := attrvalue.EncodeSingleValue(v)
	if err != nil {
		return nil, err
	}

	gcm, err := c.gcmFor(tableName, attributeName)
	if err != nil {
		return nil, err
	}

	iv := make([]byte, ivSize)
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return nil, pretendererrors.NewInternalError("generating IV: %v", err)
	}

	sealed := gcm.Seal(nil, iv, []byte(plaintext), additionalData(tableName, attributeName))
	wire := make([]byte, 0, ivSize+len(sealed))
	wire = append(wire, iv...)
	wire = append(wire, sealed...)

	return &types.AttributeValueMemberB{Value: wire}, nil
}

// Decrypt reverses Encrypt. A tampered ciphertext, wrong table/attribute
// AAD, or truncated wire value fails with InternalError — decrypt failures
// are never treated as a recoverable condition, to avoid silently masking
// tampering.
func (c *Core) Decrypt(tableName, attributeName string, v types.AttributeValue) (types.AttributeValue, error) {
	b, ok := v.(*types.AttributeValueMemberB)
	if !ok {
		return nil, pretendererrors.NewInternalError("encrypted attribute %q is not stored as Binary", attributeName)
	}
	if len(b.Value) < ivSize+tagSize {
		return nil, pretendererrors.NewInternalError("encrypted attribute %q wire value is truncated", attributeName)
	}

	gcm, err := c.gcmFor(tableName, attributeName)
	if err != nil {
		return nil, err
	}

	iv := b.Value[:ivSize]
	sealed := b.Value[ivSize:]

	plaintext, err := gcm.Open(nil, iv, sealed, additionalData(tableName, attributeName))
	if err != nil {
		return nil, pretendererrors.NewInternalError("decrypting attribute %q: authentication failed", attributeName)
	}

	return attrvalue.DecodeSingleValue(string(plaintext))
}

func (c *Core) gcmFor(tableName, attributeName string) (cipher.AEAD, error) {
	key := c.deriveAttributeKey(tableName, attributeName)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, pretendererrors.NewInternalError("constructing AES cipher: %v", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, pretendererrors.NewInternalError("constructing GCM mode: %v", err)
	}
	return gcm, nil
}
