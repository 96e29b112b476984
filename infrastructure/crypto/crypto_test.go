package crypto

import (
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testKey() []byte {
	return []byte("01234567890123456789012345678901")[:32]
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	core, err := NewCore(testKey())
	require.NoError(t, err)

	original := &types.AttributeValueMemberS{Value: "111-22-3333"}
	encrypted, err := core.Encrypt("Users", "ssn", original)
	require.NoError(t, err)

	b, ok := encrypted.(*types.AttributeValueMemberB)
	require.True(t, ok)
	assert.GreaterOrEqual(t, len(b.Value), 28)

	decrypted, err := core.Decrypt("Users", "ssn", encrypted)
	require.NoError(t, err)
	s, ok := decrypted.(*types.AttributeValueMemberS)
	require.True(t, ok)
	assert.Equal(t, "111-22-3333", s.Value)
}

func TestDecryptFailsForDifferentTable(t *testing.T) {
	core, err := NewCore(testKey())
	require.NoError(t, err)

	encrypted, err := core.Encrypt("Users", "ssn", &types.AttributeValueMemberS{Value: "x"})
	require.NoError(t, err)

	_, err = core.Decrypt("Accounts", "ssn", encrypted)
	require.Error(t, err)
}

func TestDecryptFailsOnTamperedCiphertext(t *testing.T) {
	core, err := NewCore(testKey())
	require.NoError(t, err)

	encrypted, err := core.Encrypt("Users", "ssn", &types.AttributeValueMemberS{Value: "x"})
	require.NoError(t, err)

	b := encrypted.(*types.AttributeValueMemberB)
	tampered := make([]byte, len(b.Value))
	copy(tampered, b.Value)
	tampered[len(tampered)-1] ^= 0xFF

	_, err = core.Decrypt("Users", "ssn", &types.AttributeValueMemberB{Value: tampered})
	require.Error(t, err)
}

func TestEncryptRejectsListAndMap(t *testing.T) {
	core, err := NewCore(testKey())
	require.NoError(t, err)

	_, err = core.Encrypt("Users", "tags", &types.AttributeValueMemberL{Value: nil})
	require.Error(t, err)

	_, err = core.Encrypt("Users", "meta", &types.AttributeValueMemberM{Value: nil})
	require.Error(t, err)
}

func TestNewCoreRejectsWrongKeySize(t *testing.T) {
	_, err := NewCore([]byte("short"))
	require.Error(t, err)
}
