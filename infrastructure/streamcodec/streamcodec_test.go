package streamcodec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRoundTripNoSecret(t *testing.T) {
	codec := NewCodec(nil)
	cursor := Cursor{TableName: "Orders", ShardID: "shard-00000", Type: AtSequenceNumber, SequenceNumber: 42}

	iter, err := codec.Encode(cursor)
	require.NoError(t, err)

	decoded, err := codec.Decode(iter)
	require.NoError(t, err)
	assert.Equal(t, cursor, decoded)
}

func TestEncodeDecodeRoundTripWithSecret(t *testing.T) {
	codec := NewCodec([]byte("server-secret"))
	cursor := Cursor{TableName: "Orders", ShardID: "shard-00000", Type: TrimHorizon, SequenceNumber: 0}

	iter, err := codec.Encode(cursor)
	require.NoError(t, err)

	decoded, err := codec.Decode(iter)
	require.NoError(t, err)
	assert.Equal(t, cursor, decoded)
}

func TestDecodeRejectsTamperedIterator(t *testing.T) {
	codec := NewCodec([]byte("server-secret"))
	iter, err := codec.Encode(Cursor{TableName: "Orders", ShardID: "shard-00000", Type: Latest})
	require.NoError(t, err)

	_, err = codec.Decode(iter + "ff")
	require.Error(t, err)
}

func TestDecodeRejectsGarbage(t *testing.T) {
	codec := NewCodec(nil)
	_, err := codec.Decode("not-a-valid-iterator!!!")
	require.Error(t, err)
}
