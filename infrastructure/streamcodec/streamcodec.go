// Package streamcodec implements the shard-iterator codec (spec §4.11):
// an opaque, optionally tamper-evident cursor encoding a position within a
// table's stream.
package streamcodec

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"strings"

	pretendererrors "github.com/pretender-db/pretender/pkg/errors"
)

// IteratorType is the requested cursor positioning mode (spec §3).
type IteratorType string

const (
	TrimHorizon         IteratorType = "TRIM_HORIZON"
	Latest              IteratorType = "LATEST"
	AtSequenceNumber    IteratorType = "AT_SEQUENCE_NUMBER"
	AfterSequenceNumber IteratorType = "AFTER_SEQUENCE_NUMBER"
)

// Cursor is a shard iterator's logical content.
type Cursor struct {
	TableName      string       `json:"tableName"`
	ShardID        string       `json:"shardId"`
	Type           IteratorType `json:"type"`
	SequenceNumber int64        `json:"sequenceNumber"`
}

// Codec encodes/decodes shard iterator strings. A nil secret disables
// tamper detection, appropriate for single-tenant local use (spec §9);
// a configured secret HMAC-tags every iterator it issues.
type Codec struct {
	secret []byte
}

// NewCodec constructs a Codec. Pass a nil secret to disable HMAC tagging.
func NewCodec(secret []byte) *Codec {
	return &Codec{secret: secret}
}

// Encode renders cursor as an opaque iterator string: Base64URL of its
// canonical JSON, optionally suffixed with a hex HMAC tag.
func (c *Codec) Encode(cursor Cursor) (string, error) {
	payload, err := json.Marshal(cursor)
	if err != nil {
		return "", pretendererrors.NewInternalError("encoding shard iterator: %v", err)
	}
	encoded := base64.URLEncoding.EncodeToString(payload)
	if c.secret == nil {
		return encoded, nil
	}
	tag := c.tag(payload)
	return encoded + "." + tag, nil
}

// Decode parses an iterator string back into its Cursor, verifying the
// HMAC tag when tamper detection is enabled. Returns ExpiredIteratorException
// for any malformed, mistagged, or unparsable iterator — from the caller's
// perspective a forged or corrupted iterator is indistinguishable from one
// that has simply expired.
func (c *Codec) Decode(iterator string) (Cursor, error) {
	encoded := iterator
	if c.secret != nil {
		parts := strings.SplitN(iterator, ".", 2)
		if len(parts) != 2 {
			return Cursor{}, pretendererrors.NewExpiredIteratorError()
		}
		encoded = parts[0]
		payload, err := base64.URLEncoding.DecodeString(encoded)
		if err != nil {
			return Cursor{}, pretendererrors.NewExpiredIteratorError()
		}
		if !hmac.Equal([]byte(c.tag(payload)), []byte(parts[1])) {
			return Cursor{}, pretendererrors.NewExpiredIteratorError()
		}
		var cursor Cursor
		if err := json.Unmarshal(payload, &cursor); err != nil {
			return Cursor{}, pretendererrors.NewExpiredIteratorError()
		}
		return cursor, nil
	}

	payload, err := base64.URLEncoding.DecodeString(encoded)
	if err != nil {
		return Cursor{}, pretendererrors.NewExpiredIteratorError()
	}
	var cursor Cursor
	if err := json.Unmarshal(payload, &cursor); err != nil {
		return Cursor{}, pretendererrors.NewExpiredIteratorError()
	}
	return cursor, nil
}

func (c *Codec) tag(payload []byte) string {
	mac := hmac.New(sha256.New, c.secret)
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}
