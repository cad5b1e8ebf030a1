// Package pagetoken encodes the opaque continuation tokens of paginated
// listings.
//
// A token is base64url (unpadded) JSON of a versioned structure. Version 1
// carries a row offset. Decoding is defensive: anything that is not a
// well-formed token of a known version is rejected with
// domain.ErrInvalidPageToken, and an empty token means "first page".
package pagetoken

import (
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/yndnr/clinvault/internal/core/domain"
)

// CurrentVersion is the token version produced by Encode.
const CurrentVersion = 1

// maxTokenLen bounds the input accepted by Decode.
const maxTokenLen = 256

// Token is the decoded continuation state.
type Token struct {
	Version int `json:"v"`
	Offset  int `json:"off"`
}

// Encode returns the opaque form of a version 1 offset token.
func Encode(offset int) string {
	raw, _ := json.Marshal(Token{Version: CurrentVersion, Offset: offset})
	return base64.RawURLEncoding.EncodeToString(raw)
}

// Decode parses an opaque token. The empty token decodes to offset 0.
func Decode(s string) (Token, error) {
	if s == "" {
		return Token{Version: CurrentVersion}, nil
	}
	if len(s) > maxTokenLen {
		return Token{}, domain.ErrInvalidPageToken.WithDetails("token too long")
	}

	raw, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return Token{}, domain.ErrInvalidPageToken.WithDetails("not base64url").WithCause(err)
	}

	var tok Token
	if err := json.Unmarshal(raw, &tok); err != nil {
		return Token{}, domain.ErrInvalidPageToken.WithDetails("not a token payload").WithCause(err)
	}

	switch tok.Version {
	case 1:
		if tok.Offset < 0 {
			return Token{}, domain.ErrInvalidPageToken.WithDetails("negative offset")
		}
		return tok, nil
	default:
		return Token{}, domain.ErrInvalidPageToken.WithDetails(fmt.Sprintf("unsupported version %d", tok.Version))
	}
}

// Next returns the token for the page after one that started at offset and
// returned n rows out of total, or "" when no rows remain.
func Next(offset, n, total int) string {
	if n <= 0 || offset+n >= total {
		return ""
	}
	return Encode(offset + n)
}
