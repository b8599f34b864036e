package oai

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ErrBadToken is returned for resumption tokens that cannot be decoded.
var ErrBadToken = errors.New("bad resumption token")

// Token is the decoded state of a resumption token.
// Cursor is the zero-based offset of the page the token was issued with.
type Token struct {
	From     time.Time
	Until    time.Time
	Cursor   int
	PageSize int
}

// Encode serializes the token as base64url of "from|until|cursor|pageSize".
func (t Token) Encode() string {
	raw := strings.Join([]string{
		t.From.UTC().Format(time.RFC3339),
		t.Until.UTC().Format(time.RFC3339),
		strconv.Itoa(t.Cursor),
		strconv.Itoa(t.PageSize),
	}, "|")
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

// NextPage returns the 1-based page that follows the token's page.
func (t Token) NextPage() int {
	return (t.Cursor+t.PageSize)/t.PageSize + 1
}

// DecodeToken parses a token produced by Encode.
func DecodeToken(s string) (Token, error) {
	raw, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(s, "="))
	if err != nil {
		return Token{}, fmt.Errorf("%w: %w", ErrBadToken, err)
	}
	parts := strings.Split(string(raw), "|")
	if len(parts) != 4 {
		return Token{}, fmt.Errorf("%w: want 4 fields, got %d", ErrBadToken, len(parts))
	}

	from, err := time.Parse(time.RFC3339, parts[0])
	if err != nil {
		return Token{}, fmt.Errorf("%w: from: %w", ErrBadToken, err)
	}
	until, err := time.Parse(time.RFC3339, parts[1])
	if err != nil {
		return Token{}, fmt.Errorf("%w: until: %w", ErrBadToken, err)
	}
	cursor, err := strconv.Atoi(parts[2])
	if err != nil || cursor < 0 {
		return Token{}, fmt.Errorf("%w: cursor %q", ErrBadToken, parts[2])
	}
	size, err := strconv.Atoi(parts[3])
	if err != nil || size <= 0 {
		return Token{}, fmt.Errorf("%w: page size %q", ErrBadToken, parts[3])
	}
	return Token{From: from.UTC(), Until: until.UTC(), Cursor: cursor, PageSize: size}, nil
}
