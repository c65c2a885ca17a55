// Package audit signs draw audit records so a stored record can be checked
// against the draw that produced it.
package audit

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
	"time"
)

// DrawSigner computes HMAC-SHA256 signatures over the outcome of a draw.
type DrawSigner struct {
	secretKey []byte
}

// NewDrawSigner returns a signer keyed with secretKey.
func NewDrawSigner(secretKey string) *DrawSigner {
	return &DrawSigner{secretKey: []byte(secretKey)}
}

// Sign returns the hex signature of a draw. tickets must be in winner
// position order; a reordered list yields a different signature.
func (s *DrawSigner) Sign(lotteryID int64, drawnAt time.Time, seed string, tickets []string) string {
	h := hmac.New(sha256.New, s.secretKey)
	h.Write([]byte(payload(lotteryID, drawnAt, seed, tickets)))
	return hex.EncodeToString(h.Sum(nil))
}

// Verify reports whether signature matches the draw.
func (s *DrawSigner) Verify(lotteryID int64, drawnAt time.Time, seed string, tickets []string, signature string) bool {
	expected := s.Sign(lotteryID, drawnAt, seed, tickets)
	return hmac.Equal([]byte(expected), []byte(signature))
}

func payload(lotteryID int64, drawnAt time.Time, seed string, tickets []string) string {
	var b strings.Builder
	b.WriteString(strconv.FormatInt(lotteryID, 10))
	b.WriteByte('|')
	b.WriteString(drawnAt.UTC().Format(time.RFC3339Nano))
	b.WriteByte('|')
	b.WriteString(seed)
	for _, t := range tickets {
		b.WriteByte('|')
		b.WriteString(t)
	}
	return b.String()
}
