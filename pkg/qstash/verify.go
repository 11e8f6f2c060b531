package qstash

import (
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	SignatureHeader = "Upstash-Signature"
	upstashIssuer   = "Upstash"
)

var (
	ErrMissingSignature = errors.New("qstash signature is missing")
	ErrInvalidSignature = errors.New("qstash signature is invalid")
)

// Verifier checks the HS256 JWT QStash attaches to each delivery. Either the
// current or the next signing key may have signed it.
type Verifier struct {
	keys []string
	now  func() time.Time
}

func NewVerifier(current, next string) *Verifier {
	v := &Verifier{now: time.Now}
	for _, k := range []string{current, next} {
		if k = strings.TrimSpace(k); k != "" {
			v.keys = append(v.keys, k)
		}
	}
	return v
}

// Enabled reports whether any signing key is configured.
func (v *Verifier) Enabled() bool { return v != nil && len(v.keys) > 0 }

// claims are the registered claims plus the base64url sha256 of the body.
type claims struct {
	jwt.RegisteredClaims
	Body string `json:"body"`
}

// Verify checks signature against body. When subject is non-empty the token
// must have been issued for that destination url.
func (v *Verifier) Verify(signature string, body []byte, subject string) error {
	signature = strings.TrimSpace(signature)
	if signature == "" {
		return ErrMissingSignature
	}
	if !v.Enabled() {
		return fmt.Errorf("%w: no signing key configured", ErrInvalidSignature)
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(upstashIssuer),
		jwt.WithTimeFunc(v.now),
	}
	if subject != "" {
		opts = append(opts, jwt.WithSubject(subject))
	}
	parser := jwt.NewParser(opts...)

	var err error
	for _, key := range v.keys {
		var c claims
		_, err = parser.ParseWithClaims(signature, &c, func(*jwt.Token) (any, error) {
			return []byte(key), nil
		})
		if err == nil {
			return checkBody(c.Body, body)
		}
		// Only a signature mismatch is worth trying the next key for.
		if !errors.Is(err, jwt.ErrTokenSignatureInvalid) {
			break
		}
	}
	return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
}

func checkBody(claim string, body []byte) error {
	sum := sha256.Sum256(body)
	if strings.TrimRight(claim, "=") != base64.RawURLEncoding.EncodeToString(sum[:]) {
		return fmt.Errorf("%w: body hash mismatch", ErrInvalidSignature)
	}
	return nil
}
