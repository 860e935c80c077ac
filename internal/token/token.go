// Package token signs and verifies the compact HS256 tokens that tie a relay
// session to its caller. Only HS256 is supported, which keeps the package free
// of any asymmetric-crypto dependency.
package token

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"
	"time"
)

var (
	// ErrMalformed is returned when a token is not a valid three-segment JWT.
	ErrMalformed = errors.New("token: malformed token")
	// ErrSignature is returned when the HMAC signature does not verify.
	ErrSignature = errors.New("token: signature verification failed")
	// ErrExpired is returned when the exp claim is in the past.
	ErrExpired = errors.New("token: token has expired")
)

// Claims carries the session identity embedded in a signed token. Exp is
// optional; zero means the token never expires.
type Claims struct {
	SessionID string `json:"sessionId"`
	APIKey    string `json:"apiKey"`
	StreamKey string `json:"streamKey"`
	Domain    string `json:"domain"`
	Exp       int64  `json:"exp,omitempty"`
}

// encodedHeader is the fixed {"alg":"HS256","typ":"JWT"} header segment.
var encodedHeader = base64.RawURLEncoding.EncodeToString(
	[]byte(`{"alg":"HS256","typ":"JWT"}`),
)

// Signer signs and verifies tokens with a shared HMAC secret.
type Signer struct {
	secret []byte
	now    func() time.Time
}

// NewSigner returns a Signer for the given secret.
func NewSigner(secret string) *Signer {
	return &Signer{secret: []byte(secret), now: time.Now}
}

// Sign produces a compact header.payload.signature token for the claims.
func (s *Signer) Sign(claims Claims) (string, error) {
	payload, err := json.Marshal(claims)
	if err != nil {
		return "", err
	}

	signingInput := encodedHeader + "." + base64.RawURLEncoding.EncodeToString(payload)
	return signingInput + "." + s.signature(signingInput), nil
}

// Verify checks the signature and expiry of a token and returns its claims.
func (s *Signer) Verify(tok string) (Claims, error) {
	parts := strings.Split(tok, ".")
	if len(parts) != 3 {
		return Claims{}, ErrMalformed
	}

	signingInput := parts[0] + "." + parts[1]
	if !hmac.Equal([]byte(s.signature(signingInput)), []byte(parts[2])) {
		return Claims{}, ErrSignature
	}

	raw, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return Claims{}, ErrMalformed
	}

	var claims Claims
	if err := json.Unmarshal(raw, &claims); err != nil {
		return Claims{}, ErrMalformed
	}

	if claims.Exp != 0 && claims.Exp < s.now().Unix() {
		return Claims{}, ErrExpired
	}
	return claims, nil
}

func (s *Signer) signature(signingInput string) string {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(signingInput))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}
