// Package auth implements the bearer-token authenticator: it extracts
// a JWT-like token from either a plain Bearer header or the Credential=
// slot of an AWS4-HMAC-SHA256 header, verifies it against a rotating set
// of HS256 secrets, and enforces that its bucket claim matches the
// requested bucket.
package auth

import (
	"errors"
	"log/slog"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// devBypassToken is the literal token that skips verification entirely.
// It exists purely as a local development affordance and must stay gated
// behind Verifier.allowDevBypass.
const devBypassToken = "foo"

// Claims is the JWT claim set this engine requires: subject, the bucket
// the token is scoped to, and a standard expiry.
type Claims struct {
	Bucket string `json:"bucket"`
	jwt.RegisteredClaims
}

// Verifier checks bearer tokens against an ordered list of HS256 secrets,
// trying each in turn so that a secret can be rotated without invalidating
// tokens signed under the previous one.
type Verifier struct {
	secrets        [][]byte
	allowDevBypass bool
}

// NewVerifier builds a Verifier from a set of symmetric secrets (tried
// oldest-accepted-first is not required; order only affects how many
// attempts a verification takes). allowDevBypass gates the "foo" literal
// token.
func NewVerifier(secrets []string, allowDevBypass bool) *Verifier {
	v := &Verifier{allowDevBypass: allowDevBypass}
	for _, s := range secrets {
		v.secrets = append(v.secrets, []byte(s))
	}
	if allowDevBypass {
		slog.Warn("auth: development bypass token is enabled; do not run this in production")
	}
	return v
}

// ErrMissingAuth is returned when no usable Authorization header is present.
var ErrMissingAuth = errors.New("auth: missing or unparseable authorization header")

// ErrBucketMismatch is returned when the token verifies but its bucket
// claim does not match the bucket being addressed.
var ErrBucketMismatch = errors.New("auth: token bucket claim does not match request bucket")

// extractToken pulls the bearer token out of an Authorization header value,
// supporting both the plain "Bearer <token>" form and the
// "AWS4-HMAC-SHA256 Credential=<token>/..., ..." smuggled form used so that
// stock AWS SDK clients can be pointed at this engine without a custom
// signer. No signature bytes beyond the Credential slot are consulted.
func extractToken(header string) (string, bool) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", false
	}

	if rest, ok := cutPrefix(header, "Bearer "); ok {
		token := strings.TrimSpace(rest)
		if token == "" {
			return "", false
		}
		return token, true
	}

	if rest, ok := cutPrefix(header, "AWS4-HMAC-SHA256 "); ok {
		idx := strings.Index(rest, "Credential=")
		if idx < 0 {
			return "", false
		}
		credField := rest[idx+len("Credential="):]
		// Credential value runs up to the next comma (start of the next
		// header component, e.g. SignedHeaders=...).
		if commaIdx := strings.IndexByte(credField, ','); commaIdx >= 0 {
			credField = credField[:commaIdx]
		}
		credField = strings.TrimSpace(credField)
		slashIdx := strings.IndexByte(credField, '/')
		if slashIdx < 0 {
			return "", false
		}
		token := credField[:slashIdx]
		if token == "" {
			return "", false
		}
		return token, true
	}

	return "", false
}

func cutPrefix(s, prefix string) (string, bool) {
	if !strings.HasPrefix(s, prefix) {
		return "", false
	}
	return s[len(prefix):], true
}

// Verify extracts the token from the Authorization header and validates it
// against bucket. It returns nil on success, ErrMissingAuth if no token
// could be extracted or the token is malformed, and ErrBucketMismatch if
// the token verifies but names a different bucket.
func (v *Verifier) Verify(authorizationHeader, bucket string) error {
	token, ok := extractToken(authorizationHeader)
	if !ok {
		return ErrMissingAuth
	}

	if v.allowDevBypass && token == devBypassToken {
		return nil
	}

	if strings.Count(token, ".") != 2 {
		return ErrMissingAuth
	}

	claims, err := v.verifyWithRotatingSecrets(token)
	if err != nil {
		return ErrMissingAuth
	}
	if claims.Subject == "" {
		return ErrMissingAuth
	}
	if claims.Bucket != bucket {
		return ErrBucketMismatch
	}
	return nil
}

func (v *Verifier) verifyWithRotatingSecrets(token string) (*Claims, error) {
	var lastErr error
	for _, secret := range v.secrets {
		claims := &Claims{}
		_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, jwt.ErrTokenSignatureInvalid
			}
			return secret, nil
		}, jwt.WithValidMethods([]string{"HS256"}), jwt.WithExpirationRequired())
		if err == nil {
			return claims, nil
		}
		lastErr = err
	}
	if lastErr == nil {
		lastErr = errors.New("auth: no secrets configured")
	}
	return nil, lastErr
}
