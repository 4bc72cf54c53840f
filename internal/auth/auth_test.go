package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func signToken(t *testing.T, secret, subject, bucket string, expiresIn time.Duration) string {
	t.Helper()
	claims := Claims{
		Bucket: bucket,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(expiresIn)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("signing token: %v", err)
	}
	return signed
}

func TestExtractTokenBearerForm(t *testing.T) {
	token, ok := extractToken("Bearer abc.def.ghi")
	if !ok || token != "abc.def.ghi" {
		t.Errorf("got (%q, %v), want (abc.def.ghi, true)", token, ok)
	}
}

func TestExtractTokenAWS4Form(t *testing.T) {
	header := "AWS4-HMAC-SHA256 Credential=mytoken/20260101/us-east-1/s3/aws4_request, SignedHeaders=host, Signature=deadbeef"
	token, ok := extractToken(header)
	if !ok || token != "mytoken" {
		t.Errorf("got (%q, %v), want (mytoken, true)", token, ok)
	}
}

func TestExtractTokenMissing(t *testing.T) {
	cases := []string{"", "Basic abc", "Bearer ", "AWS4-HMAC-SHA256 SignedHeaders=host"}
	for _, h := range cases {
		if _, ok := extractToken(h); ok {
			t.Errorf("extractToken(%q) = ok, want not ok", h)
		}
	}
}

func TestVerifyValidToken(t *testing.T) {
	v := NewVerifier([]string{"secret-1"}, false)
	token := signToken(t, "secret-1", "user-1", "my-bucket", time.Hour)
	if err := v.Verify("Bearer "+token, "my-bucket"); err != nil {
		t.Errorf("Verify: %v, want nil", err)
	}
}

func TestVerifyRotatedSecret(t *testing.T) {
	v := NewVerifier([]string{"new-secret", "old-secret"}, false)
	token := signToken(t, "old-secret", "user-1", "my-bucket", time.Hour)
	if err := v.Verify("Bearer "+token, "my-bucket"); err != nil {
		t.Errorf("Verify with rotated secret: %v, want nil", err)
	}
}

func TestVerifyBucketMismatch(t *testing.T) {
	v := NewVerifier([]string{"secret-1"}, false)
	token := signToken(t, "secret-1", "user-1", "bucket-a", time.Hour)
	if err := v.Verify("Bearer "+token, "bucket-b"); err != ErrBucketMismatch {
		t.Errorf("Verify: %v, want ErrBucketMismatch", err)
	}
}

func TestVerifyInvalidSignature(t *testing.T) {
	v := NewVerifier([]string{"secret-1"}, false)
	token := signToken(t, "wrong-secret", "user-1", "my-bucket", time.Hour)
	if err := v.Verify("Bearer "+token, "my-bucket"); err != ErrMissingAuth {
		t.Errorf("Verify: %v, want ErrMissingAuth", err)
	}
}

func TestVerifyExpiredToken(t *testing.T) {
	v := NewVerifier([]string{"secret-1"}, false)
	token := signToken(t, "secret-1", "user-1", "my-bucket", -time.Hour)
	if err := v.Verify("Bearer "+token, "my-bucket"); err != ErrMissingAuth {
		t.Errorf("Verify: %v, want ErrMissingAuth", err)
	}
}

func TestVerifyMissingHeader(t *testing.T) {
	v := NewVerifier([]string{"secret-1"}, false)
	if err := v.Verify("", "my-bucket"); err != ErrMissingAuth {
		t.Errorf("Verify: %v, want ErrMissingAuth", err)
	}
}

func TestVerifyDevBypassGated(t *testing.T) {
	v := NewVerifier([]string{"secret-1"}, true)
	if err := v.Verify("Bearer foo", "any-bucket"); err != nil {
		t.Errorf("Verify with dev bypass enabled: %v, want nil", err)
	}

	vNoBypass := NewVerifier([]string{"secret-1"}, false)
	if err := vNoBypass.Verify("Bearer foo", "any-bucket"); err != ErrMissingAuth {
		t.Errorf("Verify with dev bypass disabled: %v, want ErrMissingAuth", err)
	}
}
