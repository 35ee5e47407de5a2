package usertoken

import (
	"errors"
	"strings"
	"testing"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
)

var testSecret = strings.Repeat("s", 32)

func sign(t *testing.T, method jwt.SigningMethod, key any, claims jwt.RegisteredClaims) string {
	t.Helper()
	signed, err := jwt.NewWithClaims(method, claims).SignedString(key)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return signed
}

func validClaims(subject string) jwt.RegisteredClaims {
	now := time.Now()
	return jwt.RegisteredClaims{
		Subject:   subject,
		Issuer:    "issuer-a",
		Audience:  jwt.ClaimStrings{"aud-a"},
		ExpiresAt: jwt.NewNumericDate(now.Add(time.Minute)),
		IssuedAt:  jwt.NewNumericDate(now),
	}
}

func TestNewVerifierRequiresLongSecret(t *testing.T) {
	if _, err := NewVerifier(Config{Secret: "short"}); !errors.Is(err, ErrSecretTooShort) {
		t.Fatalf("expected short secret error, got %v", err)
	}
}

func TestVerifySubject(t *testing.T) {
	v, err := NewVerifier(Config{Secret: testSecret, Issuer: "issuer-a", Audience: "aud-a"})
	if err != nil {
		t.Fatalf("new verifier: %v", err)
	}

	sub, err := v.VerifySubject(sign(t, jwt.SigningMethodHS256, []byte(testSecret), validClaims("user-a")))
	if err != nil || sub != "user-a" {
		t.Fatalf("verify: sub=%q err=%v", sub, err)
	}

	tests := []struct {
		name  string
		token string
	}{
		{"wrong secret", sign(t, jwt.SigningMethodHS256, []byte(strings.Repeat("x", 32)), validClaims("user-a"))},
		{"wrong algorithm", sign(t, jwt.SigningMethodHS512, []byte(testSecret), validClaims("user-a"))},
		{"wrong issuer", func() string {
			c := validClaims("user-a")
			c.Issuer = "someone-else"
			return sign(t, jwt.SigningMethodHS256, []byte(testSecret), c)
		}()},
		{"wrong audience", func() string {
			c := validClaims("user-a")
			c.Audience = jwt.ClaimStrings{"other"}
			return sign(t, jwt.SigningMethodHS256, []byte(testSecret), c)
		}()},
		{"expired", func() string {
			c := validClaims("user-a")
			c.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Hour))
			return sign(t, jwt.SigningMethodHS256, []byte(testSecret), c)
		}()},
		{"no expiry", func() string {
			c := validClaims("user-a")
			c.ExpiresAt = nil
			return sign(t, jwt.SigningMethodHS256, []byte(testSecret), c)
		}()},
		{"garbage", "not-a-token"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := v.VerifySubject(tt.token); err == nil {
				t.Fatalf("expected verification failure")
			}
		})
	}

	if _, err := v.VerifySubject(sign(t, jwt.SigningMethodHS256, []byte(testSecret), validClaims(" "))); !errors.Is(err, ErrMissingSubject) {
		t.Fatalf("expected missing subject, got %v", err)
	}
}

func TestVerifySubjectHonorsLeeway(t *testing.T) {
	v, _ := NewVerifier(Config{Secret: testSecret, Issuer: "issuer-a", Audience: "aud-a", Leeway: time.Minute})
	c := validClaims("user-a")
	c.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-10 * time.Second))
	if _, err := v.VerifySubject(sign(t, jwt.SigningMethodHS256, []byte(testSecret), c)); err != nil {
		t.Fatalf("expected token within leeway to pass: %v", err)
	}
}
