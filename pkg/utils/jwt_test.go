package utils

import (
	"testing"
	"time"
)

func TestStateTokenRoundTrip(t *testing.T) {
	secret := "0123456789abcdef0123456789abcdef"

	token, err := GenerateStateToken(secret, "acc1", "direct", 10*time.Minute)
	if err != nil {
		t.Fatal(err)
	}

	claims, err := ValidateStateToken(secret, token)
	if err != nil {
		t.Fatal(err)
	}
	if claims.AccountLabel != "acc1" {
		t.Errorf("account label = %q, want acc1", claims.AccountLabel)
	}
	if claims.Mode != "direct" {
		t.Errorf("mode = %q, want direct", claims.Mode)
	}
}

func TestStateTokenWrongSecretRejected(t *testing.T) {
	token, err := GenerateStateToken("0123456789abcdef0123456789abcdef", "acc1", "draft", time.Minute)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := ValidateStateToken("fedcba9876543210fedcba9876543210", token); err == nil {
		t.Error("expected validation with wrong secret to fail")
	}
}

func TestStateTokenExpiryRejected(t *testing.T) {
	secret := "0123456789abcdef0123456789abcdef"
	token, err := GenerateStateToken(secret, "acc1", "draft", -time.Minute)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := ValidateStateToken(secret, token); err == nil {
		t.Error("expected expired token to be rejected")
	}
}
