package orientdb

import (
	"testing"
)

func TestTokenRoundTrip(t *testing.T) {
	secret := []byte("test-secret")

	token, err := GenerateToken("cli", secret)
	if err != nil {
		t.Fatalf("Failed to generate token: %v", err)
	}

	subject, err := ValidateToken(token, secret)
	if err != nil {
		t.Fatalf("Failed to validate token: %v", err)
	}
	if subject != "cli" {
		t.Errorf("Expected subject cli, got %q", subject)
	}
}

func TestTokenWrongKey(t *testing.T) {
	token, err := GenerateToken("cli", []byte("right-key"))
	if err != nil {
		t.Fatalf("Failed to generate token: %v", err)
	}
	if _, err := ValidateToken(token, []byte("wrong-key")); err == nil {
		t.Error("Expected validation to fail with the wrong key")
	}
}

func TestTokenGarbage(t *testing.T) {
	if _, err := ValidateToken("not-a-token", []byte("key")); err == nil {
		t.Error("Expected validation of garbage to fail")
	}
}
