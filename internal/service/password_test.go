package service

import (
	"strings"
	"testing"
)

func TestHashPassword_VerifyRoundTrip(t *testing.T) {
	hash, err := HashPassword("Secret1!")
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	if !strings.HasPrefix(hash, "$argon2id$") {
		t.Fatalf("unexpected hash format: %q", hash)
	}
	if !VerifyPassword("Secret1!", hash) {
		t.Fatalf("expected password to verify against its own hash")
	}
	if VerifyPassword("Secret2!", hash) {
		t.Fatalf("expected different password to fail verification")
	}
}

func TestHashPassword_SaltsDiffer(t *testing.T) {
	h1, err := HashPassword("same-password")
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	h2, err := HashPassword("same-password")
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	if h1 == h2 {
		t.Fatalf("expected distinct salts to produce distinct hashes")
	}
	if !VerifyPassword("same-password", h1) || !VerifyPassword("same-password", h2) {
		t.Fatalf("expected both hashes to verify")
	}
}

func TestVerifyPassword_MalformedHash(t *testing.T) {
	cases := []string{
		"",
		"not-a-hash",
		"$argon2id$v=19$m=65536,t=1,p=4$!!!$AAAA",
		"$argon2id$v=19$m=65536,t=1,p=4$c2FsdA",
		"$bcrypt$whatever",
		"$argon2id$v=18$m=65536,t=1,p=4$c2FsdA$aGFzaA",
	}
	for _, encoded := range cases {
		if VerifyPassword("anything", encoded) {
			t.Fatalf("expected malformed hash %q to fail verification", encoded)
		}
	}
}
