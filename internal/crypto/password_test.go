package crypto

import "testing"

func TestPasswordHashing(t *testing.T) {
	hash, err := HashPassword("secret")
	if err != nil {
		t.Fatalf("hash error: %v", err)
	}
	if err := CheckPassword(hash, "secret"); err != nil {
		t.Fatalf("expected password to match")
	}
	if err := CheckPassword(hash, "wrong"); err == nil {
		t.Fatalf("expected password mismatch")
	}
}

func TestRefreshTokensAreUniqueAndHashStable(t *testing.T) {
	a, err := NewRefreshToken()
	if err != nil {
		t.Fatalf("token error: %v", err)
	}
	b, err := NewRefreshToken()
	if err != nil {
		t.Fatalf("token error: %v", err)
	}
	if a == b {
		t.Fatalf("expected distinct refresh tokens")
	}
	if HashToken(a) != HashToken(a) || HashToken(a) == HashToken(b) {
		t.Fatalf("expected stable, distinct hashes")
	}
}
