package auth

import "testing"

func TestHashAndVerifyPassword(t *testing.T) {
	hash, err := HashPassword("correct horse battery staple")
	if err != nil {
		t.Fatal(err)
	}
	ok, err := VerifyPassword("correct horse battery staple", hash)
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Error("expected password to verify")
	}
}

func TestVerifyPasswordRejectsWrongPassword(t *testing.T) {
	hash, err := HashPassword("right-password")
	if err != nil {
		t.Fatal(err)
	}
	ok, err := VerifyPassword("wrong-password", hash)
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Error("expected verification to fail")
	}
}

func TestIssueAndVerifyAccessToken(t *testing.T) {
	iss := NewIssuer("test-secret")
	token, expiresAt, err := iss.IssueAccess("alice")
	if err != nil {
		t.Fatal(err)
	}
	if expiresAt == 0 {
		t.Error("expected a nonzero expiry")
	}
	username, err := iss.Verify(token)
	if err != nil {
		t.Fatal(err)
	}
	if username != "alice" {
		t.Errorf("got %q, want alice", username)
	}
}

func TestVerifyRejectsTokenFromDifferentSecret(t *testing.T) {
	issA := NewIssuer("secret-a")
	issB := NewIssuer("secret-b")

	token, _, err := issA.IssueAccess("alice")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := issB.Verify(token); err == nil {
		t.Error("expected verification to fail across different secrets")
	}
}
