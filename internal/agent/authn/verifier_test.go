package authn

import "testing"

func TestIsAllowedAlgorithmAcceptsRS256AndES256(t *testing.T) {
	for _, alg := range []string{"RS256", "ES256"} {
		if !isAllowedAlgorithm(alg) {
			t.Fatalf("expected %s to be allowed", alg)
		}
	}
}

func TestIsAllowedAlgorithmRejectsOthers(t *testing.T) {
	for _, alg := range []string{"none", "HS256", "RS384", ""} {
		if isAllowedAlgorithm(alg) {
			t.Fatalf("expected %s to be rejected", alg)
		}
	}
}

func TestClaimsUserIDReturnsSubject(t *testing.T) {
	c := &Claims{}
	c.Subject = "user-123"
	if c.UserID() != "user-123" {
		t.Fatalf("expected subject passthrough, got %q", c.UserID())
	}
}
