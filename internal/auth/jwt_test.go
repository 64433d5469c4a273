package auth

import (
	"testing"
	"time"
)

func TestSignAndParseAdminToken(t *testing.T) {
	now := time.Now()
	token, expiresAt, err := SignAdminToken("secret", "boxoffice", now)
	if err != nil {
		t.Fatalf("SignAdminToken(): %v", err)
	}
	if !expiresAt.Equal(now.Add(accessTokenTTL)) {
		t.Fatalf("unexpected expiry %v", expiresAt)
	}

	claims, err := ParseAdminToken("secret", token)
	if err != nil {
		t.Fatalf("ParseAdminToken(): %v", err)
	}
	if claims.Login != "boxoffice" || claims.Role != RoleAdmin {
		t.Fatalf("unexpected claims: %+v", claims)
	}
}

func TestParseAdminTokenRejectsWrongSecretAndExpired(t *testing.T) {
	token, _, err := SignAdminToken("secret", "boxoffice", time.Now())
	if err != nil {
		t.Fatalf("SignAdminToken(): %v", err)
	}
	if _, err := ParseAdminToken("other", token); err == nil {
		t.Fatalf("expected signature error")
	}

	expired, _, err := SignAdminToken("secret", "boxoffice", time.Now().Add(-time.Hour))
	if err != nil {
		t.Fatalf("SignAdminToken(): %v", err)
	}
	if _, err := ParseAdminToken("secret", expired); err == nil {
		t.Fatalf("expected expiry error")
	}
}
