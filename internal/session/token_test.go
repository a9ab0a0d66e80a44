package session

import (
	"errors"
	"testing"
	"time"
)

func newTestManager(t *testing.T, clock func() time.Time) *TokenManager {
	t.Helper()
	manager, err := NewTokenManager(TokenManagerConfig{
		SigningSecret: []byte("test-secret"),
		Issuer:        "parley-test",
		TokenTTL:      time.Hour,
		Clock:         clock,
	})
	if err != nil {
		t.Fatalf("failed to construct token manager: %v", err)
	}
	return manager
}

func TestIssueAndValidateRoundTrip(t *testing.T) {
	now := time.Unix(1700000000, 0).UTC()
	manager := newTestManager(t, func() time.Time { return now })

	token, err := manager.Issue(Claims{
		UserID:      42,
		UserName:    "alice",
		Verified:    true,
		Permissions: []string{PermSignIn, PermModerate},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	claims, err := manager.Validate(token)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if claims.UserID != 42 || claims.UserName != "alice" || !claims.Verified {
		t.Fatalf("unexpected claims: %+v", claims)
	}
	if claims.TransientKey == "" {
		t.Fatalf("expected a minted transient key")
	}
	if claims.Subject != SubjectFor(42) {
		t.Fatalf("unexpected subject %q", claims.Subject)
	}

	sess := FromClaims(claims, "192.0.2.1")
	if !sess.IsValid() || !sess.Has(PermModerate) || sess.Has(PermApproveUsers) {
		t.Fatalf("unexpected session permissions: %+v", sess)
	}
	if !sess.ValidateTransientKey(claims.TransientKey) {
		t.Fatalf("expected transient key to validate against itself")
	}
	if sess.ValidateTransientKey("forged") {
		t.Fatalf("expected mismatched transient key to fail")
	}
}

func TestValidateRejectsExpiredToken(t *testing.T) {
	now := time.Unix(1700000000, 0).UTC()
	manager := newTestManager(t, func() time.Time { return now })

	token, err := manager.Issue(Claims{UserID: 1})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	late := newTestManager(t, func() time.Time { return now.Add(2 * time.Hour) })
	if _, err := late.Validate(token); !errors.Is(err, ErrExpiredToken) {
		t.Fatalf("expected expired token error, got %v", err)
	}
}

func TestValidateRejectsWrongSecret(t *testing.T) {
	now := time.Unix(1700000000, 0).UTC()
	manager := newTestManager(t, func() time.Time { return now })

	token, err := manager.Issue(Claims{UserID: 1})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	other, err := NewTokenManager(TokenManagerConfig{
		SigningSecret: []byte("different-secret"),
		Issuer:        "parley-test",
		Clock:         func() time.Time { return now },
	})
	if err != nil {
		t.Fatalf("failed to construct token manager: %v", err)
	}
	if _, err := other.Validate(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected invalid token error, got %v", err)
	}
}

func TestValidateRejectsWrongIssuer(t *testing.T) {
	now := time.Unix(1700000000, 0).UTC()
	manager := newTestManager(t, func() time.Time { return now })

	other, err := NewTokenManager(TokenManagerConfig{
		SigningSecret: []byte("test-secret"),
		Issuer:        "someone-else",
		Clock:         func() time.Time { return now },
	})
	if err != nil {
		t.Fatalf("failed to construct token manager: %v", err)
	}
	token, err := other.Issue(Claims{UserID: 1})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := manager.Validate(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected invalid token error, got %v", err)
	}
}

func TestValidateMissingToken(t *testing.T) {
	manager := newTestManager(t, nil)
	if _, err := manager.Validate("   "); !errors.Is(err, ErrMissingToken) {
		t.Fatalf("expected missing token error, got %v", err)
	}
}

func TestIssueRequiresSubject(t *testing.T) {
	manager := newTestManager(t, nil)
	if _, err := manager.Issue(Claims{}); !errors.Is(err, ErrMissingSubject) {
		t.Fatalf("expected missing subject error, got %v", err)
	}
}

func TestNewTokenManagerRequiresSecret(t *testing.T) {
	if _, err := NewTokenManager(TokenManagerConfig{}); !errors.Is(err, ErrMissingSigningSecret) {
		t.Fatalf("expected missing secret error, got %v", err)
	}
}

func TestGuestSessionHasNoPermissions(t *testing.T) {
	guest := &Session{RemoteAddr: "192.0.2.1"}
	if guest.IsValid() || guest.Has(PermSignIn) || guest.ValidateTransientKey("anything") {
		t.Fatalf("expected guest session to carry no rights: %+v", guest)
	}
}

func TestAdminHoldsEveryPermission(t *testing.T) {
	admin := &Session{UserID: 1, Admin: true}
	if !admin.Has(PermApproveUsers) || !admin.Has(PermModerate) {
		t.Fatalf("expected admin to hold all permissions")
	}
}
