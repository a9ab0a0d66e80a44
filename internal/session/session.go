package session

import (
	"strconv"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// Permission names carried in session tokens.
const (
	PermApproveUsers = "users.approve"
	PermModerate     = "moderation.manage"
	PermSignIn       = "session.sign_in"
)

// Claims is the JWT payload for a signed-in forum user.
type Claims struct {
	UserID       int64    `json:"user_id"`
	UserName     string   `json:"user_name"`
	Admin        bool     `json:"admin"`
	Verified     bool     `json:"verified"`
	Permissions  []string `json:"permissions"`
	TransientKey string   `json:"transient_key"`
	jwt.RegisteredClaims
}

// Session is the resolved per-request identity. A zero Session represents a
// guest.
type Session struct {
	UserID       int64
	UserName     string
	Admin        bool
	Verified     bool
	Permissions  []string
	TransientKey string
	RemoteAddr   string
}

// IsValid reports whether the session belongs to a signed-in user.
func (s *Session) IsValid() bool {
	return s != nil && s.UserID > 0
}

// Has reports whether the session carries the named permission. Admins hold
// every permission implicitly.
func (s *Session) Has(permission string) bool {
	if !s.IsValid() {
		return false
	}
	if s.Admin {
		return true
	}
	for _, held := range s.Permissions {
		if held == permission {
			return true
		}
	}
	return false
}

// ValidateTransientKey checks an anti-forgery key submitted with a mutating
// request against the one bound to the session.
func (s *Session) ValidateTransientKey(key string) bool {
	if !s.IsValid() {
		return false
	}
	trimmed := strings.TrimSpace(key)
	return trimmed != "" && trimmed == s.TransientKey
}

// FromClaims builds a Session from validated token claims.
func FromClaims(claims Claims, remoteAddr string) Session {
	return Session{
		UserID:       claims.UserID,
		UserName:     claims.UserName,
		Admin:        claims.Admin,
		Verified:     claims.Verified,
		Permissions:  claims.Permissions,
		TransientKey: claims.TransientKey,
		RemoteAddr:   remoteAddr,
	}
}

// SubjectFor renders the JWT subject for a user identifier.
func SubjectFor(userID int64) string {
	return strconv.FormatInt(userID, 10)
}
