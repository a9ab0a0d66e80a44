package applications

import (
	"net/mail"
	"strings"
	"time"
	"unicode"

	"github.com/parleylabs/parley/internal/forum"
	"github.com/parleylabs/parley/internal/record"
)

const (
	maxNameLength     = 50
	minPasswordLength = 8
)

// Application is the API projection of a user row reachable through the
// approval workflow. ApplicationID aliases the underlying UserID.
type Application struct {
	ApplicationID   int64                   `json:"applicationID"`
	Email           string                  `json:"email"`
	Name            string                  `json:"name"`
	DiscoveryText   string                  `json:"discoveryText"`
	Status          forum.ApplicationStatus `json:"status"`
	InsertIPAddress string                  `json:"insertIPAddress"`
	DateInserted    time.Time               `json:"dateInserted"`
}

// fromUser maps a stored user row to the application shape. A row reachable
// through the pending read paths is pending by construction; a confirmed row
// surfaces as approved so the patch path can detect the conflict.
func fromUser(user *record.User) Application {
	status := forum.ApplicationStatusPending
	if user.Confirmed {
		status = forum.ApplicationStatusApproved
	}
	return Application{
		ApplicationID:   user.UserID,
		Email:           user.Email,
		Name:            user.Name,
		DiscoveryText:   user.DiscoveryText,
		Status:          status,
		InsertIPAddress: user.InsertIPAddress,
		DateInserted:    user.DateInserted,
	}
}

// SubmitRequest is the body of a membership application.
type SubmitRequest struct {
	Email         string `json:"email"`
	Name          string `json:"name"`
	Password      string `json:"password"`
	DiscoveryText string `json:"discoveryText"`
}

func (r *SubmitRequest) validate() error {
	verr := &forum.ValidationError{}

	email := strings.TrimSpace(r.Email)
	if email == "" {
		verr.Add("email", "email is required")
	} else if _, err := mail.ParseAddress(email); err != nil {
		verr.Add("email", "email is not a valid address")
	}

	name := strings.TrimSpace(r.Name)
	if name == "" {
		verr.Add("name", "name is required")
	} else if len(name) > maxNameLength {
		verr.Add("name", "name is too long")
	}

	if message := checkPasswordStrength(r.Password); message != "" {
		verr.Add("password", message)
	}

	if strings.TrimSpace(r.DiscoveryText) == "" {
		verr.Add("discoveryText", "tell us why you want to join")
	}

	if len(verr.Fields) > 0 {
		return verr
	}
	return nil
}

// checkPasswordStrength returns an empty string for acceptable passwords.
func checkPasswordStrength(password string) string {
	if len(password) < minPasswordLength {
		return "password must be at least 8 characters"
	}
	var hasLetter, hasOther bool
	for _, r := range password {
		switch {
		case unicode.IsLetter(r):
			hasLetter = true
		default:
			hasOther = true
		}
	}
	if !hasLetter || !hasOther {
		return "password must mix letters with digits or symbols"
	}
	return ""
}
