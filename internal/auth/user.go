// Package auth wraps the external identity provider: it tracks the
// current signed-in user, hands out bearer tokens for backend calls and
// publishes identity-change events to interested components.
package auth

import "strings"

// User is the authenticated identity exposed by the provider.
type User struct {
	UID         string `json:"uid"`
	Email       string `json:"email"`
	DisplayName string `json:"displayName"`
	PhotoURL    string `json:"photoUrl"`
}

// ShortName returns a compact name for display: the first word of the
// display name, falling back to the local part of the email address.
func (u *User) ShortName() string {
	if u.DisplayName != "" {
		return strings.Fields(u.DisplayName)[0]
	}
	if at := strings.Index(u.Email, "@"); at > 0 {
		return u.Email[:at]
	}
	return u.Email
}
