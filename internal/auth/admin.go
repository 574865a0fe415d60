package auth

import (
	"crypto/subtle"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// AdminAuthenticator checks credentials of the single configured admin.
// A bcrypt hash takes precedence over a plain password.
type AdminAuthenticator struct {
	email    string
	hash     []byte
	password string
}

func NewAdminAuthenticator(email, password, passwordHash string) *AdminAuthenticator {
	a := &AdminAuthenticator{email: normalize(email), password: password}
	if passwordHash != "" {
		a.hash = []byte(passwordHash)
	}
	return a
}

// Email is the configured admin email.
func (a *AdminAuthenticator) Email() string { return a.email }

func (a *AdminAuthenticator) Authenticate(email, password string) bool {
	if a.email == "" || password == "" {
		return false
	}
	emailOK := subtle.ConstantTimeCompare([]byte(normalize(email)), []byte(a.email)) == 1
	var passOK bool
	if len(a.hash) > 0 {
		passOK = bcrypt.CompareHashAndPassword(a.hash, []byte(password)) == nil
	} else {
		passOK = a.password != "" && subtle.ConstantTimeCompare([]byte(password), []byte(a.password)) == 1
	}
	return emailOK && passOK
}

func normalize(email string) string { return strings.ToLower(strings.TrimSpace(email)) }
