// Package identity contains the domain types for users and staff records.
//
// Identities are derived, never created: a user exists because the external
// identity provider vouched for an email and the staff directory lists it.
// The canonical id of a user IS the email.
package identity

import "strings"

// User represents an authenticated chat user.
type User struct {
	// ID is the canonical identifier; always equal to Email.
	ID string `json:"id"`
	// Email is the canonical (lowercase, trimmed) address.
	Email string `json:"email"`
	// Name is the display name from the identity provider.
	Name string `json:"name,omitempty"`
	// Picture is the avatar URL from the identity provider.
	Picture string `json:"picture,omitempty"`
}

// Staff is a read-only record from the external staff directory.
// The core never mutates staff rows.
type Staff struct {
	// Email is the staff member's canonical address.
	Email string
	// Active reports whether the staff member may authenticate.
	Active bool
	// ACLs are the opaque access tags attached to this staff member.
	ACLs []string
}

// HasACL returns true if the staff record carries the given tag.
func (s *Staff) HasACL(tag string) bool {
	for _, a := range s.ACLs {
		if a == tag {
			return true
		}
	}
	return false
}

// HasAnyACL returns true if the staff record carries any of the given tags.
func (s *Staff) HasAnyACL(tags []string) bool {
	for _, tag := range tags {
		if s.HasACL(tag) {
			return true
		}
	}
	return false
}

// CanonicalEmail normalizes an email address to its canonical form.
// Uniqueness of identities is case-insensitive, so every lookup and every
// persisted email goes through this.
func CanonicalEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// UserFromProfile builds a User from identity-provider profile fields.
// The email is canonicalized; the id is the canonical email.
func UserFromProfile(email, name, picture string) *User {
	canonical := CanonicalEmail(email)
	return &User{
		ID:      canonical,
		Email:   canonical,
		Name:    name,
		Picture: picture,
	}
}
