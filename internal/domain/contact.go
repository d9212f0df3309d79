package domain

import (
	"fmt"
	"net/mail"
	"strings"
	"time"
)

// Contact represents a person/organization pair to be contacted.
// Contacts are created by import and treated as immutable afterwards,
// aside from corrections; sequence progression lives in SequenceState.
type Contact struct {
	ID           string
	Email        string
	Name         string
	Organization string
	Role         string
	Attributes   Attributes
	CreatedAt    time.Time
}

// NewContact creates a new Contact instance with a normalized email.
func NewContact(id, email, name, organization, role string, attrs Attributes, createdAt time.Time) *Contact {
	return &Contact{
		ID:           id,
		Email:        NormalizeEmail(email),
		Name:         name,
		Organization: organization,
		Role:         role,
		Attributes:   attrs,
		CreatedAt:    createdAt,
	}
}

// NormalizeEmail lowercases and trims an email address. All dedup and
// suppression keys are derived from the normalized form.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ValidateContact validates a Contact instance.
func ValidateContact(c *Contact) error {
	if c == nil {
		return fmt.Errorf("contact cannot be nil")
	}

	if c.ID == "" {
		return fmt.Errorf("contact ID is required")
	}

	if c.Email == "" {
		return fmt.Errorf("contact Email is required")
	}

	if _, err := mail.ParseAddress(c.Email); err != nil {
		return fmt.Errorf("contact Email is invalid: %s", c.Email)
	}

	if c.Name == "" {
		return fmt.Errorf("contact Name is required")
	}

	return nil
}
