package models

import (
	"encoding/json"
	"time"

	"github.com/alim08/tradesite/pkg/validation"
)

// ContactMessage is a contact form submission. The msg tags are the exact
// messages shown next to the form; each rule blocks submission on its own.
type ContactMessage struct {
	ID        string    `json:"id"`
	Name      string    `json:"name" validate:"min=2" msg:"Please enter a valid name (at least 2 characters)"`
	Email     string    `json:"email" validate:"required,emailaddr" msg:"Please enter a valid email address"`
	Subject   string    `json:"subject" validate:"required,oneof=general technical billing partnership other" msg:"Please select a subject for your inquiry"`
	Message   string    `json:"message" validate:"min=10" msg:"Please provide a detailed message (at least 10 characters)"`
	Locale    string    `json:"locale,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Sanitize trims and strips control characters from every text field.
func (c *ContactMessage) Sanitize() {
	c.Name = validation.SanitizeString(c.Name)
	c.Email = validation.SanitizeString(c.Email)
	c.Subject = validation.SanitizeString(c.Subject)
	c.Message = validation.SanitizeString(c.Message)
}

// Validate validates the ContactMessage struct
func (c ContactMessage) Validate() error {
	if errs := validation.ValidateStruct(c); len(errs) > 0 {
		return errs
	}
	return nil
}

// LoginCredentials is the body forwarded to the auth backend's login endpoint.
type LoginCredentials struct {
	Identifier    string `json:"emailOrUsername" validate:"required"`
	Password      string `json:"password" validate:"required" redact:"true"`
	TwoFactorCode string `json:"twoFactorCode,omitempty" validate:"omitempty,otp"`
	RememberMe    bool   `json:"rememberMe,omitempty"`
}

// Validate validates the LoginCredentials struct
func (l LoginCredentials) Validate() error {
	if errs := validation.ValidateStruct(l); len(errs) > 0 {
		return errs
	}
	return nil
}

// Registration is the profile forwarded to the auth backend's register endpoint.
type Registration struct {
	FirstName   string `json:"firstName" validate:"required,max=100"`
	LastName    string `json:"lastName" validate:"required,max=100"`
	Email       string `json:"email" validate:"required,emailaddr"`
	Username    string `json:"username" validate:"required,username"`
	Password    string `json:"password" validate:"required,min=8,max=128" redact:"true"`
	PhoneNumber string `json:"phoneNumber" validate:"omitempty,phone"`
	Telephone   string `json:"telephone" validate:"omitempty,phone"`
	Country     string `json:"country" validate:"required,country"`
	Language    string `json:"language" validate:"required,langcode"`
	DateOfBirth string `json:"dateOfBirth" validate:"required,birthdate"`
	Source      string `json:"source"`
}

// Sanitize trims every profile field except the password.
func (r *Registration) Sanitize() {
	r.FirstName = validation.SanitizeString(r.FirstName)
	r.LastName = validation.SanitizeString(r.LastName)
	r.Email = validation.SanitizeString(r.Email)
	r.Username = validation.SanitizeString(r.Username)
	r.PhoneNumber = validation.SanitizeString(r.PhoneNumber)
	r.Telephone = validation.SanitizeString(r.Telephone)
	r.Country = validation.SanitizeString(r.Country)
	r.Language = validation.SanitizeString(r.Language)
	r.DateOfBirth = validation.SanitizeString(r.DateOfBirth)
}

// Validate validates the Registration struct
func (r Registration) Validate() error {
	if errs := validation.ValidateStruct(r); len(errs) > 0 {
		return errs
	}
	return nil
}

// AuthResult is what the auth backend answers for login and registration.
// Registration reports failure through Errors; login through Success.
type AuthResult struct {
	Success bool            `json:"success"`
	Message string          `json:"message,omitempty"`
	Errors  json.RawMessage `json:"errors,omitempty"`
	Token   string          `json:"token,omitempty"`
	User    *AuthUser       `json:"user,omitempty"`
}

// HasErrors reports whether an errors field was present and non-null.
func (a AuthResult) HasErrors() bool {
	return len(a.Errors) > 0 && string(a.Errors) != "null"
}

// AuthUser is the optional user description returned on login.
type AuthUser struct {
	ID       string   `json:"id"`
	Username string   `json:"username"`
	Email    string   `json:"email"`
	Roles    []string `json:"roles,omitempty"`
}
