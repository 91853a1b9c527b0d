package models

import (
	"testing"

	"github.com/alim08/tradesite/pkg/validation"
)

func validContact() ContactMessage {
	return ContactMessage{
		Name:    "Ada",
		Email:   "ada@example.com",
		Subject: "technical",
		Message: "The market grid does not load.",
	}
}

func TestContactMessage_Valid(t *testing.T) {
	c := validContact()
	c.Sanitize()
	if err := c.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestContactMessage_EverySubjectAccepted(t *testing.T) {
	for _, subject := range []string{"general", "technical", "billing", "partnership", "other"} {
		c := validContact()
		c.Subject = subject
		if err := c.Validate(); err != nil {
			t.Errorf("%s: unexpected error: %v", subject, err)
		}
	}
}

func TestContactMessage_EachRuleBlocks(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*ContactMessage)
		field  string
		want   string
	}{
		{"short name", func(c *ContactMessage) { c.Name = " A " }, "name",
			"Please enter a valid name (at least 2 characters)"},
		{"empty email", func(c *ContactMessage) { c.Email = "" }, "email",
			"Please enter a valid email address"},
		{"bad email", func(c *ContactMessage) { c.Email = "ada@example" }, "email",
			"Please enter a valid email address"},
		{"no subject", func(c *ContactMessage) { c.Subject = "" }, "subject",
			"Please select a subject for your inquiry"},
		{"unknown subject", func(c *ContactMessage) { c.Subject = "sales" }, "subject",
			"Please select a subject for your inquiry"},
		{"short message", func(c *ContactMessage) { c.Message = "  too short " }, "message",
			"Please provide a detailed message (at least 10 characters)"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := validContact()
			tc.mutate(&c)
			c.Sanitize()

			ve, ok := validation.AsValidationErrors(c.Validate())
			if !ok {
				t.Fatalf("expected validation errors")
			}
			if len(ve) != 1 {
				t.Fatalf("got %d errors; want 1: %v", len(ve), ve)
			}
			if ve[0].Field != tc.field || ve[0].Message != tc.want {
				t.Errorf("got %s=%q; want %s=%q", ve[0].Field, ve[0].Message, tc.field, tc.want)
			}
		})
	}
}

func TestContactMessage_AllRulesInFieldOrder(t *testing.T) {
	c := ContactMessage{}
	ve, _ := validation.AsValidationErrors(c.Validate())
	want := []string{"name", "email", "subject", "message"}
	if len(ve) != len(want) {
		t.Fatalf("got %v", ve)
	}
	for i, f := range want {
		if ve[i].Field != f {
			t.Errorf("error %d field = %q; want %q", i, ve[i].Field, f)
		}
	}
	if ve.First() != "Please enter a valid name (at least 2 characters)" {
		t.Errorf("form-level message = %q", ve.First())
	}
}

func TestLoginCredentials_Validate(t *testing.T) {
	cases := []struct {
		name string
		in   LoginCredentials
		ok   bool
	}{
		{"valid", LoginCredentials{Identifier: "ada", Password: "pw"}, true},
		{"valid with code", LoginCredentials{Identifier: "ada", Password: "pw", TwoFactorCode: "123456"}, true},
		{"missing identifier", LoginCredentials{Password: "pw"}, false},
		{"missing password", LoginCredentials{Identifier: "ada"}, false},
		{"short code", LoginCredentials{Identifier: "ada", Password: "pw", TwoFactorCode: "123"}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.in.Validate()
			if (err == nil) != tc.ok {
				t.Errorf("err = %v; want ok=%v", err, tc.ok)
			}
		})
	}
}

func TestRegistration_Validate(t *testing.T) {
	valid := Registration{
		FirstName:   "Ada",
		LastName:    "Lovelace",
		Email:       "ada@example.com",
		Username:    "ada.l",
		Password:    "analytical",
		PhoneNumber: "+44 20 7946 0000",
		Country:     "GB",
		Language:    "en",
		DateOfBirth: "1990-12-10",
	}
	if err := valid.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	bad := valid
	bad.Country = "gbr"
	bad.Password = "short"
	ve, ok := validation.AsValidationErrors(bad.Validate())
	if !ok {
		t.Fatal("expected validation errors")
	}
	fields := ve.ByField()
	if _, ok := fields["password"]; !ok {
		t.Error("missing password error")
	}
	if _, ok := fields["country"]; !ok {
		t.Error("missing country error")
	}
	for _, e := range ve {
		if e.Field == "password" && e.Value != nil {
			t.Error("password value echoed in validation error")
		}
	}
}

func TestRegistration_Sanitize(t *testing.T) {
	r := Registration{FirstName: " Ada\x00 ", Password: " keep spaces "}
	r.Sanitize()
	if r.FirstName != "Ada" {
		t.Errorf("FirstName = %q", r.FirstName)
	}
	if r.Password != " keep spaces " {
		t.Errorf("password must not be altered, got %q", r.Password)
	}
}

func TestSnapshot_Validate(t *testing.T) {
	ok := Snapshot{{Symbol: "BTC", Price: 1}, {Symbol: "ETH", Price: 0}}
	if err := ok.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	dup := Snapshot{{Symbol: "BTC", Price: 1}, {Symbol: "BTC", Price: 2}}
	if err := dup.Validate(); err == nil {
		t.Error("expected duplicate symbol error")
	}
	neg := Snapshot{{Symbol: "BTC", Price: -1}}
	if err := neg.Validate(); err == nil {
		t.Error("expected negative price error")
	}
	if got := ok.Symbols(); len(got) != 2 || got[0] != "BTC" || got[1] != "ETH" {
		t.Errorf("Symbols() = %v", got)
	}
}
