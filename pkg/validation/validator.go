package validation

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// DateLayout is the wire format of dates of birth.
const DateLayout = "2006-01-02"

var (
	// Custom validator instance
	validate = validator.New()

	// Regex patterns for validation
	emailPattern    = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	otpPattern      = regexp.MustCompile(`^[0-9]{6}$`)
	usernamePattern = regexp.MustCompile(`^[A-Za-z0-9_.-]{3,30}$`)
	phonePattern    = regexp.MustCompile(`^\+?[0-9 ]{6,20}$`)
	countryPattern  = regexp.MustCompile(`^[A-Z]{2}$`)
	langPattern     = regexp.MustCompile(`^[a-z]{2,3}$`)

	// now is swapped in tests
	now = time.Now
)

// ValidationError represents a validation error with field and message
type ValidationError struct {
	Field   string      `json:"field"`
	Message string      `json:"message"`
	Value   interface{} `json:"value,omitempty"`
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface
func (ve ValidationErrors) Error() string {
	if len(ve) == 0 {
		return ""
	}

	var messages []string
	for _, err := range ve {
		messages = append(messages, fmt.Sprintf("%s: %s", err.Field, err.Message))
	}
	return strings.Join(messages, "; ")
}

// First returns the message of the first failed field, used as the form-level message.
func (ve ValidationErrors) First() string {
	if len(ve) == 0 {
		return ""
	}
	return ve[0].Message
}

// ByField maps field names to their message for inline rendering.
func (ve ValidationErrors) ByField() map[string]string {
	out := make(map[string]string, len(ve))
	for _, e := range ve {
		if _, ok := out[e.Field]; !ok {
			out[e.Field] = e.Message
		}
	}
	return out
}

// AsValidationErrors unwraps err into ValidationErrors when it carries them.
func AsValidationErrors(err error) (ValidationErrors, bool) {
	var ve ValidationErrors
	if errors.As(err, &ve) {
		return ve, true
	}
	return nil, false
}

// Register custom validators
func init() {
	// Report fields by their form/json name.
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})

	validate.RegisterValidation("emailaddr", patternValidator(emailPattern))
	validate.RegisterValidation("otp", patternValidator(otpPattern))
	validate.RegisterValidation("username", patternValidator(usernamePattern))
	validate.RegisterValidation("phone", patternValidator(phonePattern))
	validate.RegisterValidation("country", patternValidator(countryPattern))
	validate.RegisterValidation("langcode", patternValidator(langPattern))
	validate.RegisterValidation("birthdate", validateBirthdate)
}

func patternValidator(re *regexp.Regexp) validator.Func {
	return func(fl validator.FieldLevel) bool {
		s, ok := fl.Field().Interface().(string)
		if !ok {
			return false
		}
		return re.MatchString(s)
	}
}

// validateBirthdate accepts yyyy-mm-dd dates that are not in the future
func validateBirthdate(fl validator.FieldLevel) bool {
	s, ok := fl.Field().Interface().(string)
	if !ok {
		return false
	}
	d, err := time.Parse(DateLayout, s)
	if err != nil {
		return false
	}
	return !d.After(now())
}

// ValidateStruct validates a struct using tags. Fields carrying a msg tag
// report that message whatever rule failed; redact:"true" fields never echo
// their value.
func ValidateStruct(s interface{}) ValidationErrors {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return ValidationErrors{{Field: "", Message: err.Error()}}
	}

	typ := reflect.TypeOf(s)
	for typ.Kind() == reflect.Ptr {
		typ = typ.Elem()
	}

	var errs ValidationErrors
	for _, fe := range fieldErrs {
		message := ""
		value := fe.Value()
		if sf, ok := typ.FieldByName(fe.StructField()); ok {
			message = sf.Tag.Get("msg")
			if sf.Tag.Get("redact") == "true" {
				value = nil
			}
		}
		if message == "" {
			message = getErrorMessage(fe.Field(), fe.Tag(), fe.Param())
		}
		errs = append(errs, ValidationError{
			Field:   fe.Field(),
			Message: message,
			Value:   value,
		})
	}

	return errs
}

// getErrorMessage returns a user-friendly error message
func getErrorMessage(field, tag, param string) string {
	switch tag {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "emailaddr":
		return fmt.Sprintf("%s must be a valid email address", field)
	case "otp":
		return fmt.Sprintf("%s must be a 6 digit code", field)
	case "username":
		return fmt.Sprintf("%s must be 3-30 letters, digits, dots, dashes or underscores", field)
	case "phone":
		return fmt.Sprintf("%s must be a valid phone number", field)
	case "country":
		return fmt.Sprintf("%s must be a two letter country code", field)
	case "langcode":
		return fmt.Sprintf("%s must be a valid language code", field)
	case "birthdate":
		return fmt.Sprintf("%s must be a date (YYYY-MM-DD) that is not in the future", field)
	case "min":
		return fmt.Sprintf("%s must be at least %s characters", field, param)
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", field, param)
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, param)
	default:
		return fmt.Sprintf("%s failed validation: %s", field, tag)
	}
}

// SanitizeString removes potentially dangerous characters
func SanitizeString(s string) string {
	// Remove null bytes and control characters
	s = strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 { // Keep tab, newline, carriage return
			return -1
		}
		return r
	}, s)

	// Trim whitespace
	return strings.TrimSpace(s)
}
