package validation

import (
	"fmt"
	"net/url"
	"strings"
	"unicode/utf8"
)

// FieldError is a single failed rule.
type FieldError struct {
	Field   string
	Message string
}

// Validator accumulates field errors so a request can report every problem
// at once.
type Validator struct {
	errors []FieldError
}

func New() *Validator {
	return &Validator{}
}

func (v *Validator) add(field, format string, args ...any) {
	v.errors = append(v.errors, FieldError{Field: field, Message: fmt.Sprintf(format, args...)})
}

// Required fails when s is empty after trimming.
func (v *Validator) Required(field, s string) *Validator {
	if strings.TrimSpace(s) == "" {
		v.add(field, "is required")
	}
	return v
}

// MaxLength fails when s has more than max runes.
func (v *Validator) MaxLength(field, s string, max int) *Validator {
	if utf8.RuneCountInString(s) > max {
		v.add(field, "is too long (max %d characters)", max)
	}
	return v
}

// NonNegative fails when n < 0.
func (v *Validator) NonNegative(field string, n int64) *Validator {
	if n < 0 {
		v.add(field, "must be >= 0")
	}
	return v
}

// OneOf fails when s is set and not in allowed. Emptiness is Required's job.
func (v *Validator) OneOf(field, s string, allowed ...string) *Validator {
	if s == "" {
		return v
	}
	for _, a := range allowed {
		if s == a {
			return v
		}
	}
	v.add(field, "must be one of %s", strings.Join(allowed, ", "))
	return v
}

// Check records message for field unless ok.
func (v *Validator) Check(ok bool, field, message string) *Validator {
	if !ok {
		v.add(field, "%s", message)
	}
	return v
}

func (v *Validator) Valid() bool {
	return len(v.errors) == 0
}

func (v *Validator) Errors() []FieldError {
	return v.errors
}

// ValidateURL validates an http(s) URL.
func ValidateURL(urlStr string) error {
	if urlStr == "" {
		return fmt.Errorf("URL is required")
	}
	u, err := url.Parse(urlStr)
	if err != nil {
		return fmt.Errorf("invalid URL format: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("invalid URL scheme (must be http or https)")
	}
	if u.Host == "" {
		return fmt.Errorf("URL must have a host")
	}
	return nil
}

// ValidateFilename rejects names that would escape a directory.
func ValidateFilename(name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("filename is required")
	}
	if strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return fmt.Errorf("filename must not contain path separators")
	}
	if strings.ContainsRune(name, 0) {
		return fmt.Errorf("filename contains invalid characters")
	}
	return nil
}
