package shared

import (
	"errors"
	"reflect"
	"regexp"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"
)

const passwordSpecials = "@$!%*?&"

var (
	loginNameRe   = regexp.MustCompile(`^[A-Za-z0-9_]{3,50}$`)
	roleNameRe    = regexp.MustCompile(`^[A-Za-z0-9 ]{2,50}$`)
	productCodeRe = regexp.MustCompile(`^[A-Za-z0-9_-]{3,50}$`)
)

var fieldMessages = map[string]string{
	"required":       "is required",
	"loginname":      "must be 3-50 letters, digits or underscores",
	"strongpassword": "must be at least 8 characters with upper and lower case letters, a digit and one of " + passwordSpecials,
	"rolename":       "must be 2-50 letters, digits or spaces",
	"productcode":    "must be 3-50 letters, digits, hyphens or underscores",
	"gt":             "must be greater than zero",
	"gte":            "is below the minimum",
	"min":            "is too short",
	"max":            "is too long",
	"dive":           "contains an invalid entry",
}

// NewValidator returns a validator with the API's custom tags registered and JSON
// field names reported.
func NewValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})
	_ = v.RegisterValidation("loginname", func(fl validator.FieldLevel) bool {
		return loginNameRe.MatchString(fl.Field().String())
	})
	_ = v.RegisterValidation("strongpassword", func(fl validator.FieldLevel) bool {
		return StrongPassword(fl.Field().String())
	})
	_ = v.RegisterValidation("rolename", func(fl validator.FieldLevel) bool {
		return roleNameRe.MatchString(fl.Field().String())
	})
	_ = v.RegisterValidation("productcode", func(fl validator.FieldLevel) bool {
		return productCodeRe.MatchString(fl.Field().String())
	})
	return v
}

// StrongPassword reports whether pw satisfies the credential policy.
func StrongPassword(pw string) bool {
	if len(pw) < 8 || len(pw) > 128 {
		return false
	}
	var upper, lower, digit, special bool
	for _, r := range pw {
		switch {
		case r > unicode.MaxASCII:
			return false
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		case strings.ContainsRune(passwordSpecials, r):
			special = true
		default:
			return false
		}
	}
	return upper && lower && digit && special
}

// ValidationErrorFrom converts validator output into a ValidationError. Other errors
// are returned unchanged.
func ValidationErrorFrom(err error) error {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}
	out := &ValidationError{Fields: make(map[string]string, len(fieldErrs))}
	for _, fe := range fieldErrs {
		msg, ok := fieldMessages[fe.Tag()]
		if !ok {
			msg = "is invalid"
		}
		out.Fields[fe.Field()] = msg
	}
	return out
}
