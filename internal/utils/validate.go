package utils

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	ifscPattern  = regexp.MustCompile(`^[A-Z]{4}0[A-Z0-9]{6}$`)
	panPattern   = regexp.MustCompile(`^[A-Z]{5}[0-9]{4}[A-Z]$`)
	gstinPattern = regexp.MustCompile(`^[0-9]{2}[A-Z]{5}[0-9]{4}[A-Z][1-9A-Z]Z[0-9A-Z]$`)
	phonePattern = regexp.MustCompile(`^[6-9][0-9]{9}$`)
	accountNo    = regexp.MustCompile(`^[0-9]{9,18}$`)

	validate     *validator.Validate
	validateOnce sync.Once
)

// Validator returns the shared validator with PayForm's custom tags:
// ifsc, pan, gstin, inphone (10-digit Indian mobile) and accountno
// (9 to 18 plain digits).
func Validator() *validator.Validate {
	validateOnce.Do(func() {
		v := validator.New(validator.WithRequiredStructEnabled())
		v.RegisterTagNameFunc(func(field reflect.StructField) string {
			name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
		mustRegister(v, "ifsc", ifscPattern)
		mustRegister(v, "pan", panPattern)
		mustRegister(v, "gstin", gstinPattern)
		mustRegister(v, "inphone", phonePattern)
		mustRegister(v, "accountno", accountNo)
		validate = v
	})
	return validate
}

func mustRegister(v *validator.Validate, tag string, pattern *regexp.Regexp) {
	if err := v.RegisterValidation(tag, func(fl validator.FieldLevel) bool {
		return pattern.MatchString(fl.Field().String())
	}); err != nil {
		panic(fmt.Sprintf("register %s validation: %v", tag, err))
	}
}

// ValidateStruct runs the shared validator and flattens failures into a
// single readable message.
func ValidateStruct(s any) error {
	err := Validator().Struct(s)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}

	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fieldMessage(fe))
	}
	return errors.New(strings.Join(msgs, "; "))
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fe.Field() + " is required"
	case "email":
		return fe.Field() + " must be a valid email"
	case "ifsc":
		return fe.Field() + " must be a valid IFSC code"
	case "pan":
		return fe.Field() + " must be a valid PAN"
	case "gstin":
		return fe.Field() + " must be a valid GSTIN"
	case "inphone":
		return fe.Field() + " must be a 10-digit mobile number"
	case "accountno":
		return fe.Field() + " must be 9 to 18 digits"
	case "min", "max", "len":
		return fmt.Sprintf("%s must satisfy %s=%s", fe.Field(), fe.Tag(), fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of %s", fe.Field(), fe.Param())
	default:
		return fmt.Sprintf("%s is invalid (%s)", fe.Field(), fe.Tag())
	}
}

// MaskAccountNumber keeps the last four digits of a bank account number.
func MaskAccountNumber(number string) string {
	if len(number) <= 4 {
		return number
	}
	return strings.Repeat("X", len(number)-4) + number[len(number)-4:]
}
