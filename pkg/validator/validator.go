package validator

import (
	stderrors "errors"
	"fmt"
	"reflect"
	"sort"
	"strings"

	playground "github.com/go-playground/validator/v10"
)

// Validator provides validation functionality
type Validator interface {
	Validate(interface{}) error
}

type validator struct {
	v *playground.Validate
}

// New returns a validator that reports fields by their json names.
func New() Validator {
	v := playground.New(playground.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		if name == "" {
			return f.Name
		}
		return name
	})
	return &validator{v: v}
}

// Validate checks obj's validate tags. Missing required fields are reported
// together; any other failure names the field and the rule it broke.
func (v *validator) Validate(obj interface{}) error {
	err := v.v.Struct(obj)
	if err == nil {
		return nil
	}

	var errs playground.ValidationErrors
	if !stderrors.As(err, &errs) {
		return err
	}

	var missing, invalid []string
	for _, fe := range errs {
		switch fe.Tag() {
		case "required":
			missing = append(missing, fe.Field())
		case "oneof":
			invalid = append(invalid, fmt.Sprintf("%s must be one of [%s]", fe.Field(), fe.Param()))
		default:
			invalid = append(invalid, fmt.Sprintf("%s failed %s validation", fe.Field(), fe.Tag()))
		}
	}

	var parts []string
	if len(missing) > 0 {
		sort.Strings(missing)
		parts = append(parts, "missing required fields: "+strings.Join(missing, ", "))
	}
	parts = append(parts, invalid...)
	return stderrors.New(strings.Join(parts, "; "))
}
