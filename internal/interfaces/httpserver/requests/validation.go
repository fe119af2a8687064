package requests

import (
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("filename", validFilename)
	return v
}

// validFilename rejects names that would escape the project's storage prefix.
func validFilename(fl validator.FieldLevel) bool {
	name := strings.TrimSpace(fl.Field().String())
	return name != "" && name != "." && name != ".." && !strings.ContainsAny(name, `/\`)
}

// Validate checks a decoded request against its validate tags.
func Validate(req any) error {
	return validate.Struct(req)
}
