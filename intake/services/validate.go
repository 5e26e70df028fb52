package services

import (
	"log"
	"reflect"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"
)

type applicantFields struct {
	FirstName string `json:"first_name" validate:"required,titlecase"`
	LastName  string `json:"last_name" validate:"required,titlecase"`
	Email     string `json:"email" validate:"required,email"`
	Phone     string `json:"phone" validate:"required,intlphone"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())

	// Report fields by their json name so the errors match the request body.
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	err := v.RegisterValidation("titlecase", func(fl validator.FieldLevel) bool {
		runes := []rune(fl.Field().String())
		return len(runes) > 0 && unicode.IsUpper(runes[0])
	})
	if err != nil {
		log.Fatalf("error registering titlecase validation: %v", err)
	}

	err = v.RegisterValidation("intlphone", func(fl validator.FieldLevel) bool {
		phone := fl.Field().String()
		return strings.HasPrefix(phone, "+") && len(phone) > 1
	})
	if err != nil {
		log.Fatalf("error registering intlphone validation: %v", err)
	}

	return v
}

func validationMessage(tag string) string {
	switch tag {
	case "required":
		return "this field is required"
	case "titlecase":
		return "must begin with an uppercase letter"
	case "email":
		return "must be a valid email address"
	case "intlphone":
		return "must begin with '+'"
	}
	return "invalid value"
}

// validateFields runs the validator and flattens the result into a
// field -> message map, or nil if the input is valid.
func validateFields(value interface{}) map[string]string {
	err := validate.Struct(value)
	if err == nil {
		return nil
	}

	fieldErrors := make(map[string]string)
	for _, ferr := range err.(validator.ValidationErrors) {
		fieldErrors[ferr.Field()] = validationMessage(ferr.Tag())
	}
	return fieldErrors
}
