package core

import (
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"
)

const (
	phoneTag  = "phone"
	phoneText = "{0} must only contain digits, spaces, '+', '-' and parentheses"

	requiredText = "this field is required"
)

var phoneRegex = regexp.MustCompile(`^[0-9+\-\s()]+$`)

// messages replaces the default english texts of these tags.
var messages = []struct {
	tag, text string
}{
	{"required", requiredText},
	{"required_with", requiredText},
	{"eqfield", "{0} does not match"},
}

// NewTranslator returns the english translator used for validation messages.
func NewTranslator() ut.Translator {
	_en := en.New()
	translator, _ := ut.New(_en, _en).GetTranslator("en")
	return translator
}

// InitValidators registers the english messages, the JSON field names
// and the phone tag on validate.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	_ = en_translations.RegisterDefaultTranslations(validate, translator)
	validate.RegisterTagNameFunc(fieldName)

	_ = validate.RegisterValidation(phoneTag, func(fl validator.FieldLevel) bool {
		return IsPhone(fl.Field().String())
	})
	RegisterCustomTranslation(validate, translator, phoneTag, phoneText)

	for _, m := range messages {
		RegisterCustomTranslation(validate, translator, m.tag, m.text, true)
	}
}

// fieldName names errors after the JSON field, or the form field for multipart bindings.
func fieldName(fld reflect.StructField) string {
	for _, key := range []string{"json", "form"} {
		name := strings.SplitN(fld.Tag.Get(key), ",", 2)[0]
		if name == "-" {
			return ""
		}
		if name != "" {
			return name
		}
	}
	return ""
}

// RegisterCustomTranslation registers a custom translation for the specified validation tag.
func RegisterCustomTranslation(validate *validator.Validate, translator ut.Translator, tag, text string, override ...bool) {
	var ovrd bool
	if len(override) > 0 {
		ovrd = override[0]
	}
	_ = validate.RegisterTranslation(
		tag, translator,
		func(t ut.Translator) error { return t.Add(tag, text, ovrd) },
		func(t ut.Translator, fe validator.FieldError) string {
			s, _ := t.T(tag, fe.Field())
			return s
		},
	)
}

// IsPhone reports whether s is made of digits, spaces, '+', '-' and parentheses only.
func IsPhone(s string) bool {
	return phoneRegex.MatchString(s)
}
