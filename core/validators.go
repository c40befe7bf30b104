package core

import (
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"
	"github.com/pkg/errors"
)

var (
	// custom validation tags & texts
	notBlankTag  = "notblank"
	notBlankText = "this field cannot be blank"

	subdomainTag   = "subdomain"
	subdomainText  = "only lowercase letters, digits and inner hyphens are allowed (3 to 63 characters)"
	subdomainRegex = regexp.MustCompile(`^[a-z0-9]([a-z0-9-]{1,61}[a-z0-9])$`)

	requiredTag     = "required"
	requiredWithTag = "required_with"
	requiredText    = "this field is required"
)

// NewTranslator returns the english translator used for validation messages.
func NewTranslator() ut.Translator {
	_en := en.New()
	uni := ut.New(_en, _en)
	translator, _ := uni.GetTranslator("en")
	return translator
}

// Validator validates structs and translates failures with the translator its
// messages were registered on. Translations are looked up per translator instance.
type Validator struct {
	*validator.Validate
	translator ut.Translator
}

// NewValidator returns a Validator set up with InitValidators.
func NewValidator() *Validator {
	translator := NewTranslator()
	validate := validator.New()
	InitValidators(validate, translator)
	return &Validator{Validate: validate, translator: translator}
}

func (v *Validator) Translator() ut.Translator {
	return v.translator
}

// Struct validates s. Field failures are returned as a *ValidationError carrying translated messages.
func (v *Validator) Struct(s interface{}) error {
	err := v.Validate.Struct(s)
	var vErrs validator.ValidationErrors
	if errors.As(err, &vErrs) {
		return TranslateValidationErrors(vErrs, v.translator)
	}
	return err
}

// InitValidators instantiates the validator for use.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	_ = en_translations.RegisterDefaultTranslations(validate, translator)

	// Use JSON tag names for errors instead of Go struct names.
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	// register custom validators
	_ = validate.RegisterValidation(notBlankTag, notBlankValidation)
	RegisterCustomTranslation(validate, translator, notBlankTag, notBlankText)

	_ = validate.RegisterValidation(subdomainTag, subdomainValidation)
	RegisterCustomTranslation(validate, translator, subdomainTag, subdomainText)

	RegisterCustomTranslation(validate, translator, requiredTag, requiredText, true)
	RegisterCustomTranslation(validate, translator, requiredWithTag, requiredText, true)
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

// TranslateValidationErrors converts validator errors into a ValidationError with translated field messages.
func TranslateValidationErrors(errs validator.ValidationErrors, translator ut.Translator) error {
	flds := make([]FieldError, 0, len(errs))
	for _, vErr := range errs {
		flds = append(flds, FieldError{Field: vErr.Field(), Error: vErr.Translate(translator)})
	}
	return NewValidationError(nil, flds...)
}

// Custom Global Validators

// notBlankValidation rejects strings made of whitespace only.
func notBlankValidation(fl validator.FieldLevel) bool {
	return strings.TrimSpace(fl.Field().String()) != ""
}

func subdomainValidation(fl validator.FieldLevel) bool {
	return subdomainRegex.MatchString(fl.Field().String())
}
