package core

import (
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitValidators(t *testing.T) {
	validate := NewValidator()

	type form struct {
		Reason    string `json:"reason" validate:"required,notblank"`
		Subdomain string `json:"subdomain" validate:"required,subdomain"`
	}
	tests := []struct {
		name       string
		form       form
		wantFields map[string]string
	}{
		{name: "valid", form: form{Reason: "duplicate", Subdomain: "lycee-wima"}},
		{
			name:       "missing",
			form:       form{},
			wantFields: map[string]string{"reason": "this field is required", "subdomain": "this field is required"},
		},
		{
			name:       "blank and invalid",
			form:       form{Reason: " \t ", Subdomain: "Lycee_Wima"},
			wantFields: map[string]string{"reason": notBlankText, "subdomain": subdomainText},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validate.Struct(tt.form)
			if tt.wantFields == nil {
				assert.NoError(t, err)
				return
			}
			var vErr *ValidationError
			require.True(t, errors.As(err, &vErr))
			got := make(map[string]string)
			for _, f := range vErr.Fields {
				got[f.Field] = f.Error
			}
			assert.Equal(t, tt.wantFields, got)

			// raw errors translate the same with the validator's own translator
			var vErrs validator.ValidationErrors
			require.True(t, errors.As(validate.Validate.Struct(tt.form), &vErrs))
			require.True(t, errors.As(TranslateValidationErrors(vErrs, validate.Translator()), &vErr))
			assert.Len(t, vErr.Fields, len(tt.wantFields))
		})
	}
}

func TestCleanString(t *testing.T) {
	assert.Equal(t, "Wima", CleanString("  Wima\n"))
	assert.Equal(t, "wima", CleanString("  Wima\n", true /* lower */))
}
