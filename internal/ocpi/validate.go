package ocpi

import (
	"errors"
	"strings"

	"roaming/internal/errs"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// Validate checks the required fields of a remote payload.
func Validate(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return errs.Wrap(errs.CodeInvalidInput, "invalid payload", err)
	}
	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, fe.Namespace()+":"+fe.Tag())
	}
	return errs.New(errs.CodeInvalidInput, "invalid payload").With("fields", strings.Join(fields, ","))
}
