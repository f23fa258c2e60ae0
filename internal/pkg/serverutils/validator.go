package serverutils

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"memcontext-be/internal/pkg/apperror"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Report fields by their JSON names.
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})
	return v
}

// ValidateRequest runs struct tag validation and reports the first failing field.
func ValidateRequest(req interface{}) error {
	err := validate.Struct(req)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		if fe.Tag() == "required" {
			return apperror.New(apperror.KindValidation, fmt.Sprintf("%s is required", fe.Field()))
		}
		return apperror.New(apperror.KindValidation, fmt.Sprintf("%s failed on '%s'", fe.Field(), fe.Tag()))
	}
	return apperror.Wrap(apperror.KindValidation, "invalid request", err)
}
