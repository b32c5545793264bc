package handler

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/HeliumBERT/tracking/internal/apperror"
)

// RequestValidator adapts go-playground/validator to echo.Validator and
// reports the first failing field as a BadRequest.
type RequestValidator struct {
	v *validator.Validate
}

func NewRequestValidator() *RequestValidator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(jsonFieldName)
	return &RequestValidator{v: v}
}

func (r *RequestValidator) Validate(i any) error {
	err := r.v.Struct(i)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		e := apperror.BadRequest("Invalid value for " + fe.Field() + ".")
		e.MoreInfo = map[string]any{"field": fe.Field(), "rule": fe.Tag()}
		return e
	}
	return apperror.BadRequest("Invalid request body.")
}

func jsonFieldName(f reflect.StructField) string {
	name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
	if name == "-" {
		return ""
	}
	if name == "" {
		return f.Name
	}
	return name
}
