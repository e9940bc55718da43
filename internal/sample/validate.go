package sample

import (
	"errors"
	"fmt"
	"math"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// ValidationError reports a malformed or non-finite feature or label vector.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// IsValidationError reports whether err wraps a *ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// Validator checks samples against the struct tags and the configured number
// of shapes. It is safe for concurrent use.
type Validator struct {
	v      *validator.Validate
	shapes int
}

// NewValidator returns a Validator accepting shape indices in [0, shapes-1].
func NewValidator(shapes int) *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	// NaN compares false against every bound, so finiteness needs its own tag.
	_ = v.RegisterValidation("finite", func(fl validator.FieldLevel) bool {
		f := fl.Field().Float()
		return !math.IsNaN(f) && !math.IsInf(f, 0)
	})
	return &Validator{v: v, shapes: shapes}
}

// Shapes returns the number of shape categories accepted.
func (v *Validator) Shapes() int {
	return v.shapes
}

// Features validates a feature vector.
func (v *Validator) Features(f FeatureVector) error {
	return v.translate("xs", v.v.Struct(f))
}

// Labels validates a label vector including the shape range.
func (v *Validator) Labels(l LabelVector) error {
	if err := v.translate("ys", v.v.Struct(l)); err != nil {
		return err
	}
	if l.Shape >= v.shapes {
		return &ValidationError{Field: "ys.shape", Reason: fmt.Sprintf("out of range [0, %d]: %d", v.shapes-1, l.Shape)}
	}
	return nil
}

// Sample validates both halves of a training sample.
func (v *Validator) Sample(s TrainingSample) error {
	if err := v.Features(s.XS); err != nil {
		return err
	}
	return v.Labels(s.YS)
}

func (v *Validator) translate(prefix string, err error) error {
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return &ValidationError{
			Field:  prefix + "." + fe.Field(),
			Reason: fmt.Sprintf("failed %q (value %v)", fe.Tag(), fe.Value()),
		}
	}
	return &ValidationError{Field: prefix, Reason: err.Error()}
}
