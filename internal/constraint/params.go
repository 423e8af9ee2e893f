package constraint

import (
	"errors"
	"fmt"
	"math"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
)

// ParameterValidation is the outcome of checking a parameter set.
type ParameterValidation struct {
	IsValid bool     `json:"isValid"`
	Errors  []string `json:"errors,omitempty"`
}

// ErrInvalidParameters is returned by DecodeParameters when the bag does not match the schema.
var ErrInvalidParameters = errors.New("invalid constraint parameters")

// ParameterError carries every schema mismatch found while decoding.
type ParameterError struct {
	Messages []string
}

func (e *ParameterError) Error() string {
	return fmt.Sprintf("%s: %s", ErrInvalidParameters, strings.Join(e.Messages, "; "))
}

func (e *ParameterError) Is(target error) bool {
	return target == ErrInvalidParameters
}

// crossChecker is implemented by configs with rules spanning several fields.
type crossChecker interface {
	crossCheck() []string
}

var paramValidator = newParamValidator()

func newParamValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("mapstructure"), ",", 2)[0]
		if name == "" || name == "-" {
			return field.Name
		}
		return name
	})
	return v
}

// rejectFractionalInts stops mapstructure from truncating 2.5 into an int field.
func rejectFractionalInts(from, to reflect.Type, data any) (any, error) {
	switch to.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
	default:
		return data, nil
	}
	var f float64
	switch v := data.(type) {
	case float64:
		f = v
	case float32:
		f = float64(v)
	default:
		return data, nil
	}
	if math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return nil, fmt.Errorf("expected a whole number, got %v", f)
	}
	return data, nil
}

// DecodeParameters overlays params on defaults and decodes the result into out,
// a pointer to a config struct. Unknown keys, type mismatches, tag rules and
// cross-field rules are all reported together through *ParameterError.
func DecodeParameters(defaults, params Parameters, out any) error {
	merged := defaults.Merge(params)

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		ErrorUnused: true,
		DecodeHook:  rejectFractionalInts,
		Result:      out,
	})
	if err != nil {
		return fmt.Errorf("build parameter decoder: %w", err)
	}
	if err := decoder.Decode(map[string]any(merged)); err != nil {
		var decodeErr *mapstructure.Error
		if errors.As(err, &decodeErr) {
			return &ParameterError{Messages: decodeErr.Errors}
		}
		return &ParameterError{Messages: []string{err.Error()}}
	}

	var messages []string
	if err := paramValidator.Struct(out); err != nil {
		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) {
			return &ParameterError{Messages: []string{err.Error()}}
		}
		for _, fe := range fieldErrs {
			messages = append(messages, describeFieldError(fe))
		}
	}
	if checker, ok := out.(crossChecker); ok {
		messages = append(messages, checker.crossCheck()...)
	}
	if len(messages) > 0 {
		return &ParameterError{Messages: messages}
	}
	return nil
}

// CheckParameters runs DecodeParameters into a throwaway config and reports the outcome.
func CheckParameters(defaults, params Parameters, out any) ParameterValidation {
	err := DecodeParameters(defaults, params, out)
	if err == nil {
		return ParameterValidation{IsValid: true}
	}
	var paramErr *ParameterError
	if errors.As(err, &paramErr) {
		return ParameterValidation{IsValid: false, Errors: paramErr.Messages}
	}
	return ParameterValidation{IsValid: false, Errors: []string{err.Error()}}
}

func describeFieldError(fe validator.FieldError) string {
	field := fe.Field()
	switch fe.Tag() {
	case "min":
		if fe.Kind() == reflect.Slice {
			return fmt.Sprintf("%s must contain at least %s item(s)", field, fe.Param())
		}
		return fmt.Sprintf("%s must be at least %s", field, fe.Param())
	case "max":
		if fe.Kind() == reflect.Slice {
			return fmt.Sprintf("%s must contain at most %s item(s)", field, fe.Param())
		}
		return fmt.Sprintf("%s must be at most %s", field, fe.Param())
	case "unique":
		return fmt.Sprintf("%s must not contain duplicates", field)
	case "required":
		return fmt.Sprintf("%s is required", field)
	default:
		return fmt.Sprintf("%s failed %s validation", field, fe.Tag())
	}
}

// subjectMatcher matches subjects by id or by case-insensitive name.
type subjectMatcher map[string]struct{}

func newSubjectMatcher(subjects []string) subjectMatcher {
	m := make(subjectMatcher, len(subjects))
	for _, s := range subjects {
		s = strings.ToLower(strings.TrimSpace(s))
		if s != "" {
			m[s] = struct{}{}
		}
	}
	return m
}

func (m subjectMatcher) matches(subjectID string, meta Metadata) bool {
	if len(m) == 0 {
		return false
	}
	if _, ok := m[strings.ToLower(subjectID)]; ok {
		return true
	}
	_, ok := m[strings.ToLower(meta.SubjectName(subjectID))]
	return ok
}

func intSet(values []int) map[int]struct{} {
	set := make(map[int]struct{}, len(values))
	for _, v := range values {
		set[v] = struct{}{}
	}
	return set
}
