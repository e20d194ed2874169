// ABOUTME: Minimum-contract shape validation for decoded request bodies
// ABOUTME: Checks required fields and JSON primitive kinds, surfacing only the first failure

package validate

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Kind is a JSON primitive kind a field must have.
type Kind string

// Supported kinds
const (
	String Kind = "string"
	Number Kind = "number"
	Array  Kind = "array"
	Object Kind = "object"
)

// Field declares one field of a shape.
type Field struct {
	Name     string
	Kind     Kind
	Required bool
}

// Shape is an ordered list of field declarations. Fields not listed are
// allowed; a shape is a minimum contract.
type Shape []Field

// Required declares a required field.
func Required(name string, kind Kind) Field {
	return Field{Name: name, Kind: kind, Required: true}
}

// Optional declares a field that may be absent but must have the kind when present.
func Optional(name string, kind Kind) Field {
	return Field{Name: name, Kind: kind}
}

// Result is the outcome of validating a body. Message names the first
// offending field when OK is false.
type Result struct {
	OK      bool
	Field   string
	Message string
}

// Validate checks body against shape. Fields are checked in declaration
// order and only the first failure is reported.
func Validate(body map[string]any, shape Shape) Result {
	if body == nil {
		body = map[string]any{}
	}

	keys := make([]*validation.KeyRules, 0, len(shape))
	for _, f := range shape {
		kr := validation.Key(f.Name, kindRule(f.Kind))
		if !f.Required {
			kr = kr.Optional()
		}
		keys = append(keys, kr)
	}

	err := validation.Validate(body, validation.Map(keys...).AllowExtraKeys())
	if err == nil {
		return Result{OK: true}
	}

	var fieldErrs validation.Errors
	if !errors.As(err, &fieldErrs) {
		return Result{Message: err.Error()}
	}

	for _, f := range shape {
		ferr, ok := fieldErrs[f.Name]
		if !ok {
			continue
		}
		if isKeyMissing(ferr) {
			return Result{Field: f.Name, Message: fmt.Sprintf("requires property %q", f.Name)}
		}
		return Result{Field: f.Name, Message: fmt.Sprintf("%s %s", f.Name, ferr.Error())}
	}

	return Result{Message: err.Error()}
}

func isKeyMissing(err error) bool {
	var verr validation.Error
	return errors.As(err, &verr) && verr.Code() == validation.ErrKeyMissing.Code()
}

func kindRule(k Kind) validation.Rule {
	return validation.By(func(value any) error {
		if !Matches(k, value) {
			return validation.NewError("validation_kind", "is not of a type(s) "+string(k))
		}
		return nil
	})
}

// Matches reports whether a decoded JSON value has the given kind.
// null matches no kind.
func Matches(k Kind, value any) bool {
	if value == nil {
		return false
	}
	switch k {
	case String:
		_, ok := value.(string)
		return ok
	case Number:
		if _, ok := value.(json.Number); ok {
			return true
		}
		switch reflect.TypeOf(value).Kind() {
		case reflect.Float32, reflect.Float64,
			reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
			reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			return true
		}
		return false
	case Array:
		kind := reflect.TypeOf(value).Kind()
		return kind == reflect.Slice || kind == reflect.Array
	case Object:
		return reflect.TypeOf(value).Kind() == reflect.Map
	default:
		return false
	}
}
