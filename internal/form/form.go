// Package form holds the panel's parameter record and the per-field
// bounds the controls enforce.
package form

import (
	"errors"
	"fmt"
	"math"

	"github.com/cheahjs/sdwebui-panel/internal/params"
)

var (
	ErrUnknownField  = errors.New("unknown field")
	ErrWrongKind     = errors.New("field has a different type")
	ErrInvalidOption = errors.New("value is not one of the field's options")
)

// Form is an immutable snapshot of the parameter record. Setters return a
// new Form and never touch fields other than the one named.
type Form struct {
	p params.Parameters
}

// New returns a form holding every field's default.
func New() Form {
	var p params.Parameters
	for i := range fields {
		f := &fields[i]
		switch f.Kind {
		case KindInt, KindIntChoice:
			*f.intRef(&p) = f.Default.(int)
		case KindFloat:
			*f.floatRef(&p) = f.Default.(float64)
		case KindBool:
			*f.boolRef(&p) = f.Default.(bool)
		case KindText, KindChoice:
			*f.stringRef(&p) = f.Default.(string)
		}
	}
	return Form{p: p}
}

// FromParameters wraps an existing record without altering it.
func FromParameters(p params.Parameters) Form {
	return Form{p: p.Clone()}
}

func (f Form) Parameters() params.Parameters {
	return f.p.Clone()
}

func Fields() []Field {
	return append([]Field(nil), fields...)
}

func Lookup(name string) (Field, bool) {
	field, ok := fieldsByName[name]
	if !ok {
		return Field{}, false
	}
	return *field, true
}

func (f Form) SetInt(name string, v int64) (Form, error) {
	field, err := lookup(name)
	if err != nil {
		return f, err
	}

	p := f.p.Clone()
	switch field.Kind {
	case KindInt:
		*field.intRef(&p) = int(field.Clamp(float64(v)))
	case KindSeed:
		seed := int64(field.Clamp(float64(v)))
		*field.seedRef(&p) = &seed
	case KindIntChoice:
		if !field.hasIntChoice(int(v)) {
			return f, fmt.Errorf("%s=%d: %w", name, v, ErrInvalidOption)
		}
		*field.intRef(&p) = int(v)
	default:
		return f, fmt.Errorf("%s: %w", name, ErrWrongKind)
	}
	return Form{p: p}, nil
}

// ClearSeed marks a seed field as unset so the WebUI picks one.
func (f Form) ClearSeed(name string) (Form, error) {
	field, err := lookup(name)
	if err != nil {
		return f, err
	}
	if field.Kind != KindSeed {
		return f, fmt.Errorf("%s: %w", name, ErrWrongKind)
	}
	p := f.p.Clone()
	*field.seedRef(&p) = nil
	return Form{p: p}, nil
}

func (f Form) SetFloat(name string, v float64) (Form, error) {
	field, err := lookup(name)
	if err != nil {
		return f, err
	}
	if field.Kind != KindFloat {
		return f, fmt.Errorf("%s: %w", name, ErrWrongKind)
	}
	p := f.p.Clone()
	*field.floatRef(&p) = field.Clamp(v)
	return Form{p: p}, nil
}

func (f Form) SetBool(name string, v bool) (Form, error) {
	field, err := lookup(name)
	if err != nil {
		return f, err
	}
	if field.Kind != KindBool {
		return f, fmt.Errorf("%s: %w", name, ErrWrongKind)
	}
	p := f.p.Clone()
	*field.boolRef(&p) = v
	return Form{p: p}, nil
}

func (f Form) SetString(name, v string) (Form, error) {
	field, err := lookup(name)
	if err != nil {
		return f, err
	}
	switch field.Kind {
	case KindText:
	case KindChoice:
		if !field.hasChoice(v) {
			return f, fmt.Errorf("%s=%q: %w", name, v, ErrInvalidOption)
		}
	default:
		return f, fmt.Errorf("%s: %w", name, ErrWrongKind)
	}
	p := f.p.Clone()
	*field.stringRef(&p) = v
	return Form{p: p}, nil
}

// Value returns the current value of the named field. Unset seeds are nil.
func (f Form) Value(name string) (interface{}, error) {
	field, err := lookup(name)
	if err != nil {
		return nil, err
	}
	p := f.p
	switch field.Kind {
	case KindInt, KindIntChoice:
		return *field.intRef(&p), nil
	case KindSeed:
		if seed := *field.seedRef(&p); seed != nil {
			return *seed, nil
		}
		return nil, nil
	case KindFloat:
		return *field.floatRef(&p), nil
	case KindBool:
		return *field.boolRef(&p), nil
	default:
		return *field.stringRef(&p), nil
	}
}

// Clamp snaps v to the field's step grid, anchored at Min, and bounds it
// to [Min, Max].
func (field Field) Clamp(v float64) float64 {
	if math.IsNaN(v) {
		v = field.Min
	}
	if field.Step > 0 {
		v = field.Min + math.Round((v-field.Min)/field.Step)*field.Step
		v = math.Round(v*1e6) / 1e6
	}
	if v < field.Min {
		v = field.Min
	}
	if v > field.Max {
		v = field.Max
	}
	return v
}

func (field Field) hasChoice(v string) bool {
	for _, c := range field.Choices {
		if c == v {
			return true
		}
	}
	return false
}

func (field Field) hasIntChoice(v int) bool {
	for _, c := range field.IntChoices {
		if c.Value == v {
			return true
		}
	}
	return false
}

func lookup(name string) (*Field, error) {
	field, ok := fieldsByName[name]
	if !ok {
		return nil, fmt.Errorf("%q: %w", name, ErrUnknownField)
	}
	return field, nil
}
