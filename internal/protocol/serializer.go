// CRC: crc-ActionBatch.md
// Spec: protocol.md
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"reflect"

	"github.com/shopspring/decimal"
	"github.com/spf13/cast"
	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/zot/actionq/internal/schema"
)

var (
	// ErrUnknownActionType means no schema is registered for an action type.
	ErrUnknownActionType = errors.New("unknown action type")
	// ErrBadField means a listed property could not be emitted.
	ErrBadField = errors.New("bad field")
)

// SchemaLookup returns the field list for an action type.
type SchemaLookup interface {
	Fields(actionType string) ([]schema.FieldSpec, bool)
}

// Serializer turns actions into a batch using registered schemas.
type Serializer struct {
	schemas SchemaLookup
}

// NewSerializer creates a serializer over the given schemas.
func NewSerializer(schemas SchemaLookup) *Serializer {
	return &Serializer{schemas: schemas}
}

// Encode builds a batch from actions in the given order.
// Problems are returned as warnings; the batch is always produced.
// An action with no schema is emitted with only its common fields.
func (s *Serializer) Encode(actions []*Action) (*Batch, []error) {
	batch := &Batch{Actions: make([]*orderedmap.OrderedMap[string, any], 0, len(actions))}
	var warnings []error

	for _, a := range actions {
		obj, errs := s.encodeAction(a)
		batch.Actions = append(batch.Actions, obj)
		warnings = append(warnings, errs...)
	}
	return batch, warnings
}

func (s *Serializer) encodeAction(a *Action) (*orderedmap.OrderedMap[string, any], []error) {
	obj := orderedmap.New[string, any]()
	obj.Set(FieldSortOrder, a.SortOrder)
	obj.Set(FieldType, a.Type)

	var fields []schema.FieldSpec
	ok := false
	if s.schemas != nil {
		fields, ok = s.schemas.Fields(a.Type)
	}
	if !ok {
		return obj, []error{fmt.Errorf("%w: %s", ErrUnknownActionType, a.Type)}
	}

	var warnings []error
	for _, f := range fields {
		raw, present := a.Get(f.Name)
		if !present || raw == nil {
			continue
		}
		value, empty, err := coerce(f.Kind, raw)
		if err != nil {
			warnings = append(warnings, fmt.Errorf("%w: %s.%s: %v", ErrBadField, a.Type, f.Name, err))
			continue
		}
		if empty && f.OmitEmpty {
			continue
		}
		obj.Set(f.Name, value)
	}
	return obj, warnings
}

// coerce converts v to the JSON shape for kind and reports whether it is empty.
func coerce(kind schema.Kind, v any) (any, bool, error) {
	switch kind {
	case schema.KindString:
		s, err := cast.ToStringE(v)
		return s, s == "", err
	case schema.KindInt:
		n, err := cast.ToInt64E(v)
		return n, n == 0, err
	case schema.KindFloat:
		f, err := cast.ToFloat64E(v)
		if err != nil {
			return nil, false, err
		}
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return nil, false, fmt.Errorf("non-finite float %v", f)
		}
		return f, f == 0, nil
	case schema.KindBool:
		b, err := cast.ToBoolE(v)
		return b, !b, err
	case schema.KindAmount:
		d, err := toDecimal(v)
		if err != nil {
			return nil, false, err
		}
		return json.Number(d.String()), d.IsZero(), nil
	case schema.KindList:
		l, err := toList(v)
		if err != nil {
			return nil, false, err
		}
		return l, len(l) == 0, encodable(l)
	case schema.KindObject:
		if m, ok := v.(*orderedmap.OrderedMap[string, any]); ok {
			return m, m.Len() == 0, encodable(m)
		}
		m, err := cast.ToStringMapE(v)
		if err != nil {
			return nil, false, err
		}
		return m, len(m) == 0, encodable(m)
	case schema.KindAny:
		if err := encodable(v); err != nil {
			return nil, false, err
		}
		return v, reflect.ValueOf(v).IsZero(), nil
	}
	return nil, false, fmt.Errorf("no emitter for kind %q", kind)
}

// encodable rejects values encoding/json would refuse, such as NaN nested in a list.
func encodable(v any) error {
	if _, err := json.Marshal(v); err != nil {
		return err
	}
	return nil
}

func toDecimal(v any) (decimal.Decimal, error) {
	switch x := v.(type) {
	case decimal.Decimal:
		return x, nil
	case *decimal.Decimal:
		return *x, nil
	case string:
		return decimal.NewFromString(x)
	case json.Number:
		return decimal.NewFromString(x.String())
	case float32:
		if math.IsNaN(float64(x)) || math.IsInf(float64(x), 0) {
			return decimal.Decimal{}, fmt.Errorf("non-finite amount %v", x)
		}
		return decimal.NewFromFloat32(x), nil
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return decimal.Decimal{}, fmt.Errorf("non-finite amount %v", x)
		}
		return decimal.NewFromFloat(x), nil
	}
	n, err := cast.ToInt64E(v)
	if err != nil {
		return decimal.Decimal{}, err
	}
	return decimal.NewFromInt(n), nil
}

func toList(v any) ([]any, error) {
	if l, err := cast.ToSliceE(v); err == nil {
		return l, nil
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, fmt.Errorf("unable to cast %T to list", v)
	}
	l := make([]any, rv.Len())
	for i := range l {
		l[i] = rv.Index(i).Interface()
	}
	return l, nil
}
