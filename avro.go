// SPDX-FileCopyrightText: 2025 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package kafkabridge

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/linkedin/goavro/v2"
)

// RecordSchema maps record Values to and from Avro binary using an Avro record
// schema.  Field order on decode follows the schema's declaration order.
//
// Supported field types are null, string, bytes, int, long, float, double,
// nested records and the two-branch union ["null", T].
type RecordSchema struct {
	// Strict rejects record Values that carry fields the schema does not
	// declare.  When false those fields are dropped.
	Strict bool

	codec *goavro.Codec
	root  avroType
}

// avroType is the subset of an Avro type the mapping understands.
type avroType struct {
	// name is the primitive name, or "record".
	name string

	// fullName is the namespaced record name, used as the union branch name.
	fullName string

	nullable bool
	fields   []avroField
}

type avroField struct {
	name string
	typ  avroType
}

// NewRecordSchema parses an Avro record schema.
func NewRecordSchema(schema string, strict bool) (*RecordSchema, error) {
	var raw any
	if err := json.Unmarshal([]byte(schema), &raw); err != nil {
		return nil, errors.Join(ErrValidation, fmt.Errorf("schema is not valid JSON: %w", err))
	}

	root, err := parseAvroType(raw, "")
	if err != nil {
		return nil, errors.Join(ErrValidation, err)
	}
	if root.name != "record" || root.nullable {
		return nil, errors.Join(ErrValidation, fmt.Errorf("schema must be a record"))
	}

	codec, err := goavro.NewCodec(schema)
	if err != nil {
		return nil, errors.Join(ErrValidation, err)
	}

	return &RecordSchema{
		Strict: strict,
		codec:  codec,
		root:   root,
	}, nil
}

func parseAvroType(raw any, namespace string) (avroType, error) {
	switch t := raw.(type) {
	case string:
		switch t {
		case "null", "string", "bytes", "int", "long", "float", "double":
			return avroType{name: t}, nil
		}
		return avroType{}, fmt.Errorf("unsupported type %q", t)

	case []any:
		if len(t) != 2 || t[0] != "null" {
			return avroType{}, fmt.Errorf("only [\"null\", T] unions are supported")
		}
		inner, err := parseAvroType(t[1], namespace)
		if err != nil {
			return avroType{}, err
		}
		inner.nullable = true
		return inner, nil

	case map[string]any:
		typ, _ := t["type"].(string)
		if typ != "record" {
			// {"type": "long"} style declarations.
			if typ != "" {
				return parseAvroType(typ, namespace)
			}
			return avroType{}, fmt.Errorf("type declaration has no type")
		}
		return parseAvroRecord(t, namespace)
	}
	return avroType{}, fmt.Errorf("unsupported type declaration %v", raw)
}

func parseAvroRecord(decl map[string]any, namespace string) (avroType, error) {
	name, _ := decl["name"].(string)
	if name == "" {
		return avroType{}, fmt.Errorf("record has no name")
	}
	if ns, ok := decl["namespace"].(string); ok {
		namespace = ns
	}

	fullName := name
	if !strings.Contains(name, ".") && namespace != "" {
		fullName = namespace + "." + name
	}
	if i := strings.LastIndex(fullName, "."); i >= 0 {
		namespace = fullName[:i]
	}

	rawFields, _ := decl["fields"].([]any)
	rec := avroType{name: "record", fullName: fullName}
	for _, rf := range rawFields {
		f, ok := rf.(map[string]any)
		if !ok {
			return avroType{}, fmt.Errorf("record %s: malformed field", fullName)
		}
		fname, _ := f["name"].(string)
		ft, err := parseAvroType(f["type"], namespace)
		if err != nil {
			return avroType{}, fmt.Errorf("record %s field %q: %w", fullName, fname, err)
		}
		rec.fields = append(rec.fields, avroField{name: fname, typ: ft})
	}
	return rec, nil
}

// Marshal encodes a record Value into Avro binary.
func (s *RecordSchema) Marshal(v Value) ([]byte, error) {
	if v.Kind() != KindRecord {
		return nil, errors.Join(ErrSchemaMismatch, fmt.Errorf("expected record, got %s", v.Kind()))
	}

	native, err := s.toNative(s.root, v, s.root.fullName)
	if err != nil {
		return nil, err
	}

	b, err := s.codec.BinaryFromNative(nil, native)
	if err != nil {
		return nil, errors.Join(ErrSchemaMismatch, err)
	}
	return b, nil
}

// Unmarshal decodes Avro binary into a record Value.
func (s *RecordSchema) Unmarshal(b []byte) (Value, error) {
	native, rest, err := s.codec.NativeFromBinary(b)
	if err != nil {
		return Value{}, errors.Join(ErrSchemaMismatch, err)
	}
	if len(rest) != 0 {
		return Value{}, errors.Join(ErrSchemaMismatch,
			fmt.Errorf("%d trailing bytes after record", len(rest)))
	}
	return s.fromNative(s.root, native, s.root.fullName)
}

func (s *RecordSchema) toNative(t avroType, v Value, path string) (any, error) {
	if v.IsAbsent() {
		if t.name == "null" || t.nullable {
			return nil, nil
		}
		return nil, mismatch(path, t, v)
	}

	var native any
	switch t.name {
	case "string":
		str, ok := v.Text()
		if !ok {
			return nil, mismatch(path, t, v)
		}
		native = str

	case "bytes":
		b, ok := v.Bytes()
		if !ok {
			return nil, mismatch(path, t, v)
		}
		native = b

	case "long":
		n, ok := v.Int64()
		if !ok {
			return nil, mismatch(path, t, v)
		}
		native = n

	case "int":
		n, ok := v.Int64()
		if !ok {
			return nil, mismatch(path, t, v)
		}
		if n < math.MinInt32 || n > math.MaxInt32 {
			return nil, errors.Join(ErrSchemaMismatch,
				fmt.Errorf("%s: %d overflows int", path, n))
		}
		native = int32(n)

	case "double":
		f, ok := v.Float64()
		if !ok {
			return nil, mismatch(path, t, v)
		}
		native = f

	case "float":
		f, ok := v.Float64()
		if !ok {
			return nil, mismatch(path, t, v)
		}
		if !math.IsNaN(f) && float64(float32(f)) != f {
			return nil, errors.Join(ErrSchemaMismatch,
				fmt.Errorf("%s: %g is not representable as float", path, f))
		}
		native = float32(f)

	case "record":
		m, err := s.recordToNative(t, v, path)
		if err != nil {
			return nil, err
		}
		native = m

	default:
		return nil, mismatch(path, t, v)
	}

	if t.nullable {
		branch := t.name
		if t.name == "record" {
			branch = t.fullName
		}
		return goavro.Union(branch, native), nil
	}
	return native, nil
}

func (s *RecordSchema) recordToNative(t avroType, v Value, path string) (map[string]any, error) {
	fields, ok := v.Fields()
	if !ok {
		return nil, mismatch(path, t, v)
	}

	declared := make(map[string]avroType, len(t.fields))
	for _, f := range t.fields {
		declared[f.name] = f.typ
	}

	m := make(map[string]any, len(t.fields))
	for _, f := range fields {
		ft, ok := declared[f.Name]
		if !ok {
			if s.Strict {
				return nil, errors.Join(ErrSchemaMismatch,
					fmt.Errorf("%s: unknown field %q", path, f.Name))
			}
			continue
		}
		native, err := s.toNative(ft, f.Value, path+"."+f.Name)
		if err != nil {
			return nil, err
		}
		m[f.Name] = native
	}

	for _, f := range t.fields {
		if _, ok := m[f.name]; ok {
			continue
		}
		if f.typ.nullable || f.typ.name == "null" {
			m[f.name] = nil
			continue
		}
		return nil, errors.Join(ErrSchemaMismatch,
			fmt.Errorf("%s: missing field %q", path, f.name))
	}
	return m, nil
}

func (s *RecordSchema) fromNative(t avroType, native any, path string) (Value, error) {
	if native == nil {
		return Absent(), nil
	}

	// Unions decode as map[branch]value.
	if t.nullable {
		branch := t.name
		if t.name == "record" {
			branch = t.fullName
		}
		if u, ok := native.(map[string]any); ok && len(u) == 1 {
			if inner, found := u[branch]; found {
				native = inner
			}
		}
	}

	switch n := native.(type) {
	case string:
		return Text(n), nil
	case []byte:
		return Bytes(n), nil
	case int64:
		return Int64(n), nil
	case int32:
		return Int64(int64(n)), nil
	case float64:
		return Float64(n), nil
	case float32:
		return Float64(float64(n)), nil
	case map[string]any:
		if t.name != "record" {
			break
		}
		fields := make([]Field, 0, len(t.fields))
		for _, f := range t.fields {
			fv, err := s.fromNative(f.typ, n[f.name], path+"."+f.name)
			if err != nil {
				return Value{}, err
			}
			fields = append(fields, Field{Name: f.name, Value: fv})
		}
		return Record(fields...), nil
	}

	return Value{}, errors.Join(ErrSchemaMismatch,
		fmt.Errorf("%s: cannot map %T to %s", path, native, t.name))
}

func mismatch(path string, t avroType, v Value) error {
	return errors.Join(ErrSchemaMismatch,
		fmt.Errorf("%s: schema wants %s, value is %s", path, t.name, v.Kind()))
}
