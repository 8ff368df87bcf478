package recordstore

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/chronostore/chronostore/internal/errors"
	"gopkg.in/yaml.v3"
)

// Record holds a single logical record's field values keyed by field name.
type Record map[string]any

// FieldType identifies the storage type of a declared field.
type FieldType string

const (
	FieldString FieldType = "string"
	FieldInt    FieldType = "int"
	FieldFloat  FieldType = "float"
	FieldBool   FieldType = "bool"
	FieldTime   FieldType = "time"
)

// Field declares one field of a collection.
type Field struct {
	Name       string    `yaml:"name"`
	Type       FieldType `yaml:"type"`
	PrimaryKey bool      `yaml:"primary_key"`
	Unique     bool      `yaml:"unique"`
}

// CollectionDef declares a collection: its fields, logical key and the
// audit/versioning behaviour requested for it.
type CollectionDef struct {
	Name    string  `yaml:"name"`
	Fields  []Field `yaml:"fields"`
	History bool    `yaml:"history"` // keep every version and allow rollback
	Audit   bool    `yaml:"audit"`   // keep an audit trail of every mutation
}

// Description is the public summary of a collection definition.
type Description struct {
	Name        string   `json:"name"`
	Fields      []string `json:"fields"`
	PrimaryKeys []string `json:"primary_keys"`
	History     bool     `json:"history"`
	Audit       bool     `json:"audit"`
}

// identifierRe restricts collection and field names to plain SQL-safe identifiers.
var identifierRe = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// reservedFieldNames are claimed by the versioning and audit machinery.
var reservedFieldNames = map[string]bool{
	FieldValidSince:  true,
	FieldValidUntil:  true,
	FieldRevision:    true,
	FieldAuditUser:   true,
	FieldAuditDate:   true,
	FieldAuditAction: true,
	FieldTableName:   true,
}

// Validate checks a collection definition for structural problems.
func (d *CollectionDef) Validate() error {
	if d.Name == "" {
		return errors.ValidationError("collection name must not be empty")
	}
	if !identifierRe.MatchString(d.Name) {
		return errors.Newf("invalid collection name %q", d.Name).
			Component("recordstore").
			Category(errors.CategoryValidation).
			Build()
	}
	if d.Name == sharedAuditTable || d.Name == counterTable || strings.HasPrefix(d.Name, auditTablePrefix) {
		return errors.Newf("collection name %q is reserved", d.Name).
			Component("recordstore").
			Category(errors.CategoryValidation).
			Build()
	}
	if len(d.Fields) == 0 {
		return errors.Newf("collection %q declares no fields", d.Name).
			Component("recordstore").
			Category(errors.CategoryValidation).
			Build()
	}
	seen := make(map[string]bool, len(d.Fields))
	primaryKeys := 0
	for i := range d.Fields {
		f := &d.Fields[i]
		if !identifierRe.MatchString(f.Name) {
			return errors.Newf("collection %q declares invalid field name %q", d.Name, f.Name).
				Component("recordstore").
				Category(errors.CategoryValidation).
				Build()
		}
		if reservedFieldNames[f.Name] {
			return errors.Newf("collection %q declares reserved field name %q", d.Name, f.Name).
				Component("recordstore").
				Category(errors.CategoryValidation).
				Build()
		}
		if seen[f.Name] {
			return errors.Newf("collection %q declares field %q twice", d.Name, f.Name).
				Component("recordstore").
				Category(errors.CategoryValidation).
				Build()
		}
		seen[f.Name] = true
		switch f.Type {
		case FieldString, FieldInt, FieldFloat, FieldBool, FieldTime:
		case "":
			f.Type = FieldString
		default:
			return errors.Newf("collection %q field %q has unknown type %q", d.Name, f.Name, f.Type).
				Component("recordstore").
				Category(errors.CategoryValidation).
				Build()
		}
		if f.PrimaryKey {
			primaryKeys++
		}
	}
	if primaryKeys == 0 {
		return errors.Newf("collection %q declares no primary key field", d.Name).
			Component("recordstore").
			Category(errors.CategoryValidation).
			Build()
	}
	return nil
}

// PrimaryKeys returns the declared primary key fields in declaration order.
func (d *CollectionDef) PrimaryKeys() []Field {
	var keys []Field
	for _, f := range d.Fields {
		if f.PrimaryKey {
			keys = append(keys, f)
		}
	}
	return keys
}

// UniqueFields returns the fields declared unique, excluding primary keys.
func (d *CollectionDef) UniqueFields() []Field {
	var fields []Field
	for _, f := range d.Fields {
		if f.Unique && !f.PrimaryKey {
			fields = append(fields, f)
		}
	}
	return fields
}

// FieldByName returns the declared field with the given name, if any.
func (d *CollectionDef) FieldByName(name string) (Field, bool) {
	for _, f := range d.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// Describe returns the public summary of this definition.
func (d *CollectionDef) Describe() Description {
	desc := Description{
		Name:    d.Name,
		History: d.History,
		Audit:   d.Audit,
	}
	for _, f := range d.Fields {
		desc.Fields = append(desc.Fields, f.Name)
		if f.PrimaryKey {
			desc.PrimaryKeys = append(desc.PrimaryKeys, f.Name)
		}
	}
	return desc
}

// storageDef returns the definition of the physical table or collection
// backing def. Versioned collections gain the two validity interval fields.
func storageDef(def *CollectionDef) *CollectionDef {
	if !def.History {
		return def
	}
	sdef := &CollectionDef{
		Name:    def.Name,
		History: true,
		Audit:   def.Audit,
	}
	sdef.Fields = append(sdef.Fields, def.Fields...)
	sdef.Fields = append(sdef.Fields,
		Field{Name: FieldValidSince, Type: FieldInt},
		Field{Name: FieldValidUntil, Type: FieldInt},
	)
	return sdef
}

// schemaFile is the YAML layout of a collection schema file.
type schemaFile struct {
	Collections []*CollectionDef `yaml:"collections"`
}

// LoadSchemaFile reads collection definitions from a YAML file.
func LoadSchemaFile(path string) ([]*CollectionDef, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Newf("reading schema file %s: %v", path, err).
			Component("recordstore").
			Category(errors.CategoryFileIO).
			Context("path", path).
			Build()
	}
	var file schemaFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, errors.Newf("parsing schema file %s: %v", path, err).
			Component("recordstore").
			Category(errors.CategoryFileIO).
			Context("path", path).
			Build()
	}
	if len(file.Collections) == 0 {
		return nil, errors.Newf("schema file %s declares no collections", path).
			Component("recordstore").
			Category(errors.CategoryValidation).
			Build()
	}
	for _, def := range file.Collections {
		if err := def.Validate(); err != nil {
			return nil, err
		}
	}
	return file.Collections, nil
}

// prepareRecord returns a copy of rec restricted to the declared fields of
// def, with every value coerced to the declared field type. Unknown fields
// are dropped rather than rejected.
func prepareRecord(def *CollectionDef, rec Record) Record {
	out := make(Record, len(def.Fields))
	for _, f := range def.Fields {
		v, ok := rec[f.Name]
		if !ok {
			continue
		}
		out[f.Name] = coerceValue(f.Type, v)
	}
	return out
}

// normalizeRecord coerces every declared field of a stored row back to its
// declared Go type. Backends return driver specific types (int64 for bools,
// []byte for strings, strings for timestamps) that would otherwise leak to
// callers.
func normalizeRecord(def *CollectionDef, rec Record) Record {
	out := make(Record, len(rec))
	for _, f := range def.Fields {
		v, ok := rec[f.Name]
		if !ok {
			continue
		}
		out[f.Name] = coerceValue(f.Type, v)
	}
	return out
}

// mergePatch overlays the declared fields present in patch over base.
func mergePatch(def *CollectionDef, base, patch Record) Record {
	merged := make(Record, len(base)+len(patch))
	for _, f := range def.Fields {
		if v, ok := base[f.Name]; ok {
			merged[f.Name] = v
		}
		if v, ok := patch[f.Name]; ok {
			merged[f.Name] = coerceValue(f.Type, v)
		}
	}
	return merged
}

// recordEquals reports whether two records agree on every declared field.
func recordEquals(def *CollectionDef, a, b Record) bool {
	for _, f := range def.Fields {
		av, aok := a[f.Name]
		bv, bok := b[f.Name]
		if aok != bok {
			return false
		}
		if !aok {
			continue
		}
		if !valueEquals(f.Type, av, bv) {
			return false
		}
	}
	return true
}

func valueEquals(ft FieldType, a, b any) bool {
	a = coerceValue(ft, a)
	b = coerceValue(ft, b)
	if at, ok := a.(time.Time); ok {
		bt, ok := b.(time.Time)
		return ok && at.Equal(bt)
	}
	return a == b
}

// coerceValue converts a raw value to the canonical Go type for the given
// field type: string, int64, float64, bool or time.Time. Values that cannot
// be converted are passed through unchanged.
func coerceValue(ft FieldType, v any) any {
	if v == nil {
		return nil
	}
	switch ft {
	case FieldString:
		switch val := v.(type) {
		case string:
			return val
		case []byte:
			return string(val)
		}
	case FieldInt:
		if n, ok := toInt64(v); ok {
			return n
		}
	case FieldFloat:
		if f, ok := toFloat64(v); ok {
			return f
		}
	case FieldBool:
		switch val := v.(type) {
		case bool:
			return val
		case int64:
			return val != 0
		case int:
			return val != 0
		case float64:
			return val != 0
		case []byte:
			return string(val) == "1" || strings.EqualFold(string(val), "true")
		case string:
			return val == "1" || strings.EqualFold(val, "true")
		}
	case FieldTime:
		switch val := v.(type) {
		case time.Time:
			return val.UTC()
		case string:
			if t, ok := parseTime(val); ok {
				return t
			}
		case []byte:
			if t, ok := parseTime(string(val)); ok {
				return t
			}
		}
	}
	return v
}

// toInt64 converts any integral representation to int64.
func toInt64(v any) (int64, bool) {
	switch val := v.(type) {
	case int64:
		return val, true
	case int:
		return int64(val), true
	case int32:
		return int64(val), true
	case int16:
		return int64(val), true
	case int8:
		return int64(val), true
	case uint:
		return int64(val), true
	case uint64:
		return int64(val), true
	case uint32:
		return int64(val), true
	case float64:
		return int64(val), true
	case float32:
		return int64(val), true
	case json.Number:
		if n, err := val.Int64(); err == nil {
			return n, true
		}
	case []byte:
		if n, err := strconv.ParseInt(string(val), 10, 64); err == nil {
			return n, true
		}
	case string:
		if n, err := strconv.ParseInt(val, 10, 64); err == nil {
			return n, true
		}
	}
	return 0, false
}

// toFloat64 converts any numeric representation to float64.
func toFloat64(v any) (float64, bool) {
	switch val := v.(type) {
	case float64:
		return val, true
	case float32:
		return float64(val), true
	case int64:
		return float64(val), true
	case int:
		return float64(val), true
	case int32:
		return float64(val), true
	case uint64:
		return float64(val), true
	case json.Number:
		if f, err := val.Float64(); err == nil {
			return f, true
		}
	case []byte:
		if f, err := strconv.ParseFloat(string(val), 64); err == nil {
			return f, true
		}
	case string:
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f, true
		}
	}
	return 0, false
}

var timeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func parseTime(s string) (time.Time, bool) {
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

// keyFingerprint builds a comparable identity for a record's logical key.
func keyFingerprint(def *CollectionDef, rec Record) string {
	var sb strings.Builder
	for _, f := range def.PrimaryKeys() {
		sb.WriteString(f.Name)
		sb.WriteByte('=')
		sb.WriteString(fmt.Sprintf("%v", coerceValue(f.Type, rec[f.Name])))
		sb.WriteByte(';')
	}
	return sb.String()
}
