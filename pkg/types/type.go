package types

import (
	"sort"
	"strings"
)

// Kind identifies the base shape of a type.
type Kind int

// Kinds in the order Avro documents them.
const (
	Null Kind = iota
	Boolean
	Int
	Long
	Float
	Double
	Bytes
	String
	Record
	Enum
	Array
	Map
	Union
	Fixed
)

var kindNames = [...]string{
	Null:    "null",
	Boolean: "boolean",
	Int:     "int",
	Long:    "long",
	Float:   "float",
	Double:  "double",
	Bytes:   "bytes",
	String:  "string",
	Record:  "record",
	Enum:    "enum",
	Array:   "array",
	Map:     "map",
	Union:   "union",
	Fixed:   "fixed",
}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return "unknown"
	}
	return kindNames[k]
}

// IsPrimitive reports whether k is one of the eight primitive kinds.
func (k Kind) IsPrimitive() bool { return k <= String }

// IsNamed reports whether types of kind k carry a name.
func (k Kind) IsNamed() bool { return k == Record || k == Enum || k == Fixed }

var primitiveKinds = map[string]Kind{
	"null":    Null,
	"boolean": Boolean,
	"int":     Int,
	"long":    Long,
	"float":   Float,
	"double":  Double,
	"bytes":   Bytes,
	"string":  String,
}

// Type is a node of a parsed schema. Types are immutable once built and
// safe for concurrent use. Named types are shared: every reference to a
// name points at the same *Type, so recursive schemas form cycles.
type Type struct {
	kind    Kind
	logical Logical

	// named types
	name    string
	aliases []string
	doc     string

	// record
	fields     []*Field
	fieldIndex map[string]int

	// enum
	symbols     []string
	symbolIndex map[string]int
	enumDefault string
	hasEnumDef  bool

	// array items or map values
	items *Type

	// union
	branches []*Type

	// fixed
	size int

	// decimal
	precision int
	scale     int
}

// Field is a record field.
type Field struct {
	Name    string
	Aliases []string
	Doc     string
	Order   string
	Type    *Type

	def        any
	hasDefault bool
}

// HasDefault reports whether the field declares a default.
func (f *Field) HasDefault() bool { return f.hasDefault }

// Default returns a fresh copy of the field's default converted to the
// field's type. It returns nil when the field has no default.
func (f *Field) Default() any {
	if !f.hasDefault {
		return nil
	}
	v, err := f.Type.fromJSON(f.def, true)
	if err != nil {
		// Defaults are checked when the schema is built.
		panic("types: unchecked default for field " + f.Name)
	}
	return v
}

// DefaultJSON returns the default as it appeared in the schema.
func (f *Field) DefaultJSON() any { return f.def }

// Kind returns the base kind of t.
func (t *Type) Kind() Kind { return t.kind }

// Logical returns the logical annotation of t, or NoLogical.
func (t *Type) Logical() Logical { return t.logical }

// Name returns the full name of a named type and "" otherwise.
func (t *Type) Name() string { return t.name }

// Namespace returns the namespace part of a named type's full name.
func (t *Type) Namespace() string {
	if i := strings.LastIndexByte(t.name, '.'); i >= 0 {
		return t.name[:i]
	}
	return ""
}

// Aliases returns the full alias names of a named type.
func (t *Type) Aliases() []string { return t.aliases }

// Doc returns the doc string of a named type.
func (t *Type) Doc() string { return t.doc }

// Fields returns the fields of a record.
func (t *Type) Fields() []*Field { return t.fields }

// Field looks a record field up by name.
func (t *Type) Field(name string) (*Field, bool) {
	i, ok := t.fieldIndex[name]
	if !ok {
		return nil, false
	}
	return t.fields[i], true
}

// Symbols returns the symbols of an enum.
func (t *Type) Symbols() []string { return t.symbols }

// EnumDefault returns an enum's default symbol, if it declares one.
func (t *Type) EnumDefault() (string, bool) { return t.enumDefault, t.hasEnumDef }

// Items returns the item type of an array.
func (t *Type) Items() *Type {
	if t.kind != Array {
		return nil
	}
	return t.items
}

// Values returns the value type of a map.
func (t *Type) Values() *Type {
	if t.kind != Map {
		return nil
	}
	return t.items
}

// Branches returns the branches of a union.
func (t *Type) Branches() []*Type { return t.branches }

// Size returns the byte size of a fixed type.
func (t *Type) Size() int { return t.size }

// Precision returns the precision of a decimal.
func (t *Type) Precision() int { return t.precision }

// Scale returns the scale of a decimal.
func (t *Type) Scale() int { return t.scale }

// branchName is the name a type goes by inside a union.
func (t *Type) branchName() string {
	if t.kind.IsNamed() {
		return t.name
	}
	return t.kind.String()
}

// BranchIndex returns the index of the union branch called name, where
// name is a primitive name, "array", "map" or the full name of a named type.
func (t *Type) BranchIndex(name string) (int, bool) {
	for i, b := range t.branches {
		if b.branchName() == name {
			return i, true
		}
	}
	return -1, false
}

// Registry holds named types by full name. It is filled while schemas are
// built and only read afterwards.
type Registry struct {
	types map[string]*Type
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{types: make(map[string]*Type)}
}

// Lookup returns the named type called fullName.
func (r *Registry) Lookup(fullName string) (*Type, bool) {
	t, ok := r.types[fullName]
	return t, ok
}

// Names returns the registered names in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.types))
	for n := range r.types {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func (r *Registry) add(t *Type) error {
	if _, exists := r.types[t.name]; exists {
		return schemaErrorf("duplicate type name %q", t.name)
	}
	r.types[t.name] = t
	return nil
}

func (r *Registry) remove(name string) {
	delete(r.types, name)
}
