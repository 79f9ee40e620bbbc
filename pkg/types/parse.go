package types

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// Options control how a schema is turned into types.
type Options struct {
	// Namespace is the enclosing namespace for unqualified top-level names.
	Namespace string
	// Registry receives the named types defined by the schema and supplies
	// previously defined ones. A fresh registry is used when nil.
	Registry *Registry
	// NoLogicalTypes decodes logical types as their base kind.
	NoLogicalTypes bool
}

// Parse builds a type from JSON schema text. A bare name such as "string"
// or "com.example.User" may be given without quotes.
func Parse(schema string, opts *Options) (*Type, error) {
	trimmed := strings.TrimSpace(schema)
	if trimmed == "" {
		return nil, schemaErrorf("empty schema")
	}
	var node any
	if c := trimmed[0]; c == '{' || c == '[' || c == '"' {
		dec := json.NewDecoder(strings.NewReader(trimmed))
		dec.UseNumber()
		if err := dec.Decode(&node); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidSchema, err)
		}
		if dec.More() {
			return nil, schemaErrorf("trailing data after schema")
		}
	} else {
		node = trimmed
	}
	return ForSchema(node, opts)
}

// MustParse is like Parse but panics on error. It is meant for schemas
// known at compile time.
func MustParse(schema string) *Type {
	t, err := Parse(schema, nil)
	if err != nil {
		panic(err)
	}
	return t
}

// ForSchema builds a type from a decoded JSON schema node: a string, a
// map[string]any or a []any. Names must be defined before they are
// referenced, except that a record may refer to itself from its fields.
func ForSchema(node any, opts *Options) (*Type, error) {
	if opts == nil {
		opts = &Options{}
	}
	b := &builder{
		reg:       opts.Registry,
		noLogical: opts.NoLogicalTypes,
	}
	if b.reg == nil {
		b.reg = NewRegistry()
	}
	t, err := b.build(node, opts.Namespace)
	if err == nil {
		err = b.checkDefaults()
	}
	if err != nil {
		// A failed build leaves no trace in a caller's registry.
		for _, name := range b.added {
			b.reg.remove(name)
		}
		return nil, err
	}
	return t, nil
}

func (b *builder) checkDefaults() error {
	for _, check := range b.defaults {
		if _, err := check.field.Type.fromJSON(check.field.def, true); err != nil {
			return schemaErrorf("bad default for field %q of %s: %v", check.field.Name, check.record, err)
		}
	}
	return nil
}

type pendingDefault struct {
	record string
	field  *Field
}

type builder struct {
	reg       *Registry
	noLogical bool
	defaults  []pendingDefault
	added     []string
}

var namePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

func (b *builder) build(node any, ns string) (*Type, error) {
	switch n := node.(type) {
	case string:
		return b.reference(n, ns)
	case []any:
		return b.union(n, ns)
	case map[string]any:
		return b.object(n, ns)
	default:
		return nil, schemaErrorf("unexpected schema node %T", node)
	}
}

func (b *builder) reference(name, ns string) (*Type, error) {
	if k, ok := primitiveKinds[name]; ok {
		return &Type{kind: k}, nil
	}
	if t, ok := b.reg.Lookup(qualify(name, ns)); ok {
		return t, nil
	}
	if t, ok := b.reg.Lookup(name); ok {
		return t, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnresolvedReference, name)
}

func (b *builder) union(nodes []any, ns string) (*Type, error) {
	t := &Type{kind: Union, branches: make([]*Type, 0, len(nodes))}
	seen := make(map[string]bool, len(nodes))
	for _, node := range nodes {
		branch, err := b.build(node, ns)
		if err != nil {
			return nil, err
		}
		if branch.kind == Union {
			return nil, schemaErrorf("unions may not immediately contain unions")
		}
		key := branch.branchName()
		if seen[key] {
			return nil, schemaErrorf("duplicate %q in union", key)
		}
		seen[key] = true
		t.branches = append(t.branches, branch)
	}
	return t, nil
}

func (b *builder) object(obj map[string]any, ns string) (*Type, error) {
	typeAttr, ok := obj["type"]
	if !ok {
		return nil, schemaErrorf("missing \"type\" attribute")
	}
	name, isString := typeAttr.(string)
	if !isString {
		// {"type": {...}} or {"type": [...]}: the attribute is itself a schema.
		return b.build(typeAttr, ns)
	}

	var t *Type
	var err error
	switch name {
	case "record", "error":
		t, err = b.record(obj, ns)
	case "enum":
		t, err = b.enum(obj, ns)
	case "fixed":
		t, err = b.fixed(obj, ns)
	case "array":
		t, err = b.container(obj, ns, Array, "items")
	case "map":
		t, err = b.container(obj, ns, Map, "values")
	default:
		if k, ok := primitiveKinds[name]; ok {
			t = &Type{kind: k}
		} else {
			// A reference written as an object; annotations do not apply.
			return b.reference(name, ns)
		}
	}
	if err != nil {
		return nil, err
	}
	if lt, ok := obj["logicalType"].(string); ok && !b.noLogical {
		annotate(t, lt, obj)
	}
	return t, nil
}

// named fills in the name, aliases and doc of a named type and registers
// it. It returns the namespace enclosed names should use.
func (b *builder) named(t *Type, obj map[string]any, ns string) (string, error) {
	name, ok := obj["name"].(string)
	if !ok || name == "" {
		return "", schemaErrorf("%s is missing a name", t.kind)
	}
	if explicit, ok := obj["namespace"].(string); ok && !strings.Contains(name, ".") {
		ns = explicit
	}
	full := qualify(name, ns)
	if err := checkFullName(full); err != nil {
		return "", err
	}
	if _, ok := primitiveKinds[full]; ok {
		return "", schemaErrorf("%q may not be used as a type name", full)
	}
	t.name = full
	space := t.Namespace()

	if raw, ok := obj["aliases"]; ok {
		list, ok := raw.([]any)
		if !ok {
			return "", schemaErrorf("aliases of %s must be an array", full)
		}
		for _, a := range list {
			s, ok := a.(string)
			if !ok {
				return "", schemaErrorf("alias of %s must be a string", full)
			}
			alias := qualify(s, space)
			if err := checkFullName(alias); err != nil {
				return "", err
			}
			t.aliases = append(t.aliases, alias)
		}
	}
	t.doc, _ = obj["doc"].(string)
	if err := b.reg.add(t); err != nil {
		return "", err
	}
	b.added = append(b.added, full)
	return space, nil
}

func (b *builder) record(obj map[string]any, ns string) (*Type, error) {
	t := &Type{kind: Record}
	space, err := b.named(t, obj, ns)
	if err != nil {
		return nil, err
	}
	raw, ok := obj["fields"].([]any)
	if !ok {
		return nil, schemaErrorf("record %s must have a fields array", t.name)
	}
	t.fields = make([]*Field, 0, len(raw))
	t.fieldIndex = make(map[string]int, len(raw))
	for _, node := range raw {
		fobj, ok := node.(map[string]any)
		if !ok {
			return nil, schemaErrorf("field of %s must be an object", t.name)
		}
		f, err := b.field(fobj, space)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", t.name, err)
		}
		if _, dup := t.fieldIndex[f.Name]; dup {
			return nil, schemaErrorf("duplicate field %q in %s", f.Name, t.name)
		}
		t.fieldIndex[f.Name] = len(t.fields)
		t.fields = append(t.fields, f)
		if f.hasDefault {
			b.defaults = append(b.defaults, pendingDefault{record: t.name, field: f})
		}
	}
	return t, nil
}

func (b *builder) field(obj map[string]any, ns string) (*Field, error) {
	name, ok := obj["name"].(string)
	if !ok || !namePattern.MatchString(name) {
		return nil, schemaErrorf("invalid field name %v", obj["name"])
	}
	typeNode, ok := obj["type"]
	if !ok {
		return nil, schemaErrorf("field %q has no type", name)
	}
	ft, err := b.build(typeNode, ns)
	if err != nil {
		return nil, err
	}
	f := &Field{Name: name, Type: ft, Order: "ascending"}
	if order, ok := obj["order"].(string); ok {
		switch order {
		case "ascending", "descending", "ignore":
			f.Order = order
		default:
			return nil, schemaErrorf("invalid order %q for field %q", order, name)
		}
	}
	f.Doc, _ = obj["doc"].(string)
	if raw, ok := obj["aliases"].([]any); ok {
		for _, a := range raw {
			if s, ok := a.(string); ok {
				f.Aliases = append(f.Aliases, s)
			}
		}
	}
	if def, ok := obj["default"]; ok {
		f.def = def
		f.hasDefault = true
	}
	return f, nil
}

func (b *builder) enum(obj map[string]any, ns string) (*Type, error) {
	t := &Type{kind: Enum}
	if _, err := b.named(t, obj, ns); err != nil {
		return nil, err
	}
	raw, ok := obj["symbols"].([]any)
	if !ok {
		return nil, schemaErrorf("enum %s must have a symbols array", t.name)
	}
	t.symbols = make([]string, 0, len(raw))
	t.symbolIndex = make(map[string]int, len(raw))
	for _, s := range raw {
		sym, ok := s.(string)
		if !ok || !namePattern.MatchString(sym) {
			return nil, schemaErrorf("invalid symbol %v in %s", s, t.name)
		}
		if _, dup := t.symbolIndex[sym]; dup {
			return nil, schemaErrorf("duplicate symbol %q in %s", sym, t.name)
		}
		t.symbolIndex[sym] = len(t.symbols)
		t.symbols = append(t.symbols, sym)
	}
	if def, ok := obj["default"]; ok {
		sym, ok := def.(string)
		if _, known := t.symbolIndex[sym]; !ok || !known {
			return nil, schemaErrorf("default %v of %s is not a symbol", def, t.name)
		}
		t.enumDefault, t.hasEnumDef = sym, true
	}
	return t, nil
}

func (b *builder) fixed(obj map[string]any, ns string) (*Type, error) {
	t := &Type{kind: Fixed}
	if _, err := b.named(t, obj, ns); err != nil {
		return nil, err
	}
	size, ok := jsonInt(obj["size"])
	if !ok || size < 0 {
		return nil, schemaErrorf("fixed %s needs a non-negative size", t.name)
	}
	t.size = int(size)
	return t, nil
}

func (b *builder) container(obj map[string]any, ns string, kind Kind, attr string) (*Type, error) {
	node, ok := obj[attr]
	if !ok {
		return nil, schemaErrorf("%s is missing %q", kind, attr)
	}
	inner, err := b.build(node, ns)
	if err != nil {
		return nil, err
	}
	return &Type{kind: kind, items: inner}, nil
}

func qualify(name, ns string) string {
	if ns == "" || strings.Contains(name, ".") {
		return name
	}
	return ns + "." + name
}

func checkFullName(full string) error {
	for _, part := range strings.Split(full, ".") {
		if !namePattern.MatchString(part) {
			return schemaErrorf("invalid name %q", full)
		}
	}
	return nil
}

// jsonInt extracts an integer from a decoded JSON number.
func jsonInt(v any) (int64, bool) {
	switch n := v.(type) {
	case json.Number:
		i, err := n.Int64()
		return i, err == nil
	case float64:
		if n != float64(int64(n)) {
			return 0, false
		}
		return int64(n), true
	case int:
		return int64(n), true
	case int64:
		return n, true
	case int32:
		return int64(n), true
	}
	return 0, false
}
