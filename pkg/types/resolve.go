package types

import (
	"fmt"
	"strings"

	"github.com/ssargent/avrokit/pkg/tap"
)

type resolution int

const (
	resolveIdentity    resolution = iota // same *Type on both sides
	resolvePrimitive                     // same or promoted primitive kind
	resolveRecord                        // fields matched by name
	resolveEnum                          // symbols matched by name
	resolveFixed                         // same name and size
	resolveArray                         // item resolver
	resolveMap                           // value resolver
	resolveWriterUnion                   // one resolver per writer branch
	resolveReaderUnion                   // writer value lands in one reader branch
)

// Resolver decodes data written with one type into values of another.
// It is built once per (writer, reader) pair and is safe to reuse and to
// share between goroutines.
type Resolver struct {
	kind   resolution
	reader *Type
	writer *Type

	items *Resolver

	steps []fieldStep
	fill  []*Field

	symbols []int

	branches []*Resolver

	branch int
	inner  *Resolver
}

// fieldStep handles one writer field: either it is decoded into the
// reader field called name, or skipped.
type fieldStep struct {
	name string
	res  *Resolver
	skip *Type
}

// Reader returns the reader type.
func (r *Resolver) Reader() *Type { return r.reader }

// Writer returns the writer type.
func (r *Resolver) Writer() *Type { return r.writer }

type typePair struct {
	writer, reader *Type
}

// CreateResolver builds a resolver that reads data written with writer as
// values of t. It fails with ErrIncompatibleSchema when no such reading
// exists: kinds that neither match nor promote, named types whose names
// differ, reader fields without defaults that the writer lacks, or writer
// enum symbols the reader cannot map.
func (t *Type) CreateResolver(writer *Type) (*Resolver, error) {
	rb := &resolverBuilder{cache: make(map[typePair]*Resolver)}
	return rb.resolve(writer, t)
}

type resolverBuilder struct {
	cache map[typePair]*Resolver
}

func (rb *resolverBuilder) resolve(w, r *Type) (*Resolver, error) {
	key := typePair{w, r}
	if res, ok := rb.cache[key]; ok {
		return res, nil
	}
	if w == r {
		res := &Resolver{kind: resolveIdentity, reader: r, writer: w}
		rb.cache[key] = res
		return res, nil
	}
	if w.kind == Union {
		res := &Resolver{kind: resolveWriterUnion, reader: r, writer: w}
		rb.cache[key] = res
		res.branches = make([]*Resolver, len(w.branches))
		for i, wb := range w.branches {
			br, err := rb.resolve(wb, r)
			if err != nil {
				delete(rb.cache, key)
				return nil, fmt.Errorf("writer union branch %s: %w", wb.branchName(), err)
			}
			res.branches[i] = br
		}
		return res, nil
	}
	if r.kind == Union {
		return rb.readerUnion(w, r)
	}

	switch r.kind {
	case Null, Boolean, Int, Long, Float, Double, Bytes, String:
		if w.kind == r.kind || promotes(w.kind, r.kind) {
			return &Resolver{kind: resolvePrimitive, reader: r, writer: w}, nil
		}
	case Record:
		if w.kind == Record && namesMatch(w, r) {
			return rb.record(w, r)
		}
	case Enum:
		if w.kind == Enum && namesMatch(w, r) {
			return rb.enum(w, r)
		}
	case Fixed:
		if w.kind == Fixed && namesMatch(w, r) {
			if w.size != r.size {
				return nil, incompatiblef("fixed %s has size %d, reader expects %d", w.name, w.size, r.size)
			}
			return &Resolver{kind: resolveFixed, reader: r, writer: w}, nil
		}
	case Array, Map:
		if w.kind == r.kind {
			res := &Resolver{kind: resolveArray, reader: r, writer: w}
			if r.kind == Map {
				res.kind = resolveMap
			}
			items, err := rb.resolve(w.items, r.items)
			if err != nil {
				return nil, err
			}
			res.items = items
			return res, nil
		}
	default:
		panic("types: unknown kind " + r.kind.String())
	}
	return nil, incompatiblef("cannot read %s as %s", describe(w), describe(r))
}

func (rb *resolverBuilder) readerUnion(w, r *Type) (*Resolver, error) {
	// The first branch in declaration order that can read w wins.
	for i, b := range r.branches {
		inner, err := rb.resolve(w, b)
		if err == nil {
			return &Resolver{kind: resolveReaderUnion, reader: r, writer: w, branch: i, inner: inner}, nil
		}
	}
	return nil, incompatiblef("no branch of reader union can read %s", describe(w))
}

func (rb *resolverBuilder) record(w, r *Type) (*Resolver, error) {
	res := &Resolver{kind: resolveRecord, reader: r, writer: w}
	key := typePair{w, r}
	rb.cache[key] = res

	matched := make(map[string]bool, len(r.fields))
	res.steps = make([]fieldStep, len(w.fields))
	for i, wf := range w.fields {
		rf := readerField(r, wf.Name)
		if rf == nil {
			res.steps[i] = fieldStep{skip: wf.Type}
			continue
		}
		fr, err := rb.resolve(wf.Type, rf.Type)
		if err != nil {
			delete(rb.cache, key)
			return nil, fmt.Errorf("field %s.%s: %w", r.name, rf.Name, err)
		}
		matched[rf.Name] = true
		res.steps[i] = fieldStep{name: rf.Name, res: fr}
	}
	for _, rf := range r.fields {
		if matched[rf.Name] {
			continue
		}
		if !rf.hasDefault {
			delete(rb.cache, key)
			return nil, incompatiblef("field %s.%s is missing from the writer and has no default", r.name, rf.Name)
		}
		res.fill = append(res.fill, rf)
	}
	return res, nil
}

// readerField finds the reader field that a writer field called name
// feeds, by name or by one of the reader field's aliases.
func readerField(r *Type, name string) *Field {
	if f, ok := r.Field(name); ok {
		return f
	}
	for _, f := range r.fields {
		for _, a := range f.Aliases {
			if a == name {
				return f
			}
		}
	}
	return nil
}

func (rb *resolverBuilder) enum(w, r *Type) (*Resolver, error) {
	res := &Resolver{kind: resolveEnum, reader: r, writer: w, symbols: make([]int, len(w.symbols))}
	for i, sym := range w.symbols {
		j, ok := r.symbolIndex[sym]
		if !ok {
			if !r.hasEnumDef {
				return nil, incompatiblef("enum %s has no symbol %q and no default", r.name, sym)
			}
			j = r.symbolIndex[r.enumDefault]
		}
		res.symbols[i] = j
	}
	return res, nil
}

// promotes reports whether data of kind w may be read as kind r.
func promotes(w, r Kind) bool {
	switch w {
	case Int:
		return r == Long || r == Float || r == Double
	case Long:
		return r == Float || r == Double
	case Float:
		return r == Double
	case String:
		return r == Bytes
	case Bytes:
		return r == String
	}
	return false
}

// namesMatch compares named types by full name, unqualified name, or the
// reader's aliases.
func namesMatch(w, r *Type) bool {
	if w.name == r.name || unqualified(w.name) == unqualified(r.name) {
		return true
	}
	for _, a := range r.aliases {
		if a == w.name || unqualified(a) == unqualified(w.name) {
			return true
		}
	}
	return false
}

func unqualified(name string) string {
	if i := strings.LastIndexByte(name, '.'); i >= 0 {
		return name[i+1:]
	}
	return name
}

func describe(t *Type) string {
	if t.kind.IsNamed() {
		return t.kind.String() + " " + t.name
	}
	return t.kind.String()
}

// Read decodes one writer value from the tap and returns it shaped by the
// reader type. Validity is reported through the tap as for Type.Read.
func (r *Resolver) Read(tp *tap.Tap) any {
	switch r.kind {
	case resolveIdentity:
		return r.reader.Read(tp)
	case resolvePrimitive:
		return r.readPrimitive(tp)
	case resolveRecord:
		rec := make(map[string]any, len(r.reader.fields))
		for _, s := range r.steps {
			if s.skip != nil {
				s.skip.Skip(tp)
			} else {
				rec[s.name] = s.res.Read(tp)
			}
			if !tp.Valid() {
				return nil
			}
		}
		for _, f := range r.fill {
			rec[f.Name] = f.Default()
		}
		return rec
	case resolveEnum:
		i := tp.ReadLong()
		if !tp.Valid() {
			return nil
		}
		if i < 0 || i >= int64(len(r.symbols)) {
			tp.MarkCorrupt()
			return nil
		}
		return r.reader.symbols[r.symbols[i]]
	case resolveFixed:
		b := tp.ReadFixed(r.writer.size)
		if !tp.Valid() {
			return nil
		}
		return r.reader.fromBase(b)
	case resolveArray:
		items := make([]any, 0)
		readBlocks(tp, func() {
			items = append(items, r.items.Read(tp))
		}, nil)
		return items
	case resolveMap:
		m := make(map[string]any)
		readBlocks(tp, func() {
			k := tp.ReadString()
			m[k] = r.items.Read(tp)
		}, nil)
		return m
	case resolveWriterUnion:
		i := tp.ReadLong()
		if !tp.Valid() {
			return nil
		}
		if i < 0 || i >= int64(len(r.branches)) {
			tp.MarkCorrupt()
			return nil
		}
		return r.branches[i].Read(tp)
	case resolveReaderUnion:
		return r.inner.Read(tp)
	}
	panic("types: unknown resolution")
}

func (r *Resolver) readPrimitive(tp *tap.Tap) any {
	var v any
	switch r.writer.kind {
	case Null:
		return nil
	case Boolean:
		return tp.ReadBoolean()
	case Int:
		v = tp.ReadInt()
	case Long:
		v = tp.ReadLong()
	case Float:
		v = tp.ReadFloat()
	case Double:
		v = tp.ReadDouble()
	case Bytes:
		v = tp.ReadBytes()
	case String:
		v = tp.ReadString()
	}
	if !tp.Valid() {
		return nil
	}
	return r.reader.fromBase(promote(v, r.reader.kind))
}

// promote converts a base value to the Go type of kind k.
func promote(v any, k Kind) any {
	switch n := v.(type) {
	case int32:
		switch k {
		case Long:
			return int64(n)
		case Float:
			return float32(n)
		case Double:
			return float64(n)
		}
	case int64:
		switch k {
		case Float:
			return float32(n)
		case Double:
			return float64(n)
		}
	case float32:
		if k == Double {
			return float64(n)
		}
	case string:
		if k == Bytes {
			return []byte(n)
		}
	case []byte:
		if k == String {
			return string(n)
		}
		if n == nil {
			return []byte{}
		}
	}
	return v
}

// Decode decodes exactly one writer value from b.
func (r *Resolver) Decode(b []byte) (any, error) {
	tp := tap.New(b)
	v := r.Read(tp)
	return v, finishDecode(tp)
}
