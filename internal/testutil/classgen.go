package testutil

import (
	"bytes"
	"encoding/binary"
	"math"
	"strings"
)

// Ann describes an annotation to emit. Type is a dotted type name.
type Ann struct {
	Type      string
	Invisible bool
	Elems     []Elem
}

// Elem is one element_value_pair.
type Elem struct {
	Name  string
	Value Val
}

// Val is an element value to emit; build it with the constructors below.
type Val struct {
	tag   byte
	str   string
	typ   string
	num   int64
	ann   *Ann
	elems []Val
}

func S(s string) Val { return Val{tag: 's', str: s} }
func I(i int32) Val { return Val{tag: 'I', num: int64(i)} }
func J(i int64) Val { return Val{tag: 'J', num: i} }
func B(b int8) Val { return Val{tag: 'B', num: int64(b)} }
func C(c uint16) Val { return Val{tag: 'C', num: int64(c)} }
func Short(s int16) Val { return Val{tag: 'S', num: int64(s)} }
func F(f float32) Val { return FBits(math.Float32bits(f)) }
func D(d float64) Val { return DBits(math.Float64bits(d)) }

// FBits and DBits emit floating point constants from raw bit patterns, for
// NaN payloads a float conversion would not preserve.
func FBits(bits uint32) Val { return Val{tag: 'F', num: int64(bits)} }
func DBits(bits uint64) Val { return Val{tag: 'D', num: int64(bits)} }
func Cls(desc string) Val { return Val{tag: 'c', str: desc} }
func E(typ, constant string) Val {
	return Val{tag: 'e', typ: typ, str: constant}
}
func At(a Ann) Val { return Val{tag: '@', ann: &a} }
func Arr(elems ...Val) Val { return Val{tag: '[', elems: elems} }

func Z(b bool) Val {
	v := Val{tag: 'Z'}
	if b {
		v.num = 1
	}
	return v
}

// Raw emits an element value with an arbitrary tag byte followed by two
// zero bytes, for exercising unknown tags.
func Raw(tag byte) Val { return Val{tag: tag} }

type memberSpec struct {
	name   string
	desc   string
	anns   []Ann
	params [][]Ann
}

// Class assembles the bytes of a minimal, well-formed class file.
type Class struct {
	name    string
	anns    []Ann
	fields  []memberSpec
	methods []memberSpec

	pool  bytes.Buffer
	next  uint16
	index map[string]uint16
}

// NewClass starts a class named by its dotted name.
func NewClass(name string) *Class {
	return &Class{name: name}
}

// Annotate adds class-level annotations.
func (c *Class) Annotate(anns ...Ann) *Class {
	c.anns = append(c.anns, anns...)
	return c
}

// Field adds a field with the given JVM descriptor.
func (c *Class) Field(name, desc string, anns ...Ann) *Class {
	c.fields = append(c.fields, memberSpec{name: name, desc: desc, anns: anns})
	return c
}

// Method adds a method; params[i] are the annotations of parameter i.
func (c *Class) Method(name, desc string, anns []Ann, params ...[]Ann) *Class {
	c.methods = append(c.methods, memberSpec{name: name, desc: desc, anns: anns, params: params})
	return c
}

// Bytes renders the class file.
func (c *Class) Bytes() []byte {
	c.pool.Reset()
	c.next = 1
	c.index = make(map[string]uint16)

	var body bytes.Buffer
	put16(&body, 0x0021)
	put16(&body, c.classRef(c.name))
	put16(&body, c.classRef("java.lang.Object"))
	put16(&body, 0)

	put16(&body, uint16(len(c.fields)))
	for _, f := range c.fields {
		put16(&body, 0x0002)
		put16(&body, c.utf8(f.name))
		put16(&body, c.utf8(f.desc))
		c.writeAttributes(&body, f.anns, nil, false)
	}

	put16(&body, uint16(len(c.methods)))
	for _, m := range c.methods {
		put16(&body, 0x0001)
		put16(&body, c.utf8(m.name))
		put16(&body, c.utf8(m.desc))
		c.writeAttributes(&body, m.anns, m.params, false)
	}

	c.writeAttributes(&body, c.anns, nil, true)

	var out bytes.Buffer
	put32(&out, 0xCAFEBABE)
	put16(&out, 0)
	put16(&out, 61)
	put16(&out, c.next)
	out.Write(c.pool.Bytes())
	out.Write(body.Bytes())
	return out.Bytes()
}

func (c *Class) writeAttributes(w *bytes.Buffer, anns []Ann, params [][]Ann, sourceFile bool) {
	type attr struct {
		name string
		body []byte
	}
	var attrs []attr

	var vis, invis []Ann
	for _, a := range anns {
		if a.Invisible {
			invis = append(invis, a)
		} else {
			vis = append(vis, a)
		}
	}
	if len(vis) > 0 {
		attrs = append(attrs, attr{"RuntimeVisibleAnnotations", c.annotationList(vis)})
	}
	if len(invis) > 0 {
		attrs = append(attrs, attr{"RuntimeInvisibleAnnotations", c.annotationList(invis)})
	}
	if body, ok := c.parameterList(params, false); ok {
		attrs = append(attrs, attr{"RuntimeVisibleParameterAnnotations", body})
	}
	if body, ok := c.parameterList(params, true); ok {
		attrs = append(attrs, attr{"RuntimeInvisibleParameterAnnotations", body})
	}
	if sourceFile {
		var b bytes.Buffer
		put16(&b, c.utf8(c.simpleName()+".java"))
		attrs = append(attrs, attr{"SourceFile", b.Bytes()})
	}

	put16(w, uint16(len(attrs)))
	for _, a := range attrs {
		put16(w, c.utf8(a.name))
		put32(w, uint32(len(a.body)))
		w.Write(a.body)
	}
}

func (c *Class) annotationList(anns []Ann) []byte {
	var b bytes.Buffer
	put16(&b, uint16(len(anns)))
	for _, a := range anns {
		c.writeAnnotation(&b, a)
	}
	return b.Bytes()
}

func (c *Class) parameterList(params [][]Ann, invisible bool) ([]byte, bool) {
	found := false
	var b bytes.Buffer
	b.WriteByte(byte(len(params)))
	for _, anns := range params {
		var sel []Ann
		for _, a := range anns {
			if a.Invisible == invisible {
				sel = append(sel, a)
			}
		}
		if len(sel) > 0 {
			found = true
		}
		put16(&b, uint16(len(sel)))
		for _, a := range sel {
			c.writeAnnotation(&b, a)
		}
	}
	return b.Bytes(), found
}

func (c *Class) writeAnnotation(w *bytes.Buffer, a Ann) {
	put16(w, c.utf8(typeDescriptor(a.Type)))
	put16(w, uint16(len(a.Elems)))
	for _, e := range a.Elems {
		put16(w, c.utf8(e.Name))
		c.writeValue(w, e.Value)
	}
}

func (c *Class) writeValue(w *bytes.Buffer, v Val) {
	w.WriteByte(v.tag)
	switch v.tag {
	case 'B', 'C', 'I', 'S', 'Z':
		put16(w, c.constant(3, uint64(uint32(int32(v.num))), 4))
	case 'J':
		put16(w, c.constant(5, uint64(v.num), 8))
	case 'F':
		put16(w, c.constant(4, uint64(uint32(v.num)), 4))
	case 'D':
		put16(w, c.constant(6, uint64(v.num), 8))
	case 's', 'c':
		put16(w, c.utf8(v.str))
	case 'e':
		put16(w, c.utf8(typeDescriptor(v.typ)))
		put16(w, c.utf8(v.str))
	case '@':
		c.writeAnnotation(w, *v.ann)
	case '[':
		put16(w, uint16(len(v.elems)))
		for _, e := range v.elems {
			c.writeValue(w, e)
		}
	default:
		put16(w, 0)
	}
}

// utf8 interns s. Strings are written as standard UTF-8, which matches the
// class-file encoding for NUL-free text in the Basic Multilingual Plane.
func (c *Class) utf8(s string) uint16 {
	key := "u:" + s
	if idx, ok := c.index[key]; ok {
		return idx
	}
	idx := c.next
	c.pool.WriteByte(1)
	put16(&c.pool, uint16(len(s)))
	c.pool.WriteString(s)
	c.next++
	c.index[key] = idx
	return idx
}

func (c *Class) classRef(dotted string) uint16 {
	key := "c:" + dotted
	if idx, ok := c.index[key]; ok {
		return idx
	}
	name := c.utf8(strings.ReplaceAll(dotted, ".", "/"))
	idx := c.next
	c.pool.WriteByte(7)
	put16(&c.pool, name)
	c.next++
	c.index[key] = idx
	return idx
}

func (c *Class) constant(tag byte, bits uint64, size int) uint16 {
	key := string([]byte{'k', tag}) + string(binary.BigEndian.AppendUint64(nil, bits))
	if idx, ok := c.index[key]; ok {
		return idx
	}
	idx := c.next
	c.pool.WriteByte(tag)
	if size == 4 {
		put32(&c.pool, uint32(bits))
		c.next++
	} else {
		c.pool.Write(binary.BigEndian.AppendUint64(nil, bits))
		c.next += 2
	}
	c.index[key] = idx
	return idx
}

func (c *Class) simpleName() string {
	if i := strings.LastIndexByte(c.name, '.'); i >= 0 {
		return c.name[i+1:]
	}
	return c.name
}

func typeDescriptor(dotted string) string {
	return "L" + strings.ReplaceAll(dotted, ".", "/") + ";"
}

func put16(w *bytes.Buffer, v uint16) {
	w.Write(binary.BigEndian.AppendUint16(nil, v))
}

func put32(w *bytes.Buffer, v uint32) {
	w.Write(binary.BigEndian.AppendUint32(nil, v))
}
