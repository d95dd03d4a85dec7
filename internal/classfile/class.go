// Package classfile reads compiled JVM class files into a structural model
// carrying the class name, fields, methods, parameters and their annotations.
//
// The model is self-contained: every constant pool reference is resolved
// during Parse, so nothing in a Class points back into the input bytes.
package classfile

import (
	"github.com/starford/anndex/internal/models"
)

const (
	magic = 0xCAFEBABE

	minMajor = 45
	maxMajor = 100
)

// Class is the structural model of one class file.
type Class struct {
	Name        string
	Annotations []Annotation
	Fields      []Field
	Methods     []Method
	// Downgraded counts element values replaced by an Unknown marker.
	Downgraded int
}

// Annotation is one annotation occurrence at a declaration site.
type Annotation struct {
	models.Annotation
	Visible bool
}

// Field is a declared field.
type Field struct {
	Name        string
	Descriptor  string
	Annotations []Annotation
}

// Method is a declared method or constructor. Parameters[i] holds the
// annotations of the parameter at position i; it is nil when the method
// carries no parameter annotations.
type Method struct {
	Name        string
	Descriptor  string
	Annotations []Annotation
	Parameters  [][]Annotation
}

// Parse decodes a class file. Failures wrap apperr.ErrMalformedClassData
// and no partial Class is returned.
func Parse(data []byte) (*Class, error) {
	r := newReader(data, 0)
	if m := r.u4("magic"); r.err == nil && m != magic {
		return nil, malformed(0, "bad magic %#08x", m)
	}
	r.u2("minor version")
	major := r.u2("major version")
	if r.err != nil {
		return nil, r.err
	}
	if major < minMajor || major > maxMajor {
		return nil, malformed(6, "unsupported major version %d", major)
	}

	cp, err := readPool(r)
	if err != nil {
		return nil, err
	}
	p := &parser{pool: cp}

	r.u2("access flags")
	thisAt := r.pos()
	thisClass := r.u2("this_class")
	r.u2("super_class")
	ifaces := int(r.u2("interfaces count"))
	r.skip(2*ifaces, "interfaces")
	if r.err != nil {
		return nil, r.err
	}
	name, err := cp.className(thisClass, thisAt)
	if err != nil {
		return nil, err
	}
	c := &Class{Name: name}

	fields, err := p.members(r, "field")
	if err != nil {
		return nil, err
	}
	for _, m := range fields {
		c.Fields = append(c.Fields, Field{Name: m.name, Descriptor: m.desc, Annotations: m.attrs.annotations})
	}

	methods, err := p.members(r, "method")
	if err != nil {
		return nil, err
	}
	for _, m := range methods {
		c.Methods = append(c.Methods, Method{
			Name:        m.name,
			Descriptor:  m.desc,
			Annotations: m.attrs.annotations,
			Parameters:  m.attrs.parameters,
		})
	}

	attrs, err := p.attributes(r)
	if err != nil {
		return nil, err
	}
	c.Annotations = attrs.annotations
	if r.remaining() != 0 {
		return nil, malformed(r.pos(), "%d trailing bytes after class attributes", r.remaining())
	}
	c.Downgraded = p.downgraded
	return c, nil
}

type parser struct {
	pool       *pool
	downgraded int
}

type member struct {
	name  string
	desc  string
	attrs siteAttributes
}

func (p *parser) members(r *reader, what string) ([]member, error) {
	count := int(r.u2(what + " count"))
	if r.err != nil {
		return nil, r.err
	}
	out := make([]member, 0, count)
	for i := 0; i < count; i++ {
		r.u2(what + " access flags")
		at := r.pos()
		nameIdx := r.u2(what + " name")
		descIdx := r.u2(what + " descriptor")
		if r.err != nil {
			return nil, r.err
		}
		name, err := p.pool.utf8(nameIdx, at)
		if err != nil {
			return nil, err
		}
		desc, err := p.pool.utf8(descIdx, at+2)
		if err != nil {
			return nil, err
		}
		attrs, err := p.attributes(r)
		if err != nil {
			return nil, err
		}
		out = append(out, member{name: name, desc: desc, attrs: attrs})
	}
	return out, nil
}
