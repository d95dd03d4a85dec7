package classfile

import (
	"errors"
	"fmt"

	"github.com/starford/anndex/internal/models"
)

const (
	attrVisibleAnnotations            = "RuntimeVisibleAnnotations"
	attrInvisibleAnnotations          = "RuntimeInvisibleAnnotations"
	attrVisibleParameterAnnotations   = "RuntimeVisibleParameterAnnotations"
	attrInvisibleParameterAnnotations = "RuntimeInvisibleParameterAnnotations"

	maxValueDepth = 64
)

// errUnsupported stops decoding of the current annotation attribute after an
// element value could not be represented. Everything decoded up to that
// point is kept.
var errUnsupported = errors.New("unsupported element value")

// siteAttributes collects the annotations found in one attribute table.
type siteAttributes struct {
	annotations []Annotation
	parameters  [][]Annotation
}

// attributes reads an attribute table, decoding annotation attributes and
// skipping the rest by length. Visible annotations precede invisible ones.
func (p *parser) attributes(r *reader) (siteAttributes, error) {
	var visible, invisible siteAttributes
	count := int(r.u2("attributes count"))
	if r.err != nil {
		return siteAttributes{}, r.err
	}
	for i := 0; i < count; i++ {
		at := r.pos()
		nameIdx := r.u2("attribute name")
		length := r.u4("attribute length")
		bodyAt := r.pos()
		body := r.bytes(int(length), "attribute body")
		if r.err != nil {
			return siteAttributes{}, r.err
		}
		name, err := p.pool.utf8(nameIdx, at)
		if err != nil {
			return siteAttributes{}, err
		}

		sub := newReader(body, bodyAt)
		switch name {
		case attrVisibleAnnotations:
			anns, err := p.annotationList(sub, true)
			if err != nil {
				return siteAttributes{}, err
			}
			visible.annotations = append(visible.annotations, anns...)
		case attrInvisibleAnnotations:
			anns, err := p.annotationList(sub, false)
			if err != nil {
				return siteAttributes{}, err
			}
			invisible.annotations = append(invisible.annotations, anns...)
		case attrVisibleParameterAnnotations:
			params, err := p.parameterList(sub, true)
			if err != nil {
				return siteAttributes{}, err
			}
			visible.parameters = mergeParameters(visible.parameters, params)
		case attrInvisibleParameterAnnotations:
			params, err := p.parameterList(sub, false)
			if err != nil {
				return siteAttributes{}, err
			}
			invisible.parameters = mergeParameters(invisible.parameters, params)
		}
	}
	return siteAttributes{
		annotations: append(visible.annotations, invisible.annotations...),
		parameters:  mergeParameters(visible.parameters, invisible.parameters),
	}, nil
}

func mergeParameters(dst, src [][]Annotation) [][]Annotation {
	for len(dst) < len(src) {
		dst = append(dst, nil)
	}
	for i, anns := range src {
		dst[i] = append(dst[i], anns...)
	}
	return dst
}

// annotationList reads num_annotations followed by that many annotations.
func (p *parser) annotationList(r *reader, visible bool) ([]Annotation, error) {
	n := int(r.u2("num_annotations"))
	if r.err != nil {
		return nil, r.err
	}
	out := make([]Annotation, 0, n)
	for i := 0; i < n; i++ {
		a, err := p.annotation(r, 0)
		if err != nil && !errors.Is(err, errUnsupported) {
			return nil, err
		}
		out = append(out, Annotation{Annotation: a, Visible: visible})
		if err != nil {
			return out, nil
		}
	}
	return out, nil
}

// parameterList reads a parameter annotations attribute body.
func (p *parser) parameterList(r *reader, visible bool) ([][]Annotation, error) {
	n := int(r.u1("num_parameters"))
	if r.err != nil {
		return nil, r.err
	}
	out := make([][]Annotation, 0, n)
	for i := 0; i < n; i++ {
		count := int(r.u2("num_annotations"))
		if r.err != nil {
			return nil, r.err
		}
		var anns []Annotation
		for j := 0; j < count; j++ {
			a, err := p.annotation(r, 0)
			if err != nil && !errors.Is(err, errUnsupported) {
				return nil, err
			}
			anns = append(anns, Annotation{Annotation: a, Visible: visible})
			if err != nil {
				return append(out, anns), nil
			}
		}
		out = append(out, anns)
	}
	return out, nil
}

// annotation reads type_index and the element_value_pairs. On errUnsupported
// the returned annotation holds the members decoded so far.
func (p *parser) annotation(r *reader, depth int) (models.Annotation, error) {
	at := r.pos()
	typeIdx := r.u2("annotation type")
	pairs := int(r.u2("num_element_value_pairs"))
	if r.err != nil {
		return models.Annotation{}, r.err
	}
	desc, err := p.pool.utf8(typeIdx, at)
	if err != nil {
		return models.Annotation{}, err
	}
	a := models.Annotation{Type: descriptorToName(desc)}
	for i := 0; i < pairs; i++ {
		nameAt := r.pos()
		nameIdx := r.u2("element name")
		if r.err != nil {
			return models.Annotation{}, r.err
		}
		name, err := p.pool.utf8(nameIdx, nameAt)
		if err != nil {
			return models.Annotation{}, err
		}
		v, err := p.elementValue(r, depth+1)
		if err != nil && !errors.Is(err, errUnsupported) {
			return models.Annotation{}, err
		}
		a.Members = append(a.Members, models.Member{Name: name, Value: v})
		if err != nil {
			return a, err
		}
	}
	return a, nil
}

func (p *parser) elementValue(r *reader, depth int) (models.Value, error) {
	at := r.pos()
	tag := r.u1("element value tag")
	if r.err != nil {
		return models.Value{}, r.err
	}
	if depth >= maxValueDepth {
		return p.downgrade(fmt.Sprintf("<element value nested %d levels deep>", maxValueDepth))
	}

	switch tag {
	case 'B', 'C', 'I', 'S', 'Z':
		idx := r.u2("const_value_index")
		if r.err != nil {
			return models.Value{}, r.err
		}
		i, err := p.pool.integer(idx, at+1)
		if err != nil {
			return models.Value{}, err
		}
		switch tag {
		case 'B':
			return models.ByteValue(int8(i)), nil
		case 'C':
			return models.CharValue(uint16(i)), nil
		case 'S':
			return models.ShortValue(int16(i)), nil
		case 'Z':
			return models.BoolValue(i != 0), nil
		}
		return models.IntValue(i), nil

	case 'J':
		idx := r.u2("const_value_index")
		if r.err != nil {
			return models.Value{}, r.err
		}
		l, err := p.pool.long(idx, at+1)
		if err != nil {
			return models.Value{}, err
		}
		return models.LongValue(l), nil

	case 'F':
		idx := r.u2("const_value_index")
		if r.err != nil {
			return models.Value{}, r.err
		}
		f, err := p.pool.float(idx, at+1)
		if err != nil {
			return models.Value{}, err
		}
		return models.FloatBits(f), nil

	case 'D':
		idx := r.u2("const_value_index")
		if r.err != nil {
			return models.Value{}, r.err
		}
		d, err := p.pool.double(idx, at+1)
		if err != nil {
			return models.Value{}, err
		}
		return models.DoubleBits(d), nil

	case 's':
		idx := r.u2("const_value_index")
		if r.err != nil {
			return models.Value{}, r.err
		}
		s, err := p.pool.utf8(idx, at+1)
		if err != nil {
			return models.Value{}, err
		}
		return models.StringValue(s), nil

	case 'e':
		typeIdx := r.u2("enum type_name_index")
		constIdx := r.u2("enum const_name_index")
		if r.err != nil {
			return models.Value{}, r.err
		}
		typ, err := p.pool.utf8(typeIdx, at+1)
		if err != nil {
			return models.Value{}, err
		}
		name, err := p.pool.utf8(constIdx, at+3)
		if err != nil {
			return models.Value{}, err
		}
		return models.EnumValue(descriptorToName(typ), name), nil

	case 'c':
		idx := r.u2("class_info_index")
		if r.err != nil {
			return models.Value{}, r.err
		}
		desc, err := p.pool.utf8(idx, at+1)
		if err != nil {
			return models.Value{}, err
		}
		return models.ClassValue(descriptorToName(desc)), nil

	case '@':
		nested, err := p.annotation(r, depth)
		if err != nil && !errors.Is(err, errUnsupported) {
			return models.Value{}, err
		}
		return models.NestedValue(nested), err

	case '[':
		n := int(r.u2("num_values"))
		if r.err != nil {
			return models.Value{}, r.err
		}
		elems := make([]models.Value, 0, n)
		for i := 0; i < n; i++ {
			v, err := p.elementValue(r, depth+1)
			if err != nil && !errors.Is(err, errUnsupported) {
				return models.Value{}, err
			}
			elems = append(elems, v)
			if err != nil {
				return models.ArrayValue(elems...), err
			}
		}
		return models.ArrayValue(elems...), nil
	}

	return p.downgrade(fmt.Sprintf("<unsupported element tag %q>", tag))
}

func (p *parser) downgrade(marker string) (models.Value, error) {
	p.downgraded++
	return models.UnknownValue(marker), errUnsupported
}
