package classfile

import (
	"fmt"
	"unicode/utf16"
)

// Constant pool tags.
const (
	tagUtf8               = 1
	tagInteger            = 3
	tagFloat              = 4
	tagLong               = 5
	tagDouble             = 6
	tagClass              = 7
	tagString             = 8
	tagFieldref           = 9
	tagMethodref          = 10
	tagInterfaceMethodref = 11
	tagNameAndType        = 12
	tagMethodHandle       = 15
	tagMethodType         = 16
	tagDynamic            = 17
	tagInvokeDynamic      = 18
	tagModule             = 19
	tagPackage            = 20
)

var tagNames = map[uint8]string{
	tagUtf8:    "Utf8",
	tagInteger: "Integer",
	tagFloat:   "Float",
	tagLong:    "Long",
	tagDouble:  "Double",
	tagClass:   "Class",
	tagString:  "String",
}

func tagName(tag uint8) string {
	if n, ok := tagNames[tag]; ok {
		return n
	}
	return fmt.Sprintf("tag %d", tag)
}

// constant is one decoded pool slot. Only the payloads needed for
// annotation resolution are kept.
type constant struct {
	tag uint8
	str string
	num uint64
	ref uint16
	off int
}

type pool struct {
	entries []constant
}

func readPool(r *reader) (*pool, error) {
	count := int(r.u2("constant pool count"))
	if r.err != nil {
		return nil, r.err
	}
	if count == 0 {
		return nil, malformed(r.pos()-2, "constant pool count is zero")
	}
	p := &pool{entries: make([]constant, count)}
	for i := 1; i < count; i++ {
		off := r.pos()
		tag := r.u1("constant tag")
		c := constant{tag: tag, off: off}
		switch tag {
		case tagUtf8:
			n := int(r.u2("utf8 length"))
			raw := r.bytes(n, "utf8 bytes")
			if r.err != nil {
				return nil, r.err
			}
			s, ok := decodeModifiedUTF8(raw)
			if !ok {
				return nil, malformed(off, "invalid modified UTF-8 in constant #%d", i)
			}
			c.str = s
		case tagInteger, tagFloat:
			c.num = uint64(r.u4("constant value"))
		case tagLong, tagDouble:
			c.num = r.u8("constant value")
		case tagClass, tagString, tagMethodType, tagModule, tagPackage:
			c.ref = r.u2("constant reference")
		case tagFieldref, tagMethodref, tagInterfaceMethodref, tagNameAndType, tagDynamic, tagInvokeDynamic:
			c.ref = r.u2("constant reference")
			r.skip(2, "constant reference")
		case tagMethodHandle:
			r.skip(1, "method handle kind")
			c.ref = r.u2("method handle reference")
		default:
			return nil, malformed(off, "unknown constant pool tag %d at #%d", tag, i)
		}
		if r.err != nil {
			return nil, r.err
		}
		p.entries[i] = c
		if tag == tagLong || tag == tagDouble {
			// 8-byte constants take two slots; the second is unusable.
			i++
		}
	}
	return p, nil
}

func (p *pool) get(idx uint16, tag uint8, at int) (constant, error) {
	if idx == 0 || int(idx) >= len(p.entries) {
		return constant{}, malformed(at, "constant index %d out of range [1,%d)", idx, len(p.entries))
	}
	c := p.entries[idx]
	if c.tag != tag {
		if c.tag == 0 {
			return constant{}, malformed(at, "constant #%d is an unusable slot", idx)
		}
		return constant{}, malformed(at, "constant #%d is %s, want %s", idx, tagName(c.tag), tagName(tag))
	}
	return c, nil
}

func (p *pool) utf8(idx uint16, at int) (string, error) {
	c, err := p.get(idx, tagUtf8, at)
	if err != nil {
		return "", err
	}
	return c.str, nil
}

// className resolves a Class constant to a dotted name.
func (p *pool) className(idx uint16, at int) (string, error) {
	c, err := p.get(idx, tagClass, at)
	if err != nil {
		return "", err
	}
	name, err := p.utf8(c.ref, c.off)
	if err != nil {
		return "", err
	}
	return internalToDotted(name), nil
}

func (p *pool) integer(idx uint16, at int) (int32, error) {
	c, err := p.get(idx, tagInteger, at)
	if err != nil {
		return 0, err
	}
	return int32(uint32(c.num)), nil
}

func (p *pool) long(idx uint16, at int) (int64, error) {
	c, err := p.get(idx, tagLong, at)
	if err != nil {
		return 0, err
	}
	return int64(c.num), nil
}

// float returns the raw bits of a CONSTANT_Float entry.
func (p *pool) float(idx uint16, at int) (uint32, error) {
	c, err := p.get(idx, tagFloat, at)
	if err != nil {
		return 0, err
	}
	return uint32(c.num), nil
}

// double returns the raw bits of a CONSTANT_Double entry.
func (p *pool) double(idx uint16, at int) (uint64, error) {
	c, err := p.get(idx, tagDouble, at)
	if err != nil {
		return 0, err
	}
	return c.num, nil
}

// decodeModifiedUTF8 decodes the class-file string encoding: NUL is two
// bytes and supplementary characters are surrogate pairs of 3-byte units.
func decodeModifiedUTF8(b []byte) (string, bool) {
	ascii := true
	for _, c := range b {
		if c == 0 || c >= 0x80 {
			ascii = false
			break
		}
	}
	if ascii {
		return string(b), true
	}

	units := make([]uint16, 0, len(b))
	for i := 0; i < len(b); {
		c := b[i]
		switch {
		case c < 0x80:
			units = append(units, uint16(c))
			i++
		case c&0xE0 == 0xC0:
			if i+1 >= len(b) || b[i+1]&0xC0 != 0x80 {
				return "", false
			}
			units = append(units, uint16(c&0x1F)<<6|uint16(b[i+1]&0x3F))
			i += 2
		case c&0xF0 == 0xE0:
			if i+2 >= len(b) || b[i+1]&0xC0 != 0x80 || b[i+2]&0xC0 != 0x80 {
				return "", false
			}
			units = append(units, uint16(c&0x0F)<<12|uint16(b[i+1]&0x3F)<<6|uint16(b[i+2]&0x3F))
			i += 3
		default:
			return "", false
		}
	}
	return string(utf16.Decode(units)), true
}
