package codec

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"math"

	"github.com/starford/anndex/internal/apperr"
	"github.com/starford/anndex/internal/index"
	"github.com/starford/anndex/internal/models"
)

// Read decodes an artifact produced by Write. Failures wrap
// apperr.ErrUnsupportedVersion or apperr.ErrCorruptIndex; no partial index
// is ever returned.
func Read(data []byte) (*index.Index, error) {
	if len(data) < headerLen {
		return nil, corrupt("header", 0, "truncated: %d bytes", len(data))
	}
	if string(data[:4]) != magic {
		return nil, corrupt("header", 0, "bad magic %q", data[:4])
	}
	major := binary.BigEndian.Uint16(data[4:6])
	minor := binary.BigEndian.Uint16(data[6:8])
	if major != versionMajor {
		return nil, fmt.Errorf("codec: %w: %d.%d (supported: %d.x)", apperr.ErrUnsupportedVersion, major, minor, versionMajor)
	}
	if len(data) < headerLen+trailerLen {
		return nil, corrupt("trailer", len(data), "truncated")
	}
	body := data[headerLen : len(data)-trailerLen]
	want := binary.BigEndian.Uint32(data[len(data)-trailerLen:])
	if got := crc32.ChecksumIEEE(body); got != want {
		return nil, corrupt("trailer", len(data)-trailerLen, "checksum %08x, want %08x", got, want)
	}

	r := &reader{data: body, base: headerLen}
	x, err := r.read()
	if err != nil {
		return nil, err
	}
	if r.off != len(r.data) && minor == versionMinor {
		return nil, corrupt("instances", r.pos(), "%d trailing bytes", len(r.data)-r.off)
	}
	return x, nil
}

func corrupt(table string, off int, format string, args ...any) error {
	return fmt.Errorf("codec: %w: %s table at offset %d: %s", apperr.ErrCorruptIndex, table, off, fmt.Sprintf(format, args...))
}

type dirEntry struct {
	typ          uint64
	start, count uint64
}

type reader struct {
	data  []byte
	off   int
	base  int
	table string

	syms    []string
	targets []models.Target
}

func (r *reader) pos() int { return r.base + r.off }

func (r *reader) fail(format string, args ...any) error {
	return corrupt(r.table, r.pos(), format, args...)
}

func (r *reader) uvarint(what string) (uint64, error) {
	v, n := binary.Uvarint(r.data[r.off:])
	if n <= 0 {
		return 0, r.fail("bad or truncated %s", what)
	}
	r.off += n
	return v, nil
}

func (r *reader) varint(what string) (int64, error) {
	v, n := binary.Varint(r.data[r.off:])
	if n <= 0 {
		return 0, r.fail("bad or truncated %s", what)
	}
	r.off += n
	return v, nil
}

func (r *reader) byte(what string) (byte, error) {
	if r.off >= len(r.data) {
		return 0, r.fail("truncated %s", what)
	}
	b := r.data[r.off]
	r.off++
	return b, nil
}

func (r *reader) fixed(n int, what string) ([]byte, error) {
	if len(r.data)-r.off < n {
		return nil, r.fail("truncated %s", what)
	}
	b := r.data[r.off : r.off+n]
	r.off += n
	return b, nil
}

// count reads a table length and rejects values that cannot fit in the
// remaining bytes when every entry takes at least minSize bytes.
func (r *reader) count(what string, minSize int) (int, error) {
	n, err := r.uvarint(what)
	if err != nil {
		return 0, err
	}
	if n > uint64(len(r.data)-r.off)/uint64(minSize) {
		return 0, r.fail("%s %d exceeds remaining data", what, n)
	}
	return int(n), nil
}

func (r *reader) sym(what string) (string, error) {
	id, err := r.uvarint(what)
	if err != nil {
		return "", err
	}
	if id >= uint64(len(r.syms)) {
		return "", r.fail("%s symbol %d out of range (%d symbols)", what, id, len(r.syms))
	}
	return r.syms[id], nil
}

func (r *reader) read() (*index.Index, error) {
	if err := r.readSymbols(); err != nil {
		return nil, err
	}
	if err := r.readTargets(); err != nil {
		return nil, err
	}
	dir, total, err := r.readDirectory()
	if err != nil {
		return nil, err
	}

	r.table = "instances"
	n, err := r.count("instance count", 4)
	if err != nil {
		return nil, err
	}
	if uint64(n) != total {
		return nil, r.fail("instance count %d, directory covers %d", n, total)
	}

	b := index.NewBuilder()
	for _, e := range dir {
		typ := r.syms[e.typ]
		batch := make([]models.Instance, 0, e.count)
		for range e.count {
			in, err := r.instance(e.typ, typ)
			if err != nil {
				return nil, err
			}
			batch = append(batch, in)
		}
		if err := b.AddInstances(batch); err != nil {
			return nil, err
		}
	}
	return b.Complete()
}

func (r *reader) readSymbols() error {
	r.table = "symbols"
	n, err := r.count("symbol count", 1)
	if err != nil {
		return err
	}
	r.syms = make([]string, n)
	for i := range r.syms {
		l, err := r.uvarint("symbol length")
		if err != nil {
			return err
		}
		if l > uint64(len(r.data)-r.off) {
			return r.fail("symbol %d length %d exceeds remaining data", i, l)
		}
		b, _ := r.fixed(int(l), "symbol")
		r.syms[i] = string(b)
	}
	return nil
}

func (r *reader) readTargets() error {
	r.table = "targets"
	n, err := r.count("target count", 2)
	if err != nil {
		return err
	}
	r.targets = make([]models.Target, n)
	for i := range r.targets {
		k, err := r.byte("target kind")
		if err != nil {
			return err
		}
		kind := models.TargetKind(k)
		if !kind.Valid() {
			return r.fail("target %d has invalid kind %d", i, k)
		}
		t := models.Target{Kind: kind}
		if t.ClassName, err = r.sym("class name"); err != nil {
			return err
		}
		if kind != models.KindClass {
			if t.Name, err = r.sym("member name"); err != nil {
				return err
			}
			if t.Descriptor, err = r.sym("descriptor"); err != nil {
				return err
			}
		}
		if kind == models.KindParameter {
			pos, err := r.uvarint("parameter position")
			if err != nil {
				return err
			}
			if pos > math.MaxUint8 {
				return r.fail("target %d parameter position %d out of range", i, pos)
			}
			t.Position = int(pos)
		}
		r.targets[i] = t
	}
	return nil
}

func (r *reader) readDirectory() ([]dirEntry, uint64, error) {
	r.table = "directory"
	n, err := r.count("directory count", 3)
	if err != nil {
		return nil, 0, err
	}
	dir := make([]dirEntry, n)
	seen := make(map[uint64]bool, n)
	var next uint64
	for i := range dir {
		var e dirEntry
		if e.typ, err = r.uvarint("type"); err != nil {
			return nil, 0, err
		}
		if e.typ >= uint64(len(r.syms)) {
			return nil, 0, r.fail("entry %d type symbol %d out of range", i, e.typ)
		}
		if seen[e.typ] {
			return nil, 0, r.fail("entry %d repeats type %q", i, r.syms[e.typ])
		}
		seen[e.typ] = true
		if e.start, err = r.uvarint("start"); err != nil {
			return nil, 0, err
		}
		if e.count, err = r.uvarint("count"); err != nil {
			return nil, 0, err
		}
		if e.start != next {
			return nil, 0, r.fail("entry %d starts at %d, want %d", i, e.start, next)
		}
		if e.count == 0 || e.count > uint64(len(r.data)) {
			return nil, 0, r.fail("entry %d has bad count %d", i, e.count)
		}
		next += e.count
		dir[i] = e
	}
	return dir, next, nil
}

func (r *reader) instance(typeID uint64, typ string) (models.Instance, error) {
	id, err := r.uvarint("instance type")
	if err != nil {
		return models.Instance{}, err
	}
	if id != typeID {
		return models.Instance{}, r.fail("instance type symbol %d does not match directory type %q", id, typ)
	}
	tid, err := r.uvarint("target")
	if err != nil {
		return models.Instance{}, err
	}
	if tid >= uint64(len(r.targets)) {
		return models.Instance{}, r.fail("target %d out of range (%d targets)", tid, len(r.targets))
	}
	flags, err := r.byte("flags")
	if err != nil {
		return models.Instance{}, err
	}
	if flags&^flagVisible != 0 {
		return models.Instance{}, r.fail("unknown instance flags %#x", flags)
	}
	members, err := r.members(0)
	if err != nil {
		return models.Instance{}, err
	}
	return models.Instance{
		Type:    typ,
		Target:  r.targets[tid],
		Members: members,
		Visible: flags&flagVisible != 0,
	}, nil
}

func (r *reader) members(depth int) ([]models.Member, error) {
	n, err := r.count("member count", 2)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, nil
	}
	out := make([]models.Member, n)
	for i := range out {
		if out[i].Name, err = r.sym("member name"); err != nil {
			return nil, err
		}
		if out[i].Value, err = r.value(depth + 1); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (r *reader) value(depth int) (models.Value, error) {
	if depth > maxDepth {
		return models.Value{}, r.fail("value nested deeper than %d", maxDepth)
	}
	tag, err := r.byte("value tag")
	if err != nil {
		return models.Value{}, err
	}
	switch tag {
	case tagString, tagClass, tagUnknown:
		s, err := r.sym("value")
		if err != nil {
			return models.Value{}, err
		}
		switch tag {
		case tagClass:
			return models.ClassValue(s), nil
		case tagUnknown:
			return models.UnknownValue(s), nil
		}
		return models.StringValue(s), nil

	case tagInt, tagLong, tagByte, tagChar, tagShort:
		i, err := r.varint("integer value")
		if err != nil {
			return models.Value{}, err
		}
		return r.integer(tag, i)

	case tagBool:
		b, err := r.byte("boolean value")
		if err != nil {
			return models.Value{}, err
		}
		if b > 1 {
			return models.Value{}, r.fail("boolean value %d", b)
		}
		return models.BoolValue(b == 1), nil

	case tagFloat:
		b, err := r.fixed(4, "float value")
		if err != nil {
			return models.Value{}, err
		}
		return models.FloatBits(binary.BigEndian.Uint32(b)), nil

	case tagDouble:
		b, err := r.fixed(8, "double value")
		if err != nil {
			return models.Value{}, err
		}
		return models.DoubleBits(binary.BigEndian.Uint64(b)), nil

	case tagEnum:
		typ, err := r.sym("enum type")
		if err != nil {
			return models.Value{}, err
		}
		c, err := r.sym("enum constant")
		if err != nil {
			return models.Value{}, err
		}
		return models.EnumValue(typ, c), nil

	case tagAnnotation:
		typ, err := r.sym("nested annotation type")
		if err != nil {
			return models.Value{}, err
		}
		members, err := r.members(depth)
		if err != nil {
			return models.Value{}, err
		}
		return models.NestedValue(models.Annotation{Type: typ, Members: members}), nil

	case tagArray:
		n, err := r.count("array length", 2)
		if err != nil {
			return models.Value{}, err
		}
		elems := make([]models.Value, n)
		for i := range elems {
			if elems[i], err = r.value(depth + 1); err != nil {
				return models.Value{}, err
			}
		}
		return models.ArrayValue(elems...), nil
	}
	return models.Value{}, r.fail("unknown value tag %#x", tag)
}

func (r *reader) integer(tag byte, i int64) (models.Value, error) {
	switch tag {
	case tagInt:
		if i >= math.MinInt32 && i <= math.MaxInt32 {
			return models.IntValue(int32(i)), nil
		}
	case tagByte:
		if i >= math.MinInt8 && i <= math.MaxInt8 {
			return models.ByteValue(int8(i)), nil
		}
	case tagChar:
		if i >= 0 && i <= math.MaxUint16 {
			return models.CharValue(uint16(i)), nil
		}
	case tagShort:
		if i >= math.MinInt16 && i <= math.MaxInt16 {
			return models.ShortValue(int16(i)), nil
		}
	default:
		return models.LongValue(i), nil
	}
	return models.Value{}, r.fail("%c value %d out of range", tag, i)
}
