package codec

import (
	"encoding/binary"
	"hash/crc32"

	"github.com/starford/anndex/internal/index"
	"github.com/starford/anndex/internal/models"
)

// Write encodes x. Equal index content always yields identical bytes.
func Write(x *index.Index) []byte {
	w := &writer{
		symIDs:    make(map[string]uint64),
		targetIDs: make(map[models.Target]uint64),
	}

	var dir, inst []byte
	types := x.Types()
	dir = binary.AppendUvarint(dir, uint64(len(types)))
	inst = binary.AppendUvarint(inst, uint64(x.Len()))
	var start uint64
	for _, typ := range types {
		instances := x.Lookup(typ)
		typeSym := w.sym(typ)
		dir = binary.AppendUvarint(dir, typeSym)
		dir = binary.AppendUvarint(dir, start)
		dir = binary.AppendUvarint(dir, uint64(len(instances)))
		start += uint64(len(instances))

		for _, in := range instances {
			inst = binary.AppendUvarint(inst, typeSym)
			inst = binary.AppendUvarint(inst, w.target(in.Target))
			var flags byte
			if in.Visible {
				flags |= flagVisible
			}
			inst = append(inst, flags)
			inst = w.members(inst, in.Members)
		}
	}

	out := make([]byte, 0, headerLen+len(w.targets)+len(dir)+len(inst)+trailerLen)
	out = append(out, magic...)
	out = binary.BigEndian.AppendUint16(out, versionMajor)
	out = binary.BigEndian.AppendUint16(out, versionMinor)
	out = binary.AppendUvarint(out, uint64(len(w.symList)))
	for _, s := range w.symList {
		out = binary.AppendUvarint(out, uint64(len(s)))
		out = append(out, s...)
	}
	out = binary.AppendUvarint(out, uint64(len(w.targetIDs)))
	out = append(out, w.targets...)
	out = append(out, dir...)
	out = append(out, inst...)
	return binary.BigEndian.AppendUint32(out, crc32.ChecksumIEEE(out[headerLen:]))
}

// writer numbers symbols and targets in first-use order.
type writer struct {
	symIDs  map[string]uint64
	symList []string

	targetIDs map[models.Target]uint64
	targets   []byte
}

func (w *writer) sym(s string) uint64 {
	if id, ok := w.symIDs[s]; ok {
		return id
	}
	id := uint64(len(w.symList))
	w.symIDs[s] = id
	w.symList = append(w.symList, s)
	return id
}

func (w *writer) target(t models.Target) uint64 {
	if id, ok := w.targetIDs[t]; ok {
		return id
	}
	id := uint64(len(w.targetIDs))
	w.targetIDs[t] = id

	w.targets = append(w.targets, byte(t.Kind))
	w.targets = binary.AppendUvarint(w.targets, w.sym(t.ClassName))
	if t.Kind == models.KindClass {
		return id
	}
	w.targets = binary.AppendUvarint(w.targets, w.sym(t.Name))
	w.targets = binary.AppendUvarint(w.targets, w.sym(t.Descriptor))
	if t.Kind == models.KindParameter {
		w.targets = binary.AppendUvarint(w.targets, uint64(t.Position))
	}
	return id
}

func (w *writer) members(b []byte, members []models.Member) []byte {
	b = binary.AppendUvarint(b, uint64(len(members)))
	for _, m := range members {
		b = binary.AppendUvarint(b, w.sym(m.Name))
		b = w.value(b, m.Value)
	}
	return b
}

func (w *writer) value(b []byte, v models.Value) []byte {
	tag, ok := kindTags[v.Kind]
	if !ok {
		// Zero values never come out of the class reader; keep the artifact
		// readable anyway.
		return w.value(b, models.UnknownValue("<invalid value>"))
	}
	b = append(b, tag)
	switch v.Kind {
	case models.ValueString, models.ValueClass, models.ValueUnknown:
		b = binary.AppendUvarint(b, w.sym(v.Str))
	case models.ValueInt, models.ValueLong, models.ValueByte, models.ValueChar, models.ValueShort:
		b = binary.AppendVarint(b, v.Int)
	case models.ValueBool:
		if v.Bool {
			b = append(b, 1)
		} else {
			b = append(b, 0)
		}
	case models.ValueFloat:
		b = binary.BigEndian.AppendUint32(b, uint32(v.Bits))
	case models.ValueDouble:
		b = binary.BigEndian.AppendUint64(b, v.Bits)
	case models.ValueEnum:
		b = binary.AppendUvarint(b, w.sym(v.Type))
		b = binary.AppendUvarint(b, w.sym(v.Str))
	case models.ValueAnnotation:
		var nested models.Annotation
		if v.Nested != nil {
			nested = *v.Nested
		}
		b = binary.AppendUvarint(b, w.sym(nested.Type))
		b = w.members(b, nested.Members)
	case models.ValueArray:
		b = binary.AppendUvarint(b, uint64(len(v.Elems)))
		for _, e := range v.Elems {
			b = w.value(b, e)
		}
	}
	return b
}
