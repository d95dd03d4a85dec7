// Package codec serializes an annotation index to a compact, versioned
// binary artifact and reads it back.
//
// Layout. Fixed-width fields are big-endian; uv is an unsigned LEB128
// varint and sv a zig-zag signed varint.
//
//	header    magic "ANDX" | major u16 | minor u16
//	symbols   uv count | count x (uv len | bytes)
//	targets   uv count | count x (kind u8 | uv class
//	                              [| uv name | uv descriptor [| uv position]])
//	directory uv count | count x (uv type | uv start | uv count)
//	instances uv count | count x (uv type | uv target | flags u8
//	                              | uv n | n x (uv name | value))
//	trailer   CRC-32 (IEEE) u32 over every byte after the header
//
// Strings are stored once in the symbol table and referenced by number.
// Targets are shared the same way. Directory entries are sorted by type name
// and cover the instance table in contiguous runs.
//
// A value is a tag byte followed by its payload:
//
//	's' uv sym    'I' 'J' 'B' 'C' 'S' sv    'Z' u8    'F' u32 bits
//	'D' u64 bits  'c' uv sym    'e' uv type uv constant
//	'@' uv type uv n n x (uv name | value)   '[' uv n n x value
//	'?' uv sym (a marker for a value the class reader could not represent)
//
// Readers accept any minor revision of major version 1. Bytes a newer minor
// appends after the instance table are ignored.
package codec

import "github.com/starford/anndex/internal/models"

const (
	magic = "ANDX"

	versionMajor = 1
	versionMinor = 0

	headerLen  = 8
	trailerLen = 4

	maxDepth = 64

	flagVisible = 1 << 0
)

const (
	tagString     = 's'
	tagInt        = 'I'
	tagLong       = 'J'
	tagByte       = 'B'
	tagChar       = 'C'
	tagShort      = 'S'
	tagBool       = 'Z'
	tagFloat      = 'F'
	tagDouble     = 'D'
	tagClass      = 'c'
	tagEnum       = 'e'
	tagAnnotation = '@'
	tagArray      = '['
	tagUnknown    = '?'
)

var kindTags = map[models.ValueKind]byte{
	models.ValueString:     tagString,
	models.ValueInt:        tagInt,
	models.ValueLong:       tagLong,
	models.ValueByte:       tagByte,
	models.ValueChar:       tagChar,
	models.ValueShort:      tagShort,
	models.ValueBool:       tagBool,
	models.ValueFloat:      tagFloat,
	models.ValueDouble:     tagDouble,
	models.ValueClass:      tagClass,
	models.ValueEnum:       tagEnum,
	models.ValueAnnotation: tagAnnotation,
	models.ValueArray:      tagArray,
	models.ValueUnknown:    tagUnknown,
}

// Version reports the format revision this package writes.
func Version() (major, minor uint16) {
	return versionMajor, versionMinor
}
