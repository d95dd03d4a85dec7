package classfile

import "strings"

var primitives = map[byte]string{
	'B': "byte",
	'C': "char",
	'D': "double",
	'F': "float",
	'I': "int",
	'J': "long",
	'S': "short",
	'Z': "boolean",
	'V': "void",
}

// internalToDotted turns com/acme/Widget into com.acme.Widget.
func internalToDotted(name string) string {
	return strings.ReplaceAll(name, "/", ".")
}

// descriptorToName converts a field or return descriptor to a source-style
// type name: Lcom/acme/Entity; -> com.acme.Entity, [I -> int[], V -> void.
// Input that is not a descriptor is returned dotted, since some older
// compilers stored plain internal names where descriptors belong.
func descriptorToName(desc string) string {
	dims := 0
	for dims < len(desc) && desc[dims] == '[' {
		dims++
	}
	base := desc[dims:]
	var name string
	switch {
	case len(base) == 1 && primitives[base[0]] != "":
		name = primitives[base[0]]
	case len(base) > 2 && base[0] == 'L' && base[len(base)-1] == ';':
		name = internalToDotted(base[1 : len(base)-1])
	default:
		return internalToDotted(desc)
	}
	return name + strings.Repeat("[]", dims)
}
