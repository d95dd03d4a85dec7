package mcpserver

// IndexFormatGuide describes what the annotation index holds and how the
// lookup tools render it, for LLM consumers.
const IndexFormatGuide = `# anndex Annotation Index

The index records every annotation occurrence found in the compiled class
files of a packaged image. It answers one question: which program elements
carry annotation type X?

## Lookup

- Query by the fully qualified, dotted type name: ` + "`" + `javax.persistence.Entity` + "`" + `.
  Nested types use ` + "`" + `$` + "`" + `: ` + "`" + `com.acme.Outer$Inner` + "`" + `.
- Matching is exact. There are no wildcards, prefixes or inheritance.
- An unknown type returns an empty list, never an error.
- Results keep scan order: modules in configured order, class files in
  lexical path order, and within a class: class annotations, fields,
  then each method followed by its parameters.

## Targets

| kind      | fields                                              |
|-----------|-----------------------------------------------------|
| class     | class                                               |
| field     | class, name, descriptor                             |
| method    | class, name, descriptor (overloads stay distinct)   |
| parameter | class, name, descriptor, position (0-based)         |

Descriptors are raw JVM descriptors, e.g. ` + "`" + `(Ljava/lang/String;)Z` + "`" + `.

## Members

Only members written at the annotation site are recorded. Defaults declared
on the annotation type are not. Each member carries:

- ` + "`" + `kind` + "`" + `: string, int, long, float, double, boolean, byte, char, short,
  class, enum, annotation, array or unknown
- ` + "`" + `value` + "`" + `: JSON rendering (enums as {type, constant}, nested annotations
  as {type, members}, NaN and infinities as strings)
- ` + "`" + `text` + "`" + `: Java-like source form, e.g. ` + "`" + `com.acme.Color.RED` + "`" + `

` + "`" + `unknown` + "`" + ` marks an element value the reader could not represent. The rest
of that annotation attribute was not recorded.

## Visibility

` + "`" + `visible: true` + "`" + ` means RuntimeVisible retention; ` + "`" + `false` + "`" + ` means the
annotation is only in the class file (CLASS retention).
`
