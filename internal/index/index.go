// Package index holds the in-memory annotation index: a builder fed with
// parsed classes and the immutable query surface it produces.
package index

import (
	"slices"

	"github.com/starford/anndex/internal/models"
)

// Index maps annotation type names to every instance of that type. It is
// immutable once built and safe for concurrent readers.
type Index struct {
	byType map[string][]models.Instance
	types  []string
	total  int
}

// Lookup returns the instances of typeName in the order their classes were
// fed to the builder. The result is a deep copy that shares no memory with
// the index; it is nil when the type is absent.
func (x *Index) Lookup(typeName string) []models.Instance {
	found := x.byType[typeName]
	if len(found) == 0 {
		return nil
	}
	return models.CloneInstances(found)
}

// Count returns the number of instances of typeName.
func (x *Index) Count(typeName string) int {
	return len(x.byType[typeName])
}

// Types returns every annotation type name with at least one instance,
// sorted.
func (x *Index) Types() []string {
	return slices.Clone(x.types)
}

// Len returns the total number of instances.
func (x *Index) Len() int {
	return x.total
}
