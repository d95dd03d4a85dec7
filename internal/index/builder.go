package index

import (
	"fmt"
	"slices"

	"github.com/starford/anndex/internal/apperr"
	"github.com/starford/anndex/internal/classfile"
	"github.com/starford/anndex/internal/models"
)

// Builder accumulates instances and produces an Index exactly once.
// It is not safe for concurrent use.
type Builder struct {
	byType map[string][]models.Instance
	total  int
	done   bool
}

// NewBuilder returns an empty builder.
func NewBuilder() *Builder {
	return &Builder{byType: make(map[string][]models.Instance)}
}

// Add records every annotation instance of a parsed class.
func (b *Builder) Add(c *classfile.Class) error {
	if b.done {
		return fmt.Errorf("index: add %s: %w", c.Name, apperr.ErrAlreadyCompleted)
	}
	b.append(Derive(c))
	return nil
}

// AddInstances records instances that were derived earlier, for example
// ones restored from a scan catalog. Order is preserved.
func (b *Builder) AddInstances(instances []models.Instance) error {
	if b.done {
		return fmt.Errorf("index: add instances: %w", apperr.ErrAlreadyCompleted)
	}
	b.append(instances)
	return nil
}

func (b *Builder) append(instances []models.Instance) {
	for _, in := range instances {
		b.byType[in.Type] = append(b.byType[in.Type], in)
	}
	b.total += len(instances)
}

// Complete seals the builder and returns the index. Any later call on the
// builder fails with apperr.ErrAlreadyCompleted.
func (b *Builder) Complete() (*Index, error) {
	if b.done {
		return nil, fmt.Errorf("index: complete: %w", apperr.ErrAlreadyCompleted)
	}
	b.done = true

	types := make([]string, 0, len(b.byType))
	for t := range b.byType {
		types = append(types, t)
	}
	slices.Sort(types)

	x := &Index{byType: b.byType, types: types, total: b.total}
	b.byType = nil
	return x, nil
}

// Derive lists the annotation instances of a class: class annotations,
// then fields in declaration order, then for each method its own
// annotations followed by its parameter annotations by position.
func Derive(c *classfile.Class) []models.Instance {
	var out []models.Instance
	emit := func(t models.Target, anns []classfile.Annotation) {
		for _, a := range anns {
			out = append(out, models.Instance{
				Type:    a.Type,
				Target:  t,
				Members: a.Members,
				Visible: a.Visible,
			})
		}
	}

	emit(models.ClassTarget(c.Name), c.Annotations)
	for _, f := range c.Fields {
		emit(models.FieldTarget(c.Name, f.Name, f.Descriptor), f.Annotations)
	}
	for _, m := range c.Methods {
		emit(models.MethodTarget(c.Name, m.Name, m.Descriptor), m.Annotations)
		for pos, anns := range m.Parameters {
			emit(models.ParameterTarget(c.Name, m.Name, m.Descriptor, pos), anns)
		}
	}
	return out
}
