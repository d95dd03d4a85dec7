// Package verify compares annotation index artifacts. Artifacts are checked
// structurally; when they differ a unified diff of their canonical text
// dumps is produced.
package verify

import (
	"bytes"
	"fmt"
	"strings"

	difflib "github.com/pmezard/go-difflib/difflib"

	"github.com/starford/anndex/internal/codec"
	"github.com/starford/anndex/internal/index"
	"github.com/starford/anndex/internal/models"
)

const diffContext = 3

// Report is the outcome of a comparison.
type Report struct {
	// Identical is true when both indexes hold the same instances in the
	// same order.
	Identical bool
	// SameBytes is true when the encoded artifacts are byte for byte equal.
	// Only set by CompareArtifacts.
	SameBytes bool
	// Diff is a unified diff of the dumps; empty when Identical.
	Diff string
}

// Dump renders an index as canonical text: one block per type in sorted
// order, one line per instance in index order.
func Dump(x *index.Index) string {
	var b strings.Builder
	for _, typ := range x.Types() {
		instances := x.Lookup(typ)
		fmt.Fprintf(&b, "@%s (%d)\n", typ, len(instances))
		for _, in := range instances {
			b.WriteString("  ")
			b.WriteString(in.Target.Kind.String())
			b.WriteByte(' ')
			b.WriteString(in.Target.String())
			if !in.Visible {
				b.WriteString(" [invisible]")
			}
			if len(in.Members) > 0 {
				b.WriteString(" (")
				b.WriteString(models.FormatMembers(in.Members))
				b.WriteByte(')')
			}
			b.WriteByte('\n')
		}
	}
	return b.String()
}

// Compare checks two decoded indexes. aName and bName label the diff.
func Compare(aName, bName string, a, b *index.Index) Report {
	if equal(a, b) {
		return Report{Identical: true}
	}
	return Report{Diff: unified(aName, bName, Dump(a), Dump(b))}
}

// CompareArtifacts decodes and compares two encoded artifacts.
func CompareArtifacts(aName, bName string, a, b []byte) (Report, error) {
	xa, err := codec.Read(a)
	if err != nil {
		return Report{}, fmt.Errorf("verify: %s: %w", aName, err)
	}
	xb, err := codec.Read(b)
	if err != nil {
		return Report{}, fmt.Errorf("verify: %s: %w", bName, err)
	}
	r := Compare(aName, bName, xa, xb)
	r.SameBytes = bytes.Equal(a, b)
	return r, nil
}

func equal(a, b *index.Index) bool {
	if a.Len() != b.Len() {
		return false
	}
	ta, tb := a.Types(), b.Types()
	if len(ta) != len(tb) {
		return false
	}
	for i, typ := range ta {
		if tb[i] != typ {
			return false
		}
		ia, ib := a.Lookup(typ), b.Lookup(typ)
		if len(ia) != len(ib) {
			return false
		}
		for j := range ia {
			if !ia[j].Equal(ib[j]) {
				return false
			}
		}
	}
	return true
}

func unified(aName, bName, a, b string) string {
	u := difflib.UnifiedDiff{
		A:        difflib.SplitLines(a),
		B:        difflib.SplitLines(b),
		FromFile: aName,
		ToFile:   bName,
		Context:  diffContext,
	}
	s, err := difflib.GetUnifiedDiffString(u)
	if err != nil || s == "" {
		// Dumps can coincide when only NaN payloads differ.
		return fmt.Sprintf("--- %s\n+++ %s\n(indexes differ in values not visible in the text dump)\n", aName, bName)
	}
	return s
}
