package lookup

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/starford/anndex/internal/apperr"
	"github.com/starford/anndex/internal/classfile"
	"github.com/starford/anndex/internal/codec"
	"github.com/starford/anndex/internal/index"
	"github.com/starford/anndex/internal/models"
	"github.com/starford/anndex/internal/testutil"
)

func artifact(t *testing.T, classes ...*testutil.Class) []byte {
	t.Helper()
	b := index.NewBuilder()
	for _, c := range classes {
		parsed, err := classfile.Parse(c.Bytes())
		if err != nil {
			t.Fatalf("Parse: %v", err)
		}
		_ = b.Add(parsed)
	}
	x, err := b.Complete()
	if err != nil {
		t.Fatal(err)
	}
	return codec.Write(x)
}

func writeArtifact(t *testing.T, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "jandex.idx")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestService_NoIndex(t *testing.T) {
	s := NewService(nil)
	if _, err := s.Lookup("x"); !errors.Is(err, apperr.ErrNoIndex) {
		t.Errorf("Lookup err = %v, want ErrNoIndex", err)
	}
	if _, err := s.Types(); !errors.Is(err, apperr.ErrNoIndex) {
		t.Errorf("Types err = %v", err)
	}
	if _, err := s.Stats(); !errors.Is(err, apperr.ErrNoIndex) {
		t.Errorf("Stats err = %v", err)
	}
	if _, err := s.Reload(context.Background()); err == nil {
		t.Error("Reload without source should fail")
	}
}

func TestService_ReloadFromFile(t *testing.T) {
	data := artifact(t, testutil.NewClass("com.acme.Validator").
		Method("validate", "(Ljava/lang/String;)Z", nil, []testutil.Ann{{Type: "javax.validation.NotNull"}}))
	s := NewService(FileSource{Path: writeArtifact(t, data)})

	stats, err := s.Reload(context.Background())
	if err != nil {
		t.Fatalf("Reload: %v", err)
	}
	if stats.Types != 1 || stats.Instances != 1 || stats.Bytes != len(data) || stats.Version != "1.0" {
		t.Errorf("stats = %+v", stats)
	}

	views, err := s.Lookup("javax.validation.NotNull")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if len(views) != 1 {
		t.Fatalf("len = %d", len(views))
	}
	tv := views[0].Target
	if tv.Kind != "parameter" || tv.Class != "com.acme.Validator" || tv.Position == nil || *tv.Position != 0 {
		t.Errorf("target = %+v", tv)
	}

	empty, err := s.Lookup("com.acme.Missing")
	if err != nil || empty == nil || len(empty) != 0 {
		t.Errorf("absent type: %v, %v", empty, err)
	}
}

func TestService_MissingFile(t *testing.T) {
	s := NewService(FileSource{Path: filepath.Join(t.TempDir(), "nope.idx")})
	if _, err := s.Reload(context.Background()); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestService_BadArtifactKeepsPrevious(t *testing.T) {
	s := NewService(nil)
	good := artifact(t, testutil.NewClass("a.A").Annotate(testutil.Ann{Type: "t.T"}))
	if _, err := s.Load(good, "good"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Load([]byte("garbage"), "bad"); !errors.Is(err, apperr.ErrCorruptIndex) {
		t.Errorf("err = %v, want ErrCorruptIndex", err)
	}
	stats, _ := s.Stats()
	if stats.Source != "good" {
		t.Errorf("source = %s, want good", stats.Source)
	}
}

func TestService_Types(t *testing.T) {
	s := NewService(nil)
	_, _ = s.Load(artifact(t,
		testutil.NewClass("a.A").Annotate(testutil.Ann{Type: "t.B"}, testutil.Ann{Type: "t.A"}),
		testutil.NewClass("a.C").Annotate(testutil.Ann{Type: "t.B"}),
	), "mem")
	types, err := s.Types()
	if err != nil {
		t.Fatal(err)
	}
	if len(types) != 2 || types[0] != (TypeCount{"t.A", 1}) || types[1] != (TypeCount{"t.B", 2}) {
		t.Errorf("types = %+v", types)
	}
}

func TestInstanceView_JSON(t *testing.T) {
	in := models.Instance{
		Type:   "t.Meta",
		Target: models.FieldTarget("a.A", "f", "I"),
		Members: []models.Member{
			{Name: "nan", Value: models.DoubleValue(math.NaN())},
			{Name: "c", Value: models.CharValue('x')},
			{Name: "e", Value: models.EnumValue("a.Color", "RED")},
			{Name: "arr", Value: models.ArrayValue(models.IntValue(1), models.StringValue("s"))},
			{Name: "n", Value: models.NestedValue(models.Annotation{Type: "t.Inner"})},
		},
	}
	raw, err := json.Marshal(NewInstanceView(in))
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	s := string(raw)
	for _, want := range []string{`"value":"NaN"`, `"value":"x"`, `"constant":"RED"`, `"value":[1,"s"]`, `"display":"a.A#f:I"`} {
		if !strings.Contains(s, want) {
			t.Errorf("missing %s in %s", want, s)
		}
	}
	if strings.Contains(s, `"position"`) {
		t.Error("field target should omit position")
	}
}

func TestService_ConcurrentReload(t *testing.T) {
	data := artifact(t, testutil.NewClass("a.A").Annotate(testutil.Ann{Type: "t.T"}))
	s := NewService(FileSource{Path: writeArtifact(t, data)})
	if _, err := s.Reload(context.Background()); err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	for range 4 {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for range 50 {
				_, _ = s.Reload(context.Background())
			}
		}()
		go func() {
			defer wg.Done()
			for range 50 {
				views, err := s.Lookup("t.T")
				if err != nil || len(views) != 1 {
					t.Errorf("Lookup during reload: %v, %v", views, err)
					return
				}
			}
		}()
	}
	wg.Wait()
}
