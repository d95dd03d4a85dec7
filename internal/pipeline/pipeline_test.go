package pipeline

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/starford/anndex/internal/apperr"
	"github.com/starford/anndex/internal/catalog"
	"github.com/starford/anndex/internal/codec"
	"github.com/starford/anndex/internal/models"
	"github.com/starford/anndex/internal/storage"
	"github.com/starford/anndex/internal/testutil"
)

func entity(name string) []byte {
	return testutil.NewClass(name).Annotate(testutil.Ann{Type: "com.acme.Entity"}).Bytes()
}

func openFS(t *testing.T, root string) *storage.FS {
	t.Helper()
	fs, err := storage.NewFS(root, false)
	if err != nil {
		t.Fatalf("NewFS: %v", err)
	}
	return fs
}

func testImage(t *testing.T) *storage.FS {
	t.Helper()
	return openFS(t, testutil.Image(t, map[string][]byte{
		"app/com/acme/b/Beta.class":  entity("com.acme.b.Beta"),
		"app/com/acme/a/Alpha.class": entity("com.acme.a.Alpha"),
		"app/META-INF/MANIFEST.MF":   []byte("Manifest-Version: 1.0\n"),
		"lib/org/lib/Util.class": testutil.NewClass("org.lib.Util").
			Method("help", "(I)V", []testutil.Ann{{Type: "com.acme.Entity"}}).Bytes(),
	}))
}

func TestRun_InPlace(t *testing.T) {
	in := testImage(t)
	p := New(in, Config{TargetModule: "app", Modules: []string{"app", "lib"}})

	res, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Path != "/app/META-INF/jandex.idx" {
		t.Errorf("Path = %s", res.Path)
	}
	if res.Classes != 3 || res.Copied != 0 {
		t.Errorf("result = %+v", res)
	}

	data, err := in.Read("app", DefaultArtifactPath)
	if err != nil {
		t.Fatalf("artifact not written: %v", err)
	}
	if !bytes.Equal(data, res.Artifact) {
		t.Error("written artifact differs from result")
	}
	x, err := codec.Read(data)
	if err != nil {
		t.Fatalf("codec.Read: %v", err)
	}
	got := x.Lookup("com.acme.Entity")
	want := []models.Target{
		models.ClassTarget("com.acme.a.Alpha"),
		models.ClassTarget("com.acme.b.Beta"),
		models.MethodTarget("org.lib.Util", "help", "(I)V"),
	}
	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i].Target != want[i] {
			t.Errorf("[%d] = %v, want %v", i, got[i].Target, want[i])
		}
	}
}

func TestRun_ModuleOrder(t *testing.T) {
	in := testImage(t)
	res, err := New(in, Config{TargetModule: "app", Modules: []string{"lib", "app"}}).Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	got := res.Index.Lookup("com.acme.Entity")
	if len(got) != 3 || got[0].Target.ClassName != "org.lib.Util" {
		t.Errorf("first instance = %v, want org.lib.Util", got)
	}
}

func TestRun_DefaultsToAllModules(t *testing.T) {
	in := testImage(t)
	res, err := New(in, Config{}).Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Path != "/app/META-INF/jandex.idx" || res.Classes != 3 {
		t.Errorf("result = %+v", res)
	}
}

func TestRun_MissingModule(t *testing.T) {
	in := testImage(t)
	_, err := New(in, Config{TargetModule: "app", Modules: []string{"app", "ghost"}}).Run(context.Background())
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
	if _, err := in.Read("app", DefaultArtifactPath); err == nil {
		t.Error("artifact written despite failure")
	}

	_, err = New(in, Config{TargetModule: "ghost", Modules: []string{"app"}}).Run(context.Background())
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("missing target: err = %v, want ErrNotFound", err)
	}
}

func TestRun_MalformedPolicy(t *testing.T) {
	root := testutil.Image(t, map[string][]byte{
		"app/a/Good.class": entity("a.Good"),
		"app/a/Bad.class":  []byte("not a class"),
	})

	_, err := New(openFS(t, root), Config{TargetModule: "app"}).Run(context.Background())
	if !errors.Is(err, apperr.ErrMalformedClassData) {
		t.Fatalf("fail policy: err = %v, want ErrMalformedClassData", err)
	}

	res, err := New(openFS(t, root), Config{TargetModule: "app", OnMalformed: OnMalformedSkip}).Run(context.Background())
	if err != nil {
		t.Fatalf("skip policy: %v", err)
	}
	if res.Skipped != 1 || res.Index.Count("com.acme.Entity") != 1 {
		t.Errorf("result = %+v", res)
	}
}

func TestRun_OutputCopiesResources(t *testing.T) {
	in := testImage(t)
	testutil.WriteFile(t, in.Root(), "app/META-INF/jandex.idx", []byte("stale"))
	testutil.WriteFile(t, in.Root(), "extra/readme.txt", []byte("hi"))
	out, err := storage.NewFS(t.TempDir()+"/out", true)
	if err != nil {
		t.Fatal(err)
	}

	res, err := New(in, Config{TargetModule: "app", Modules: []string{"app", "lib"}}, WithOutput(out)).Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	// 3 classes, the manifest and the unscanned module's file.
	if res.Copied != 5 {
		t.Errorf("Copied = %d, want 5", res.Copied)
	}
	if got, _ := out.Read("extra", "readme.txt"); string(got) != "hi" {
		t.Errorf("extra/readme.txt = %q", got)
	}
	if got, _ := out.Read("app", DefaultArtifactPath); !bytes.Equal(got, res.Artifact) {
		t.Error("output artifact is not the new one")
	}
	if got, _ := in.Read("app", DefaultArtifactPath); string(got) != "stale" {
		t.Error("input image was modified")
	}
}

func TestRun_Deterministic(t *testing.T) {
	in := testImage(t)
	a, err := New(in, Config{TargetModule: "app", Workers: 1}).Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	b, err := New(in, Config{TargetModule: "app", Workers: 16}).Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(a.Artifact, b.Artifact) {
		t.Error("artifact depends on worker count")
	}
}

func TestRun_CatalogReuse(t *testing.T) {
	in := testImage(t)
	db, err := catalog.Open(testutil.TempDB(t), 0)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })

	cfg := Config{TargetModule: "app", Modules: []string{"app", "lib"}}
	first, err := New(in, cfg, WithCatalog(db)).Run(context.Background())
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	if first.Reused != 0 {
		t.Errorf("first run reused %d", first.Reused)
	}

	testutil.WriteFile(t, in.Root(), "app/com/acme/a/Alpha.class",
		testutil.NewClass("com.acme.a.Alpha").Annotate(testutil.Ann{Type: "com.acme.Changed"}).Bytes())

	second, err := New(in, cfg, WithCatalog(db)).Run(context.Background())
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if second.Reused != 2 {
		t.Errorf("second run reused %d, want 2", second.Reused)
	}
	if second.Index.Count("com.acme.Changed") != 1 || second.Index.Count("com.acme.Entity") != 2 {
		t.Errorf("types = %v", second.Index.Types())
	}
}

type recordingSink struct {
	mu    sync.Mutex
	names []string
	data  [][]byte
}

func (s *recordingSink) Publish(_ context.Context, name string, content []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.names = append(s.names, name)
	s.data = append(s.data, content)
	return nil
}

func TestRun_PublishesToSinks(t *testing.T) {
	in := testImage(t)
	sink := &recordingSink{}
	res, err := New(in, Config{TargetModule: "app"}, WithSink(sink)).Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(sink.names) != 1 || sink.names[0] != "app/META-INF/jandex.idx" {
		t.Fatalf("published = %v", sink.names)
	}
	if !bytes.Equal(sink.data[0], res.Artifact) {
		t.Error("published bytes differ from artifact")
	}
}

func TestRun_Cancelled(t *testing.T) {
	in := testImage(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := New(in, Config{TargetModule: "app"}).Run(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}
