package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/starford/anndex/internal/apperr"
	"github.com/starford/anndex/internal/classfile"
	"github.com/starford/anndex/internal/codec"
	"github.com/starford/anndex/internal/index"
	"github.com/starford/anndex/internal/lookup"
	"github.com/starford/anndex/internal/testutil"
)

// testEnv writes an artifact for the given classes, loads it into a lookup
// service and returns the router plus the artifact path.
// An empty authToken means disabled mode.
func testEnv(t *testing.T, authToken string, classes ...*testutil.Class) (http.Handler, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "jandex.idx")
	writeIndex(t, path, classes...)

	svc := lookup.NewService(lookup.FileSource{Path: path})
	if len(classes) > 0 {
		if _, err := svc.Reload(t.Context()); err != nil {
			t.Fatalf("Reload: %v", err)
		}
	}
	return NewRouter(svc, authToken != "", authToken, nil, nil), path
}

func writeIndex(t *testing.T, path string, classes ...*testutil.Class) {
	t.Helper()
	b := index.NewBuilder()
	for _, c := range classes {
		parsed, err := classfile.Parse(c.Bytes())
		if err != nil {
			t.Fatalf("Parse: %v", err)
		}
		if err := b.Add(parsed); err != nil {
			t.Fatal(err)
		}
	}
	x, err := b.Complete()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, codec.Write(x), 0o644); err != nil {
		t.Fatal(err)
	}
}

func entityClass(name string) *testutil.Class {
	return testutil.NewClass(name).
		Annotate(testutil.Ann{Type: "javax.persistence.Entity", Elems: []testutil.Elem{
			{Name: "name", Value: testutil.S("widget")},
		}}).
		Method("save", "(Ljava/lang/String;)V", nil, []testutil.Ann{{Type: "javax.validation.NotNull"}})
}

func serve(router http.Handler, method, target string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestLookup(t *testing.T) {
	router, _ := testEnv(t, "", entityClass("com.acme.Widget"), entityClass("com.acme.Gadget"))

	w := serve(router, http.MethodGet, "/annotations/javax.persistence.Entity")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	var resp LookupResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.Count != 2 || len(resp.Instances) != 2 {
		t.Fatalf("count = %d, instances = %d", resp.Count, len(resp.Instances))
	}
	if resp.Instances[0].Target.Class != "com.acme.Widget" || resp.Instances[1].Target.Class != "com.acme.Gadget" {
		t.Errorf("instances out of order: %+v", resp.Instances)
	}
	if got := resp.Instances[0].Members[0].Value; got != "widget" {
		t.Errorf("member value = %v", got)
	}
}

func TestLookup_Parameter(t *testing.T) {
	router, _ := testEnv(t, "", entityClass("com.acme.Widget"))

	w := serve(router, http.MethodGet, "/annotations/javax.validation.NotNull")
	var resp LookupResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.Count != 1 {
		t.Fatalf("count = %d", resp.Count)
	}
	target := resp.Instances[0].Target
	if target.Kind != "parameter" || target.Position == nil || *target.Position != 0 || target.Name != "save" {
		t.Errorf("target = %+v", target)
	}
}

func TestLookup_AbsentTypeIsEmpty(t *testing.T) {
	router, _ := testEnv(t, "", entityClass("com.acme.Widget"))

	w := serve(router, http.MethodGet, "/annotations/com.acme.Missing")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var raw map[string]any
	if err := json.NewDecoder(w.Body).Decode(&raw); err != nil {
		t.Fatal(err)
	}
	if arr, ok := raw["instances"].([]any); !ok || len(arr) != 0 {
		t.Errorf("instances = %v, want empty array", raw["instances"])
	}
}

func TestLookup_EncodedInnerType(t *testing.T) {
	cls := testutil.NewClass("com.acme.Widget").Annotate(testutil.Ann{Type: "com.acme.Outer$Inner"})
	router, _ := testEnv(t, "", cls)

	w := serve(router, http.MethodGet, "/annotations/com.acme.Outer%24Inner")
	var resp LookupResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.Type != "com.acme.Outer$Inner" || resp.Count != 1 {
		t.Errorf("resp = %+v", resp)
	}
}

func TestNoIndexLoaded(t *testing.T) {
	router, _ := testEnv(t, "")

	for _, target := range []string{"/annotations", "/annotations/a.B", "/index"} {
		w := serve(router, http.MethodGet, target)
		if w.Code != http.StatusServiceUnavailable {
			t.Errorf("%s: status = %d, want 503", target, w.Code)
		}
	}
}

func TestListTypes(t *testing.T) {
	router, _ := testEnv(t, "", entityClass("com.acme.Widget"), entityClass("com.acme.Gadget"))

	w := serve(router, http.MethodGet, "/annotations")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var resp TypeListResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Types) != 2 || resp.Total != 4 {
		t.Fatalf("resp = %+v", resp)
	}
	if resp.Types[0].Type != "javax.persistence.Entity" || resp.Types[0].Count != 2 {
		t.Errorf("types[0] = %+v", resp.Types[0])
	}
}

func TestStats(t *testing.T) {
	router, path := testEnv(t, "", entityClass("com.acme.Widget"))

	w := serve(router, http.MethodGet, "/index")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var stats lookup.Stats
	if err := json.NewDecoder(w.Body).Decode(&stats); err != nil {
		t.Fatal(err)
	}
	if stats.Source != path || stats.Types != 2 || stats.Instances != 2 || stats.Version != "1.0" {
		t.Errorf("stats = %+v", stats)
	}
}

func TestReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "jandex.idx")
	writeIndex(t, path, entityClass("com.acme.Widget"))
	svc := lookup.NewService(lookup.FileSource{Path: path})

	var observed []error
	router := NewRouter(svc, false, "", nil, func(_ lookup.Stats, err error) {
		observed = append(observed, err)
	})

	w := serve(router, http.MethodPost, "/index/reload")
	if w.Code != http.StatusOK {
		t.Fatalf("reload status = %d, body = %s", w.Code, w.Body.String())
	}

	writeIndex(t, path, entityClass("com.acme.Widget"), entityClass("com.acme.Gadget"))
	serve(router, http.MethodPost, "/index/reload")
	w = serve(router, http.MethodGet, "/annotations/javax.persistence.Entity")
	var resp LookupResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.Count != 2 {
		t.Errorf("count after reload = %d, want 2", resp.Count)
	}

	if err := os.WriteFile(path, []byte("garbage"), 0o644); err != nil {
		t.Fatal(err)
	}
	w = serve(router, http.MethodPost, "/index/reload")
	if w.Code != http.StatusUnprocessableEntity {
		t.Errorf("corrupt reload status = %d, want 422", w.Code)
	}
	// Previous index still served.
	w = serve(router, http.MethodGet, "/annotations/javax.persistence.Entity")
	if w.Code != http.StatusOK {
		t.Errorf("lookup after failed reload = %d", w.Code)
	}

	os.Remove(path)
	w = serve(router, http.MethodPost, "/index/reload")
	if w.Code != http.StatusNotFound {
		t.Errorf("missing reload status = %d, want 404", w.Code)
	}

	if len(observed) != 4 || observed[0] != nil || observed[2] == nil {
		t.Errorf("observed = %v", observed)
	}
	if !errors.Is(observed[3], apperr.ErrNotFound) {
		t.Errorf("observed[3] = %v, want ErrNotFound", observed[3])
	}
}

func TestAuth_TokenMode(t *testing.T) {
	router, _ := testEnv(t, "secret", entityClass("com.acme.Widget"))

	w := serve(router, http.MethodGet, "/annotations")
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("no token: status = %d, want 401", w.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/annotations", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("wrong token: status = %d, want 401", w.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/annotations", nil)
	req.Header.Set("Authorization", "Bearer secret")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("valid token: status = %d, want 200", w.Code)
	}
}

func TestSSERouteMounted(t *testing.T) {
	svc := lookup.NewService(nil)
	sse := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	router := NewRouter(svc, false, "", sse, nil)
	if w := serve(router, http.MethodGet, "/events"); w.Code != http.StatusTeapot {
		t.Errorf("status = %d", w.Code)
	}
}
