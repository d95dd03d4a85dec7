package catalog

import (
	"io"
	"log/slog"
	"testing"

	"github.com/starford/anndex/internal/models"
	"github.com/starford/anndex/internal/testutil"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(testutil.TempDB(t), 8)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func sampleInstances() []models.Instance {
	return []models.Instance{
		{Type: "t.Entity", Target: models.ClassTarget("a.A"), Visible: true},
		{Type: "t.Column", Target: models.FieldTarget("a.A", "id", "J"), Visible: true,
			Members: []models.Member{{Name: "name", Value: models.StringValue("ID")}}},
		{Type: "t.Entity", Target: models.MethodTarget("a.A", "m", "()V")},
	}
}

func TestSchemaCreation(t *testing.T) {
	db := testDB(t)
	var count int
	if err := db.conn.QueryRow(`SELECT count(*) FROM classes`).Scan(&count); err != nil {
		t.Fatalf("classes table missing: %v", err)
	}
}

func TestPutAndLookup(t *testing.T) {
	db := testDB(t)
	e := Entry{Module: "app", Path: "a/A.class", Checksum: "abc", ClassName: "a.A"}
	if err := db.Put(e, sampleInstances()); err != nil {
		t.Fatalf("Put: %v", err)
	}
	db.cache.Purge()

	hit, ok, err := db.Lookup("app", "a/A.class", "abc")
	if err != nil || !ok {
		t.Fatalf("Lookup: ok=%v err=%v", ok, err)
	}
	if len(hit.Instances) != 3 {
		t.Fatalf("len = %d, want 3", len(hit.Instances))
	}
	// Decoded instances are grouped by type; within a type the order holds.
	var entities []models.Instance
	for _, in := range hit.Instances {
		if in.Type == "t.Entity" {
			entities = append(entities, in)
		}
	}
	if len(entities) != 2 || entities[0].Target.Kind != models.KindClass || entities[1].Target.Kind != models.KindMethod {
		t.Errorf("entity order = %+v", entities)
	}
	if !db.cache.Contains("abc") {
		t.Error("decoded entry not cached")
	}
}

func TestLookup_CacheNotAliased(t *testing.T) {
	db := testDB(t)
	instances := []models.Instance{{Type: "t.Tags", Target: models.ClassTarget("a.A"), Visible: true,
		Members: []models.Member{{Name: "value", Value: models.ArrayValue(
			models.StringValue("a"),
			models.NestedValue(models.Annotation{Type: "t.Inner",
				Members: []models.Member{{Name: "n", Value: models.IntValue(1)}}}),
		)}}}}
	want := models.CloneInstances(instances)

	if err := db.Put(Entry{Module: "app", Path: "a/A.class", Checksum: "abc", ClassName: "a.A"}, instances); err != nil {
		t.Fatalf("Put: %v", err)
	}
	instances[0].Members[0].Value.Elems[0] = models.StringValue("changed by writer")

	hit, ok, err := db.Lookup("app", "a/A.class", "abc")
	if err != nil || !ok {
		t.Fatalf("Lookup: ok=%v err=%v", ok, err)
	}
	hit.Instances[0].Members[0].Value.Elems[1].Nested.Members[0].Value = models.IntValue(99)

	again, ok, err := db.Lookup("app", "a/A.class", "abc")
	if err != nil || !ok {
		t.Fatalf("Lookup: ok=%v err=%v", ok, err)
	}
	if !again.Instances[0].Equal(want[0]) {
		t.Errorf("cached entry changed: %s", models.FormatMembers(again.Instances[0].Members))
	}
}

func TestLookup_ChecksumMismatch(t *testing.T) {
	db := testDB(t)
	_ = db.Put(Entry{Module: "app", Path: "A.class", Checksum: "old"}, sampleInstances())

	if _, ok, err := db.Lookup("app", "A.class", "new"); ok || err != nil {
		t.Errorf("Lookup: ok=%v err=%v, want miss", ok, err)
	}
	if _, ok, err := db.Lookup("app", "B.class", "old"); ok || err != nil {
		t.Errorf("Lookup unknown: ok=%v err=%v, want miss", ok, err)
	}
}

func TestPutError(t *testing.T) {
	db := testDB(t)
	_ = db.Put(Entry{Module: "app", Path: "Bad.class", Checksum: "v1"}, sampleInstances())
	if err := db.PutError(Entry{Module: "app", Path: "Bad.class", Checksum: "v2", Error: "bad magic"}); err != nil {
		t.Fatalf("PutError: %v", err)
	}

	hit, ok, err := db.Lookup("app", "Bad.class", "v2")
	if err != nil || !ok {
		t.Fatalf("Lookup: ok=%v err=%v", ok, err)
	}
	if hit.Error != "bad magic" || hit.Instances != nil {
		t.Errorf("hit = %+v", hit)
	}

	fails, err := db.Failures()
	if err != nil {
		t.Fatalf("Failures: %v", err)
	}
	if len(fails) != 1 || fails[0].Key() != "/app/Bad.class" {
		t.Errorf("Failures = %+v", fails)
	}
}

func TestEmptyClassRoundTrip(t *testing.T) {
	db := testDB(t)
	if err := db.Put(Entry{Module: "app", Path: "Plain.class", Checksum: "p"}, nil); err != nil {
		t.Fatalf("Put: %v", err)
	}
	db.cache.Purge()
	hit, ok, err := db.Lookup("app", "Plain.class", "p")
	if err != nil || !ok {
		t.Fatalf("Lookup: ok=%v err=%v", ok, err)
	}
	if len(hit.Instances) != 0 {
		t.Errorf("instances = %v", hit.Instances)
	}
}

func TestPrune(t *testing.T) {
	db := testDB(t)
	_ = db.Put(Entry{Module: "app", Path: "Keep.class", Checksum: "1"}, nil)
	_ = db.Put(Entry{Module: "app", Path: "Gone.class", Checksum: "2"}, nil)
	_ = db.Put(Entry{Module: "other", Path: "Elsewhere.class", Checksum: "3"}, nil)

	present := map[string]struct{}{"/app/Keep.class": {}}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	removed, err := Prune(db, present, []string{"app"}, logger)
	if err != nil {
		t.Fatalf("Prune: %v", err)
	}
	if removed != 1 {
		t.Errorf("removed = %d, want 1", removed)
	}
	sums, _ := db.Checksums()
	if _, ok := sums["/app/Gone.class"]; ok {
		t.Error("stale entry survived")
	}
	if _, ok := sums["/other/Elsewhere.class"]; !ok {
		t.Error("entry of unscanned module was pruned")
	}
	if len(sums) != 2 {
		t.Errorf("checksums = %v", sums)
	}
}
