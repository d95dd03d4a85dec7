package catalog

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/starford/anndex/internal/codec"
	"github.com/starford/anndex/internal/index"
	"github.com/starford/anndex/internal/models"
)

// Entry is one row of the catalog.
type Entry struct {
	Module    string
	Path      string
	Checksum  string
	ClassName string
	// Error holds the parse failure of a skipped file.
	Error     string
	UpdatedAt time.Time
}

// Key returns "/module/path".
func (e Entry) Key() string {
	return "/" + e.Module + "/" + e.Path
}

// Hit is a catalog entry whose checksum matched.
type Hit struct {
	Instances []models.Instance
	// Error is set when the file failed to parse last time.
	Error     string
}

// Put records the instances derived from a class file.
func (db *DB) Put(e Entry, instances []models.Instance) error {
	blob, err := encode(instances)
	if err != nil {
		return err
	}
	if e.UpdatedAt.IsZero() {
		e.UpdatedAt = time.Now().UTC()
	}
	_, err = db.conn.Exec(`
		INSERT INTO classes (module, path, checksum, class_name, instances, blob, error, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, '', ?)
		ON CONFLICT(module, path) DO UPDATE SET
			checksum   = excluded.checksum,
			class_name = excluded.class_name,
			instances  = excluded.instances,
			blob       = excluded.blob,
			error      = '',
			updated_at = excluded.updated_at
	`, e.Module, e.Path, e.Checksum, e.ClassName, len(instances), blob, e.UpdatedAt)
	if err != nil {
		return fmt.Errorf("catalog: put %s: %w", e.Key(), err)
	}
	db.cache.Add(e.Checksum, models.CloneInstances(instances))
	return nil
}

// PutError records that a class file failed to parse.
func (db *DB) PutError(e Entry) error {
	if e.UpdatedAt.IsZero() {
		e.UpdatedAt = time.Now().UTC()
	}
	_, err := db.conn.Exec(`
		INSERT INTO classes (module, path, checksum, class_name, instances, blob, error, updated_at)
		VALUES (?, ?, ?, '', 0, NULL, ?, ?)
		ON CONFLICT(module, path) DO UPDATE SET
			checksum   = excluded.checksum,
			class_name = '',
			instances  = 0,
			blob       = NULL,
			error      = excluded.error,
			updated_at = excluded.updated_at
	`, e.Module, e.Path, e.Checksum, e.Error, e.UpdatedAt)
	if err != nil {
		return fmt.Errorf("catalog: put error %s: %w", e.Key(), err)
	}
	return nil
}

// Lookup returns the recorded outcome for a file if its stored checksum
// equals sum. ok is false on a miss.
func (db *DB) Lookup(module, path, sum string) (hit Hit, ok bool, err error) {
	var (
		stored string
		blob   []byte
		errMsg string
	)
	err = db.conn.QueryRow(`SELECT checksum, blob, error FROM classes WHERE module = ? AND path = ?`, module, path).
		Scan(&stored, &blob, &errMsg)
	if errors.Is(err, sql.ErrNoRows) {
		return Hit{}, false, nil
	}
	if err != nil {
		return Hit{}, false, fmt.Errorf("catalog: lookup /%s/%s: %w", module, path, err)
	}
	if stored != sum {
		return Hit{}, false, nil
	}
	if errMsg != "" {
		return Hit{Error: errMsg}, true, nil
	}
	if cached, found := db.cache.Get(sum); found {
		return Hit{Instances: models.CloneInstances(cached)}, true, nil
	}
	instances, err := decode(blob)
	if err != nil {
		// An undecodable blob is treated as a miss so the file is parsed again.
		return Hit{}, false, nil
	}
	db.cache.Add(sum, models.CloneInstances(instances))
	return Hit{Instances: instances}, true, nil
}

// Checksums returns the stored checksum of every entry keyed by "/module/path".
func (db *DB) Checksums() (map[string]string, error) {
	rows, err := db.conn.Query(`SELECT module, path, checksum FROM classes`)
	if err != nil {
		return nil, fmt.Errorf("catalog: checksums: %w", err)
	}
	defer rows.Close()
	out := make(map[string]string)
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.Module, &e.Path, &e.Checksum); err != nil {
			return nil, err
		}
		out[e.Key()] = e.Checksum
	}
	return out, rows.Err()
}

// Failures returns the entries whose last scan failed, ordered by key.
func (db *DB) Failures() ([]Entry, error) {
	rows, err := db.conn.Query(`
		SELECT module, path, checksum, error, updated_at
		FROM classes WHERE error != ''
		ORDER BY module, path`)
	if err != nil {
		return nil, fmt.Errorf("catalog: failures: %w", err)
	}
	defer rows.Close()
	var out []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.Module, &e.Path, &e.Checksum, &e.Error, &e.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Delete removes the entry for a file.
func (db *DB) Delete(module, path string) error {
	if _, err := db.conn.Exec(`DELETE FROM classes WHERE module = ? AND path = ?`, module, path); err != nil {
		return fmt.Errorf("catalog: delete /%s/%s: %w", module, path, err)
	}
	return nil
}

// encode stores the instances of one class as a single-class artifact.
func encode(instances []models.Instance) ([]byte, error) {
	b := index.NewBuilder()
	if err := b.AddInstances(instances); err != nil {
		return nil, err
	}
	x, err := b.Complete()
	if err != nil {
		return nil, err
	}
	return codec.Write(x), nil
}

// decode restores instances grouped by type name. The order within each type
// is the order they were put in, which is all the index relies on.
func decode(blob []byte) ([]models.Instance, error) {
	x, err := codec.Read(blob)
	if err != nil {
		return nil, err
	}
	out := make([]models.Instance, 0, x.Len())
	for _, typ := range x.Types() {
		out = append(out, x.Lookup(typ)...)
	}
	return out, nil
}
