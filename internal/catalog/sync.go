package catalog

import (
	"log/slog"
	"strings"
)

// Prune removes entries for files that are no longer part of a scan.
// present is keyed by "/module/path"; modules limits pruning to the modules
// that were scanned.
func Prune(db *DB, present map[string]struct{}, modules []string, logger *slog.Logger) (int, error) {
	checksums, err := db.Checksums()
	if err != nil {
		return 0, err
	}
	scanned := make(map[string]struct{}, len(modules))
	for _, m := range modules {
		scanned[m] = struct{}{}
	}

	removed := 0
	for key := range checksums {
		if _, ok := present[key]; ok {
			continue
		}
		module, path, _ := strings.Cut(strings.TrimPrefix(key, "/"), "/")
		if _, ok := scanned[module]; !ok {
			continue
		}
		if err := db.Delete(module, path); err != nil {
			logger.Warn("catalog: delete failed", slog.String("path", key), slog.String("error", err.Error()))
			continue
		}
		removed++
		logger.Debug("catalog: removed stale", slog.String("path", key))
	}
	return removed, nil
}
