package models

import (
	"strings"
	"time"
)

// Resource is one entry of an image tree: a file addressed by its module
// and its slash-separated path inside that module.
type Resource struct {
	Module    string    `json:"module"`
	Path      string    `json:"path"`
	Checksum  string    `json:"checksum"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsClass reports whether the resource is a compiled class file.
func (r Resource) IsClass() bool {
	return strings.HasSuffix(r.Path, ".class")
}

// Key returns "/module/path", the absolute resource name used in images.
func (r Resource) Key() string {
	return "/" + r.Module + "/" + r.Path
}
