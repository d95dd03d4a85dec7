package api

import "github.com/starford/anndex/internal/lookup"

// InstanceView is one annotation instance (aliased from the domain layer).
type InstanceView = lookup.InstanceView

// TypeListResponse wraps the annotation type listing.
type TypeListResponse struct {
	Types []lookup.TypeCount `json:"types" validate:"required"`
	Total int                `json:"total" example:"42" validate:"required"`
}

// LookupResponse wraps the instances of one annotation type.
type LookupResponse struct {
	Type      string         `json:"type" example:"javax.persistence.Entity" validate:"required"`
	Count     int            `json:"count" example:"3" validate:"required"`
	Instances []InstanceView `json:"instances" validate:"required"`
}
