// Package catalog is the client side of the remote content store that owns
// vendor and studio records. The marketplace forwards administrative CRUD
// to it after authorization; no access decisions are made here.
package catalog

import (
	"context"
	"errors"
	"time"
)

// Vendor is a marketplace vendor record as stored by the content store.
type Vendor struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	Category    string            `json:"category,omitempty"`
	Email       string            `json:"email,omitempty"`
	Phone       string            `json:"phone,omitempty"`
	Website     string            `json:"website,omitempty"`
	Description string            `json:"description,omitempty"`
	Tags        map[string]string `json:"tags,omitempty"`
	UpdatedAt   time.Time         `json:"updatedAt,omitempty"`
}

// Studio is a photography/staging studio record.
type Studio struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Email       string    `json:"email,omitempty"`
	Phone       string    `json:"phone,omitempty"`
	Address     string    `json:"address,omitempty"`
	Description string    `json:"description,omitempty"`
	UpdatedAt   time.Time `json:"updatedAt,omitempty"`
}

// ErrNotFound is returned when the content store has no record for the ID.
var ErrNotFound = errors.New("record not found")

// ContentStore is the remote record store's contract.
type ContentStore interface {
	ListVendors(ctx context.Context) ([]Vendor, error)
	GetVendor(ctx context.Context, id string) (*Vendor, error)
	SaveVendor(ctx context.Context, v *Vendor) (*Vendor, error)
	DeleteVendor(ctx context.Context, id string) error

	ListStudios(ctx context.Context) ([]Studio, error)
	GetStudio(ctx context.Context, id string) (*Studio, error)
	SaveStudio(ctx context.Context, s *Studio) (*Studio, error)
	DeleteStudio(ctx context.Context, id string) error
}
