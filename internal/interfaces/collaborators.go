package interfaces

import (
	"context"

	"github.com/shopspring/decimal"
)

// Course is the catalog snapshot captured at initiation time.
type Course struct {
	ID       string          `json:"id"`
	Title    string          `json:"title"`
	Price    decimal.Decimal `json:"price"`
	Currency string          `json:"currency"`
}

// CatalogLookup is the read-only course catalog collaborator.
type CatalogLookup interface {
	GetCourse(ctx context.Context, courseID string) (*Course, error)
}

// EntitlementStore records which users may access which courses. Grant must
// be idempotent: granting an already-granted pair succeeds without effect.
type EntitlementStore interface {
	Grant(ctx context.Context, userID, courseID string) error
	HasAccess(ctx context.Context, userID, courseID string) (bool, error)
}
