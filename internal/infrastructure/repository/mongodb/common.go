package mongodb

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/planiversary/planiversary/internal/domain/errs"
)

const (
	// DefaultPaginationLimit is the default page size for list queries.
	DefaultPaginationLimit = 50

	// MaxPaginationLimit caps the page size for list queries.
	MaxPaginationLimit = 100
)

// HandleMongoError maps a MongoDB error to a domain error:
//   - nil if err == nil
//   - errs.ErrNotFound if no document matched
//   - errs.ErrAlreadyExists on a unique constraint violation
//   - a wrapped error otherwise
func HandleMongoError(err error, resourceType string) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, mongo.ErrNoDocuments) {
		return errs.ErrNotFound
	}

	if mongo.IsDuplicateKeyError(err) {
		return errs.ErrAlreadyExists
	}

	return fmt.Errorf("failed to operate on %s: %w", resourceType, err)
}

// FindWithPagination returns find options with pagination and sorting applied.
// sortOrder is 1 for ascending, -1 for descending.
func FindWithPagination(offset, limit int, sortField string, sortOrder int) *options.FindOptionsBuilder {
	return options.Find().
		SetSort(bson.D{{Key: sortField, Value: sortOrder}}).
		SetLimit(int64(limit)).
		SetSkip(int64(offset))
}

// FindWithPaginationDesc is FindWithPagination sorted by created_at descending.
func FindWithPaginationDesc(offset, limit int) *options.FindOptionsBuilder {
	return FindWithPagination(offset, limit, "created_at", -1)
}

// CountFilter counts documents matching the filter.
func CountFilter(ctx context.Context, coll *mongo.Collection, filter bson.M) (int, error) {
	count, err := coll.CountDocuments(ctx, filter)
	if err != nil {
		return 0, err
	}
	return int(count), nil
}

// CountAll counts every document in the collection.
func CountAll(ctx context.Context, coll *mongo.Collection) (int, error) {
	return CountFilter(ctx, coll, bson.M{})
}

// DefaultLimitWithMax clamps limit into (0, maxLimit], substituting
// defaultLimit for non-positive values.
func DefaultLimitWithMax(limit, defaultLimit, maxLimit int) int {
	if limit <= 0 {
		return defaultLimit
	}
	if limit > maxLimit {
		return maxLimit
	}
	return limit
}

// StringPtr returns a pointer to the string, or nil for the empty string.
// Useful for optional document fields.
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// StringValue dereferences the pointer, treating nil as the empty string.
func StringValue(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
