// Package mongodb provides MongoDB infrastructure components including index management.
package mongodb

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// Collection names as constants for consistency.
const (
	CollectionAccounts = "accounts"
)

// IndexDefinition describes a MongoDB index to be created.
type IndexDefinition struct {
	Collection string
	Keys       bson.D
	Options    *options.IndexOptionsBuilder
}

// CreateAllIndexes creates all necessary indexes for the application.
// This function is idempotent - calling it multiple times is safe.
func CreateAllIndexes(ctx context.Context, db *mongo.Database) error {
	indexes := GetAllIndexDefinitions()

	for _, idx := range indexes {
		coll := db.Collection(idx.Collection)
		model := mongo.IndexModel{
			Keys:    idx.Keys,
			Options: idx.Options,
		}

		_, err := coll.Indexes().CreateOne(ctx, model)
		if err != nil {
			return fmt.Errorf("failed to create index on collection %s: %w", idx.Collection, err)
		}
	}

	return nil
}

// GetAllIndexDefinitions returns all index definitions for all collections.
func GetAllIndexDefinitions() []IndexDefinition {
	return GetAccountIndexes()
}

// GetAccountIndexes returns index definitions for the accounts collection.
func GetAccountIndexes() []IndexDefinition {
	return []IndexDefinition{
		{
			// Primary key - unique account ID
			Collection: CollectionAccounts,
			Keys:       bson.D{{Key: "account_id", Value: 1}},
			Options:    options.Index().SetUnique(true).SetName("idx_accounts_id_unique"),
		},
		{
			// Emails are stored lowercased; uniqueness is case-insensitive.
			Collection: CollectionAccounts,
			Keys:       bson.D{{Key: "email", Value: 1}},
			Options:    options.Index().SetUnique(true).SetName("idx_accounts_email_unique"),
		},
		{
			// Username is optional, so the unique index is sparse.
			Collection: CollectionAccounts,
			Keys:       bson.D{{Key: "username", Value: 1}},
			Options:    options.Index().SetUnique(true).SetSparse(true).SetName("idx_accounts_username_unique"),
		},
		{
			// Verification and reset tokens are looked up directly.
			Collection: CollectionAccounts,
			Keys:       bson.D{{Key: "verification_token", Value: 1}},
			Options:    options.Index().SetSparse(true).SetName("idx_accounts_verification_token"),
		},
		{
			Collection: CollectionAccounts,
			Keys:       bson.D{{Key: "reset_token", Value: 1}},
			Options:    options.Index().SetSparse(true).SetName("idx_accounts_reset_token"),
		},
		{
			Collection: CollectionAccounts,
			Keys:       bson.D{{Key: "status", Value: 1}, {Key: "created_at", Value: -1}},
			Options:    options.Index().SetName("idx_accounts_status_created"),
		},
	}
}
