package mongodb

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/planiversary/planiversary/internal/domain/account"
	"github.com/planiversary/planiversary/internal/domain/errs"
	"github.com/planiversary/planiversary/internal/domain/uuid"
)

// MongoAccountRepository persists account aggregates in MongoDB.
type MongoAccountRepository struct {
	collection *mongo.Collection
	logger     *slog.Logger
}

// AccountRepoOption configures MongoAccountRepository.
type AccountRepoOption func(*MongoAccountRepository)

// WithAccountRepoLogger sets the logger for the account repository.
func WithAccountRepoLogger(logger *slog.Logger) AccountRepoOption {
	return func(r *MongoAccountRepository) {
		r.logger = logger
	}
}

// NewMongoAccountRepository creates a new MongoDB account repository.
func NewMongoAccountRepository(collection *mongo.Collection, opts ...AccountRepoOption) *MongoAccountRepository {
	r := &MongoAccountRepository{
		collection: collection,
		logger:     slog.Default(),
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// FindByID finds an account by its identifier.
func (r *MongoAccountRepository) FindByID(ctx context.Context, id uuid.UUID) (*account.Account, error) {
	if id.IsZero() {
		return nil, errs.ErrInvalidInput
	}

	return r.findOne(ctx, bson.M{"account_id": id.String()})
}

// FindByEmail finds an account by email. Emails are stored lowercased, so
// the lookup is case-insensitive.
func (r *MongoAccountRepository) FindByEmail(ctx context.Context, email string) (*account.Account, error) {
	if email == "" {
		return nil, errs.ErrInvalidInput
	}

	return r.findOne(ctx, bson.M{"email": strings.ToLower(email)})
}

// FindByUsername finds an account by username.
func (r *MongoAccountRepository) FindByUsername(ctx context.Context, username string) (*account.Account, error) {
	if username == "" {
		return nil, errs.ErrInvalidInput
	}

	return r.findOne(ctx, bson.M{"username": username})
}

// FindByVerificationToken finds the account holding the given email
// verification token. The stored column is the source of truth; expiry is
// checked by the caller against the aggregate, not by the query.
func (r *MongoAccountRepository) FindByVerificationToken(ctx context.Context, token string) (*account.Account, error) {
	if token == "" {
		return nil, errs.ErrInvalidInput
	}

	return r.findOne(ctx, bson.M{"verification_token": token})
}

// FindByResetToken finds the account holding the given password reset token.
func (r *MongoAccountRepository) FindByResetToken(ctx context.Context, token string) (*account.Account, error) {
	if token == "" {
		return nil, errs.ErrInvalidInput
	}

	return r.findOne(ctx, bson.M{"reset_token": token})
}

func (r *MongoAccountRepository) findOne(ctx context.Context, filter bson.M) (*account.Account, error) {
	var doc accountDocument
	err := r.collection.FindOne(ctx, filter).Decode(&doc)
	if err != nil {
		if !errors.Is(err, mongo.ErrNoDocuments) {
			r.logger.ErrorContext(ctx, "failed to find account",
				slog.String("error", err.Error()),
			)
		}
		return nil, HandleMongoError(err, "account")
	}

	return r.documentToAccount(&doc)
}

// ExistsByEmail checks whether an account with the email exists.
func (r *MongoAccountRepository) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	if email == "" {
		return false, errs.ErrInvalidInput
	}

	return r.exists(ctx, bson.M{"email": strings.ToLower(email)})
}

// ExistsByUsername checks whether an account with the username exists.
func (r *MongoAccountRepository) ExistsByUsername(ctx context.Context, username string) (bool, error) {
	if username == "" {
		return false, errs.ErrInvalidInput
	}

	return r.exists(ctx, bson.M{"username": username})
}

func (r *MongoAccountRepository) exists(ctx context.Context, filter bson.M) (bool, error) {
	count, err := r.collection.CountDocuments(ctx, filter, options.Count().SetLimit(1))
	if err != nil {
		return false, HandleMongoError(err, "account")
	}

	return count > 0, nil
}

// Create inserts a new account. The unique indexes on email and username
// turn a duplicate insert into errs.ErrAlreadyExists.
func (r *MongoAccountRepository) Create(ctx context.Context, acc *account.Account) error {
	if acc == nil || acc.ID().IsZero() {
		return errs.ErrInvalidInput
	}

	_, err := r.collection.InsertOne(ctx, r.accountToDocument(acc))
	if err != nil && !mongo.IsDuplicateKeyError(err) {
		r.logger.ErrorContext(ctx, "failed to create account",
			slog.String("account_id", acc.ID().String()),
			slog.String("error", err.Error()),
		)
	}
	return HandleMongoError(err, "account")
}

// UpdatePassword replaces the password hash and clears any outstanding reset
// token.
func (r *MongoAccountRepository) UpdatePassword(ctx context.Context, id uuid.UUID, passwordHash string) error {
	if passwordHash == "" {
		return errs.ErrInvalidInput
	}

	return r.updateOne(ctx, id, bson.M{
		"$set": bson.M{
			"password_hash": passwordHash,
			"updated_at":    time.Now().UTC(),
		},
		"$unset": bson.M{
			"reset_token":            "",
			"reset_token_expires_at": "",
		},
	})
}

// SetEmailVerification sets the email_verified flag and clears the
// verification token column.
func (r *MongoAccountRepository) SetEmailVerification(ctx context.Context, id uuid.UUID, verified bool) error {
	return r.updateOne(ctx, id, bson.M{
		"$set": bson.M{
			"email_verified": verified,
			"updated_at":     time.Now().UTC(),
		},
		"$unset": bson.M{
			"verification_token":            "",
			"verification_token_expires_at": "",
		},
	})
}

// SetVerificationToken stores a fresh email verification token on the account.
func (r *MongoAccountRepository) SetVerificationToken(
	ctx context.Context,
	id uuid.UUID,
	token string,
	expiresAt time.Time,
) error {
	if token == "" {
		return errs.ErrInvalidInput
	}

	return r.updateOne(ctx, id, bson.M{
		"$set": bson.M{
			"verification_token":            token,
			"verification_token_expires_at": expiresAt,
			"updated_at":                    time.Now().UTC(),
		},
	})
}

// SetResetToken stores a fresh password reset token on the account.
func (r *MongoAccountRepository) SetResetToken(
	ctx context.Context,
	id uuid.UUID,
	token string,
	expiresAt time.Time,
) error {
	if token == "" {
		return errs.ErrInvalidInput
	}

	return r.updateOne(ctx, id, bson.M{
		"$set": bson.M{
			"reset_token":            token,
			"reset_token_expires_at": expiresAt,
			"updated_at":             time.Now().UTC(),
		},
	})
}

// UpdateLastLogin records a successful login.
func (r *MongoAccountRepository) UpdateLastLogin(ctx context.Context, id uuid.UUID, at time.Time) error {
	return r.updateOne(ctx, id, bson.M{
		"$set": bson.M{
			"last_login": at.UTC(),
			"updated_at": time.Now().UTC(),
		},
	})
}

// UpdateAccountStatus transitions the account status. Transition validity is
// the aggregate's responsibility; the repository only persists.
func (r *MongoAccountRepository) UpdateAccountStatus(ctx context.Context, id uuid.UUID, status account.Status) error {
	if !status.IsValid() {
		return errs.ErrInvalidInput
	}

	return r.updateOne(ctx, id, bson.M{
		"$set": bson.M{
			"status":     status.String(),
			"updated_at": time.Now().UTC(),
		},
	})
}

func (r *MongoAccountRepository) updateOne(ctx context.Context, id uuid.UUID, update bson.M) error {
	if id.IsZero() {
		return errs.ErrInvalidInput
	}

	result, err := r.collection.UpdateOne(ctx, bson.M{"account_id": id.String()}, update)
	if err != nil {
		r.logger.ErrorContext(ctx, "failed to update account",
			slog.String("account_id", id.String()),
			slog.String("error", err.Error()),
		)
		return HandleMongoError(err, "account")
	}

	if result.MatchedCount == 0 {
		return errs.ErrNotFound
	}

	return nil
}

// Delete removes the account.
func (r *MongoAccountRepository) Delete(ctx context.Context, id uuid.UUID) error {
	if id.IsZero() {
		return errs.ErrInvalidInput
	}

	result, err := r.collection.DeleteOne(ctx, bson.M{"account_id": id.String()})
	if err != nil {
		r.logger.ErrorContext(ctx, "failed to delete account",
			slog.String("account_id", id.String()),
			slog.String("error", err.Error()),
		)
		return HandleMongoError(err, "account")
	}

	if result.DeletedCount == 0 {
		return errs.ErrNotFound
	}

	return nil
}

// List returns accounts ordered by creation time, newest first.
func (r *MongoAccountRepository) List(ctx context.Context, offset, limit int) ([]*account.Account, error) {
	limit = DefaultLimitWithMax(limit, DefaultPaginationLimit, MaxPaginationLimit)

	cursor, err := r.collection.Find(ctx, bson.M{}, FindWithPaginationDesc(offset, limit))
	if err != nil {
		return nil, HandleMongoError(err, "accounts")
	}
	defer cursor.Close(ctx)

	var accounts []*account.Account
	for cursor.Next(ctx) {
		var doc accountDocument
		if decodeErr := cursor.Decode(&doc); decodeErr != nil {
			return nil, HandleMongoError(decodeErr, "accounts")
		}

		acc, convErr := r.documentToAccount(&doc)
		if convErr != nil {
			return nil, convErr
		}
		accounts = append(accounts, acc)
	}

	if cursorErr := cursor.Err(); cursorErr != nil {
		return nil, HandleMongoError(cursorErr, "accounts")
	}

	return accounts, nil
}

// Count returns the total number of accounts.
func (r *MongoAccountRepository) Count(ctx context.Context) (int, error) {
	count, err := CountAll(ctx, r.collection)
	if err != nil {
		return 0, HandleMongoError(err, "accounts")
	}
	return count, nil
}

// accountDocument is the MongoDB representation of an account.
type accountDocument struct {
	AccountID                  string     `bson:"account_id"`
	Email                      string     `bson:"email"`
	Username                   *string    `bson:"username,omitempty"`
	PasswordHash               string     `bson:"password_hash"`
	FirstName                  *string    `bson:"first_name,omitempty"`
	LastName                   *string    `bson:"last_name,omitempty"`
	EmailVerified              bool       `bson:"email_verified"`
	VerificationToken          *string    `bson:"verification_token,omitempty"`
	VerificationTokenExpiresAt *time.Time `bson:"verification_token_expires_at,omitempty"`
	ResetToken                 *string    `bson:"reset_token,omitempty"`
	ResetTokenExpiresAt        *time.Time `bson:"reset_token_expires_at,omitempty"`
	Status                     string     `bson:"status"`
	LastLogin                  *time.Time `bson:"last_login,omitempty"`
	CreatedAt                  time.Time  `bson:"created_at"`
	UpdatedAt                  time.Time  `bson:"updated_at"`
}

func (r *MongoAccountRepository) accountToDocument(acc *account.Account) accountDocument {
	return accountDocument{
		AccountID:                  acc.ID().String(),
		Email:                      acc.Email(),
		Username:                   StringPtr(acc.Username()),
		PasswordHash:               acc.PasswordHash(),
		FirstName:                  StringPtr(acc.FirstName()),
		LastName:                   StringPtr(acc.LastName()),
		EmailVerified:              acc.EmailVerified(),
		VerificationToken:          StringPtr(acc.VerificationToken()),
		VerificationTokenExpiresAt: acc.VerificationTokenExpiresAt(),
		ResetToken:                 StringPtr(acc.ResetToken()),
		ResetTokenExpiresAt:        acc.ResetTokenExpiresAt(),
		Status:                     acc.Status().String(),
		LastLogin:                  acc.LastLogin(),
		CreatedAt:                  acc.CreatedAt(),
		UpdatedAt:                  acc.UpdatedAt(),
	}
}

func (r *MongoAccountRepository) documentToAccount(doc *accountDocument) (*account.Account, error) {
	if doc == nil {
		return nil, errs.ErrInvalidInput
	}

	id, err := uuid.ParseUUID(doc.AccountID)
	if err != nil {
		return nil, errs.ErrInvalidInput
	}

	status := account.Status(doc.Status)
	if !status.IsValid() {
		return nil, errs.ErrInvalidInput
	}

	return account.Reconstruct(
		id,
		doc.Email,
		StringValue(doc.Username),
		doc.PasswordHash,
		StringValue(doc.FirstName),
		StringValue(doc.LastName),
		doc.EmailVerified,
		StringValue(doc.VerificationToken),
		doc.VerificationTokenExpiresAt,
		StringValue(doc.ResetToken),
		doc.ResetTokenExpiresAt,
		status,
		doc.LastLogin,
		doc.CreatedAt,
		doc.UpdatedAt,
	), nil
}
