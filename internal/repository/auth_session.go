package repository

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/kestrelid/age-verification-api/internal/model"
)

// AuthSessionRepository defines the interface for auth session database operations.
type AuthSessionRepository interface {
	CreateSession(ctx context.Context, session *model.AuthSession) (*model.AuthSession, error)
	GetSession(ctx context.Context, id string) (*model.AuthSession, error)
	GetSessionByPresExchID(ctx context.Context, presExchID string) (*model.AuthSession, error)

	// UpdateStatus performs a compare-and-swap on the stored status: the update
	// applies only if the stored status is one of from. It returns the updated
	// session, or ErrStatusConflict if the stored status did not match.
	UpdateStatus(ctx context.Context, id string, to model.AuthSessionStatus, from ...model.AuthSessionStatus) (*model.AuthSession, error)

	UpdateMetadata(ctx context.Context, id string, metadata map[string]any) error
	RefreshExpiry(ctx context.Context, id string, expiresAt time.Time) error
	EnsureIndexes(ctx context.Context) error
}

// ErrStatusConflict is returned by UpdateStatus when the stored status no
// longer matches the expected previous status.
var ErrStatusConflict = errors.New("auth session status conflict")

const authSessionCollection = "auth_sessions"

type authSessionMongoRepository struct {
	db *mongo.Database
}

func NewAuthSessionMongoRepository(db *mongo.Database) AuthSessionRepository {
	return &authSessionMongoRepository{db: db}
}

func (r *authSessionMongoRepository) CreateSession(
	ctx context.Context,
	session *model.AuthSession,
) (*model.AuthSession, error) {
	now := time.Now()
	session.CreatedAt = now
	session.UpdatedAt = now

	result, err := r.db.Collection(authSessionCollection).InsertOne(ctx, session)
	if err != nil {
		return nil, err
	}

	if objectID, ok := result.InsertedID.(bson.ObjectID); ok {
		session.ID = objectID
	} else {
		return nil, errors.New("failed to convert inserted ID to ObjectID")
	}

	return session, nil
}

func (r *authSessionMongoRepository) GetSession(ctx context.Context, id string) (*model.AuthSession, error) {
	objectID, err := bson.ObjectIDFromHex(id)
	if err != nil {
		return nil, mongo.ErrNoDocuments
	}

	result := r.db.Collection(authSessionCollection).FindOne(ctx, bson.M{"_id": objectID})
	if result.Err() != nil {
		return nil, result.Err()
	}

	var session model.AuthSession
	if err := result.Decode(&session); err != nil {
		return nil, err
	}

	return &session, nil
}

func (r *authSessionMongoRepository) GetSessionByPresExchID(
	ctx context.Context,
	presExchID string,
) (*model.AuthSession, error) {
	result := r.db.Collection(authSessionCollection).FindOne(ctx, bson.M{"pres_exch_id": presExchID})
	if result.Err() != nil {
		return nil, result.Err()
	}

	var session model.AuthSession
	if err := result.Decode(&session); err != nil {
		return nil, err
	}

	return &session, nil
}

func (r *authSessionMongoRepository) UpdateStatus(
	ctx context.Context,
	id string,
	to model.AuthSessionStatus,
	from ...model.AuthSessionStatus,
) (*model.AuthSession, error) {
	objectID, err := bson.ObjectIDFromHex(id)
	if err != nil {
		return nil, mongo.ErrNoDocuments
	}

	result := r.db.Collection(authSessionCollection).FindOneAndUpdate(
		ctx,
		bson.M{"_id": objectID, "status": bson.M{"$in": from}},
		bson.M{"$set": bson.M{"status": to, "updated_at": time.Now()}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	)
	if result.Err() != nil {
		// The session was read moments ago, so a missing document here means
		// the status filter did not match, not that the session is gone.
		if errors.Is(result.Err(), mongo.ErrNoDocuments) {
			return nil, ErrStatusConflict
		}
		return nil, result.Err()
	}

	var session model.AuthSession
	if err := result.Decode(&session); err != nil {
		return nil, err
	}

	return &session, nil
}

func (r *authSessionMongoRepository) UpdateMetadata(
	ctx context.Context,
	id string,
	metadata map[string]any,
) error {
	objectID, err := bson.ObjectIDFromHex(id)
	if err != nil {
		return mongo.ErrNoDocuments
	}

	result := r.db.Collection(authSessionCollection).FindOneAndUpdate(
		ctx,
		bson.M{"_id": objectID},
		bson.M{"$set": bson.M{"metadata": metadata, "updated_at": time.Now()}},
	)

	return result.Err()
}

func (r *authSessionMongoRepository) RefreshExpiry(ctx context.Context, id string, expiresAt time.Time) error {
	objectID, err := bson.ObjectIDFromHex(id)
	if err != nil {
		return mongo.ErrNoDocuments
	}

	result := r.db.Collection(authSessionCollection).FindOneAndUpdate(
		ctx,
		bson.M{"_id": objectID},
		bson.M{"$set": bson.M{"expires_at": expiresAt, "updated_at": time.Now()}},
	)

	return result.Err()
}

// EnsureIndexes creates the unique index on pres_exch_id. The agent webhook
// carries only that identifier, so the lookup must be unique and indexed.
func (r *authSessionMongoRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.db.Collection(authSessionCollection).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "pres_exch_id", Value: 1}},
		Options: options.Index().SetUnique(true),
	})

	return err
}
