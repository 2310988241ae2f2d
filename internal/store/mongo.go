package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/semihsipahi/climblearn-api/internal/domain"
)

const (
	defaultMongoDatabase  = "climblearn"
	sessionsCollection    = "learning_sessions"
	interactionCollection = "interaction_logs"
	mongoOpTimeout        = 5 * time.Second
)

// MongoStore implements Repository on MongoDB.
type MongoStore struct {
	client     *mongo.Client
	sessions   *mongo.Collection
	logs       *mongo.Collection
	ownsClient bool
}

var _ Repository = (*MongoStore)(nil)

// NewMongo connects to uri and returns a store that owns the client.
// dbName defaults to "climblearn" if empty.
func NewMongo(ctx context.Context, uri, dbName string) (*MongoStore, error) {
	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(connectCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	s := NewMongoWithClient(client, dbName)
	s.ownsClient = true
	if err := s.ensureIndexes(connectCtx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	return s, nil
}

// NewMongoWithClient builds a store on an existing client. The caller keeps ownership of client.
func NewMongoWithClient(client *mongo.Client, dbName string) *MongoStore {
	if dbName == "" {
		dbName = defaultMongoDatabase
	}
	db := client.Database(dbName)
	return &MongoStore{
		client:   client,
		sessions: db.Collection(sessionsCollection),
		logs:     db.Collection(interactionCollection),
	}
}

func (s *MongoStore) ensureIndexes(ctx context.Context) error {
	_, err := s.logs.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "session_id", Value: 1}, {Key: "created_at", Value: 1}},
	})
	if err != nil {
		return fmt.Errorf("create interaction log index: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *MongoStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}

// Close disconnects the client if this store created it.
func (s *MongoStore) Close() error {
	if !s.ownsClient {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), mongoOpTimeout)
	defer cancel()
	if err := s.client.Disconnect(ctx); err != nil {
		return fmt.Errorf("disconnect mongo: %w", err)
	}
	return nil
}

// CreateSession inserts a new session document.
func (s *MongoStore) CreateSession(ctx context.Context, session *domain.LearningSession) error {
	ctx, cancel := context.WithTimeout(ctx, mongoOpTimeout)
	defer cancel()

	doc := session.Clone()
	doc.Version = 1
	if _, err := s.sessions.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	session.Version = 1
	return nil
}

// GetSession loads a session document by id.
func (s *MongoStore) GetSession(ctx context.Context, id string) (*domain.LearningSession, error) {
	ctx, cancel := context.WithTimeout(ctx, mongoOpTimeout)
	defer cancel()

	var session domain.LearningSession
	err := s.sessions.FindOne(ctx, bson.M{"_id": id}).Decode(&session)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get session: %w", err)
	}
	if session.SubTopics == nil {
		session.SubTopics = []string{}
	}
	if session.Metadata.Scores == nil {
		session.Metadata.Scores = []int{}
	}
	session.CreatedAt = session.CreatedAt.UTC()
	session.UpdatedAt = session.UpdatedAt.UTC()
	return &session, nil
}

// SaveSession replaces the mutable fields of a session guarded by its version.
func (s *MongoStore) SaveSession(ctx context.Context, session *domain.LearningSession) error {
	ctx, cancel := context.WithTimeout(ctx, mongoOpTimeout)
	defer cancel()

	now := time.Now().UTC()
	snapshot := session.Clone()
	update := bson.M{
		"$set": bson.M{
			"external_student_id":     snapshot.ExternalStudentID,
			"student_name":            snapshot.StudentName,
			"topic_name":              snapshot.TopicName,
			"current_stage":           string(snapshot.CurrentStage),
			"sub_topics":              snapshot.SubTopics,
			"current_sub_topic_index": snapshot.CurrentSubTopicIndex,
			"status":                  string(snapshot.Status),
			"metadata":                snapshot.Metadata,
			"updated_at":              now,
		},
		"$inc": bson.M{"version": 1},
	}

	res, err := s.sessions.UpdateOne(ctx, bson.M{"_id": session.ID, "version": session.Version}, update)
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	if res.MatchedCount == 0 {
		n, countErr := s.sessions.CountDocuments(ctx, bson.M{"_id": session.ID})
		if countErr != nil {
			return fmt.Errorf("check session existence: %w", countErr)
		}
		if n == 0 {
			return ErrNotFound
		}
		return ErrVersionConflict
	}

	session.Version++
	session.UpdatedAt = now
	return nil
}

// InsertLog appends an interaction log document.
func (s *MongoStore) InsertLog(ctx context.Context, entry *domain.InteractionLog) error {
	ctx, cancel := context.WithTimeout(ctx, mongoOpTimeout)
	defer cancel()

	if _, err := s.logs.InsertOne(ctx, entry); err != nil {
		return fmt.Errorf("insert interaction log: %w", err)
	}
	return nil
}

// ListLogs returns a session's log documents ordered by creation time ascending.
// Log ids are time-ordered, so they break ties between entries created in the same millisecond.
func (s *MongoStore) ListLogs(ctx context.Context, sessionID string) ([]domain.InteractionLog, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}})
	cur, err := s.logs.Find(ctx, bson.M{"session_id": sessionID}, opts)
	if err != nil {
		return nil, fmt.Errorf("query interaction logs: %w", err)
	}
	defer cur.Close(ctx)

	logs := []domain.InteractionLog{}
	for cur.Next(ctx) {
		var entry domain.InteractionLog
		if err := cur.Decode(&entry); err != nil {
			return nil, fmt.Errorf("decode interaction log: %w", err)
		}
		entry.CreatedAt = entry.CreatedAt.UTC()
		logs = append(logs, entry)
	}
	if err := cur.Err(); err != nil {
		return nil, fmt.Errorf("iterate interaction logs: %w", err)
	}
	return logs, nil
}
