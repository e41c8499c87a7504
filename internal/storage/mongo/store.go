package mongo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"hyperlocal/internal/config"
	"hyperlocal/internal/domain"
	"hyperlocal/pkg/e"

	"github.com/Songmu/retry"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type incidentDoc struct {
	ID            string          `bson:"_id"`
	Location      geoJSONPoint    `bson:"location"`
	IncidentType  string          `bson:"incidentType"`
	Description   string          `bson:"description"`
	Address       string          `bson:"address"`
	Weather       *domain.Weather `bson:"weather,omitempty"`
	Confirmations int64           `bson:"confirmations"`
	Timestamp     time.Time       `bson:"timestamp"`
	UpdatedAt     time.Time       `bson:"updatedAt"`
	IsActive      bool            `bson:"isActive"`
}

type geoJSONPoint struct {
	Type        string     `bson:"type"`
	Coordinates [2]float64 `bson:"coordinates"`
}

func toDoc(inc *domain.Incident) incidentDoc {
	return incidentDoc{
		ID:            inc.ID.String(),
		Location:      geoJSONPoint{Type: "Point", Coordinates: inc.Location.Coordinates},
		IncidentType:  string(inc.IncidentType),
		Description:   inc.Description,
		Address:       inc.Address,
		Weather:       inc.Weather,
		Confirmations: inc.Confirmations,
		Timestamp:     inc.Timestamp,
		UpdatedAt:     inc.UpdatedAt,
		IsActive:      inc.IsActive,
	}
}

func (d incidentDoc) toDomain() (domain.Incident, error) {
	id, err := uuid.Parse(d.ID)
	if err != nil {
		return domain.Incident{}, err
	}
	return domain.Incident{
		ID:            id,
		Location:      domain.NewGeoPoint(d.Location.Coordinates[1], d.Location.Coordinates[0]),
		IncidentType:  domain.IncidentType(d.IncidentType),
		Description:   d.Description,
		Address:       d.Address,
		Weather:       d.Weather,
		Confirmations: d.Confirmations,
		Timestamp:     d.Timestamp.UTC(),
		UpdatedAt:     d.UpdatedAt.UTC(),
		IsActive:      d.IsActive,
	}, nil
}

// Store keeps incidents in a MongoDB collection with a 2dsphere index on
// location and a TTL index on timestamp.
type Store struct {
	client *mongo.Client
	coll   *mongo.Collection
	logger *slog.Logger
	ttl    time.Duration
	now    func() time.Time
}

func NewStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Store, error) {
	logger.Info("Connecting to MongoDB", slog.String("database", cfg.Mongo.Database))

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.Mongo.URI))
	if err != nil {
		logger.Error("Failed to create mongo client", slog.String("error", err.Error()))
		return nil, e.Wrap("storage.mongo.NewStore.Connect", err)
	}

	err = retry.Retry(5, 2*time.Second, func() error {
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := client.Ping(pingCtx, nil); err != nil {
			logger.Warn("MongoDB ping failed, retrying", slog.String("error", err.Error()))
			return err
		}
		return nil
	})
	if err != nil {
		_ = client.Disconnect(context.Background())
		return nil, e.Wrap("storage.mongo.NewStore.Ping", err)
	}

	s := NewStoreWithClient(client, cfg.Mongo.Database, cfg.Mongo.Collection, cfg.Expiry.TTL, logger)
	if err := s.EnsureIndexes(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, e.Wrap("storage.mongo.NewStore.EnsureIndexes", err)
	}

	logger.Info("Connected to MongoDB successfully")
	return s, nil
}

func NewStoreWithClient(client *mongo.Client, database, collection string, ttl time.Duration, logger *slog.Logger) *Store {
	if ttl <= 0 {
		ttl = domain.DefaultIncidentTTL
	}
	return &Store{
		client: client,
		coll:   client.Database(database).Collection(collection),
		logger: logger,
		ttl:    ttl,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (s *Store) EnsureIndexes(ctx context.Context) error {
	_, err := s.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "location", Value: "2dsphere"}}},
		{
			Keys:    bson.D{{Key: "timestamp", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(int32(s.ttl.Seconds())),
		},
		{Keys: bson.D{{Key: "isActive", Value: 1}, {Key: "timestamp", Value: -1}}},
	})
	return err
}

func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

func (s *Store) Create(ctx context.Context, incident *domain.Incident) error {
	const op = "mongo.Incident.Create"

	if incident == nil || !incident.Location.Valid() {
		return fmt.Errorf("%s: %w", op, e.ErrInvalidInput)
	}
	if incident.ID == uuid.Nil {
		incident.ID = uuid.New()
	}
	if incident.Timestamp.IsZero() {
		incident.Timestamp = s.now()
	}
	if incident.UpdatedAt.IsZero() {
		incident.UpdatedAt = incident.Timestamp
	}
	if incident.Address == "" {
		incident.Address = domain.UnknownAddress
	}

	if _, err := s.coll.InsertOne(ctx, toDoc(incident)); err != nil {
		s.logger.Error("failed to insert incident", slog.String("op", op), slog.Any("error", err))
		return e.WrapError(ctx, op, err)
	}
	return nil
}

func (s *Store) IncrementConfirmations(ctx context.Context, id uuid.UUID) (*domain.Incident, error) {
	const op = "mongo.Incident.IncrementConfirmations"

	update := bson.M{
		"$inc": bson.M{"confirmations": 1},
		"$set": bson.M{"updatedAt": s.now()},
	}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var doc incidentDoc
	err := s.coll.FindOneAndUpdate(ctx, bson.M{"_id": id.String()}, update, opts).Decode(&doc)
	if err != nil {
		if !errors.Is(err, mongo.ErrNoDocuments) {
			s.logger.Error("failed to increment confirmations", slog.String("op", op), slog.Any("error", err))
		}
		return nil, e.WrapError(ctx, op, err)
	}
	inc, err := doc.toDomain()
	if err != nil {
		return nil, e.WrapError(ctx, op, err)
	}
	return &inc, nil
}

func (s *Store) Deactivate(ctx context.Context, id uuid.UUID) (bool, error) {
	const op = "mongo.Incident.Deactivate"

	res, err := s.coll.UpdateOne(ctx,
		bson.M{"_id": id.String(), "isActive": true},
		bson.M{"$set": bson.M{"isActive": false, "updatedAt": s.now()}},
	)
	if err != nil {
		s.logger.Error("failed to deactivate incident", slog.String("op", op), slog.Any("error", err))
		return false, e.WrapError(ctx, op, err)
	}
	if res.ModifiedCount > 0 {
		return true, nil
	}

	n, err := s.coll.CountDocuments(ctx, bson.M{"_id": id.String()})
	if err != nil {
		return false, e.WrapError(ctx, op, err)
	}
	if n == 0 {
		return false, fmt.Errorf("%s: %w", op, e.ErrNotFound)
	}
	return false, nil
}

// FindNearby relies on $nearSphere, which returns documents sorted nearest first.
func (s *Store) FindNearby(ctx context.Context, q domain.NearbyQuery) ([]domain.Incident, error) {
	const op = "mongo.Incident.FindNearby"

	if q.Lat < -90 || q.Lat > 90 || q.Lng < -180 || q.Lng > 180 || q.RadiusMeters <= 0 {
		return nil, fmt.Errorf("%s: %w", op, e.ErrInvalidInput)
	}

	filter := bson.M{
		"isActive": true,
		"location": bson.M{
			"$nearSphere": bson.M{
				"$geometry": bson.M{
					"type":        "Point",
					"coordinates": bson.A{q.Lng, q.Lat},
				},
				"$maxDistance": q.RadiusMeters,
			},
		},
	}
	opts := options.Find().SetLimit(int64(limitOrDefault(q.Limit)))

	return s.find(ctx, op, filter, opts)
}

func (s *Store) ListRecent(ctx context.Context, limit int) ([]domain.Incident, error) {
	const op = "mongo.Incident.ListRecent"

	opts := options.Find().
		SetSort(bson.D{{Key: "timestamp", Value: -1}}).
		SetLimit(int64(limitOrDefault(limit)))

	return s.find(ctx, op, bson.M{"isActive": true}, opts)
}

func (s *Store) CountActiveByType(ctx context.Context) (map[domain.IncidentType]int64, error) {
	const op = "mongo.Incident.CountActiveByType"

	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"isActive": true}}},
		{{Key: "$group", Value: bson.M{"_id": "$incidentType", "count": bson.M{"$sum": 1}}}},
	}
	cur, err := s.coll.Aggregate(ctx, pipeline)
	if err != nil {
		s.logger.Error("aggregate failed", slog.String("op", op), slog.Any("error", err))
		return nil, e.WrapError(ctx, op, err)
	}
	defer cur.Close(ctx)

	var rows []struct {
		Type  string `bson:"_id"`
		Count int64  `bson:"count"`
	}
	if err := cur.All(ctx, &rows); err != nil {
		return nil, e.WrapError(ctx, op, err)
	}

	out := make(map[domain.IncidentType]int64, len(rows))
	for _, r := range rows {
		out[domain.IncidentType(r.Type)] = r.Count
	}
	return out, nil
}

func (s *Store) DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	const op = "mongo.Incident.DeleteExpired"

	res, err := s.coll.DeleteMany(ctx, bson.M{"timestamp": bson.M{"$lte": cutoff}})
	if err != nil {
		s.logger.Error("failed to delete expired incidents", slog.String("op", op), slog.Any("error", err))
		return 0, e.WrapError(ctx, op, err)
	}
	return res.DeletedCount, nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}

func (s *Store) find(ctx context.Context, op string, filter any, opts *options.FindOptions) ([]domain.Incident, error) {
	cur, err := s.coll.Find(ctx, filter, opts)
	if err != nil {
		s.logger.Error("find failed", slog.String("op", op), slog.Any("error", err))
		return nil, e.WrapError(ctx, op, err)
	}
	defer cur.Close(ctx)

	var docs []incidentDoc
	if err := cur.All(ctx, &docs); err != nil {
		s.logger.Error("cursor decode failed", slog.String("op", op), slog.Any("error", err))
		return nil, e.WrapError(ctx, op, err)
	}

	out := make([]domain.Incident, 0, len(docs))
	for _, d := range docs {
		inc, err := d.toDomain()
		if err != nil {
			return nil, e.WrapError(ctx, op, err)
		}
		out = append(out, inc)
	}
	return out, nil
}

func limitOrDefault(limit int) int {
	if limit <= 0 || limit > domain.MaxQueryResults {
		return domain.MaxQueryResults
	}
	return limit
}
