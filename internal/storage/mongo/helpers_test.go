//go:build integration

package mongo

import (
	"context"

	"hyperlocal/internal/domain"
	"hyperlocal/pkg/e"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
)

func (s *Store) Get(ctx context.Context, id uuid.UUID) (*domain.Incident, error) {
	const op = "mongo.Incident.Get"

	var doc incidentDoc
	if err := s.coll.FindOne(ctx, bson.M{"_id": id.String()}).Decode(&doc); err != nil {
		return nil, e.WrapError(ctx, op, err)
	}
	inc, err := doc.toDomain()
	if err != nil {
		return nil, e.WrapError(ctx, op, err)
	}
	return &inc, nil
}
