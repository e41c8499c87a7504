//go:build integration

package mongo

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"hyperlocal/internal/domain"
	"hyperlocal/pkg/e"
)

var (
	testClient *mongo.Client
	tc         testcontainers.Container
)

func TestMain(m *testing.M) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "mongo:7",
		ExposedPorts: []string{"27017/tcp"},
		WaitingFor:   wait.ForListeningPort("27017/tcp").WithStartupTimeout(90 * time.Second),
	}

	var err error
	tc, err = testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		fmt.Println("cannot start container:", err)
		os.Exit(1)
	}

	host, _ := tc.Host(ctx)
	mappedPort, _ := tc.MappedPort(ctx, "27017/tcp")

	testClient, err = mongo.Connect(ctx, options.Client().ApplyURI(fmt.Sprintf("mongodb://%s:%s", host, mappedPort.Port())))
	if err != nil {
		fmt.Println("mongo.Connect:", err)
		_ = tc.Terminate(ctx)
		os.Exit(1)
	}

	code := m.Run()

	_ = testClient.Disconnect(ctx)
	_ = tc.Terminate(ctx)
	os.Exit(code)
}

func newStore(t *testing.T) *Store {
	t.Helper()
	s := NewStoreWithClient(testClient, "incident_test", "incidents", domain.DefaultIncidentTTL,
		slog.New(slog.NewTextHandler(io.Discard, nil)))
	if _, err := s.coll.DeleteMany(context.Background(), bson.M{}); err != nil {
		t.Fatalf("clean collection: %v", err)
	}
	if err := s.EnsureIndexes(context.Background()); err != nil {
		t.Fatalf("EnsureIndexes: %v", err)
	}
	return s
}

func newIncident(lat, lng float64, reportedAt time.Time) *domain.Incident {
	return &domain.Incident{
		Location:     domain.NewGeoPoint(lat, lng),
		IncidentType: domain.IncidentWaterlogging,
		Description:  "flooded underpass",
		Timestamp:    reportedAt,
		IsActive:     true,
	}
}

func TestStore_CreateAndGet(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	inc := newIncident(19.076, 72.8777, time.Time{})
	inc.Weather = &domain.Weather{Temperature: 29, Condition: "rain", Humidity: 90}
	if err := s.Create(ctx, inc); err != nil {
		t.Fatalf("Create: %v", err)
	}

	got, err := s.Get(ctx, inc.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Address != domain.UnknownAddress {
		t.Fatalf("expected default address, got %q", got.Address)
	}
	if got.Location.Lat() != 19.076 || got.Location.Lng() != 72.8777 {
		t.Fatalf("location mismatch: %+v", got.Location)
	}
	if got.Weather == nil || got.Weather.Condition != "rain" {
		t.Fatalf("weather mismatch: %+v", got.Weather)
	}
}

func TestStore_DuplicateID(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	inc := newIncident(1, 1, time.Time{})
	if err := s.Create(ctx, inc); err != nil {
		t.Fatalf("Create: %v", err)
	}
	dup := *inc
	if err := s.Create(ctx, &dup); !errors.Is(err, e.ErrUniqueViolation) {
		t.Fatalf("expected ErrUniqueViolation, got %v", err)
	}
}

func TestStore_IncrementConfirmations_Concurrent(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	inc := newIncident(1, 1, time.Time{})
	if err := s.Create(ctx, inc); err != nil {
		t.Fatalf("Create: %v", err)
	}

	const n = 40
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.IncrementConfirmations(ctx, inc.ID); err != nil {
				t.Errorf("IncrementConfirmations: %v", err)
			}
		}()
	}
	wg.Wait()

	got, err := s.Get(ctx, inc.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Confirmations != n {
		t.Fatalf("expected %d, got %d", n, got.Confirmations)
	}

	if _, err := s.IncrementConfirmations(ctx, uuid.New()); !errors.Is(err, e.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestStore_Deactivate(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	inc := newIncident(1, 1, time.Time{})
	if err := s.Create(ctx, inc); err != nil {
		t.Fatalf("Create: %v", err)
	}

	if changed, err := s.Deactivate(ctx, inc.ID); err != nil || !changed {
		t.Fatalf("first Deactivate: changed=%v err=%v", changed, err)
	}
	if changed, err := s.Deactivate(ctx, inc.ID); err != nil || changed {
		t.Fatalf("second Deactivate: changed=%v err=%v", changed, err)
	}
	if _, err := s.Deactivate(ctx, uuid.New()); !errors.Is(err, e.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestStore_FindNearby(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	near := newIncident(28.6140, 77.2090, now)
	mid := newIncident(28.6500, 77.2090, now)
	far := newIncident(29.6000, 77.2090, now)
	inactive := newIncident(28.6139, 77.2091, now)
	inactive.IsActive = false
	for _, inc := range []*domain.Incident{far, mid, near, inactive} {
		if err := s.Create(ctx, inc); err != nil {
			t.Fatalf("Create: %v", err)
		}
	}

	got, err := s.FindNearby(ctx, domain.NearbyQuery{Lat: 28.6139, Lng: 77.2090, RadiusMeters: 10000})
	if err != nil {
		t.Fatalf("FindNearby: %v", err)
	}
	if len(got) != 2 || got[0].ID != near.ID || got[1].ID != mid.ID {
		t.Fatalf("unexpected result: %+v", got)
	}
}

func TestStore_ListRecentCountsAndExpiry(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	old := newIncident(1, 1, now.Add(-30*time.Hour))
	newer := newIncident(1, 1, now.Add(-time.Minute))
	newer.IncidentType = domain.IncidentPowerOutage
	for _, inc := range []*domain.Incident{old, newer} {
		if err := s.Create(ctx, inc); err != nil {
			t.Fatalf("Create: %v", err)
		}
	}

	recent, err := s.ListRecent(ctx, 10)
	if err != nil {
		t.Fatalf("ListRecent: %v", err)
	}
	if len(recent) != 2 || recent[0].ID != newer.ID {
		t.Fatalf("expected newest first: %+v", recent)
	}

	counts, err := s.CountActiveByType(ctx)
	if err != nil {
		t.Fatalf("CountActiveByType: %v", err)
	}
	if counts[domain.IncidentPowerOutage] != 1 || counts[domain.IncidentWaterlogging] != 1 {
		t.Fatalf("unexpected counts: %v", counts)
	}

	n, err := s.DeleteExpired(ctx, now.Add(-domain.DefaultIncidentTTL))
	if err != nil {
		t.Fatalf("DeleteExpired: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 deleted, got %d", n)
	}
}
