package service_test

import (
	"context"
	"errors"
	"testing"

	"github.com/golang/mock/gomock"

	"hyperlocal/internal/domain"
	"hyperlocal/internal/service"
	mock_service "hyperlocal/internal/service/mocks"
)

func TestStatsService_GetStats_OK(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	repo := mock_service.NewMockIncidentRepository(ctrl)
	sessions := mock_service.NewMockSessionCounter(ctrl)

	repo.EXPECT().
		CountActiveByType(gomock.Any()).
		Return(map[domain.IncidentType]int64{domain.IncidentAccident: 2, domain.IncidentOther: 3}, nil).
		Times(1)
	sessions.EXPECT().Sessions().Return(7).Times(1)

	svc := service.NewService(nil, service.NewStatsService(repo, sessions))

	got, err := svc.GetStats(context.Background())
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if got.ActiveIncidents != 5 {
		t.Fatalf("active=%d want 5", got.ActiveIncidents)
	}
	if got.OnlineSessions != 7 {
		t.Fatalf("sessions=%d want 7", got.OnlineSessions)
	}
}

func TestStatsService_GetStats_RepoError(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	repo := mock_service.NewMockIncidentRepository(ctrl)
	repo.EXPECT().CountActiveByType(gomock.Any()).Return(nil, errors.New("boom")).Times(1)

	svc := service.NewStatsService(repo, nil)

	if _, err := svc.GetStats(context.Background()); err == nil {
		t.Fatalf("expected error, got nil")
	}
}
