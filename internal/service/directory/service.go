package directory

import (
	"context"
	"time"

	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"

	"github.com/clinicore/clinic-api/internal/model"
	"github.com/clinicore/clinic-api/internal/repository"
)

// Service fronts the external directory with a short-lived read cache.
// Doctor configuration (consultation duration, fee) changes rarely but
// is read on every booking.
type Service struct {
	repo  repository.DirectoryRepository
	cache *gocache.Cache
}

func NewService(repo repository.DirectoryRepository, ttl time.Duration) *Service {
	return &Service{
		repo:  repo,
		cache: gocache.New(ttl, 2*ttl),
	}
}

func (s *Service) GetDoctor(ctx context.Context, id uuid.UUID) (*model.Doctor, error) {
	key := "doctor:" + id.String()
	if cached, ok := s.cache.Get(key); ok {
		return cached.(*model.Doctor), nil
	}

	doctor, err := s.repo.GetDoctor(ctx, id)
	if err != nil {
		return nil, err
	}
	s.cache.SetDefault(key, doctor)
	return doctor, nil
}

func (s *Service) GetPatient(ctx context.Context, id uuid.UUID) (*model.Patient, error) {
	key := "patient:" + id.String()
	if cached, ok := s.cache.Get(key); ok {
		return cached.(*model.Patient), nil
	}

	patient, err := s.repo.GetPatient(ctx, id)
	if err != nil {
		return nil, err
	}
	s.cache.SetDefault(key, patient)
	return patient, nil
}
