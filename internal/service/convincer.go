package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/convinceme/convince-server-go/internal/audit"
	apperrors "github.com/convinceme/convince-server-go/internal/errors"
	"github.com/convinceme/convince-server-go/internal/model"
	"github.com/convinceme/convince-server-go/internal/repository"
	"github.com/convinceme/convince-server-go/internal/util"
)

type ConvincerService struct {
	convincerRepo repository.ConvincerRepository
}

func NewConvincerService(convincerRepo repository.ConvincerRepository) *ConvincerService {
	return &ConvincerService{convincerRepo: convincerRepo}
}

type RegisterResult struct {
	Convincer *model.Convincer `json:"convincer"`
	APIToken  string           `json:"apiToken"`
}

// Register creates a convincer and returns the API token exactly once;
// only its hash is stored.
func (s *ConvincerService) Register(ctx context.Context, name, email string) (*RegisterResult, error) {
	if util.IsBlank(name) {
		return nil, apperrors.MissingRequired("name")
	}
	email = strings.ToLower(strings.TrimSpace(email))
	if !util.IsValidEmail(email) {
		return nil, apperrors.InvalidInput("email", "must be a valid address")
	}

	existing, err := s.convincerRepo.FindByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("find convincer: %w", err)
	}
	if existing != nil {
		return nil, apperrors.AlreadyExists("Convincer")
	}

	token, err := util.GenerateToken()
	if err != nil {
		return nil, fmt.Errorf("generate token: %w", err)
	}

	convincer, err := s.convincerRepo.Create(ctx, model.CreateConvincerParams{
		Name:         strings.TrimSpace(name),
		Email:        email,
		APITokenHash: util.HashToken(token),
	})
	if err != nil {
		return nil, fmt.Errorf("create convincer: %w", err)
	}

	audit.Log(ctx, audit.Event{
		Type:        audit.EventConvincerCreate,
		ConvincerID: convincer.ID,
	})
	log.Info().Str("convincerId", convincer.ID).Msg("convincer registered")

	return &RegisterResult{Convincer: convincer, APIToken: token}, nil
}

func (s *ConvincerService) FindByID(ctx context.Context, id string) (*model.Convincer, error) {
	return s.convincerRepo.FindByID(ctx, id)
}
