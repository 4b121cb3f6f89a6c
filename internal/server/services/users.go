package services

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/openscholar/platform/internal/server/auth"
	sc "github.com/openscholar/platform/internal/server/config"
	"github.com/openscholar/platform/internal/server/models"
	"github.com/openscholar/platform/internal/server/repositories/repomanager"
)

// UserService manages accounts and bearer tokens. Password verification is
// the identity provider's job; this service only knows who a user is.
type UserService struct {
	db                          *sql.DB
	repomanager                 repomanager.RepositoryManager
	jwtSecret                   []byte
	accessTokenValidityDuration time.Duration
}

func NewUserService(db *sql.DB, m repomanager.RepositoryManager, cfg *sc.Config) *UserService {
	return &UserService{
		db:                          db,
		repomanager:                 m,
		jwtSecret:                   []byte(cfg.SecretKey),
		accessTokenValidityDuration: cfg.AccessTokenValidityDuration,
	}
}

func (s *UserService) Register(ctx context.Context, login, fullName string) (*models.User, error) {
	user := &models.User{
		ID:       uuid.NewString(),
		Login:    login,
		FullName: fullName,
	}

	repo := s.repomanager.Users(s.db)

	user, err := repo.Create(ctx, user)
	if err != nil {
		return nil, fmt.Errorf("error creating user: %w", err)
	}

	return user, nil
}

func (s *UserService) GetByID(ctx context.Context, id string) (*models.User, error) {
	return s.repomanager.Users(s.db).GetByID(ctx, id)
}

func (s *UserService) GetByLogin(ctx context.Context, login string) (*models.User, error) {
	return s.repomanager.Users(s.db).GetByLogin(ctx, login)
}

// IssueToken returns a short-lived bearer token for the user.
func (s *UserService) IssueToken(userID string) (string, error) {
	return auth.GenerateToken(userID, s.jwtSecret, s.accessTokenValidityDuration)
}

// UserFromToken validates a bearer token and loads its user.
func (s *UserService) UserFromToken(ctx context.Context, token string) (*models.User, error) {
	userID, err := auth.GetUserIDFromToken(token, s.jwtSecret)
	if err != nil {
		return nil, err
	}
	return s.GetByID(ctx, userID)
}
