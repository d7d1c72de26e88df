package user

import (
	"context"

	"github.com/google/uuid"

	"github.com/supaquiz/server/internal/achievement"
	"github.com/supaquiz/server/internal/domain"
	"github.com/supaquiz/server/internal/errors"
)

const defaultAvatar = "assets/avatars/avatar1.png"

// Store is the persistence the user service needs. The reconciler owns
// score and achievement writes; this service only creates and reads.
type Store interface {
	Create(ctx context.Context, u *domain.User) error
	Get(ctx context.Context, userID string) (*domain.User, error)
	List(ctx context.Context) ([]domain.User, error)
}

type Config struct {
	Store Store
}

type Service struct {
	store Store
}

func NewService(c Config) *Service {
	return &Service{store: c.Store}
}

type SignupRequest struct {
	Username string
	Avatar   string
}

// Signup registers a new player with a generated user id and zeroed score
// state.
func (s *Service) Signup(ctx context.Context, req SignupRequest) (*domain.User, error) {
	if req.Username == "" {
		return nil, errors.New(errors.CodeInvalidArgument,
			errors.WithMessagef("username is required"))
	}

	avatar := req.Avatar
	if avatar == "" {
		avatar = defaultAvatar
	}

	u := &domain.User{
		UserID:   uuid.NewString(),
		Username: req.Username,
		Avatar:   avatar,
	}

	if err := s.store.Create(ctx, u); err != nil {
		return nil, err
	}

	return u, nil
}

// Profile is a user together with the avatars of their unlocked tiers.
type Profile struct {
	User               domain.User
	AchievementAvatars []string
}

func (s *Service) Get(ctx context.Context, userID string) (*Profile, error) {
	u, err := s.store.Get(ctx, userID)
	if err != nil {
		return nil, err
	}

	return &Profile{
		User:               *u,
		AchievementAvatars: achievement.AvatarsFor(u.Achievements),
	}, nil
}

func (s *Service) List(ctx context.Context) ([]domain.User, error) {
	return s.store.List(ctx)
}
