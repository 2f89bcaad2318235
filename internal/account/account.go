// Package account creates users with their profiles and checks
// passwords. Profiles are created eagerly for admin-made accounts and on
// first sign-in for self-service citizens.
package account

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/dukerupert/niramay/internal/model"
	"github.com/dukerupert/niramay/internal/store"
)

var (
	ErrEmailTaken         = errors.New("an account with this email already exists")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrInvalidRole        = errors.New("invalid role")
)

type Service struct {
	db       *sql.DB
	users    *store.UserStore
	profiles *store.ProfileStore
	cost     int
}

func NewService(db *sql.DB) *Service {
	return &Service{
		db:       db,
		users:    store.NewUserStore(db),
		profiles: store.NewProfileStore(db),
		cost:     bcrypt.DefaultCost,
	}
}

// WithCost returns a copy hashing with cost; tests use bcrypt.MinCost.
func (s *Service) WithCost(cost int) *Service {
	c := *s
	c.cost = cost
	return &c
}

func (s *Service) hash(password string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(h), nil
}

// SignUp registers a citizen. The profile is created at first sign-in
// from meta.
func (s *Service) SignUp(email, password string, meta model.SignupMetadata) (*model.User, error) {
	existing, err := s.users.GetByEmail(email)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrEmailTaken
	}

	hash, err := s.hash(password)
	if err != nil {
		return nil, err
	}
	meta.Role = model.RoleCitizen
	return s.users.Create(email, hash, meta)
}

// CreateWithProfile registers a user of any role and creates the profile
// in the same transaction.
func (s *Service) CreateWithProfile(email, password string, meta model.SignupMetadata) (*model.Profile, error) {
	if !meta.Role.Valid() {
		return nil, ErrInvalidRole
	}
	existing, err := s.users.GetByEmail(email)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrEmailTaken
	}

	hash, err := s.hash(password)
	if err != nil {
		return nil, err
	}

	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin create account: %w", err)
	}
	defer tx.Rollback()

	u, err := s.users.WithTx(tx).Create(email, hash, meta)
	if err != nil {
		return nil, err
	}
	p, err := s.profiles.WithTx(tx).Create(profileFrom(u))
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit create account: %w", err)
	}
	return p, nil
}

// SignIn checks the password and returns the user's profile, creating it
// from the sign-up metadata on first sign-in.
func (s *Service) SignIn(email, password string) (*model.Profile, error) {
	u, err := s.users.GetByEmail(email)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	p, err := s.profiles.GetByID(u.ID)
	if err != nil {
		return nil, err
	}
	if p != nil {
		return p, nil
	}
	return s.profiles.Create(profileFrom(u))
}

func profileFrom(u *model.User) model.Profile {
	role := u.Metadata.Role
	if !role.Valid() {
		role = model.RoleCitizen
	}
	name := strings.TrimSpace(u.Metadata.Name)
	if name == "" {
		name, _, _ = strings.Cut(u.Email, "@")
	}
	return model.Profile{
		ID:           u.ID,
		Role:         role,
		Name:         name,
		Email:        u.Email,
		Phone:        u.Metadata.Phone,
		Address:      u.Metadata.Address,
		Ward:         u.Metadata.Ward,
		AssignedWard: u.Metadata.AssignedWard,
	}
}
