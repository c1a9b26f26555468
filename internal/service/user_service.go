package service

import (
	"context"
	"errors"
	"strings"

	"vibely/internal/models"
	"vibely/internal/repository"
	"vibely/internal/validation"

	"golang.org/x/crypto/bcrypt"
)

// SearchLimit caps the number of users a username search returns.
const SearchLimit = 20

type UserService struct {
	userRepo repository.UserRepository
}

type UpdateProfileInput struct {
	UserID uint
	Name   *string
	Avatar *string
	Bio    *string
}

func NewUserService(userRepo repository.UserRepository) *UserService {
	return &UserService{userRepo: userRepo}
}

// RegisterInput is the raw signup form.
type RegisterInput struct {
	Username string
	Email    string
	Password string
	Name     string
}

// ErrInvalidCredentials is returned by Authenticate for an unknown email or a
// wrong password alike.
var ErrInvalidCredentials = models.NewUnauthorizedError("Invalid credentials")

// Register validates a signup and creates the account. The username is
// normalized before the uniqueness checks, so " ALICE " collides with "alice".
func (s *UserService) Register(ctx context.Context, in RegisterInput) (*models.User, error) {
	username := validation.NormalizeUsername(in.Username)
	email := strings.TrimSpace(in.Email)
	name := strings.TrimSpace(in.Name)

	if username == "" || email == "" || in.Password == "" {
		return nil, models.NewValidationError("Username, email, and password are required")
	}
	checks := []error{
		validation.ValidateUsername(username),
		validation.ValidateEmail(email),
		validation.ValidatePassword(in.Password),
	}
	if name != "" {
		checks = append(checks, validation.ValidateName(name))
	}
	for _, err := range checks {
		if err != nil {
			return nil, models.NewValidationError(err.Error())
		}
	}

	if u, err := s.userRepo.GetByEmail(ctx, email); err != nil {
		return nil, err
	} else if u != nil {
		return nil, models.NewConflictError("User already exists")
	}
	if u, err := s.userRepo.GetByUsername(ctx, username); err != nil {
		return nil, err
	} else if u != nil {
		return nil, models.NewConflictError("Username already taken")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	user := &models.User{Username: username, Email: email, Name: name, Password: string(hash)}
	if err := s.userRepo.Create(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// Authenticate checks an email and password pair.
func (s *UserService) Authenticate(ctx context.Context, email, password string) (*models.User, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return nil, models.NewValidationError("Email and password are required")
	}
	user, err := s.userRepo.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)); err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return nil, ErrInvalidCredentials
		}
		return nil, models.NewInternalError(err)
	}
	return user, nil
}

func (s *UserService) GetUserByID(ctx context.Context, id uint) (*models.User, error) {
	return s.userRepo.GetByID(ctx, id)
}

// UpdateUsername normalizes and validates a new handle, then claims it.
func (s *UserService) UpdateUsername(ctx context.Context, userID uint, raw string) (*models.User, error) {
	username := validation.NormalizeUsername(raw)
	if err := validation.ValidateUsername(username); err != nil {
		return nil, models.NewValidationError(err.Error())
	}

	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user.Username == username {
		return user, nil
	}

	existing, err := s.userRepo.GetByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	if existing != nil && existing.ID != userID {
		return nil, models.NewConflictError("Username already taken")
	}

	user.Username = username
	if err := s.userRepo.Update(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

func (s *UserService) UpdateProfile(ctx context.Context, in UpdateProfileInput) (*models.User, error) {
	user, err := s.userRepo.GetByID(ctx, in.UserID)
	if err != nil {
		return nil, err
	}

	const maxBioLen = 500

	if in.Name != nil {
		name := strings.TrimSpace(*in.Name)
		if err := validation.ValidateName(name); err != nil {
			return nil, models.NewValidationError(err.Error())
		}
		user.Name = name
	}
	if in.Bio != nil {
		if validation.CharCount(*in.Bio) > maxBioLen {
			return nil, models.NewValidationError("Bio too long (max 500 characters)")
		}
		user.Bio = *in.Bio
	}
	if in.Avatar != nil {
		user.Avatar = strings.TrimSpace(*in.Avatar)
	}

	if err := s.userRepo.Update(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// SearchUsers finds other users whose username starts with the query.
func (s *UserService) SearchUsers(ctx context.Context, query string, currentUserID uint) ([]*models.User, error) {
	query = validation.NormalizeUsername(query)
	if query == "" {
		return nil, models.NewValidationError("Search query is required")
	}
	users, err := s.userRepo.SearchByUsername(ctx, query, currentUserID, SearchLimit)
	if err != nil {
		return nil, err
	}
	if users == nil {
		users = []*models.User{}
	}
	return users, nil
}
