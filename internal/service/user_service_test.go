package service

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"vibely/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

// userRepoStub is a stub for repository.UserRepository.
type userRepoStub struct {
	getByIDFn          func(context.Context, uint) (*models.User, error)
	getByIDsFn         func(context.Context, []uint) ([]*models.User, error)
	getByEmailFn       func(context.Context, string) (*models.User, error)
	getByUsernameFn    func(context.Context, string) (*models.User, error)
	searchByUsernameFn func(context.Context, string, uint, int) ([]*models.User, error)
	createFn           func(context.Context, *models.User) error
	updateFn           func(context.Context, *models.User) error
}

func (s *userRepoStub) GetByID(ctx context.Context, id uint) (*models.User, error) {
	return s.getByIDFn(ctx, id)
}
func (s *userRepoStub) GetByIDs(ctx context.Context, ids []uint) ([]*models.User, error) {
	return s.getByIDsFn(ctx, ids)
}
func (s *userRepoStub) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	return s.getByEmailFn(ctx, email)
}
func (s *userRepoStub) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	return s.getByUsernameFn(ctx, username)
}
func (s *userRepoStub) SearchByUsername(ctx context.Context, prefix string, excludeID uint, limit int) ([]*models.User, error) {
	return s.searchByUsernameFn(ctx, prefix, excludeID, limit)
}
func (s *userRepoStub) Create(ctx context.Context, user *models.User) error {
	return s.createFn(ctx, user)
}
func (s *userRepoStub) Update(ctx context.Context, user *models.User) error {
	return s.updateFn(ctx, user)
}

func noopUserRepo() *userRepoStub {
	return &userRepoStub{
		getByIDFn: func(_ context.Context, id uint) (*models.User, error) {
			return &models.User{ID: id, Username: fmt.Sprintf("user%d", id)}, nil
		},
		getByIDsFn: func(_ context.Context, ids []uint) ([]*models.User, error) {
			out := make([]*models.User, 0, len(ids))
			for _, id := range ids {
				out = append(out, &models.User{ID: id})
			}
			return out, nil
		},
		getByEmailFn:       func(_ context.Context, _ string) (*models.User, error) { return nil, nil },
		getByUsernameFn:    func(_ context.Context, _ string) (*models.User, error) { return nil, nil },
		searchByUsernameFn: func(_ context.Context, _ string, _ uint, _ int) ([]*models.User, error) { return nil, nil },
		createFn:           func(_ context.Context, _ *models.User) error { return nil },
		updateFn:           func(_ context.Context, _ *models.User) error { return nil },
	}
}

func TestUserService_UpdateUsername(t *testing.T) {
	ctx := context.Background()

	t.Run("normalizes before validating", func(t *testing.T) {
		svc := NewUserService(noopUserRepo())
		user, err := svc.UpdateUsername(ctx, 1, "  Valid_123 ")
		require.NoError(t, err)
		assert.Equal(t, "valid_123", user.Username)
	})

	t.Run("rejects bad handles", func(t *testing.T) {
		svc := NewUserService(noopUserRepo())
		for _, name := range []string{"ab", "has space", "dash-name", "waytoolongusername_12345"} {
			_, err := svc.UpdateUsername(ctx, 1, name)
			assertValidationError(t, err)
		}
	})

	t.Run("taken by someone else", func(t *testing.T) {
		repo := noopUserRepo()
		repo.getByUsernameFn = func(_ context.Context, username string) (*models.User, error) {
			return &models.User{ID: 2, Username: username}, nil
		}
		svc := NewUserService(repo)
		_, err := svc.UpdateUsername(ctx, 1, "taken")
		assertAppError(t, err, models.CodeConflict)
	})

	t.Run("unchanged handle skips the write", func(t *testing.T) {
		repo := noopUserRepo()
		repo.getByIDFn = func(_ context.Context, id uint) (*models.User, error) {
			return &models.User{ID: id, Username: "same_name"}, nil
		}
		repo.updateFn = func(context.Context, *models.User) error {
			t.Fatal("update should not be called")
			return nil
		}
		svc := NewUserService(repo)
		_, err := svc.UpdateUsername(ctx, 1, "same_name")
		assert.NoError(t, err)
	})
}

func TestUserService_UpdateProfile(t *testing.T) {
	ctx := context.Background()
	svc := NewUserService(noopUserRepo())

	name := " Ada "
	avatar := "https://img.example/a.jpg"
	user, err := svc.UpdateProfile(ctx, UpdateProfileInput{UserID: 1, Name: &name, Avatar: &avatar})
	require.NoError(t, err)
	assert.Equal(t, "Ada", user.Name)
	assert.Equal(t, avatar, user.Avatar)

	long := strings.Repeat("n", 51)
	_, err = svc.UpdateProfile(ctx, UpdateProfileInput{UserID: 1, Name: &long})
	assertValidationError(t, err)
}

func TestUserService_SearchUsers(t *testing.T) {
	ctx := context.Background()
	repo := noopUserRepo()
	var gotPrefix string
	var gotExclude uint
	var gotLimit int
	repo.searchByUsernameFn = func(_ context.Context, prefix string, exclude uint, limit int) ([]*models.User, error) {
		gotPrefix, gotExclude, gotLimit = prefix, exclude, limit
		return nil, nil
	}
	svc := NewUserService(repo)

	users, err := svc.SearchUsers(ctx, " Ali ", 7)
	require.NoError(t, err)
	assert.NotNil(t, users)
	assert.Equal(t, "ali", gotPrefix)
	assert.Equal(t, uint(7), gotExclude)
	assert.Equal(t, SearchLimit, gotLimit)

	_, err = svc.SearchUsers(ctx, "   ", 7)
	assertValidationError(t, err)
}

func TestUserService_Register(t *testing.T) {
	ctx := context.Background()

	t.Run("normalizes and hashes", func(t *testing.T) {
		repo := noopUserRepo()
		var created *models.User
		repo.createFn = func(_ context.Context, u *models.User) error {
			u.ID = 11
			created = u
			return nil
		}
		svc := NewUserService(repo)

		user, err := svc.Register(ctx, RegisterInput{Username: " Alice ", Email: " alice@example.com ", Password: "password123", Name: " Alice A "})
		require.NoError(t, err)
		require.Same(t, created, user)
		assert.Equal(t, "alice", user.Username)
		assert.Equal(t, "alice@example.com", user.Email)
		assert.Equal(t, "Alice A", user.Name)
		assert.NotEqual(t, "password123", user.Password)

		assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(user.Password), []byte("password123")))
	})

	t.Run("conflicts", func(t *testing.T) {
		repo := noopUserRepo()
		repo.getByUsernameFn = func(_ context.Context, name string) (*models.User, error) {
			return &models.User{ID: 2, Username: name}, nil
		}
		_, err := NewUserService(repo).Register(ctx, RegisterInput{Username: "bob", Email: "bob@example.com", Password: "password123"})
		assert.Equal(t, "Username already taken", err.Error())

		repo.getByEmailFn = func(_ context.Context, email string) (*models.User, error) {
			return &models.User{ID: 3, Email: email}, nil
		}
		_, err = NewUserService(repo).Register(ctx, RegisterInput{Username: "bob", Email: "bob@example.com", Password: "password123"})
		assert.Equal(t, "User already exists", err.Error())
	})

	t.Run("validation", func(t *testing.T) {
		svc := NewUserService(noopUserRepo())
		for _, in := range []RegisterInput{
			{Username: "bob"},
			{Username: "ab", Email: "ab@example.com", Password: "password123"},
			{Username: "bobby", Email: "not-an-email", Password: "password123"},
			{Username: "bobby", Email: "bob@example.com", Password: "123"},
		} {
			_, err := svc.Register(ctx, in)
			var appErr *models.AppError
			require.ErrorAs(t, err, &appErr, "%+v", in)
			assert.Equal(t, models.CodeValidation, appErr.Code)
		}
	})
}

func TestUserService_Authenticate(t *testing.T) {
	ctx := context.Background()
	hash, err := bcrypt.GenerateFromPassword([]byte("password123"), bcrypt.MinCost)
	require.NoError(t, err)

	repo := noopUserRepo()
	repo.getByEmailFn = func(_ context.Context, email string) (*models.User, error) {
		if email != "carol@example.com" {
			return nil, nil
		}
		return &models.User{ID: 5, Username: "carol", Password: string(hash)}, nil
	}
	svc := NewUserService(repo)

	user, err := svc.Authenticate(ctx, " carol@example.com", "password123")
	require.NoError(t, err)
	assert.Equal(t, uint(5), user.ID)

	_, err = svc.Authenticate(ctx, "carol@example.com", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = svc.Authenticate(ctx, "nobody@example.com", "password123")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = svc.Authenticate(ctx, "", "password123")
	var appErr *models.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, models.CodeValidation, appErr.Code)
}
