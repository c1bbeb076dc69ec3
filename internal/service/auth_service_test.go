package service_test

import (
	"context"
	"sort"
	"testing"

	"roastkit/internal/config"
	"roastkit/internal/dto"
	"roastkit/internal/model"
	"roastkit/internal/service"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

const testSecret = "test-secret"

// ── Stub repository ──────────────────────────────────────────────────────────

type stubUserRepo struct {
	users   map[string]*model.User // keyed by username
	batches map[uuid.UUID]int64
}

func newStubUserRepo() *stubUserRepo {
	return &stubUserRepo{users: make(map[string]*model.User), batches: make(map[uuid.UUID]int64)}
}

func (r *stubUserRepo) Create(_ context.Context, u *model.User) error {
	if _, ok := r.users[u.Username]; ok {
		return gorm.ErrDuplicatedKey
	}
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	r.users[u.Username] = u
	return nil
}

func (r *stubUserRepo) FindByUsername(_ context.Context, username string) (*model.User, error) {
	if u, ok := r.users[username]; ok {
		return u, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *stubUserRepo) FindByID(_ context.Context, id uuid.UUID) (*model.User, error) {
	for _, u := range r.users {
		if u.ID == id {
			return u, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *stubUserRepo) ListByRole(_ context.Context, role string) ([]model.User, error) {
	var out []model.User
	for _, u := range r.users {
		if role == "" || u.Role == role {
			out = append(out, *u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FullName < out[j].FullName })
	return out, nil
}

func (r *stubUserRepo) Update(_ context.Context, u *model.User) error {
	r.users[u.Username] = u
	return nil
}

func (r *stubUserRepo) CountBatches(_ context.Context, id uuid.UUID) (int64, error) {
	return r.batches[id], nil
}

func (r *stubUserRepo) Delete(_ context.Context, id uuid.UUID) (int64, error) {
	for name, u := range r.users {
		if u.ID == id {
			delete(r.users, name)
			return 1, nil
		}
	}
	return 0, nil
}

func newAuth(t *testing.T) (service.AuthService, *stubUserRepo) {
	t.Helper()
	service.BcryptCost = bcrypt.MinCost
	repo := newStubUserRepo()
	cfg := &config.Config{JWTSecret: testSecret, JWTExpirationHours: 8}
	return service.NewAuthService(repo, cfg), repo
}

func createUser(t *testing.T, svc service.AuthService, username, role string) *dto.UserResponse {
	t.Helper()
	u, err := svc.CreateUser(context.Background(), dto.CreateUserRequest{
		Username: username, FullName: "User " + username, Password: "securepass", Role: role,
	})
	require.NoError(t, err)
	return u
}

// ── Tests: Login ─────────────────────────────────────────────────────────────

func TestLogin_Success(t *testing.T) {
	svc, _ := newAuth(t)
	u := createUser(t, svc, "admin", model.RoleAdmin)

	resp, err := svc.Login(context.Background(), dto.LoginRequest{Username: "admin", Password: "securepass"})
	require.NoError(t, err)
	assert.Equal(t, "bearer", resp.TokenType)
	assert.Equal(t, 8*3600, resp.ExpiresIn)
	assert.Equal(t, model.RoleAdmin, resp.User.Role)

	claims := jwt.MapClaims{}
	_, err = jwt.ParseWithClaims(resp.AccessToken, claims, func(*jwt.Token) (interface{}, error) {
		return []byte(testSecret), nil
	})
	require.NoError(t, err)
	assert.Equal(t, u.ID, claims["user_id"])
	assert.Equal(t, model.RoleAdmin, claims["role"])
}

func TestLogin_WrongPassword(t *testing.T) {
	svc, _ := newAuth(t)
	createUser(t, svc, "maria", model.RoleRoaster)

	_, err := svc.Login(context.Background(), dto.LoginRequest{Username: "maria", Password: "nope"})
	assert.ErrorIs(t, err, service.ErrInvalidCredentials)
}

func TestLogin_UnknownUser(t *testing.T) {
	svc, _ := newAuth(t)
	_, err := svc.Login(context.Background(), dto.LoginRequest{Username: "ghost", Password: "whatever"})
	assert.ErrorIs(t, err, service.ErrInvalidCredentials)
}

// ── Tests: User CRUD ─────────────────────────────────────────────────────────

func TestCreateUser_HashesPassword(t *testing.T) {
	svc, repo := newAuth(t)
	createUser(t, svc, "maria", model.RoleRoaster)

	stored := repo.users["maria"]
	require.NotNil(t, stored)
	assert.NotEqual(t, "securepass", stored.PasswordHash)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(stored.PasswordHash), []byte("securepass")))
}

func TestCreateUser_DuplicateUsername(t *testing.T) {
	svc, _ := newAuth(t)
	createUser(t, svc, "maria", model.RoleRoaster)

	_, err := svc.CreateUser(context.Background(), dto.CreateUserRequest{
		Username: "maria", FullName: "Another Maria", Password: "securepass", Role: model.RoleRoaster,
	})
	assert.ErrorIs(t, err, service.ErrUsernameTaken)
}

func TestListUsers_FiltersByRole(t *testing.T) {
	svc, _ := newAuth(t)
	createUser(t, svc, "admin", model.RoleAdmin)
	createUser(t, svc, "bruno", model.RoleRoaster)
	createUser(t, svc, "ana", model.RoleRoaster)

	roasters, err := svc.ListUsers(context.Background(), model.RoleRoaster)
	require.NoError(t, err)
	require.Len(t, roasters, 2)
	assert.Equal(t, "ana", roasters[0].Username)

	all, err := svc.ListUsers(context.Background(), "")
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestUpdateUser(t *testing.T) {
	svc, repo := newAuth(t)
	u := createUser(t, svc, "maria", model.RoleRoaster)

	resp, err := svc.UpdateUser(context.Background(), uuid.MustParse(u.ID), dto.UpdateUserRequest{Role: model.RoleAdmin, Password: "newpassword"})
	require.NoError(t, err)
	assert.Equal(t, model.RoleAdmin, resp.Role)
	assert.Equal(t, "User maria", resp.FullName)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(repo.users["maria"].PasswordHash), []byte("newpassword")))

	_, err = svc.UpdateUser(context.Background(), uuid.New(), dto.UpdateUserRequest{FullName: "Nobody"})
	assert.ErrorIs(t, err, service.ErrNotFound)
}

func TestDeleteUser(t *testing.T) {
	svc, repo := newAuth(t)
	u := createUser(t, svc, "maria", model.RoleRoaster)

	require.NoError(t, svc.DeleteUser(context.Background(), uuid.MustParse(u.ID)))
	assert.Empty(t, repo.users)
	assert.ErrorIs(t, svc.DeleteUser(context.Background(), uuid.MustParse(u.ID)), service.ErrNotFound)
}

func TestDeleteUser_WithBatches(t *testing.T) {
	svc, repo := newAuth(t)
	u := createUser(t, svc, "maria", model.RoleRoaster)
	repo.batches[uuid.MustParse(u.ID)] = 3

	err := svc.DeleteUser(context.Background(), uuid.MustParse(u.ID))
	assert.ErrorIs(t, err, service.ErrUserHasBatches)
	assert.Len(t, repo.users, 1)
}
