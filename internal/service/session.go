package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/mesa-digital/api/internal/auth"
	"github.com/mesa-digital/api/internal/database"
	"github.com/mesa-digital/api/internal/enum"
)

// Errors returned by the session service.
var (
	ErrMissingCredentials  = errors.New("username and password are required")
	ErrInvalidCredentials  = errors.New("invalid username or password")
	ErrRoleMismatch        = errors.New("user does not have the requested role")
	ErrInvalidRefreshToken = errors.New("invalid refresh token")
	ErrRefreshTokenExpired = errors.New("refresh token expired")
	ErrNameRequired        = errors.New("name is required")
	ErrUsernameTaken       = errors.New("username already exists")
)

const usernameConstraint = "users_username_key"

// SessionStore defines the DB methods needed for login and token rotation.
// Satisfied by *database.Queries.
type SessionStore interface {
	GetUserByUsername(ctx context.Context, username string) (database.User, error)
	GetUserByID(ctx context.Context, id int64) (database.User, error)
	CreateUser(ctx context.Context, arg database.CreateUserParams) (database.User, error)
	UpdateUserPassword(ctx context.Context, arg database.UpdateUserPasswordParams) error
	CreateRefreshToken(ctx context.Context, arg database.CreateRefreshTokenParams) (database.RefreshToken, error)
	ConsumeRefreshToken(ctx context.Context, token string) (database.RefreshToken, error)
	DeleteRefreshToken(ctx context.Context, token string) (int64, error)
	DeleteExpiredRefreshTokens(ctx context.Context, before time.Time) (int64, error)
}

// NewSessionStore builds a SessionStore bound to db or a transaction.
type NewSessionStore func(db database.DBTX) SessionStore

// Session is an issued access token, the refresh token that renews it and
// the user they belong to.
type Session struct {
	AccessToken  string
	RefreshToken string
	User         database.User
}

// SessionService issues and rotates tokens.
type SessionService struct {
	db        DB
	newStore  NewSessionStore
	store     SessionStore
	jwtSecret string
	now       func() time.Time
}

func NewSessionService(db DB, newStore NewSessionStore, jwtSecret string) *SessionService {
	return &SessionService{
		db:        db,
		newStore:  newStore,
		store:     newStore(db),
		jwtSecret: jwtSecret,
		now:       time.Now,
	}
}

// Login checks credentials. When role is non-empty it must match the stored
// role. A legacy plaintext password is upgraded to bcrypt on success.
func (s *SessionService) Login(ctx context.Context, username, password, role string) (*Session, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return nil, ErrMissingCredentials
	}

	user, err := s.store.GetUserByUsername(ctx, username)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}

	ok, needsRehash := auth.CheckPassword(user.Password, password)
	if !ok {
		return nil, ErrInvalidCredentials
	}
	if role != "" && role != user.Role {
		return nil, ErrRoleMismatch
	}

	if needsRehash {
		if hash, err := auth.HashPassword(password); err != nil {
			zap.L().Warn("hash legacy password", zap.Int64("user_id", user.ID), zap.Error(err))
		} else if err := s.store.UpdateUserPassword(ctx, database.UpdateUserPasswordParams{ID: user.ID, Password: hash}); err != nil {
			zap.L().Warn("upgrade legacy password", zap.Int64("user_id", user.ID), zap.Error(err))
		} else {
			user.Password = hash
		}
	}

	return s.issue(ctx, user)
}

// Refresh redeems a refresh token for a new session. The presented token is
// consumed and its replacement stored in one transaction, so a failed
// rotation leaves the old token valid and a replayed token never works.
func (s *SessionService) Refresh(ctx context.Context, token string) (*Session, error) {
	if token == "" {
		return nil, ErrInvalidRefreshToken
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	store := s.newStore(tx)

	stored, err := store.ConsumeRefreshToken(ctx, token)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrInvalidRefreshToken
	}
	if err != nil {
		return nil, fmt.Errorf("consume refresh token: %w", err)
	}
	if !stored.ExpiresAt.After(s.now()) {
		// Expired tokens are still spent.
		if err := tx.Commit(ctx); err != nil {
			return nil, fmt.Errorf("commit tx: %w", err)
		}
		return nil, ErrRefreshTokenExpired
	}

	user, err := store.GetUserByID(ctx, stored.UserID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrInvalidRefreshToken
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}

	session, err := s.issueWith(ctx, store, user)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}
	return session, nil
}

// Logout deletes the refresh token. Unknown tokens are ignored.
func (s *SessionService) Logout(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	if _, err := s.store.DeleteRefreshToken(ctx, token); err != nil {
		return fmt.Errorf("delete refresh token: %w", err)
	}
	return nil
}

// Register creates a customer account and signs it in.
func (s *SessionService) Register(ctx context.Context, name, username, password string) (*Session, error) {
	name, username = strings.TrimSpace(name), strings.TrimSpace(username)
	if name == "" {
		return nil, ErrNameRequired
	}
	if username == "" || password == "" {
		return nil, ErrMissingCredentials
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user, err := s.store.CreateUser(ctx, database.CreateUserParams{
		Name:     name,
		Username: username,
		Password: hash,
		Role:     enum.UserRoleCustomer,
	})
	if isUniqueViolation(err, usernameConstraint) {
		return nil, ErrUsernameTaken
	}
	if err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}

	return s.issue(ctx, user)
}

// PurgeExpired removes refresh tokens past their expiry.
func (s *SessionService) PurgeExpired(ctx context.Context) (int64, error) {
	return s.store.DeleteExpiredRefreshTokens(ctx, s.now())
}

func (s *SessionService) issue(ctx context.Context, user database.User) (*Session, error) {
	return s.issueWith(ctx, s.store, user)
}

func (s *SessionService) issueWith(ctx context.Context, store SessionStore, user database.User) (*Session, error) {
	access, err := auth.GenerateToken(s.jwtSecret, user.ID, user.Name, user.Role)
	if err != nil {
		return nil, fmt.Errorf("generate access token: %w", err)
	}

	refresh, err := auth.NewRefreshToken()
	if err != nil {
		return nil, fmt.Errorf("generate refresh token: %w", err)
	}
	if _, err := store.CreateRefreshToken(ctx, database.CreateRefreshTokenParams{
		Token:     refresh,
		UserID:    user.ID,
		ExpiresAt: s.now().Add(auth.RefreshTokenTTL),
	}); err != nil {
		return nil, fmt.Errorf("store refresh token: %w", err)
	}

	return &Session{AccessToken: access, RefreshToken: refresh, User: user}, nil
}

var _ SessionStore = (*database.Queries)(nil)
