package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/mesa-digital/api/internal/auth"
	"github.com/mesa-digital/api/internal/database"
	"github.com/mesa-digital/api/internal/enum"
)

const testSecret = "test-secret"

// memSessionStore is an in-memory SessionStore.
type memSessionStore struct {
	users  map[int64]database.User
	tokens map[string]database.RefreshToken
	nextID int64

	createTokenErr error
}

func newMemSessionStore() *memSessionStore {
	return &memSessionStore{
		users:  make(map[int64]database.User),
		tokens: make(map[string]database.RefreshToken),
	}
}

func (m *memSessionStore) addUser(username, password, role string) database.User {
	m.nextID++
	u := database.User{ID: m.nextID, Name: username, Username: username, Password: password, Role: role}
	m.users[u.ID] = u
	return u
}

func (m *memSessionStore) GetUserByUsername(ctx context.Context, username string) (database.User, error) {
	for _, u := range m.users {
		if u.Username == username {
			return u, nil
		}
	}
	return database.User{}, pgx.ErrNoRows
}

func (m *memSessionStore) GetUserByID(ctx context.Context, id int64) (database.User, error) {
	u, ok := m.users[id]
	if !ok {
		return database.User{}, pgx.ErrNoRows
	}
	return u, nil
}

func (m *memSessionStore) CreateUser(ctx context.Context, arg database.CreateUserParams) (database.User, error) {
	if _, err := m.GetUserByUsername(ctx, arg.Username); err == nil {
		return database.User{}, &pgconn.PgError{Code: "23505", ConstraintName: "users_username_key"}
	}
	u := m.addUser(arg.Username, arg.Password, arg.Role)
	u.Name = arg.Name
	m.users[u.ID] = u
	return u, nil
}

func (m *memSessionStore) UpdateUserPassword(ctx context.Context, arg database.UpdateUserPasswordParams) error {
	u := m.users[arg.ID]
	u.Password = arg.Password
	m.users[arg.ID] = u
	return nil
}

func (m *memSessionStore) CreateRefreshToken(ctx context.Context, arg database.CreateRefreshTokenParams) (database.RefreshToken, error) {
	if m.createTokenErr != nil {
		return database.RefreshToken{}, m.createTokenErr
	}
	rt := database.RefreshToken{Token: arg.Token, UserID: arg.UserID, ExpiresAt: arg.ExpiresAt}
	m.tokens[arg.Token] = rt
	return rt, nil
}

func (m *memSessionStore) ConsumeRefreshToken(ctx context.Context, token string) (database.RefreshToken, error) {
	rt, ok := m.tokens[token]
	if !ok {
		return database.RefreshToken{}, pgx.ErrNoRows
	}
	delete(m.tokens, token)
	return rt, nil
}

func (m *memSessionStore) DeleteRefreshToken(ctx context.Context, token string) (int64, error) {
	if _, ok := m.tokens[token]; !ok {
		return 0, nil
	}
	delete(m.tokens, token)
	return 1, nil
}

func (m *memSessionStore) DeleteExpiredRefreshTokens(ctx context.Context, before time.Time) (int64, error) {
	var n int64
	for k, rt := range m.tokens {
		if !rt.ExpiresAt.After(before) {
			delete(m.tokens, k)
			n++
		}
	}
	return n, nil
}

func (m *memSessionStore) clone() *memSessionStore {
	c := &memSessionStore{
		users:          make(map[int64]database.User, len(m.users)),
		tokens:         make(map[string]database.RefreshToken, len(m.tokens)),
		nextID:         m.nextID,
		createTokenErr: m.createTokenErr,
	}
	for k, v := range m.users {
		c.users[k] = v
	}
	for k, v := range m.tokens {
		c.tokens[k] = v
	}
	return c
}

// sessionTx works on a copy of the store that is written back on commit.
type sessionTx struct {
	*mockTx
	parent *memSessionStore
	work   *memSessionStore
	done   bool
}

func (tx *sessionTx) Commit(ctx context.Context) error {
	if tx.done {
		return pgx.ErrTxClosed
	}
	tx.done = true
	clear(tx.parent.users)
	for k, v := range tx.work.users {
		tx.parent.users[k] = v
	}
	clear(tx.parent.tokens)
	for k, v := range tx.work.tokens {
		tx.parent.tokens[k] = v
	}
	tx.parent.nextID = tx.work.nextID
	return nil
}

func (tx *sessionTx) Rollback(ctx context.Context) error {
	tx.done = true
	return nil
}

type sessionDB struct {
	mockDB
	store *memSessionStore
}

func (db *sessionDB) Begin(ctx context.Context) (pgx.Tx, error) {
	return &sessionTx{mockTx: &mockTx{}, parent: db.store, work: db.store.clone()}, nil
}

func newTestSessionService(store *memSessionStore) *SessionService {
	return NewSessionService(&sessionDB{store: store}, func(db database.DBTX) SessionStore {
		if tx, ok := db.(*sessionTx); ok {
			return tx.work
		}
		return store
	}, testSecret)
}

func TestLogin_IssuesTokens(t *testing.T) {
	store := newMemSessionStore()
	hash, _ := auth.HashPassword("secret")
	user := store.addUser("ana", hash, enum.UserRoleWaiter)
	svc := newTestSessionService(store)

	session, err := svc.Login(context.Background(), " ana ", "secret", enum.UserRoleWaiter)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	claims, err := auth.ValidateToken(testSecret, session.AccessToken)
	if err != nil {
		t.Fatalf("access token invalid: %v", err)
	}
	if claims.UserID != user.ID || claims.Role != enum.UserRoleWaiter {
		t.Errorf("claims: got %d/%s", claims.UserID, claims.Role)
	}
	if _, ok := store.tokens[session.RefreshToken]; !ok {
		t.Error("refresh token not stored")
	}
}

func TestLogin_Failures(t *testing.T) {
	store := newMemSessionStore()
	hash, _ := auth.HashPassword("secret")
	store.addUser("ana", hash, enum.UserRoleWaiter)
	svc := newTestSessionService(store)

	tests := []struct {
		name     string
		username string
		password string
		role     string
		want     error
	}{
		{"missing", "", "", "", ErrMissingCredentials},
		{"unknown user", "bob", "secret", "", ErrInvalidCredentials},
		{"wrong password", "ana", "nope", "", ErrInvalidCredentials},
		{"role mismatch", "ana", "secret", enum.UserRoleAdmin, ErrRoleMismatch},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Login(context.Background(), tt.username, tt.password, tt.role)
			if !errors.Is(err, tt.want) {
				t.Errorf("got %v, want %v", err, tt.want)
			}
		})
	}
}

func TestLogin_UpgradesPlaintextPassword(t *testing.T) {
	store := newMemSessionStore()
	user := store.addUser("admin", "admin123", enum.UserRoleAdmin)
	svc := newTestSessionService(store)

	if _, err := svc.Login(context.Background(), "admin", "admin123", ""); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !auth.IsHashed(store.users[user.ID].Password) {
		t.Error("password was not rehashed")
	}
	if _, err := svc.Login(context.Background(), "admin", "admin123", ""); err != nil {
		t.Fatalf("login after rehash: %v", err)
	}
}

func TestRefresh_RotatesToken(t *testing.T) {
	store := newMemSessionStore()
	hash, _ := auth.HashPassword("secret")
	store.addUser("ana", hash, enum.UserRoleAdmin)
	svc := newTestSessionService(store)
	ctx := context.Background()

	first, err := svc.Login(ctx, "ana", "secret", "")
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	second, err := svc.Refresh(ctx, first.RefreshToken)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if second.RefreshToken == first.RefreshToken {
		t.Error("refresh token was not rotated")
	}

	if _, err := svc.Refresh(ctx, first.RefreshToken); !errors.Is(err, ErrInvalidRefreshToken) {
		t.Errorf("reuse: got %v, want ErrInvalidRefreshToken", err)
	}
	if _, err := svc.Refresh(ctx, ""); !errors.Is(err, ErrInvalidRefreshToken) {
		t.Errorf("empty: got %v, want ErrInvalidRefreshToken", err)
	}
}

func TestRefresh_Expired(t *testing.T) {
	store := newMemSessionStore()
	user := store.addUser("ana", "x", enum.UserRoleAdmin)
	store.tokens["old"] = database.RefreshToken{Token: "old", UserID: user.ID, ExpiresAt: time.Now().Add(-time.Minute)}
	svc := newTestSessionService(store)

	if _, err := svc.Refresh(context.Background(), "old"); !errors.Is(err, ErrRefreshTokenExpired) {
		t.Errorf("got %v, want ErrRefreshTokenExpired", err)
	}
	if _, ok := store.tokens["old"]; ok {
		t.Error("expired token should be consumed")
	}
}

func TestRefresh_FailedRotationKeepsOldToken(t *testing.T) {
	store := newMemSessionStore()
	user := store.addUser("ana", "x", enum.UserRoleAdmin)
	store.tokens["old"] = database.RefreshToken{Token: "old", UserID: user.ID, ExpiresAt: time.Now().Add(time.Hour)}
	store.createTokenErr = errors.New("connection reset")
	svc := newTestSessionService(store)
	ctx := context.Background()

	if _, err := svc.Refresh(ctx, "old"); err == nil {
		t.Fatal("expected error when the new token cannot be stored")
	}
	if _, ok := store.tokens["old"]; !ok {
		t.Fatal("old token lost after failed rotation")
	}

	store.createTokenErr = nil
	session, err := svc.Refresh(ctx, "old")
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if _, ok := store.tokens["old"]; ok {
		t.Error("old token still valid after rotation")
	}
	if _, ok := store.tokens[session.RefreshToken]; !ok {
		t.Error("new token not stored")
	}
}

func TestLogout(t *testing.T) {
	store := newMemSessionStore()
	store.tokens["tok"] = database.RefreshToken{Token: "tok", UserID: 1, ExpiresAt: time.Now().Add(time.Hour)}
	svc := newTestSessionService(store)

	if err := svc.Logout(context.Background(), "tok"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(store.tokens) != 0 {
		t.Error("token not deleted")
	}
	if err := svc.Logout(context.Background(), "unknown"); err != nil {
		t.Errorf("unknown token: %v", err)
	}
}

func TestRegister(t *testing.T) {
	store := newMemSessionStore()
	svc := newTestSessionService(store)
	ctx := context.Background()

	session, err := svc.Register(ctx, "Carla", "carla", "pw")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if session.User.Role != enum.UserRoleCustomer {
		t.Errorf("role: got %s, want customer", session.User.Role)
	}
	if !auth.IsHashed(session.User.Password) {
		t.Error("password stored in plaintext")
	}

	if _, err := svc.Register(ctx, "Carla", "carla", "pw"); !errors.Is(err, ErrUsernameTaken) {
		t.Errorf("duplicate: got %v, want ErrUsernameTaken", err)
	}
	if _, err := svc.Register(ctx, " ", "x", "pw"); !errors.Is(err, ErrNameRequired) {
		t.Errorf("no name: got %v, want ErrNameRequired", err)
	}
}

func TestPurgeExpired(t *testing.T) {
	store := newMemSessionStore()
	now := time.Now()
	store.tokens["old"] = database.RefreshToken{Token: "old", ExpiresAt: now.Add(-time.Hour)}
	store.tokens["new"] = database.RefreshToken{Token: "new", ExpiresAt: now.Add(time.Hour)}
	svc := newTestSessionService(store)
	svc.now = func() time.Time { return now }

	n, err := svc.PurgeExpired(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 1 || len(store.tokens) != 1 {
		t.Errorf("purged %d, remaining %d", n, len(store.tokens))
	}
}
