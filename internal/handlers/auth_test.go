package handlers

import (
	"context"
	"net/http"
	"testing"

	"taskmarket/internal/auth"
	"taskmarket/internal/services"
	"taskmarket/internal/store"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterSeedsAccountBonusAndFirstAdmin(t *testing.T) {
	cfg := testConfig()
	cfg.SignupBonusCredits = 25

	var createdUser, accountOwner, superAdmin string
	var bonus services.Entry
	var auditActions []string
	handler := newTestHandler(cfg, fakeTxRunner{}, Deps{
		Users: stubUserStore{
			createFn: func(_ context.Context, _ store.Execer, id, username, email, hash string) error {
				createdUser = id
				assert.Equal(t, "alice", username)
				assert.Equal(t, "alice@example.com", email)
				assert.NoError(t, auth.CheckPassword(hash, "correct-horse"))
				return nil
			},
		},
		Accounts: stubAccountStore{
			createFn: func(_ context.Context, _ store.Execer, _, userID string) error {
				accountOwner = userID
				return nil
			},
		},
		Ledger: stubLedger{
			creditFn: func(_ context.Context, _ store.Tx, e services.Entry) (int64, error) {
				bonus = e
				return e.Amount, nil
			},
		},
		Admin: stubAdminStore{
			hasAnyAdminFn: func(context.Context, store.Getter) (bool, error) { return false, nil },
			createAdminFn: func(_ context.Context, _ store.Execer, userID string, isSuper bool, createdBy *string) error {
				assert.True(t, isSuper)
				assert.Nil(t, createdBy)
				superAdmin = userID
				return nil
			},
		},
		Audit: stubAuditStore{
			logFn: func(_ context.Context, _ store.Execer, _, action, _, _ string, _ map[string]string) error {
				auditActions = append(auditActions, action)
				return nil
			},
		},
	})

	rr := do(t, handler, http.MethodPost, "/auth/register", "", map[string]string{
		"username": "alice",
		"email":    " Alice@Example.com ",
		"password": "correct-horse",
	})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	body := decodeBody[tokenResponse](t, rr)
	claims, err := auth.ParseToken(testSecret, body.Token)
	require.NoError(t, err)
	assert.Equal(t, createdUser, claims.UserID)
	assert.Equal(t, createdUser, body.UserID)
	assert.Equal(t, createdUser, accountOwner)
	assert.Equal(t, createdUser, superAdmin)
	assert.Equal(t, int64(25), bonus.Amount)
	assert.Equal(t, store.KindPurchase, bonus.Kind)
	assert.Equal(t, "signup-"+createdUser, bonus.ExternalRef)
	assert.Equal(t, []string{"register"}, auditActions)
}

func TestRegisterSkipsBonusAndAdminWhenNotDue(t *testing.T) {
	handler := newTestHandler(testConfig(), fakeTxRunner{}, Deps{
		Ledger: stubLedger{
			creditFn: func(context.Context, store.Tx, services.Entry) (int64, error) {
				t.Error("no bonus configured")
				return 0, nil
			},
		},
		Admin: stubAdminStore{
			createAdminFn: func(context.Context, store.Execer, string, bool, *string) error {
				t.Error("an admin already exists")
				return nil
			},
		},
	})
	rr := do(t, handler, http.MethodPost, "/auth/register", "", map[string]string{
		"username": "bob",
		"email":    "bob@example.com",
		"password": "correct-horse",
	})
	assert.Equal(t, http.StatusCreated, rr.Code)
}

func TestRegisterRejectsInvalidInput(t *testing.T) {
	handler := newTestHandler(testConfig(), fakeTxRunner{}, Deps{
		Users: stubUserStore{
			createFn: func(context.Context, store.Execer, string, string, string, string) error {
				t.Error("invalid input must not reach the store")
				return nil
			},
		},
	})
	cases := map[string]map[string]string{
		"invalid_username": {"username": "a", "email": "a@example.com", "password": "correct-horse"},
		"invalid_email":    {"username": "alice", "email": "nope", "password": "correct-horse"},
		"invalid_password": {"username": "alice", "email": "a@example.com", "password": "short"},
	}
	for code, body := range cases {
		t.Run(code, func(t *testing.T) {
			rr := do(t, handler, http.MethodPost, "/auth/register", "", body)
			assert.Equal(t, http.StatusBadRequest, rr.Code)
			assert.Equal(t, code, decodeBody[map[string]string](t, rr)["error"])
		})
	}
}

func TestRegisterDuplicateUser(t *testing.T) {
	handler := newTestHandler(testConfig(), fakeTxRunner{}, Deps{
		Users: stubUserStore{
			createFn: func(context.Context, store.Execer, string, string, string, string) error {
				return &pq.Error{Code: "23505"}
			},
		},
	})
	rr := do(t, handler, http.MethodPost, "/auth/register", "", map[string]string{
		"username": "alice",
		"email":    "alice@example.com",
		"password": "correct-horse",
	})
	assert.Equal(t, http.StatusConflict, rr.Code)
	assert.Equal(t, "username or email already exists", decodeBody[map[string]string](t, rr)["error"])
}

func TestLogin(t *testing.T) {
	hash, err := auth.HashPassword("correct-horse")
	require.NoError(t, err)
	users := stubUserStore{
		getByEmailFn: func(_ context.Context, email string) (store.User, error) {
			assert.Equal(t, "alice@example.com", email)
			return store.User{ID: "user-1", Email: email, PasswordHash: hash}, nil
		},
	}
	logged := 0
	handler := newTestHandler(testConfig(), fakeTxRunner{}, Deps{
		Users: users,
		Audit: stubAuditStore{
			logFn: func(_ context.Context, _ store.Execer, actorID, action, _, _ string, _ map[string]string) error {
				assert.Equal(t, "user-1", actorID)
				assert.Equal(t, "login", action)
				logged++
				return nil
			},
		},
	})

	rr := do(t, handler, http.MethodPost, "/auth/login", "", loginRequest{Email: "ALICE@example.com", Password: "correct-horse"})
	require.Equal(t, http.StatusOK, rr.Code)
	claims, err := auth.ParseToken(testSecret, decodeBody[tokenResponse](t, rr).Token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID)
	assert.Equal(t, 1, logged)

	rr = do(t, handler, http.MethodPost, "/auth/login", "", loginRequest{Email: "alice@example.com", Password: "wrong-horse"})
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Equal(t, 1, logged)
}

func TestLoginUnknownEmail(t *testing.T) {
	handler := newTestHandler(testConfig(), fakeTxRunner{}, Deps{})
	rr := do(t, handler, http.MethodPost, "/auth/login", "", loginRequest{Email: "ghost@example.com", Password: "whatever1"})
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestMeReportsAdminFlags(t *testing.T) {
	handler := newTestHandler(testConfig(), fakeTxRunner{}, Deps{
		Users: stubUserStore{
			getByIDFn: func(_ context.Context, userID string) (store.User, error) {
				return store.User{ID: userID, Username: "alice", Email: "alice@example.com", PasswordHash: "never-sent"}, nil
			},
		},
		Admin: stubAdminStore{
			lookupFn: func(context.Context, string) (store.AdminStatus, error) {
				return store.AdminStatus{IsAdmin: true}, nil
			},
		},
	})

	rr := do(t, handler, http.MethodGet, "/auth/me", "user-1", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.NotContains(t, rr.Body.String(), "never-sent")
	body := decodeBody[map[string]any](t, rr)
	assert.Equal(t, "user-1", body["id"])
	assert.Equal(t, "alice", body["username"])
	assert.Equal(t, true, body["is_admin"])
	assert.Equal(t, false, body["is_super_admin"])

	rr = do(t, handler, http.MethodGet, "/auth/me", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}
