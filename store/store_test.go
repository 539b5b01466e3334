package store_test

import (
	"context"
	"database/sql"
	"testing"

	authstate "github.com/goliatone/go-auth-state"
	"github.com/goliatone/go-auth-state/store"
	"github.com/goliatone/go-repository-bun"
	"github.com/goliatone/hashid/pkg/hashid"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"

	_ "github.com/mattn/go-sqlite3"
)

func setupStore(t *testing.T) (store.RepositoryManager, func()) {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)

	bunDB := bun.NewDB(db, sqlitedialect.New())
	require.NoError(t, store.CreateSchema(context.Background(), bunDB))

	cleanup := func() {
		_ = bunDB.Close()
		_ = db.Close()
	}

	return store.NewRepositoryManager(bunDB), cleanup
}

func registerAlice(t *testing.T, repo store.RepositoryManager, roles ...string) *store.User {
	t.Helper()
	user, err := store.NewRegisterUserHandler(repo).Register(context.Background(), store.RegisterUserMessage{
		FirstName: "Alice",
		LastName:  "Liddell",
		Email:     "alice@example.com",
		Roles:     roles,
	})
	require.NoError(t, err)
	return user
}

func TestRegisterUserHandler(t *testing.T) {
	repo, cleanup := setupStore(t)
	defer cleanup()

	user := registerAlice(t, repo, "Admin", " Editor ", "Admin", "")

	assert.NotEqual(t, uuid.Nil, user.ID)
	assert.Equal(t, "alice", user.Username)
	assert.NotEmpty(t, user.SecurityStamp)
	assert.Equal(t, "Alice Liddell", user.DisplayName())

	ctx := context.Background()
	roles, err := repo.Users().RolesTx(ctx, repo.DB(), user.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"Admin", "Editor"}, roles)

	found, err := repo.Users().GetByIdentifier(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, user.ID, found.ID)

	found, err = repo.Users().GetByIdentifier(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, user.ID, found.ID)

	found, err = repo.Users().GetByIdentifier(ctx, user.ID.String())
	require.NoError(t, err)
	assert.Equal(t, user.SecurityStamp, found.SecurityStamp)
}

func TestRegisterUserHandler_Hashid(t *testing.T) {
	repo, cleanup := setupStore(t)
	defer cleanup()

	user, err := store.NewRegisterUserHandler(repo).Register(context.Background(), store.RegisterUserMessage{
		Email:     "bob@example.com",
		UseHashid: true,
	})
	require.NoError(t, err)

	expected, err := hashid.NewUUID("bob@example.com")
	require.NoError(t, err)
	assert.Equal(t, expected, user.ID)
}

func TestRegisterUserHandler_Validation(t *testing.T) {
	repo, cleanup := setupStore(t)
	defer cleanup()

	err := store.NewRegisterUserHandler(repo).Execute(context.Background(), store.RegisterUserMessage{Email: "not-an-email"})
	require.Error(t, err)

	registerAlice(t, repo)
	err = store.NewRegisterUserHandler(repo).Execute(context.Background(), store.RegisterUserMessage{Email: "alice@example.com"})
	require.Error(t, err, "duplicate email")
}

func TestUserManager_IdentityStore(t *testing.T) {
	repo, cleanup := setupStore(t)
	defer cleanup()

	user := registerAlice(t, repo, "Admin")
	manager := store.NewUserManager(repo.DB(), repo.Users())
	ctx := context.Background()

	account, err := manager.FindUserBySubjectID(ctx, user.ID.String())
	require.NoError(t, err)
	assert.Equal(t, user.ID.String(), account.ID())
	assert.Equal(t, "alice", account.UserName())
	assert.Equal(t, "Alice", account.FirstName())
	assert.Equal(t, "Liddell", account.LastName())

	assert.True(t, manager.SupportsSecurityStamp())
	stamp, err := manager.GetSecurityStamp(ctx, account)
	require.NoError(t, err)
	assert.Equal(t, user.SecurityStamp, stamp)

	roles, err := manager.GetRoles(ctx, account)
	require.NoError(t, err)
	assert.Equal(t, []string{"Admin"}, roles)

	assert.False(t, manager.WithSecurityStampSupport(false).SupportsSecurityStamp())
}

func TestUserManager_NotFound(t *testing.T) {
	repo, cleanup := setupStore(t)
	defer cleanup()

	manager := store.NewUserManager(repo.DB(), repo.Users())

	for _, subject := range []string{uuid.NewString(), "not-a-uuid", ""} {
		_, err := manager.FindUserBySubjectID(context.Background(), subject)
		assert.ErrorIs(t, err, authstate.ErrUserNotFound, subject)
		assert.True(t, authstate.IsSoftPersistError(err))
	}
}

func TestUserManager_NoRoles(t *testing.T) {
	repo, cleanup := setupStore(t)
	defer cleanup()

	user := registerAlice(t, repo)
	manager := store.NewUserManager(repo.DB(), repo.Users())

	roles, err := manager.GetRoles(context.Background(), store.NewAccountFromUser(user))
	require.NoError(t, err)
	assert.Empty(t, roles)
}

func TestSetRolesHandler(t *testing.T) {
	repo, cleanup := setupStore(t)
	defer cleanup()

	user := registerAlice(t, repo, "Admin")
	ctx := context.Background()

	err := store.NewSetRolesHandler(repo).Execute(ctx, store.SetRolesMessage{
		Identifier: "alice",
		Roles:      []string{"Viewer", "Billing"},
	})
	require.NoError(t, err)

	roles, err := repo.Users().RolesTx(ctx, repo.DB(), user.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"Viewer", "Billing"}, roles)

	err = store.NewSetRolesHandler(repo).Execute(ctx, store.SetRolesMessage{Identifier: "alice"})
	require.NoError(t, err)

	roles, err = repo.Users().RolesTx(ctx, repo.DB(), user.ID)
	require.NoError(t, err)
	assert.Empty(t, roles)

	err = store.NewSetRolesHandler(repo).Execute(ctx, store.SetRolesMessage{Identifier: "nobody"})
	require.Error(t, err)
}

func TestRotateSecurityStampHandler(t *testing.T) {
	repo, cleanup := setupStore(t)
	defer cleanup()

	user := registerAlice(t, repo)
	ctx := context.Background()

	stamp, err := store.NewRotateSecurityStampHandler(repo).Rotate(ctx, store.RotateSecurityStampMessage{
		Identifier: "alice@example.com",
	})
	require.NoError(t, err)
	assert.NotEqual(t, user.SecurityStamp, stamp)

	reloaded, err := repo.Users().FindByIDTx(ctx, repo.DB(), user.ID)
	require.NoError(t, err)
	assert.Equal(t, stamp, reloaded.SecurityStamp)

	_, err = repo.Users().RotateSecurityStamp(ctx, uuid.New())
	assert.True(t, repository.IsRecordNotFound(err))

	err = store.NewRotateSecurityStampHandler(repo).Execute(ctx, store.RotateSecurityStampMessage{})
	assert.Error(t, err)
}

func TestUpdateProfileTx(t *testing.T) {
	repo, cleanup := setupStore(t)
	defer cleanup()

	user := registerAlice(t, repo)
	ctx := context.Background()

	_, err := repo.Users().UpdateProfileTx(ctx, repo.DB(), &store.User{ID: user.ID, FirstName: "Alicia"})
	require.NoError(t, err)

	reloaded, err := repo.Users().FindByIDTx(ctx, repo.DB(), user.ID)
	require.NoError(t, err)
	assert.Equal(t, "Alicia", reloaded.FirstName)
	assert.Equal(t, "Liddell", reloaded.LastName)
	assert.Equal(t, user.SecurityStamp, reloaded.SecurityStamp)
}

func TestNormalizeRoles(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, store.NormalizeRoles([]string{" a", "b", "a ", ""}))
	assert.Empty(t, store.NormalizeRoles(nil))
}

func TestSeedUsersHandler(t *testing.T) {
	repo, cleanup := setupStore(t)
	defer cleanup()

	user := registerAlice(t, repo, "Viewer")
	ctx := context.Background()

	result, err := store.NewSeedUsersHandler(repo).Seed(ctx, store.SeedUsersMessage{
		Users: []store.RegisterUserMessage{
			{Email: "alice@example.com", FirstName: "Alicia", Roles: []string{"Admin"}},
			{Email: "bob@example.com", FirstName: "Bob", Roles: []string{"Editor"}, UseHashid: true},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, store.SeedResult{Created: 1, Updated: 1}, result)

	reloaded, err := repo.Users().FindByIDTx(ctx, repo.DB(), user.ID)
	require.NoError(t, err)
	assert.Equal(t, "Alicia", reloaded.FirstName)
	assert.Equal(t, user.SecurityStamp, reloaded.SecurityStamp, "seeding keeps the stamp")

	roles, err := repo.Users().RolesTx(ctx, repo.DB(), user.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"Admin"}, roles)

	bobID, err := hashid.NewUUID("bob@example.com")
	require.NoError(t, err)
	bob, err := repo.Users().GetByIdentifier(ctx, "bob@example.com")
	require.NoError(t, err)
	assert.Equal(t, bobID, bob.ID)

	result, err = store.NewSeedUsersHandler(repo).Seed(ctx, store.SeedUsersMessage{
		Users: []store.RegisterUserMessage{{Email: "bob@example.com"}},
	})
	require.NoError(t, err)
	assert.Equal(t, store.SeedResult{Updated: 1}, result)
}

func TestSeedUsersHandler_Validation(t *testing.T) {
	repo, cleanup := setupStore(t)
	defer cleanup()

	_, err := store.NewSeedUsersHandler(repo).Seed(context.Background(), store.SeedUsersMessage{})
	require.Error(t, err)

	_, err = store.NewSeedUsersHandler(repo).Seed(context.Background(), store.SeedUsersMessage{
		Users: []store.RegisterUserMessage{{Email: "ok@example.com"}, {Email: "broken"}},
	})
	require.Error(t, err)

	_, err = repo.Users().GetByIdentifier(context.Background(), "ok@example.com")
	assert.True(t, repository.IsRecordNotFound(err), "nothing is written when an entry is invalid")
}
