package token_test

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/jrsteele09/izikwen-client/internal/errors"
	"github.com/jrsteele09/izikwen-client/token"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// exerciseRepo runs the behaviour every Repo implementation must share.
func exerciseRepo(t *testing.T, repo token.Repo) {
	t.Helper()
	ctx := context.Background()

	_, err := repo.Get(ctx, "missing")
	require.ErrorIs(t, err, errors.ErrNotFound)

	require.NoError(t, repo.Set(ctx, token.KeyAccessToken, "A1"))
	require.NoError(t, repo.Set(ctx, token.KeyRefreshToken, "R1"))

	v, err := repo.Get(ctx, token.KeyAccessToken)
	require.NoError(t, err)
	require.Equal(t, "A1", v)

	require.NoError(t, repo.Set(ctx, token.KeyAccessToken, "A2"))
	v, err = repo.Get(ctx, token.KeyAccessToken)
	require.NoError(t, err)
	require.Equal(t, "A2", v)

	require.NoError(t, repo.Delete(ctx, token.KeyAccessToken))
	_, err = repo.Get(ctx, token.KeyAccessToken)
	require.ErrorIs(t, err, errors.ErrNotFound)

	// Deleting an absent key is not an error.
	require.NoError(t, repo.Delete(ctx, token.KeyAccessToken))

	v, err = repo.Get(ctx, token.KeyRefreshToken)
	require.NoError(t, err)
	require.Equal(t, "R1", v)
}

func TestInMemoryRepo(t *testing.T) {
	exerciseRepo(t, token.NewInMemoryRepo())
}

func TestFileRepo_Plaintext(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "credentials.json")

	repo, err := token.NewFileRepo(path, "")
	require.NoError(t, err)
	exerciseRepo(t, repo)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(data), "R1")

	reopened, err := token.NewFileRepo(path, "")
	require.NoError(t, err)
	v, err := reopened.Get(context.Background(), token.KeyRefreshToken)
	require.NoError(t, err)
	require.Equal(t, "R1", v)
}

func TestFileRepo_Sealed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credentials.json")

	repo, err := token.NewFileRepo(path, "correct horse")
	require.NoError(t, err)
	exerciseRepo(t, repo)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NotContains(t, string(data), "R1")

	reopened, err := token.NewFileRepo(path, "correct horse")
	require.NoError(t, err)
	v, err := reopened.Get(context.Background(), token.KeyRefreshToken)
	require.NoError(t, err)
	require.Equal(t, "R1", v)

	_, err = token.NewFileRepo(path, "wrong secret")
	require.Error(t, err)

	_, err = token.NewFileRepo(path, "")
	require.Error(t, err)
}

func TestFileRepo_RequiresPath(t *testing.T) {
	_, err := token.NewFileRepo("", "")
	require.ErrorIs(t, err, errors.ErrInvalidInput)
}

func TestSQLiteRepo(t *testing.T) {
	dsn := fmt.Sprintf("file:token-test-%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)

	repo, err := token.NewSQLiteRepo(db)
	require.NoError(t, err)
	exerciseRepo(t, repo)
}

func TestOpenSQLite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "izikwen.db")

	repo, err := token.OpenSQLite(path)
	require.NoError(t, err)
	require.NoError(t, repo.Set(context.Background(), token.KeyDeviceID, "device-1"))
	require.NoError(t, repo.Close(context.Background()))

	reopened, err := token.OpenSQLite(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = reopened.Close(context.Background()) })

	v, err := reopened.Get(context.Background(), token.KeyDeviceID)
	require.NoError(t, err)
	require.Equal(t, "device-1", v)
}

func TestRedisRepo(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	repo, err := token.NewRedisRepo(context.Background(), token.RedisOptions{Addr: mr.Addr()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close(context.Background()) })

	exerciseRepo(t, repo)
	require.True(t, mr.Exists("izikwen:secure:"+token.KeyRefreshToken))
}

func TestRedisRepo_RequiresAddr(t *testing.T) {
	_, err := token.NewRedisRepo(context.Background(), token.RedisOptions{})
	require.ErrorIs(t, err, errors.ErrInvalidInput)
}

type storageConfig struct {
	driver string
	path   string
}

func (c storageConfig) GetStoreDriver() string   { return c.driver }
func (c storageConfig) GetStorePath() string     { return c.path }
func (c storageConfig) GetStoreSecret() string   { return "" }
func (c storageConfig) GetSQLitePath() string    { return c.path }
func (c storageConfig) GetRedisAddr() string     { return "" }
func (c storageConfig) GetRedisPassword() string { return "" }
func (c storageConfig) GetRedisDB() int          { return 0 }

func TestNewRepo_SelectsDriver(t *testing.T) {
	ctx := context.Background()

	repo, err := token.NewRepo(ctx, storageConfig{driver: token.DriverMemory})
	require.NoError(t, err)
	require.IsType(t, &token.InMemoryRepo{}, repo)

	repo, err = token.NewRepo(ctx, storageConfig{driver: token.DriverFile, path: filepath.Join(t.TempDir(), "c.json")})
	require.NoError(t, err)
	require.IsType(t, &token.FileRepo{}, repo)

	repo, err = token.NewRepo(ctx, storageConfig{driver: token.DriverSQLite, path: filepath.Join(t.TempDir(), "c.db")})
	require.NoError(t, err)
	require.IsType(t, &token.SQLiteRepo{}, repo)
	require.NoError(t, repo.Close(ctx))

	_, err = token.NewRepo(ctx, storageConfig{driver: "keychain"})
	require.ErrorIs(t, err, errors.ErrUnsupported)
}
