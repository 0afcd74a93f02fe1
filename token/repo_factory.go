package token

import (
	"context"

	"github.com/jrsteele09/izikwen-client/internal/config"
	"github.com/jrsteele09/izikwen-client/internal/errors"
)

// Driver identifiers accepted by NewRepo.
const (
	DriverMemory = "memory"
	DriverFile   = "file"
	DriverSQLite = "sqlite"
	DriverRedis  = "redis"
)

// NewRepo creates the repo selected by the storage configuration.
func NewRepo(ctx context.Context, cfg config.StorageConfig) (Repo, error) {
	driver := cfg.GetStoreDriver()
	if driver == "" {
		driver = DriverFile
	}

	switch driver {
	case DriverMemory:
		return NewInMemoryRepo(), nil
	case DriverFile:
		return NewFileRepo(cfg.GetStorePath(), cfg.GetStoreSecret())
	case DriverSQLite:
		return OpenSQLite(cfg.GetSQLitePath())
	case DriverRedis:
		return NewRedisRepo(ctx, RedisOptions{
			Addr:     cfg.GetRedisAddr(),
			Password: cfg.GetRedisPassword(),
			DB:       cfg.GetRedisDB(),
		})
	default:
		return nil, errors.Wrapf(errors.ErrUnsupported, "token store driver %q", driver)
	}
}
