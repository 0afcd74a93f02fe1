package config

type StorageConfig interface {
	GetStoreDriver() string
	GetStorePath() string
	GetStoreSecret() string
	GetSQLitePath() string
	GetRedisAddr() string
	GetRedisPassword() string
	GetRedisDB() int
}

type Storage struct{}

var _ StorageConfig = Storage{}

func (Storage) GetStoreDriver() string {
	return GetEnv("IZIKWEN_STORE_DRIVER", "file")
}

func (Storage) GetStorePath() string {
	return GetEnv("IZIKWEN_STORE_PATH", "./data/credentials.json")
}

// GetStoreSecret returns the passphrase used to seal the file store. Empty means plaintext.
func (Storage) GetStoreSecret() string {
	return GetEnv("IZIKWEN_STORE_SECRET", "")
}

func (Storage) GetSQLitePath() string {
	return GetEnv("IZIKWEN_SQLITE_PATH", "./data/izikwen.db")
}

func (Storage) GetRedisAddr() string {
	return GetEnv("IZIKWEN_REDIS_ADDR", "localhost:6379")
}

func (Storage) GetRedisPassword() string {
	return GetEnv("IZIKWEN_REDIS_PASSWORD", "")
}

func (Storage) GetRedisDB() int {
	return GetEnvInt("IZIKWEN_REDIS_DB", 0)
}
