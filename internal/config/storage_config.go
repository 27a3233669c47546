package config

type StorageConfig interface {
	GetStorageBackend() string
	GetTokenFile() string
	GetRedisURL() string
	GetRedisPrefix() string
}

type Storage struct{}

var _ StorageConfig = Storage{}

// GetStorageBackend is one of "file", "redis" or "memory".
func (Storage) GetStorageBackend() string {
	return GetEnv("PORTAL_STORAGE", "file")
}

// GetTokenFile returns the token file override. Empty means the per-user default location.
func (Storage) GetTokenFile() string {
	return GetEnv("PORTAL_TOKEN_FILE", "")
}

func (Storage) GetRedisURL() string {
	return GetEnv("REDIS_URL", "redis://localhost:6379/0")
}

func (Storage) GetRedisPrefix() string {
	return GetEnv("REDIS_PREFIX", "as2portal:")
}
