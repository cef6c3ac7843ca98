package config

import "time"

const (
	StorageMemory = "memory"
	StorageRedis  = "redis"
	StorageSQLite = "sqlite"
)

type StorageConfig interface {
	GetStorage() string
	GetRedisAddr() string
	GetRedisPassword() string
	GetRedisDB() int
	GetSQLitePath() string
	GetSessionTTL() time.Duration
}

type Storage struct {
	s Settings
}

var _ StorageConfig = Storage{}

func (s Storage) GetStorage() string {
	return s.s.Storage
}

func (s Storage) GetRedisAddr() string {
	return s.s.RedisAddr
}

func (s Storage) GetRedisPassword() string {
	return s.s.RedisPassword
}

func (s Storage) GetRedisDB() int {
	return s.s.RedisDB
}

func (s Storage) GetSQLitePath() string {
	return s.s.SQLitePath
}

func (s Storage) GetSessionTTL() time.Duration {
	return s.s.SessionTTL
}
