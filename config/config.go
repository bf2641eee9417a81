package config

type StorageType string

const STORAGE_TYPE_POSTGRES StorageType = "postgres"
const STORAGE_TYPE_INMEM StorageType = "memory"

type Config struct {
	PostgresConfig   PostgresConfig
	RedisConfig      RedisConfig
	HttpPort         int
	StorageType      StorageType
	PollIntervalSec  int
	ProcessBatchSize int
	TemplateCacheTTL int
}

type PostgresConfig struct {
	URL string
}

type RedisConfig struct {
	Addrs     []string
	Namespace string
}
