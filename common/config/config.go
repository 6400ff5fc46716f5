package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

func getEnv(key, defaultValue string) string {
	value, exists := os.LookupEnv(key)
	if !exists {
		return defaultValue
	}
	return value
}

func loadEnvString(key string, result *string) {
	s, ok := os.LookupEnv(key)

	if !ok {
		return
	}
	*result = s
}

func loadEnvUint(key string, result *uint) {
	s, ok := os.LookupEnv(key)

	if !ok {
		return
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return
	}
	*result = uint(n)
}

func loadEnvInt(key string, result *int) {
	s, ok := os.LookupEnv(key)

	if !ok {
		return
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return
	}
	*result = n
}

func loadEnvFloat(key string, result *float64) {
	s, ok := os.LookupEnv(key)

	if !ok {
		return
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return
	}
	*result = f
}

func loadEnvBool(key string, result *bool) {
	s, ok := os.LookupEnv(key)

	if !ok {
		return
	}
	switch s {
	case "true", "1", "t":
		*result = true
	case "false", "0", "f":
		*result = false
	}
}

func loadEnvSeconds(key string, result *time.Duration) {
	s, ok := os.LookupEnv(key)

	if !ok {
		return
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return
	}
	*result = time.Duration(n) * time.Second
}

/* Configuration */

/* PgSQL Configuration */
type pgSqlConfig struct {
	Host     string `json:"host"`
	Port     uint   `json:"port"`
	Database string `json:"database"`
	SslMode  string `json:"ssl_mode"`
	User     string `json:"user"`
	Password string `json:"password"`
}

func (p pgSqlConfig) ConnStr() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s database=%s sslmode=%s", p.Host, p.Port, p.User, p.Password, p.Database, p.SslMode)
}

func defaultPgSql() pgSqlConfig {
	return pgSqlConfig{
		Host:     "localhost",
		Port:     5432,
		Database: "database",
		User:     "",
		Password: "",
		SslMode:  "disable",
	}
}

func (p *pgSqlConfig) loadFromEnv() {
	loadEnvString("POSTGRES_HOST", &p.Host)
	loadEnvUint("POSTGRES_PORT", &p.Port)
	loadEnvString("POSTGRES_DB_NAME", &p.Database)
	loadEnvString("POSTGRES_SSLMODE", &p.SslMode)
	loadEnvString("POSTGRES_USERNAME", &p.User)
	loadEnvString("POSTGRES_PASSWORD", &p.Password)
}

/* Listen Configuration */

type listenConfig struct {
	Host string `json:"host"`
	Port uint   `json:"port"`
}

func (l listenConfig) Addr() string {
	return fmt.Sprintf("%s:%d", l.Host, l.Port)
}

func defaultListenConfig() listenConfig {
	return listenConfig{
		Host: "127.0.0.1",
		Port: 8080,
	}
}

func (l *listenConfig) loadFromEnv() {
	loadEnvString("LISTEN_HOST", &l.Host)
	loadEnvUint("LISTEN_PORT", &l.Port)
}

/* NATS Configuration */

type natsConfig struct {
	Host     string
	Port     uint
	Username string
	Password string
}

func (c *natsConfig) loadFromEnv() {
	loadEnvString("NATS_HOST", &c.Host)
	loadEnvUint("NATS_PORT", &c.Port)
	c.Username = getEnv("NATS_USER", "")
	c.Password = getEnv("NATS_PASSWORD", "")
}

func (c *natsConfig) URL() string {
	return fmt.Sprintf("nats://%s:%d", c.Host, c.Port)
}

func defaultNatsConfig() natsConfig {
	return natsConfig{
		Host:     "localhost",
		Port:     4222,
		Username: "",
		Password: "",
	}
}

/* Redis Configuration */

type redisConfig struct {
	Host     string `json:"host"`
	Port     uint   `json:"port"`
	Password string `json:"password"`
	DB       int    `json:"db"`
}

func (r *redisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

func (r *redisConfig) loadFromEnv() {
	loadEnvString("REDIS_HOST", &r.Host)
	loadEnvUint("REDIS_PORT", &r.Port)
	loadEnvString("REDIS_PASSWORD", &r.Password)
	loadEnvInt("REDIS_DB", &r.DB)
}

func defaultRedisConfig() redisConfig {
	return redisConfig{
		Host:     "localhost",
		Port:     6379,
		Password: "",
		DB:       0,
	}
}

/* GCS Configuration */

type GCSConfig struct {
	ProjectID       string
	CredentialsFile string
	Bucket          string
}

func (g *GCSConfig) loadFromEnv() {
	g.ProjectID = getEnv("GCS_PROJECT_ID", "")
	g.CredentialsFile = getEnv("GCS_CREDENTIALS_FILE", "")
	g.Bucket = getEnv("GCS_STORAGE_BUCKET", "")
}

func defaultGcsConfig() GCSConfig {
	return GCSConfig{
		ProjectID:       "",
		CredentialsFile: "",
		Bucket:          "",
	}
}

/* Crawl pipeline configuration */

// CrawlConfig bounds sitemap discovery, job publishing and the scrape workers.
type CrawlConfig struct {
	LimitSources            int
	LimitSubSitemaps        int
	LimitPagesPerSubSitemap int
	TimeBudget              time.Duration
	FetchTimeout            time.Duration
	BatchSize               int
	QuiescenceChecks        int
	QuiescenceSleep         time.Duration
	MainLoopSleep           time.Duration
	WorkerCount             int
	Renderer                string // "http" or "rod"
	LanguageExclusions      []string
}

func (c *CrawlConfig) loadFromEnv() {
	loadEnvInt("LIMIT_SOURCES", &c.LimitSources)
	loadEnvInt("LIMIT_SUBSITEMAPS_PER_SOURCE", &c.LimitSubSitemaps)
	loadEnvInt("LIMIT_PAGES_PER_SUBSITEMAP", &c.LimitPagesPerSubSitemap)
	loadEnvSeconds("TIME_BUDGET_SEC", &c.TimeBudget)
	loadEnvSeconds("FETCH_TIMEOUT_SEC", &c.FetchTimeout)
	loadEnvInt("PUBLISH_BATCH_SIZE", &c.BatchSize)
	loadEnvInt("QUIESCENCE_CHECKS", &c.QuiescenceChecks)
	loadEnvSeconds("QUIESCENCE_SLEEP_SECONDS", &c.QuiescenceSleep)
	loadEnvSeconds("MAIN_LOOP_SLEEP_SECONDS", &c.MainLoopSleep)
	loadEnvInt("SCRAPE_WORKER_COUNT", &c.WorkerCount)
	loadEnvString("FETCH_RENDERER", &c.Renderer)
}

func defaultCrawlConfig() CrawlConfig {
	return CrawlConfig{
		LimitSources:            2,
		LimitSubSitemaps:        5,
		LimitPagesPerSubSitemap: 200,
		TimeBudget:              240 * time.Second,
		FetchTimeout:            30 * time.Second,
		BatchSize:               100,
		QuiescenceChecks:        3,
		QuiescenceSleep:         15 * time.Second,
		MainLoopSleep:           60 * time.Second,
		WorkerCount:             4,
		Renderer:                "http",
	}
}

/* Chunking configuration */

type ChunkingConfig struct {
	ChunkSizeTokens int
	OverlapFraction float64
	ForceReparse    bool
}

func (c *ChunkingConfig) loadFromEnv() {
	loadEnvInt("CHUNK_SIZE_TOKENS", &c.ChunkSizeTokens)
	loadEnvFloat("OVERLAP_FRACTION", &c.OverlapFraction)
	loadEnvBool("FORCE_REPARSE", &c.ForceReparse)
}

func defaultChunkingConfig() ChunkingConfig {
	return ChunkingConfig{
		ChunkSizeTokens: 800,
		OverlapFraction: 0.5,
		ForceReparse:    false,
	}
}

type Config struct {
	Listen   listenConfig
	PgSql    pgSqlConfig
	Nats     natsConfig
	Redis    redisConfig
	GCS      GCSConfig
	Crawl    CrawlConfig
	Chunking ChunkingConfig
}

func (c *Config) LoadFromEnv() {
	c.Listen.loadFromEnv()
	c.PgSql.loadFromEnv()
	c.Nats.loadFromEnv()
	c.Redis.loadFromEnv()
	c.GCS.loadFromEnv()
	c.Crawl.loadFromEnv()
	c.Chunking.loadFromEnv()
}

func DefaultConfig() Config {
	return Config{
		Listen:   defaultListenConfig(),
		PgSql:    defaultPgSql(),
		Nats:     defaultNatsConfig(),
		Redis:    defaultRedisConfig(),
		GCS:      defaultGcsConfig(),
		Crawl:    defaultCrawlConfig(),
		Chunking: defaultChunkingConfig(),
	}
}
