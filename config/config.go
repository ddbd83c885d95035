package config

import (
	"encoding/json"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// AppConfig holds environment driven configuration values.
// Sensitive data should never have defaults inside code and must be provided via config files or the environment.
type AppConfig struct {
	AppPort            string
	JWTSecret          string
	JWTUserClaim       string
	RateLimitPerMinute int
	AllowedOrigins     []string
	// Gin framework configuration
	GinMode string
	GinPath string
	// Database
	DBDriver    string
	DatabaseURI string
	DBHost      string
	DBPort      string
	DBUser      string
	DBPassword  string
	DBName      string
	DBPath      string
	// Redis for list caching
	RedisHost       string
	RedisPort       int
	RedisDB         int
	RedisPassword   string
	ListCacheTTLSec int // list cache is enabled only when positive
	// Object storage for attachments
	StorageDriver        string
	StorageEndpoint      string
	StorageRegion        string
	StorageAccessKey     string
	StorageSecretKey     string
	StorageBucket        string
	StoragePublicBaseURL string
	StorageLocalRoot     string
	BoardPathPrefix      string
	// Upload limits
	UploadTimeoutSec  int
	UploadConcurrency int
	MaxUploadSizeMB   int
	MaxFilesPerPost   int
	// Logging configuration
	LogLevel      string
	LogPath       string
	LogMaxSizeMB  int
	LogMaxBackups int
	LogMaxAgeDays int
	LogCompress   bool
}

var cfg AppConfig
var loaded bool

// Load loads the application configuration. It should be called once during boot.
func Load() AppConfig {
	if loaded {
		return cfg
	}

	// Precedence: config/config.json -> defaults -> environment variable overrides
	if err := loadJSONConfig(filepath.Join("config", "config.json"), &cfg); err != nil {
		log.Fatalf("invalid config/config.json: %v", err)
	}
	applyDefaults(&cfg)
	applyEnvOverrides(&cfg)
	resolveDerived(&cfg)

	if cfg.JWTSecret == "" {
		log.Fatal("JWT_SECRET must be set in environment variables")
	}

	loaded = true
	return cfg
}

// Get returns the cached configuration, loading it if necessary.
func Get() AppConfig {
	if !loaded {
		return Load()
	}
	return cfg
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

// loadJSONConfig reads JSON file into out if present. Returns error only for invalid JSON.
func loadJSONConfig(path string, out *AppConfig) error {
	f, err := os.Open(path)
	if err != nil {
		return nil // silently ignore missing file
	}
	defer f.Close()

	var raw map[string]any
	if err := json.NewDecoder(f).Decode(&raw); err != nil {
		return err
	}

	getString := func(m map[string]any, key string) string {
		if v, ok := m[key]; ok {
			if s, ok := v.(string); ok {
				return s
			}
		}
		return ""
	}
	getInt := func(m map[string]any, key string) int {
		if v, ok := m[key]; ok {
			switch t := v.(type) {
			case float64:
				return int(t)
			case int:
				return t
			}
		}
		return 0
	}
	getBool := func(m map[string]any, key string) bool {
		if v, ok := m[key]; ok {
			if b, ok := v.(bool); ok {
				return b
			}
		}
		return false
	}
	getStringSlice := func(m map[string]any, key string) []string {
		if v, ok := m[key]; ok {
			if arr, ok := v.([]any); ok {
				res := make([]string, 0, len(arr))
				for _, it := range arr {
					if s, ok := it.(string); ok {
						res = append(res, s)
					}
				}
				return res
			}
		}
		return nil
	}

	if app, ok := raw["app"].(map[string]any); ok {
		out.AppPort = getString(app, "AppPort")
		out.JWTSecret = getString(app, "JWTSecret")
		out.JWTUserClaim = getString(app, "JWTUserClaim")
		out.RateLimitPerMinute = getInt(app, "RateLimitPerMinute")
		if list := getStringSlice(app, "AllowedOrigins"); len(list) > 0 {
			out.AllowedOrigins = list
		}
	}

	if g, ok := raw["gin"].(map[string]any); ok {
		out.GinMode = getString(g, "Mode")
		out.GinPath = getString(g, "LogPath")
	}

	if dbs, ok := raw["database"].(map[string]any); ok {
		out.DBDriver = getString(dbs, "Driver")
		out.DatabaseURI = getString(dbs, "DatabaseURI")
		out.DBHost = getString(dbs, "DBHost")
		out.DBPort = getString(dbs, "DBPort")
		out.DBUser = getString(dbs, "DBUser")
		out.DBPassword = getString(dbs, "DBPassword")
		out.DBName = getString(dbs, "DBName")
		out.DBPath = getString(dbs, "DBPath")
	}

	if rds, ok := raw["redis"].(map[string]any); ok {
		out.RedisHost = getString(rds, "RedisHost")
		out.RedisPort = getInt(rds, "RedisPort")
		out.RedisDB = getInt(rds, "RedisDB")
		out.RedisPassword = getString(rds, "RedisPassword")
		out.ListCacheTTLSec = getInt(rds, "ListCacheTTLSec")
	}

	if st, ok := raw["storage"].(map[string]any); ok {
		out.StorageDriver = getString(st, "Driver")
		out.StorageEndpoint = getString(st, "Endpoint")
		out.StorageRegion = getString(st, "Region")
		out.StorageAccessKey = getString(st, "AccessKey")
		out.StorageSecretKey = getString(st, "SecretKey")
		out.StorageBucket = getString(st, "Bucket")
		out.StoragePublicBaseURL = getString(st, "PublicBaseURL")
		out.StorageLocalRoot = getString(st, "LocalRoot")
		out.BoardPathPrefix = getString(st, "BoardPathPrefix")
		out.UploadTimeoutSec = getInt(st, "UploadTimeoutSec")
		out.UploadConcurrency = getInt(st, "UploadConcurrency")
		out.MaxUploadSizeMB = getInt(st, "MaxUploadSizeMB")
		out.MaxFilesPerPost = getInt(st, "MaxFilesPerPost")
	}

	if lg, ok := raw["log"].(map[string]any); ok {
		out.LogLevel = getString(lg, "Level")
		out.LogPath = getString(lg, "Path")
		out.LogMaxSizeMB = getInt(lg, "MaxSizeMB")
		out.LogMaxBackups = getInt(lg, "MaxBackups")
		out.LogMaxAgeDays = getInt(lg, "MaxAgeDays")
		out.LogCompress = getBool(lg, "Compress")
	}

	return nil
}

// applyDefaults fills zero values with sensible defaults.
func applyDefaults(c *AppConfig) {
	if c.AppPort == "" {
		c.AppPort = "8080"
	}
	if c.JWTUserClaim == "" {
		c.JWTUserClaim = "userNo"
	}
	if c.GinMode == "" {
		c.GinMode = "release"
	}
	if c.GinPath == "" {
		c.GinPath = "logs/go_gin.log"
	}
	if c.RateLimitPerMinute == 0 {
		c.RateLimitPerMinute = 60
	}
	if len(c.AllowedOrigins) == 0 {
		c.AllowedOrigins = []string{"*"}
	}
	if c.DBDriver == "" {
		c.DBDriver = "mysql"
	}
	if c.DBHost == "" {
		c.DBHost = "127.0.0.1"
	}
	if c.DBPort == "" {
		c.DBPort = "3306"
	}
	if c.DBUser == "" {
		c.DBUser = "root"
	}
	if c.DBName == "" {
		c.DBName = "bbsboard"
	}
	if c.DBPath == "" {
		c.DBPath = "bbsboard.db"
	}
	if c.RedisHost == "" {
		c.RedisHost = "127.0.0.1"
	}
	if c.RedisPort == 0 {
		c.RedisPort = 6379
	}
	if c.StorageDriver == "" {
		c.StorageDriver = "local"
	}
	if c.StorageRegion == "" {
		c.StorageRegion = "kr-standard"
	}
	if c.StorageBucket == "" {
		c.StorageBucket = "bitcamp-nc7-bucket-118"
	}
	if c.StorageLocalRoot == "" {
		c.StorageLocalRoot = "./static/uploads"
	}
	if c.BoardPathPrefix == "" {
		c.BoardPathPrefix = "board/"
	}
	if c.UploadTimeoutSec == 0 {
		c.UploadTimeoutSec = 30
	}
	if c.UploadConcurrency == 0 {
		c.UploadConcurrency = 4
	}
	if c.MaxUploadSizeMB == 0 {
		c.MaxUploadSizeMB = 50
	}
	if c.MaxFilesPerPost == 0 {
		c.MaxFilesPerPost = 10
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.LogMaxSizeMB == 0 {
		c.LogMaxSizeMB = 100
	}
	if c.LogMaxBackups == 0 {
		c.LogMaxBackups = 3
	}
	if c.LogMaxAgeDays == 0 {
		c.LogMaxAgeDays = 7
	}
}

// resolveDerived fills values that depend on other settings once every source has been applied.
func resolveDerived(c *AppConfig) {
	if c.StoragePublicBaseURL == "" {
		if c.StorageDriver == "s3" && c.StorageEndpoint != "" {
			c.StoragePublicBaseURL = c.StorageEndpoint
		} else {
			c.StoragePublicBaseURL = "/static/uploads"
		}
	}
	c.StoragePublicBaseURL = strings.TrimRight(c.StoragePublicBaseURL, "/")
	if c.BoardPathPrefix != "" && !strings.HasSuffix(c.BoardPathPrefix, "/") {
		c.BoardPathPrefix += "/"
	}
}

// applyEnvOverrides maps known environment variables onto config values when present.
func applyEnvOverrides(c *AppConfig) {
	strVars := map[string]*string{
		"APP_PORT":                &c.AppPort,
		"JWT_SECRET":              &c.JWTSecret,
		"JWT_USER_CLAIM":          &c.JWTUserClaim,
		"GIN_MODE":                &c.GinMode,
		"GIN_PATH":                &c.GinPath,
		"DB_DRIVER":               &c.DBDriver,
		"DATABASE_URI":            &c.DatabaseURI,
		"DB_HOST":                 &c.DBHost,
		"DB_PORT":                 &c.DBPort,
		"DB_USER":                 &c.DBUser,
		"DB_PASSWORD":             &c.DBPassword,
		"DB_NAME":                 &c.DBName,
		"DB_PATH":                 &c.DBPath,
		"REDIS_HOST":              &c.RedisHost,
		"REDIS_PASSWORD":          &c.RedisPassword,
		"STORAGE_DRIVER":          &c.StorageDriver,
		"STORAGE_ENDPOINT":        &c.StorageEndpoint,
		"STORAGE_REGION":          &c.StorageRegion,
		"STORAGE_ACCESS_KEY":      &c.StorageAccessKey,
		"STORAGE_SECRET_KEY":      &c.StorageSecretKey,
		"STORAGE_BUCKET":          &c.StorageBucket,
		"STORAGE_PUBLIC_BASE_URL": &c.StoragePublicBaseURL,
		"STORAGE_LOCAL_ROOT":      &c.StorageLocalRoot,
		"BOARD_PATH_PREFIX":       &c.BoardPathPrefix,
		"LOG_LEVEL":               &c.LogLevel,
		"LOG_PATH":                &c.LogPath,
	}
	for key, dst := range strVars {
		if v := getEnv(key, ""); v != "" {
			*dst = v
		}
	}

	intVars := map[string]*int{
		"RATE_LIMIT_PER_MINUTE": &c.RateLimitPerMinute,
		"REDIS_PORT":            &c.RedisPort,
		"REDIS_DB":              &c.RedisDB,
		"LIST_CACHE_TTL_SEC":    &c.ListCacheTTLSec,
		"UPLOAD_TIMEOUT_SEC":    &c.UploadTimeoutSec,
		"UPLOAD_CONCURRENCY":    &c.UploadConcurrency,
		"MAX_UPLOAD_SIZE_MB":    &c.MaxUploadSizeMB,
		"MAX_FILES_PER_POST":    &c.MaxFilesPerPost,
		"LOG_MAX_SIZE_MB":       &c.LogMaxSizeMB,
		"LOG_MAX_BACKUPS":       &c.LogMaxBackups,
		"LOG_MAX_AGE_DAYS":      &c.LogMaxAgeDays,
	}
	for key, dst := range intVars {
		if v := getEnv(key, ""); v != "" {
			*dst = mustParseInt(v)
		}
	}

	if v := getEnv("LOG_COMPRESS", ""); v != "" {
		c.LogCompress = v == "true"
	}
	if v := getEnv("CORS_ALLOWED_ORIGINS", ""); v != "" {
		c.AllowedOrigins = splitAndTrim(v)
	}
}

func mustParseInt(val string) int {
	i, err := strconv.Atoi(val)
	if err != nil {
		log.Fatalf("invalid integer value %s: %v", val, err)
	}
	return i
}

func splitAndTrim(raw string) []string {
	items := []string{}
	for _, item := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(item); trimmed != "" {
			items = append(items, trimmed)
		}
	}
	return items
}
