package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// SitePrefix maps user IDs starting with Prefix to Site.
type SitePrefix struct {
	Prefix string
	Site   string
}

type Config struct {
	ListenAddr string

	DocstoreBackend string
	DBPath          string
	PostgresDSN     string
	MongoURI        string
	MongoDatabase   string

	BlobBackend       string
	BlobLocalPath     string
	BlobPublicURL     string
	S3Bucket          string
	S3Region          string
	S3Endpoint        string
	S3PathStyle       bool
	S3AccessKeyID     string
	S3SecretAccessKey string

	LabelReader  string
	ClaudeAPIKey string
	ClaudeModel  string
	OllamaHost   string
	OllamaModel  string

	SessionSecret     string
	SessionTTL        time.Duration
	SessionSecure     bool
	AdminPasswordHash string
	SitePrefixes      []SitePrefix

	Location                *time.Location
	ImageMaxDimension       int
	PendingTTL              time.Duration
	CleanupAbandonedUploads bool

	LogLevel string
	LogFile  string
}

// Load reads the configuration from the environment, falling back to a .env
// file in the working directory and then to defaults.
func Load() (*Config, error) {
	return LoadFile(".env")
}

// LoadFile is Load with an explicit dotenv path. A missing file is not an
// error. Values from the file never override the process environment.
func LoadFile(dotenv string) (*Config, error) {
	file, err := godotenv.Read(dotenv)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to read %s: %w", dotenv, err)
	}
	e := env{file: file}

	cfg := &Config{
		ListenAddr: e.get("LISTEN_ADDR", ":8080"),

		DocstoreBackend: e.get("DOCSTORE_BACKEND", "sqlite"),
		DBPath:          e.get("DB_PATH", "/data/fgsamples.db"),
		PostgresDSN:     e.get("POSTGRES_DSN", ""),
		MongoURI:        e.get("MONGODB_URI", "mongodb://localhost:27017"),
		MongoDatabase:   e.get("MONGODB_DATABASE", "fgsamples"),

		BlobBackend:       e.get("BLOB_BACKEND", "local"),
		BlobLocalPath:     e.get("BLOB_LOCAL_PATH", "/data/photos"),
		BlobPublicURL:     e.get("BLOB_PUBLIC_URL", ""),
		S3Bucket:          e.get("S3_BUCKET", ""),
		S3Region:          e.get("S3_REGION", "us-east-1"),
		S3Endpoint:        e.get("S3_ENDPOINT", ""),
		S3AccessKeyID:     e.get("S3_ACCESS_KEY_ID", ""),
		S3SecretAccessKey: e.get("S3_SECRET_ACCESS_KEY", ""),

		LabelReader:  e.get("LABEL_READER", "none"),
		ClaudeAPIKey: e.get("CLAUDE_API_KEY", ""),
		ClaudeModel:  e.get("CLAUDE_MODEL", "claude-sonnet-4-5"),
		OllamaHost:   e.get("OLLAMA_HOST", "http://localhost:11434"),
		OllamaModel:  e.get("OLLAMA_MODEL", "llava"),

		SessionSecret:     e.get("SESSION_SECRET", ""),
		AdminPasswordHash: e.get("ADMIN_PASSWORD_HASH", ""),

		LogLevel: e.get("LOG_LEVEL", "info"),
		LogFile:  e.get("LOG_FILE", ""),
	}

	var errs []error
	cfg.S3PathStyle = e.boolean("S3_PATH_STYLE", false, &errs)
	cfg.SessionTTL = e.duration("SESSION_TTL", 12*time.Hour, &errs)
	cfg.SessionSecure = e.boolean("SESSION_SECURE", false, &errs)
	cfg.ImageMaxDimension = e.integer("IMAGE_MAX_DIMENSION", 0, &errs)
	cfg.PendingTTL = e.duration("PENDING_TTL", 15*time.Minute, &errs)
	cfg.CleanupAbandonedUploads = e.boolean("CLEANUP_ABANDONED_UPLOADS", false, &errs)

	prefixes, err := ParseSitePrefixes(e.get("SITE_PREFIXES", "mqtkajang:kajang,mqtsubang:subang"))
	if err != nil {
		errs = append(errs, err)
	}
	cfg.SitePrefixes = prefixes

	loc, err := time.LoadLocation(e.get("TIMEZONE", "Asia/Kuala_Lumpur"))
	if err != nil {
		errs = append(errs, fmt.Errorf("TIMEZONE: %w", err))
	}
	cfg.Location = loc

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that the selected backends have what they need.
func (c *Config) Validate() error {
	var errs []error
	switch c.DocstoreBackend {
	case "sqlite":
	case "postgres":
		if c.PostgresDSN == "" {
			errs = append(errs, errors.New("POSTGRES_DSN is required when DOCSTORE_BACKEND=postgres"))
		}
	case "mongo":
		if c.MongoURI == "" {
			errs = append(errs, errors.New("MONGODB_URI is required when DOCSTORE_BACKEND=mongo"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown DOCSTORE_BACKEND %q", c.DocstoreBackend))
	}
	switch c.BlobBackend {
	case "local":
	case "s3":
		if c.S3Bucket == "" {
			errs = append(errs, errors.New("S3_BUCKET is required when BLOB_BACKEND=s3"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown BLOB_BACKEND %q", c.BlobBackend))
	}
	switch c.LabelReader {
	case "none", "ollama":
	case "claude":
		if c.ClaudeAPIKey == "" {
			errs = append(errs, errors.New("CLAUDE_API_KEY is required when LABEL_READER=claude"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown LABEL_READER %q", c.LabelReader))
	}
	if len(c.SessionSecret) < 32 {
		errs = append(errs, errors.New("SESSION_SECRET must be at least 32 characters"))
	}
	return errors.Join(errs...)
}

// ParseSitePrefixes parses "prefix:site,prefix:site". Prefixes are
// lower-cased and keep their order.
func ParseSitePrefixes(s string) ([]SitePrefix, error) {
	var out []SitePrefix
	for _, pair := range strings.Split(s, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		prefix, site, ok := strings.Cut(pair, ":")
		prefix, site = strings.TrimSpace(prefix), strings.TrimSpace(site)
		if !ok || prefix == "" || site == "" {
			return nil, fmt.Errorf("SITE_PREFIXES: invalid entry %q", pair)
		}
		out = append(out, SitePrefix{Prefix: strings.ToLower(prefix), Site: site})
	}
	if len(out) == 0 {
		return nil, errors.New("SITE_PREFIXES: no sites configured")
	}
	return out, nil
}

type env struct {
	file map[string]string
}

func (e env) get(key, defaultVal string) string {
	if val, exists := os.LookupEnv(key); exists {
		return val
	}
	if val, exists := e.file[key]; exists {
		return val
	}
	return defaultVal
}

func (e env) boolean(key string, defaultVal bool, errs *[]error) bool {
	raw := e.get(key, "")
	if raw == "" {
		return defaultVal
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return defaultVal
	}
	return v
}

func (e env) integer(key string, defaultVal int, errs *[]error) int {
	raw := e.get(key, "")
	if raw == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		*errs = append(*errs, fmt.Errorf("%s: want a non-negative integer, got %q", key, raw))
		return defaultVal
	}
	return v
}

func (e env) duration(key string, defaultVal time.Duration, errs *[]error) time.Duration {
	raw := e.get(key, "")
	if raw == "" {
		return defaultVal
	}
	v, err := time.ParseDuration(raw)
	if err != nil || v <= 0 {
		*errs = append(*errs, fmt.Errorf("%s: want a positive duration, got %q", key, raw))
		return defaultVal
	}
	return v
}
