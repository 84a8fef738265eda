package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"retro-backend/internal/models"
)

// Storage backends
const (
	BackendSQL       = "sql"
	BackendFirestore = "firestore"
)

type Config struct {
	Server struct {
		Port string
		Host string
		TLS  struct {
			Enabled  bool
			CertFile string
			KeyFile  string
		}
		// Allowed CORS origins, empty allows any
		AllowOrigins []string
		// Submissions allowed per client IP per hour, 0 disables the limit
		SubmissionRateLimit int
		// Take the client IP from X-Forwarded-For; only behind a trusted proxy
		TrustProxy bool
	}
	Auth struct {
		JWTSecret string
		// bcrypt hash of the scrum master / admin password
		AdminPasswordHash string
	}
	Database struct {
		Backend  string
		DSN      string
		RedisURI string
	}
	Firestore struct {
		ProjectID       string
		CredentialsFile string
	}
	Sentry struct {
		DSN string
	}
	Survey struct {
		QuestionSet string
		Sprints     []string
		Teams       []string
		Anonymous   bool
		TrackRole   bool
		Comments    bool
	}
}

func Load() (*Config, error) {

	envStack := os.Getenv("ENV_STACK")

	if envStack != "" {
		filePath := "./env-files/.env." + envStack
		err := godotenv.Load(
			filePath)
		if err != nil {
			fmt.Printf("Error loading .env file: %s\n", err)
		}
	}

	c := &Config{}

	c.Server.Port = os.Getenv("SERVER_PORT")
	if c.Server.Port == "" {
		c.Server.Port = "1926"
	}

	c.Server.Host = os.Getenv("SERVER_HOST")
	if c.Server.Host == "" {
		c.Server.Host = "localhost"
	}

	// TLS Configuration
	useTLS := os.Getenv("USE_TLS")
	c.Server.TLS.Enabled = useTLS == "true" || useTLS == "1"
	c.Server.TLS.CertFile = envOr("TLS_CERT_FILE", "./certs/localhost.pem")
	c.Server.TLS.KeyFile = envOr("TLS_KEY_FILE", "./certs/localhost-key.pem")

	c.Server.AllowOrigins = splitList(os.Getenv("CORS_ALLOW_ORIGINS"))

	c.Server.SubmissionRateLimit = 30
	if v := os.Getenv("SUBMISSION_RATE_LIMIT"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 0 {
			return c, fmt.Errorf("SUBMISSION_RATE_LIMIT should be a non-negative integer, got %q", v)
		}
		c.Server.SubmissionRateLimit = limit
	}

	c.Server.TrustProxy = envBool("TRUST_PROXY", false)

	c.Auth.JWTSecret = os.Getenv("JWT_SECRET")
	c.Auth.AdminPasswordHash = os.Getenv("ADMIN_PASSWORD_HASH")

	c.Database.Backend = strings.ToLower(envOr("STORAGE_BACKEND", BackendSQL))
	c.Database.DSN = os.Getenv("DATABASE_DSN")
	c.Database.RedisURI = os.Getenv("REDIS_URI")

	c.Firestore.ProjectID = os.Getenv("FIRESTORE_PROJECT_ID")
	c.Firestore.CredentialsFile = os.Getenv("FIRESTORE_CREDENTIALS_FILE")

	c.Sentry.DSN = os.Getenv("SENTRY_DSN")

	// Existing Firestore collections hold the eight-question survey
	defaultQuestionSet := models.QuestionSetExtended
	if c.Database.Backend == BackendFirestore {
		defaultQuestionSet = models.QuestionSetCore
	}
	c.Survey.QuestionSet = envOr("SURVEY_QUESTION_SET", defaultQuestionSet)
	c.Survey.Sprints = splitList(os.Getenv("SURVEY_SPRINTS"))
	c.Survey.Teams = splitList(os.Getenv("SURVEY_TEAMS"))
	c.Survey.Anonymous = envBool("SURVEY_ANONYMOUS", false)
	c.Survey.TrackRole = envBool("SURVEY_TRACK_ROLE", true)
	c.Survey.Comments = envBool("SURVEY_COMMENTS", true)

	if err := c.Validate(); err != nil {
		return c, err
	}

	return c, nil
}

// Validate checks the settings the server cannot start without
func (c *Config) Validate() error {
	switch c.Database.Backend {
	case BackendSQL:
		if c.Database.DSN == "" {
			return fmt.Errorf("DATABASE_DSN is required for the %s backend", BackendSQL)
		}
	case BackendFirestore:
		if c.Firestore.ProjectID == "" {
			return fmt.Errorf("FIRESTORE_PROJECT_ID is required for the %s backend", BackendFirestore)
		}
	default:
		return fmt.Errorf("unknown STORAGE_BACKEND %q, expected %s or %s", c.Database.Backend, BackendSQL, BackendFirestore)
	}

	if _, err := models.QuestionSet(c.Survey.QuestionSet); err != nil {
		return fmt.Errorf("SURVEY_QUESTION_SET: %w", err)
	}

	if c.Auth.AdminPasswordHash != "" && !strings.HasPrefix(c.Auth.AdminPasswordHash, "$2") {
		return fmt.Errorf("ADMIN_PASSWORD_HASH should be a bcrypt hash starting with '$2'")
	}

	return nil
}

// Schema builds the deployment survey from the survey settings
func (c *Config) Schema() (models.Schema, error) {
	schema, err := models.NewSchema(c.Survey.QuestionSet)
	if err != nil {
		return models.Schema{}, err
	}
	if len(c.Survey.Sprints) > 0 {
		schema.Sprints = c.Survey.Sprints
	}
	if len(c.Survey.Teams) > 0 {
		schema.Teams = c.Survey.Teams
	}
	schema.Anonymous = c.Survey.Anonymous
	schema.TrackRole = c.Survey.TrackRole
	schema.Comments = c.Survey.Comments
	if !schema.TrackRole {
		schema.Roles = nil
	}
	return schema, nil
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		fmt.Printf("WARNING: %s=%q is not a boolean, using %v\n", key, v, fallback)
		return fallback
	}
	return b
}

// splitList parses a comma separated list, dropping empty items
func splitList(v string) []string {
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
