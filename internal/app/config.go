package app

import (
	"strings"
	"time"

	"github.com/leadforge/truthtable-backend/internal/pkg/logger"
	"github.com/leadforge/truthtable-backend/internal/utils"
)

type Config struct {
	Port        string
	CORSOrigins []string

	// DatabaseURL selects Postgres when set; otherwise SQLitePath is used.
	DatabaseURL string
	SQLitePath  string

	// AliasFile optionally extends the built-in column alias table.
	AliasFile string

	ApolloAPIKey         string
	ApolloBaseURL        string
	ApolloBatchSize      int
	ApolloTimeout        time.Duration
	ApolloMaxRetries     int
	ApolloInitialBackoff time.Duration
	ApolloMaxBackoff     time.Duration

	MaxFileSizeMB   int
	MaxRows         int
	EnrichPeople    bool
	EnrichCompanies bool
}

func LoadConfig(log *logger.Logger) Config {
	corsRaw := utils.GetEnv("CORS_ORIGINS", "http://localhost:3000", log)
	var origins []string
	for _, o := range strings.Split(corsRaw, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}

	return Config{
		Port:        utils.GetEnv("PORT", "8080", log),
		CORSOrigins: origins,

		DatabaseURL: utils.GetEnv("DATABASE_URL", "", log),
		SQLitePath:  utils.GetEnv("DB_PATH", "truth.db", log),

		AliasFile: utils.GetEnv("COLUMN_ALIAS_FILE", "", log),

		ApolloAPIKey:         utils.GetEnv("APOLLO_API_KEY", "", nil),
		ApolloBaseURL:        utils.GetEnv("APOLLO_BASE_URL", "https://api.apollo.io/api/v1", log),
		ApolloBatchSize:      utils.GetEnvAsInt("APOLLO_BATCH_SIZE", 10, log),
		ApolloTimeout:        time.Duration(utils.GetEnvAsInt("APOLLO_TIMEOUT_SECONDS", 30, log)) * time.Second,
		ApolloMaxRetries:     utils.GetEnvAsInt("APOLLO_MAX_RETRIES", 5, log),
		ApolloInitialBackoff: time.Duration(utils.GetEnvAsFloat("APOLLO_INITIAL_BACKOFF_SECONDS", 1.0, log) * float64(time.Second)),
		ApolloMaxBackoff:     time.Duration(utils.GetEnvAsFloat("APOLLO_MAX_BACKOFF_SECONDS", 60.0, log) * float64(time.Second)),

		MaxFileSizeMB:   utils.GetEnvAsInt("MAX_FILE_SIZE_MB", 50, log),
		MaxRows:         utils.GetEnvAsInt("MAX_ROWS", 0, log),
		EnrichPeople:    utils.GetEnvAsBool("ENABLE_PEOPLE_ENRICHMENT", true, log),
		EnrichCompanies: utils.GetEnvAsBool("ENABLE_COMPANY_ENRICHMENT", true, log),
	}
}
