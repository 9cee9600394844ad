// Package config defines the environment contract for the bot and loads and
// validates it.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

const (
	// Canonical environment variable keys.
	KeyTelegramToken    = "TELEGRAM_TOKEN"
	KeyAdminID          = "ADMIN_ID"
	KeyAppEnv           = "APP_ENV"
	KeyLogLevel         = "LOG_LEVEL"
	KeyHTTPPort         = "HTTP_PORT"
	KeyStoreBackend     = "STORE_BACKEND"
	KeyStateFile        = "STATE_FILE"
	KeyMongoURI         = "MONGO_URI"
	KeyMongoDB          = "MONGO_DB"
	KeyCatalogFile      = "CATALOG_FILE"
	KeyBotLang          = "BOT_LANG"
	KeyAutoApproveJoins = "AUTO_APPROVE_JOINS"

	// Allowed environment values.
	EnvDevelopment = "development"
	EnvProduction  = "production"

	// Allowed store backends.
	BackendFile  = "file"
	BackendMongo = "mongo"

	// Supported bot languages.
	LangUzbek   = "uz"
	LangEnglish = "en"

	// Defaults for optional settings.
	DefaultAppEnv       = EnvProduction
	DefaultLogLevel     = "info"
	DefaultHTTPPort     = 8080
	DefaultStoreBackend = BackendFile
	DefaultStateFile    = "pending.json"
	DefaultBotLang      = LangUzbek
)

// VarSpec describes a single configuration key.
type VarSpec struct {
	Key         string // environment variable name
	Example     string // human-friendly sample value
	Required    bool   // whether the bot must refuse to start without this value
	Default     string // default when unset (empty when required)
	Description string // what the variable controls
	Notes       string // extra guidance or policies
}

// Contract enumerates the authoritative configuration keys for the bot.
// .env loading is only permitted when APP_ENV=development; production must rely
// on environment variables supplied by the runtime.
var Contract = []VarSpec{
	{
		Key:         KeyTelegramToken,
		Example:     "123:ABC",
		Required:    true,
		Description: "Telegram Bot Token issued by BotFather.",
	},
	{
		Key:         KeyAdminID,
		Example:     "6067594310",
		Required:    true,
		Description: "Operator chat id that receives join, confirmation and delivery notices.",
	},
	{
		Key:         KeyAppEnv,
		Example:     EnvDevelopment + " / " + EnvProduction,
		Default:     DefaultAppEnv,
		Description: "Runtime environment; controls log format and dotenv usage.",
		Notes:       "Load .env files only when APP_ENV=" + EnvDevelopment + ".",
	},
	{
		Key:         KeyLogLevel,
		Example:     DefaultLogLevel,
		Default:     DefaultLogLevel,
		Description: "Overrides default log level.",
	},
	{
		Key:         KeyHTTPPort,
		Example:     strconv.Itoa(DefaultHTTPPort),
		Default:     strconv.Itoa(DefaultHTTPPort),
		Description: "HTTP liveness and metrics port.",
	},
	{
		Key:         KeyStoreBackend,
		Example:     BackendFile + " / " + BackendMongo,
		Default:     DefaultStoreBackend,
		Description: "Where pending user state is persisted.",
	},
	{
		Key:         KeyStateFile,
		Example:     DefaultStateFile,
		Default:     DefaultStateFile,
		Description: "JSON state file used by the file backend.",
	},
	{
		Key:         KeyMongoURI,
		Example:     "mongodb://localhost:27017",
		Description: "MongoDB connection string.",
		Notes:       "Required when " + KeyStoreBackend + "=" + BackendMongo + ".",
	},
	{
		Key:         KeyMongoDB,
		Example:     "movie_gate",
		Description: "MongoDB database name.",
		Notes:       "Required when " + KeyStoreBackend + "=" + BackendMongo + ".",
	},
	{
		Key:         KeyCatalogFile,
		Example:     "catalog.yaml",
		Description: "YAML file with required channels and movie codes; the built-in catalog is used when unset.",
	},
	{
		Key:         KeyBotLang,
		Example:     LangUzbek + " / " + LangEnglish,
		Default:     DefaultBotLang,
		Description: "Language of user-facing messages.",
	},
	{
		Key:         KeyAutoApproveJoins,
		Example:     "true",
		Default:     "false",
		Description: "Approve channel join requests as soon as they are observed.",
	},
}

// Config mirrors resolved configuration values after loading.
type Config struct {
	TelegramToken    string
	AdminID          int64
	AppEnv           string
	LogLevel         string
	HTTPPort         int
	StoreBackend     string
	StateFile        string
	MongoURI         string
	MongoDB          string
	CatalogFile      string
	BotLang          string
	AutoApproveJoins bool
}

// Load resolves configuration from the environment (with optional dotenv in development).
func Load() (Config, error) {
	appEnv, err := resolveAppEnv()
	if err != nil {
		return Config{}, err
	}

	if err := loadDotEnv(appEnv); err != nil {
		return Config{}, err
	}

	cfg := Config{
		AppEnv:        firstNonEmpty(normalizeEnv(os.Getenv(KeyAppEnv)), appEnv),
		TelegramToken: strings.TrimSpace(os.Getenv(KeyTelegramToken)),
		LogLevel:      firstNonEmpty(strings.TrimSpace(os.Getenv(KeyLogLevel)), DefaultLogLevel),
		HTTPPort:      DefaultHTTPPort,
		StoreBackend:  firstNonEmpty(normalizeEnv(os.Getenv(KeyStoreBackend)), DefaultStoreBackend),
		StateFile:     firstNonEmpty(os.Getenv(KeyStateFile), DefaultStateFile),
		MongoURI:      strings.TrimSpace(os.Getenv(KeyMongoURI)),
		MongoDB:       strings.TrimSpace(os.Getenv(KeyMongoDB)),
		CatalogFile:   strings.TrimSpace(os.Getenv(KeyCatalogFile)),
		BotLang:       firstNonEmpty(normalizeEnv(os.Getenv(KeyBotLang)), DefaultBotLang),
	}

	if err := validateAppEnv(cfg.AppEnv); err != nil {
		return Config{}, err
	}

	missing := make([]string, 0)

	if cfg.TelegramToken == "" {
		missing = append(missing, KeyTelegramToken)
	}

	adminRaw := strings.TrimSpace(os.Getenv(KeyAdminID))
	if adminRaw == "" {
		missing = append(missing, KeyAdminID)
	} else {
		adminID, parseErr := strconv.ParseInt(adminRaw, 10, 64)
		if parseErr != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", KeyAdminID, parseErr)
		}
		cfg.AdminID = adminID
	}

	switch cfg.StoreBackend {
	case BackendFile:
	case BackendMongo:
		if cfg.MongoURI == "" {
			missing = append(missing, KeyMongoURI)
		}
		if cfg.MongoDB == "" {
			missing = append(missing, KeyMongoDB)
		}
	default:
		return Config{}, fmt.Errorf("invalid %s: must be %q or %q", KeyStoreBackend, BackendFile, BackendMongo)
	}

	if len(missing) > 0 {
		return Config{}, fmt.Errorf("missing required environment variable(s): %s", strings.Join(missing, ", "))
	}

	if cfg.MongoURI != "" {
		if err := validateMongoURI(cfg.MongoURI); err != nil {
			return Config{}, err
		}
	}

	if cfg.BotLang != LangUzbek && cfg.BotLang != LangEnglish {
		return Config{}, fmt.Errorf("invalid %s: must be %q or %q", KeyBotLang, LangUzbek, LangEnglish)
	}

	httpPortRaw := strings.TrimSpace(os.Getenv(KeyHTTPPort))
	if httpPortRaw != "" {
		port, parseErr := strconv.Atoi(httpPortRaw)
		if parseErr != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", KeyHTTPPort, parseErr)
		}
		if port <= 0 {
			return Config{}, fmt.Errorf("%s must be greater than 0", KeyHTTPPort)
		}
		cfg.HTTPPort = port
	}

	if raw := strings.TrimSpace(os.Getenv(KeyAutoApproveJoins)); raw != "" {
		approve, parseErr := strconv.ParseBool(raw)
		if parseErr != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", KeyAutoApproveJoins, parseErr)
		}
		cfg.AutoApproveJoins = approve
	}

	return cfg, nil
}

// IsDevelopment reports if APP_ENV is development.
func (c Config) IsDevelopment() bool {
	return c.AppEnv == EnvDevelopment
}

// UsesMongo reports whether pending state lives in MongoDB.
func (c Config) UsesMongo() bool {
	return c.StoreBackend == BackendMongo
}

// FormatRedacted renders the resolved configuration with secrets masked.
func FormatRedacted(cfg Config) string {
	lines := []string{
		"telegram_token: " + redactToken(cfg.TelegramToken),
		"admin_id: " + strconv.FormatInt(cfg.AdminID, 10),
		"app_env: " + cfg.AppEnv,
		"log_level: " + cfg.LogLevel,
		"http_port: " + strconv.Itoa(cfg.HTTPPort),
		"store_backend: " + cfg.StoreBackend,
		"state_file: " + cfg.StateFile,
		"mongo_uri: " + redactURI(cfg.MongoURI),
		"mongo_db: " + cfg.MongoDB,
		"catalog_file: " + firstNonEmpty(cfg.CatalogFile, "(built-in)"),
		"bot_lang: " + cfg.BotLang,
		"auto_approve_joins: " + strconv.FormatBool(cfg.AutoApproveJoins),
	}

	return strings.Join(lines, "\n")
}

func redactToken(token string) string {
	if token == "" {
		return ""
	}
	if len(token) <= 4 {
		return "...redacted"
	}
	return token[:4] + "...redacted"
}

func redactURI(raw string) string {
	if raw == "" {
		return ""
	}

	parsed, err := url.Parse(raw)
	if err != nil {
		return "(unparseable)"
	}
	parsed.User = nil

	return parsed.String()
}

func validateMongoURI(raw string) error {
	parsed, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", KeyMongoURI, err)
	}
	if parsed.Scheme != "mongodb" && parsed.Scheme != "mongodb+srv" {
		return fmt.Errorf("invalid %s: scheme must be mongodb or mongodb+srv", KeyMongoURI)
	}
	if parsed.Host == "" {
		return fmt.Errorf("invalid %s: host is required", KeyMongoURI)
	}

	return nil
}

func resolveAppEnv() (string, error) {
	if explicit := normalizeEnv(os.Getenv(KeyAppEnv)); explicit != "" {
		return explicit, nil
	}

	dotEnvValues, err := godotenv.Read()
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return DefaultAppEnv, nil
		}
		return "", fmt.Errorf("read .env: %w", err)
	}

	if envFromFile := normalizeEnv(dotEnvValues[KeyAppEnv]); envFromFile != "" {
		return envFromFile, nil
	}

	return DefaultAppEnv, nil
}

func loadDotEnv(appEnv string) error {
	if appEnv != EnvDevelopment {
		return nil
	}

	if err := godotenv.Load(); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load .env: %w", err)
	}

	return nil
}

func validateAppEnv(appEnv string) error {
	if appEnv == EnvDevelopment || appEnv == EnvProduction {
		return nil
	}

	return fmt.Errorf("invalid %s: must be %q or %q", KeyAppEnv, EnvDevelopment, EnvProduction)
}

func normalizeEnv(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}

func firstNonEmpty(values ...string) string {
	for _, val := range values {
		if strings.TrimSpace(val) != "" {
			return strings.TrimSpace(val)
		}
	}
	return ""
}
