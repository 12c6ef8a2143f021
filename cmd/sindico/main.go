package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/sindicoapp/sindico/internal/api"
	"github.com/sindicoapp/sindico/internal/document"
	"github.com/sindicoapp/sindico/internal/flow"
	"github.com/sindicoapp/sindico/internal/genai"
	"github.com/sindicoapp/sindico/internal/lockfile"
	"github.com/sindicoapp/sindico/internal/media"
	"github.com/sindicoapp/sindico/internal/scheduler"
	"github.com/sindicoapp/sindico/internal/store"
	"github.com/sindicoapp/sindico/internal/util"
)

// Default configuration constants
const (
	// DefaultStateDir is the default directory for sindico state data
	DefaultStateDir = "/var/lib/sindico"
	// DefaultDBFileName is the default SQLite database filename
	DefaultDBFileName = "sindico.db"
	// ImagesDirName is the subdirectory for uploaded evidence images
	ImagesDirName = "images"
)

func main() {
	initializeLogger()

	config := loadEnvironmentConfig()
	flags := parseCommandLineFlags(config)

	if err := ensureDirectoriesExist(flags); err != nil {
		slog.Error("Failed to create required directories", "error", err)
		os.Exit(1)
	}

	lock, err := lockfile.AcquireLock(*flags.stateDir)
	if err != nil {
		slog.Error("Failed to acquire state directory lock", "error", err)
		os.Exit(1)
	}
	defer lock.Release()

	if err := run(flags); err != nil {
		slog.Error("sindico failed to run", "error", err)
		os.Exit(1)
	}
	slog.Info("sindico exited successfully")
}

// Config holds environment configuration
type Config struct {
	DatabaseURL     string
	StateDir        string
	OpenAIKey       string
	APIAddr         string
	FallbackModel   string
	FlowsConfig     string
	CondominiumName string
}

// Flags holds command line flag values
type Flags struct {
	stateDir        *string
	dbDSN           *string
	openaiKey       *string
	apiAddr         *string
	fallbackModel   *string
	flowsConfig     *string
	condominiumName *string
}

// initializeLogger sets up structured logging. Debug level is on by default
// and can be disabled with SINDICO_DEBUG=false.
func initializeLogger() {
	level := slog.LevelInfo
	if util.ParseBoolEnv("SINDICO_DEBUG", true) {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
}

// loadEnvironmentConfig loads configuration from environment variables and .env file
func loadEnvironmentConfig() Config {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	} else {
		slog.Debug("successfully loaded .env file")
	}

	config := Config{
		DatabaseURL:     os.Getenv("DATABASE_URL"),
		StateDir:        os.Getenv("SINDICO_STATE_DIR"),
		OpenAIKey:       os.Getenv("OPENAI_API_KEY"),
		APIAddr:         os.Getenv("API_ADDR"),
		FallbackModel:   os.Getenv("FALLBACK_MODEL"),
		FlowsConfig:     os.Getenv("FLOWS_CONFIG"),
		CondominiumName: os.Getenv("CONDOMINIO_NOME"),
	}

	if config.StateDir == "" {
		config.StateDir = DefaultStateDir
		slog.Debug("No SINDICO_STATE_DIR set, using default", "default_state_dir", config.StateDir)
	}
	if config.DatabaseURL == "" {
		config.DatabaseURL = filepath.Join(config.StateDir, DefaultDBFileName)
		slog.Debug("No database DSN provided, defaulting to SQLite", "sqlite_path", config.DatabaseURL)
	}

	slog.Debug("environment variables loaded",
		"DATABASE_URL_SET", config.DatabaseURL != "",
		"SINDICO_STATE_DIR", config.StateDir,
		"OPENAI_API_KEY_SET", config.OpenAIKey != "",
		"API_ADDR", config.APIAddr,
		"FALLBACK_MODEL", config.FallbackModel,
		"FLOWS_CONFIG", config.FlowsConfig,
		"CONDOMINIO_NOME_SET", config.CondominiumName != "")

	return config
}

// parseCommandLineFlags parses command line arguments with environment defaults
func parseCommandLineFlags(config Config) Flags {
	flags := Flags{
		stateDir:        flag.String("state-dir", config.StateDir, "state directory for sindico data (overrides $SINDICO_STATE_DIR)"),
		dbDSN:           flag.String("db-dsn", config.DatabaseURL, "database DSN for the store (overrides $DATABASE_URL)"),
		openaiKey:       flag.String("openai-api-key", config.OpenAIKey, "OpenAI API key (overrides $OPENAI_API_KEY)"),
		apiAddr:         flag.String("api-addr", config.APIAddr, "API server address (overrides $API_ADDR)"),
		fallbackModel:   flag.String("fallback-model", config.FallbackModel, "chat model used when the assistant run fails (overrides $FALLBACK_MODEL)"),
		flowsConfig:     flag.String("flows-config", config.FlowsConfig, "YAML file overriding flow definitions and intent patterns (overrides $FLOWS_CONFIG)"),
		condominiumName: flag.String("condominio-nome", config.CondominiumName, "condominium name used in generation prompts (overrides $CONDOMINIO_NOME)"),
	}

	flag.Parse()

	slog.Debug("flags parsed",
		"stateDir", *flags.stateDir,
		"dbDSN_set", *flags.dbDSN != "",
		"openaiKeySet", *flags.openaiKey != "",
		"apiAddr", *flags.apiAddr,
		"fallbackModel", *flags.fallbackModel,
		"flowsConfig", *flags.flowsConfig)

	return flags
}

// ensureDirectoriesExist creates necessary directories for file-based storage
func ensureDirectoriesExist(flags Flags) error {
	if err := os.MkdirAll(*flags.stateDir, 0755); err != nil {
		return err
	}
	if store.DetectDSNType(*flags.dbDSN) == "sqlite3" {
		dbDir := filepath.Dir(*flags.dbDSN)
		slog.Debug("Creating directory for file-based database", "dir", dbDir)
		if err := os.MkdirAll(dbDir, 0755); err != nil {
			return err
		}
	}
	return os.MkdirAll(filepath.Join(*flags.stateDir, ImagesDirName), 0755)
}

// buildStore opens the persistence backend matching the configured DSN.
func buildStore(flags Flags) (store.Store, error) {
	if store.DetectDSNType(*flags.dbDSN) == "postgres" {
		slog.Debug("Detected PostgreSQL DSN, configuring PostgreSQL store")
		return store.NewPostgresStore(store.WithDSN(*flags.dbDSN))
	}
	slog.Debug("Detected SQLite DSN, configuring SQLite store", "db_path", *flags.dbDSN)
	return store.NewSQLiteStore(store.WithDSN(*flags.dbDSN))
}

// buildGenAIOptions constructs GenAI configuration options
func buildGenAIOptions(flags Flags, apiKey string) []genai.Option {
	var genaiOpts []genai.Option
	if apiKey != "" {
		genaiOpts = append(genaiOpts, genai.WithAPIKey(apiKey))
	}
	if *flags.fallbackModel != "" {
		genaiOpts = append(genaiOpts, genai.WithFallbackModel(*flags.fallbackModel))
	}
	return genaiOpts
}

// resolveAPIKey returns the OpenAI credential, preferring the flag/env value and
// falling back to the system config store. A key supplied via flag or env is
// persisted so later runs can start without it.
func resolveAPIKey(flags Flags, st store.Store) (string, error) {
	if *flags.openaiKey != "" {
		if err := st.SetConfig("openai_api_key", *flags.openaiKey); err != nil {
			slog.Warn("Failed to persist API key to config store", "error", err)
		}
		return *flags.openaiKey, nil
	}
	key, err := st.GetConfig("openai_api_key")
	if err != nil {
		return "", err
	}
	if key != "" {
		slog.Debug("Using API key from config store")
	}
	return key, nil
}

// buildAPIOptions constructs API server configuration options
func buildAPIOptions(flags Flags, detector *flow.IntentDetector) []api.Option {
	apiOpts := []api.Option{api.WithDetector(detector)}
	if *flags.apiAddr != "" {
		apiOpts = append(apiOpts, api.WithAddr(*flags.apiAddr))
	}
	if *flags.condominiumName != "" {
		apiOpts = append(apiOpts, api.WithCondominiumName(*flags.condominiumName))
	}
	return apiOpts
}

// loadFlowOverrides applies the optional YAML flow configuration.
func loadFlowOverrides(flags Flags) (*flow.Registry, *flow.IntentDetector, error) {
	registry := flow.NewRegistry()
	if *flags.flowsConfig == "" {
		return registry, flow.NewIntentDetector(), nil
	}
	cfg, err := flow.LoadConfig(*flags.flowsConfig)
	if err != nil {
		return nil, nil, err
	}
	detector, err := cfg.Apply(registry)
	if err != nil {
		return nil, nil, err
	}
	slog.Info("Flow overrides loaded", "path", *flags.flowsConfig)
	return registry, detector, nil
}

func run(flags Flags) error {
	st, err := buildStore(flags)
	if err != nil {
		return err
	}
	defer st.Close()

	apiKey, err := resolveAPIKey(flags, st)
	if err != nil {
		return err
	}
	client, err := genai.NewClient(buildGenAIOptions(flags, apiKey)...)
	if err != nil {
		return err
	}

	mediaSvc, err := media.NewService(filepath.Join(*flags.stateDir, ImagesDirName))
	if err != nil {
		return err
	}

	sched := scheduler.NewScheduler()
	defer sched.Stop()
	err = sched.AddJob("0 3 * * *", func() {
		if _, err := mediaSvc.RemoveOlderThan(media.DefaultMaxAge); err != nil {
			slog.Error("Image sweep failed", "error", err)
		}
	})
	if err != nil {
		return err
	}

	registry, detector, err := loadFlowOverrides(flags)
	if err != nil {
		return err
	}

	pipeline := document.NewPipeline(client)
	engine := flow.NewEngine(st, pipeline,
		flow.WithRegistry(registry),
		flow.WithCondominiumName(*flags.condominiumName))

	apiOpts := append(buildAPIOptions(flags, detector),
		api.WithPipeline(pipeline),
		api.WithEngine(engine))
	server := api.NewServer(st, client, mediaSvc, apiOpts...)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	slog.Info("Bootstrapping sindico with configured modules")
	return server.Start(ctx)
}
