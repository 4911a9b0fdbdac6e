package config

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// ChunkQuantum is the granularity the platform requires for resumable chunks.
const ChunkQuantum int64 = 256 * 1024

// Config carries every setting of a run. It is built once in main and passed
// by reference to the components that need it.
type Config struct {
	EnvFile string

	OpenAIAPIKey          string
	OpenAIBaseURL         string
	OpenAIModel           string
	OpenAITranscribeModel string

	ClientSecretsFile string
	TokenFile         string
	RegionCode        string

	UploadDir  string
	DoneDir    string
	CroppedDir string
	CacheDir   string
	StateDB    string
	DedupLog   string
	RenameLog  string

	FallbackCategoryID string
	MinDelay           time.Duration
	MaxDelay           time.Duration
	ChunkSize          int64
	ChunkRetries       int
	Seed               int64
	SkipTranscribe     bool

	Timeout  time.Duration
	LogLevel string
	Quiet    bool
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		EnvFile:               ".env",
		OpenAIBaseURL:         "https://api.openai.com/v1",
		OpenAIModel:           "gpt-4",
		OpenAITranscribeModel: "whisper-1",
		ClientSecretsFile:     "tubesecs.json",
		TokenFile:             "youtube_token.json",
		RegionCode:            "US",
		UploadDir:             "upload",
		DoneDir:               "done",
		CroppedDir:            "cropped",
		CacheDir:              ".ytup-cache",
		StateDB:               "ytup.db",
		DedupLog:              "downloaded_urls.txt",
		RenameLog:             "rename_log.txt",
		FallbackCategoryID:    "22",
		MinDelay:              120 * time.Second,
		MaxDelay:              1800 * time.Second,
		ChunkSize:             32 * ChunkQuantum,
		ChunkRetries:          0,
		Timeout:               3 * time.Minute,
		LogLevel:              "info",
	}
}

// Load builds a Config for one subcommand: defaults, then the env file and
// process environment, then args. It returns the remaining positional args.
func Load(name string, args []string, stderr io.Writer) (Config, []string, error) {
	cfg := Default()
	if envFile := envFileFromArgs(args); envFile != "" {
		cfg.EnvFile = envFile
	}
	if err := godotenv.Load(cfg.EnvFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, nil, fmt.Errorf("load env file %s: %w", cfg.EnvFile, err)
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return Config{}, nil, err
	}

	flags := flag.NewFlagSet(name, flag.ContinueOnError)
	flags.SetOutput(stderr)
	cfg.RegisterFlags(flags)
	if err := flags.Parse(args); err != nil {
		return Config{}, nil, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, nil, err
	}
	return cfg, flags.Args(), nil
}

// ApplyEnv overrides fields from environment variables.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}

	str("gptkey", &c.OpenAIAPIKey)
	str("OPENAI_API_KEY", &c.OpenAIAPIKey)
	str("OPENAI_BASE_URL", &c.OpenAIBaseURL)
	str("OPENAI_MODEL", &c.OpenAIModel)
	str("OPENAI_TRANSCRIBE_MODEL", &c.OpenAITranscribeModel)
	str("YOUTUBE_CLIENT_SECRETS", &c.ClientSecretsFile)
	str("YOUTUBE_TOKEN_FILE", &c.TokenFile)
	str("REGION_CODE", &c.RegionCode)
	str("UPLOAD_DIR", &c.UploadDir)
	str("DONE_DIR", &c.DoneDir)
	str("CROPPED_DIR", &c.CroppedDir)
	str("CACHE_DIR", &c.CacheDir)
	str("STATE_DB", &c.StateDB)
	str("DEDUP_LOG", &c.DedupLog)
	str("RENAME_LOG", &c.RenameLog)
	str("FALLBACK_CATEGORY_ID", &c.FallbackCategoryID)
	str("LOG_LEVEL", &c.LogLevel)

	var err error
	if c.MinDelay, err = durationEnv(lookup, "MIN_DELAY", c.MinDelay); err != nil {
		return err
	}
	if c.MaxDelay, err = durationEnv(lookup, "MAX_DELAY", c.MaxDelay); err != nil {
		return err
	}
	if c.Timeout, err = durationEnv(lookup, "TIMEOUT", c.Timeout); err != nil {
		return err
	}
	if c.ChunkSize, err = intEnv(lookup, "CHUNK_SIZE", c.ChunkSize); err != nil {
		return err
	}
	if c.Seed, err = intEnv(lookup, "SEED", c.Seed); err != nil {
		return err
	}
	retries, err := intEnv(lookup, "CHUNK_RETRIES", int64(c.ChunkRetries))
	if err != nil {
		return err
	}
	c.ChunkRetries = int(retries)
	return nil
}

// RegisterFlags binds command-line flags to c, using the current values as defaults.
func (c *Config) RegisterFlags(fs *flag.FlagSet) {
	fs.StringVar(&c.EnvFile, "env-file", c.EnvFile, "dotenv file with secrets and settings")
	fs.StringVar(&c.UploadDir, "upload-dir", c.UploadDir, "folder of pending videos")
	fs.StringVar(&c.DoneDir, "done-dir", c.DoneDir, "archive folder for published videos")
	fs.StringVar(&c.CroppedDir, "out-dir", c.CroppedDir, "output folder for crop/edges transforms")
	fs.StringVar(&c.CacheDir, "cache-dir", c.CacheDir, "folder for extracted audio and transcripts")
	fs.StringVar(&c.StateDB, "state-db", c.StateDB, "queue state database")
	fs.StringVar(&c.DedupLog, "dedup-log", c.DedupLog, "log of already downloaded URLs")
	fs.StringVar(&c.RenameLog, "rename-log", c.RenameLog, "rename audit log (rewritten each run)")
	fs.StringVar(&c.ClientSecretsFile, "client-secrets", c.ClientSecretsFile, "OAuth client secrets JSON")
	fs.StringVar(&c.TokenFile, "token-file", c.TokenFile, "cached OAuth token")
	fs.StringVar(&c.RegionCode, "region", c.RegionCode, "region code for the category list")
	fs.StringVar(&c.OpenAIModel, "model", c.OpenAIModel, "chat model for metadata generation")
	fs.StringVar(&c.FallbackCategoryID, "fallback-category", c.FallbackCategoryID, "category id used when the generated category is unknown")
	fs.DurationVar(&c.MinDelay, "min-delay", c.MinDelay, "minimum wait between uploads")
	fs.DurationVar(&c.MaxDelay, "max-delay", c.MaxDelay, "maximum wait between uploads")
	fs.Int64Var(&c.ChunkSize, "chunk-size", c.ChunkSize, "upload chunk size in bytes (multiple of 262144)")
	fs.IntVar(&c.ChunkRetries, "chunk-retries", c.ChunkRetries, "retries per failed upload chunk (0 disables)")
	fs.Int64Var(&c.Seed, "seed", c.Seed, "random seed for file selection and pacing (0 = time based)")
	fs.BoolVar(&c.SkipTranscribe, "no-transcribe", c.SkipTranscribe, "do not transcribe audio before generating metadata")
	fs.DurationVar(&c.Timeout, "timeout", c.Timeout, "per-request timeout")
	fs.StringVar(&c.LogLevel, "log-level", c.LogLevel, "log level: debug, info, warn, error")
	fs.BoolVar(&c.Quiet, "quiet", c.Quiet, "suppress progress output (errors still shown)")
}

// Validate rejects settings the pipeline cannot honor.
func (c Config) Validate() error {
	if c.MinDelay < 0 || c.MaxDelay < 0 {
		return errors.New("delays must not be negative")
	}
	if c.MinDelay > c.MaxDelay {
		return fmt.Errorf("min delay %s exceeds max delay %s", c.MinDelay, c.MaxDelay)
	}
	if c.ChunkSize <= 0 || c.ChunkSize%ChunkQuantum != 0 {
		return fmt.Errorf("chunk size %d must be a positive multiple of %d", c.ChunkSize, ChunkQuantum)
	}
	if c.ChunkRetries < 0 {
		return fmt.Errorf("chunk retries must not be negative, got %d", c.ChunkRetries)
	}
	if strings.TrimSpace(c.FallbackCategoryID) == "" {
		return errors.New("fallback category id must not be empty")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive, got %s", c.Timeout)
	}
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level %q (expected debug, info, warn, error)", c.LogLevel)
	}
	return nil
}

// Abs resolves the folder and file settings against the working directory.
func (c *Config) Abs() error {
	for _, p := range []*string{&c.UploadDir, &c.DoneDir, &c.CroppedDir, &c.CacheDir, &c.StateDB, &c.DedupLog, &c.RenameLog} {
		abs, err := filepath.Abs(*p)
		if err != nil {
			return fmt.Errorf("resolve %s: %w", *p, err)
		}
		*p = abs
	}
	return nil
}

func envFileFromArgs(args []string) string {
	for i, arg := range args {
		name, value, hasValue := strings.Cut(strings.TrimLeft(arg, "-"), "=")
		if !strings.HasPrefix(arg, "-") || name != "env-file" {
			continue
		}
		if hasValue {
			return value
		}
		if i+1 < len(args) {
			return args[i+1]
		}
	}
	return ""
}

func durationEnv(lookup func(string) (string, bool), key string, fallback time.Duration) (time.Duration, error) {
	raw, ok := lookup(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return fallback, nil
	}
	raw = strings.TrimSpace(raw)
	if secs, err := strconv.Atoi(raw); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return d, nil
}

func intEnv(lookup func(string) (string, bool), key string, fallback int64) (int64, error) {
	raw, ok := lookup(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return fallback, nil
	}
	n, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return n, nil
}
