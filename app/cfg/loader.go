package cfg

import (
	"cmp"
	"fmt"
	"time"

	"github.com/jessevdk/go-flags"
)

// Version is set at build time via -ldflags
var Version = "dev"

func GetVersion() string {
	return cmp.Or(Version, "unknown")
}

type rawCfg struct {
	// Storage
	DBPath string `long:"db-path" env:"DB_PATH" default:"./data/feedforge.db" description:"SQLite database file"`

	// Application configuration
	SeedsFile         string `long:"seeds-file" env:"SEEDS_FILE" description:"YAML file with subscriptions to submit on startup (optional)"`
	Port              string `long:"port" env:"PORT" default:"8080" description:"HTTP server port"`
	BaseUrl           string `long:"base-url" env:"BASE_URL" description:"Public base URL for the service (e.g., https://feeds.example.com)"`
	WorkerCount       int    `long:"worker-count" env:"WORKER_COUNT" default:"5" description:"Number of background workers"`
	SchedulerInterval int    `long:"scheduler-interval" env:"SCHEDULER_INTERVAL" default:"900" description:"Batch refresh interval in seconds"`
	APIAccessKey      string `long:"api-key" env:"API_ACCESS_KEY" description:"API access key for authentication (optional)"`

	// Fetching and rendering
	UserAgent         string        `long:"user-agent" env:"USER_AGENT" default:"feedforge/1.0" description:"User agent string for HTTP requests"`
	BrowserDisabled   bool          `long:"browser-disabled" env:"BROWSER_DISABLED" description:"Skip headless browser rendering and fetch pages statically"`
	FetchTimeout      time.Duration `long:"fetch-timeout" env:"INTAKE_FETCH_TIMEOUT" default:"12s" description:"Render and fetch timeout"`
	ConversionTimeout time.Duration `long:"conversion-timeout" env:"INTAKE_MAX_CONVERSION" default:"20s" description:"Budget for converting a page into a web monitor source"`

	// Enrichment
	EnrichMinChars    int           `long:"enrich-min-chars" env:"CONTENT_ENRICH_MIN_CHARS" default:"140" description:"Candidates shorter than this are enriched from their link"`
	EnrichMaxLinks    int           `long:"enrich-max-links" env:"CONTENT_ENRICH_MAX_LINKS" default:"3" description:"Maximum links followed for enrichment per run"`
	EnrichTimeout     time.Duration `long:"enrich-timeout" env:"CONTENT_ENRICH_TIMEOUT" default:"8s" description:"Timeout for a single enrichment fetch"`
	RSSMinChars       int           `long:"rss-min-chars" env:"RSS_CONTENT_MIN_CHARS" default:"120" description:"Feed items shorter than this are enriched from their link"`
	RSSEnrichMaxItems int           `long:"rss-enrich-max-items" env:"RSS_ENRICH_MAX_ITEMS" default:"3" description:"Maximum feed items enriched per refresh"`

	// Novelty and refresh
	SemanticBudget   int `long:"semantic-budget" env:"SEMANTIC_DECISION_BUDGET" default:"3" description:"Semantic adapter calls allowed per refresh"`
	RefreshBatchSize int `long:"refresh-batch-size" env:"RSS_FETCH_BATCH_SIZE" default:"100" description:"Sources loaded per page during batch refresh"`
	RefreshLimit     int `long:"refresh-limit" env:"RSS_FETCH_LIMIT" default:"0" description:"Maximum sources per batch refresh (0 means all)"`

	// Semantic adapter
	LLMAdapter string        `long:"llm-adapter" env:"LLM_ADAPTER" description:"Rule and novelty adapter: anthropic, openai, gemini or none"`
	LLMAPIKey  string        `long:"llm-api-key" env:"LLM_API_KEY" description:"API key for the selected adapter"`
	LLMModel   string        `long:"llm-model" env:"LLM_MODEL" description:"Model name (provider default when empty)"`
	LLMBaseURL string        `long:"llm-base-url" env:"LLM_BASE_URL" description:"Override the provider API base URL"`
	LLMTimeout time.Duration `long:"llm-timeout" env:"LLM_TIMEOUT" default:"15s" description:"Timeout for a single adapter call"`

	// Application metadata
	Timezone string `long:"timezone" env:"TZ" default:"UTC" description:"Timezone for timestamps (e.g., UTC, America/New_York)"`
	Debug    bool   `long:"debug" env:"DEBUG" description:"Enable debug logging"`
}

// Load parses flags and environment. It returns nil, nil when help was shown.
func Load() (*Cfg, error) {
	return LoadArgs(nil)
}

// LoadArgs parses the given arguments; nil means os.Args.
func LoadArgs(args []string) (*Cfg, error) {
	var raw rawCfg

	parser := flags.NewParser(&raw, flags.Default)

	var err error
	if args == nil {
		_, err = parser.Parse()
	} else {
		_, err = parser.ParseArgs(args)
	}
	if err != nil {
		if flagsErr, ok := err.(*flags.Error); ok {
			if flagsErr.Type == flags.ErrHelp {
				return nil, nil
			}
		}
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}

	cfg := &Cfg{
		DBPath:            raw.DBPath,
		SeedsFile:         raw.SeedsFile,
		Port:              raw.Port,
		BaseUrl:           raw.BaseUrl,
		WorkerCount:       raw.WorkerCount,
		SchedulerInterval: raw.SchedulerInterval,
		APIAccessKey:      raw.APIAccessKey,
		UserAgent:         raw.UserAgent,
		BrowserDisabled:   raw.BrowserDisabled,
		FetchTimeout:      raw.FetchTimeout,
		ConversionTimeout: raw.ConversionTimeout,
		EnrichMinChars:    raw.EnrichMinChars,
		EnrichMaxLinks:    raw.EnrichMaxLinks,
		EnrichTimeout:     raw.EnrichTimeout,
		RSSMinChars:       raw.RSSMinChars,
		RSSEnrichMaxItems: raw.RSSEnrichMaxItems,
		SemanticBudget:    raw.SemanticBudget,
		RefreshBatchSize:  raw.RefreshBatchSize,
		RefreshLimit:      raw.RefreshLimit,
		LLMAdapter:        raw.LLMAdapter,
		LLMAPIKey:         raw.LLMAPIKey,
		LLMModel:          raw.LLMModel,
		LLMBaseURL:        raw.LLMBaseURL,
		LLMTimeout:        raw.LLMTimeout,
		Timezone:          raw.Timezone,
		Debug:             raw.Debug,
		Version:           GetVersion(),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	if err := applyTimezone(cfg.Timezone); err != nil {
		fmt.Printf("Warning: Invalid timezone '%s', using system default: %v\n", cfg.Timezone, err)
	}

	return cfg, nil
}

func (c *Cfg) validate() error {
	if c.WorkerCount < 1 {
		return fmt.Errorf("worker count must be at least 1")
	}
	if c.SchedulerInterval < 1 {
		return fmt.Errorf("scheduler interval must be positive")
	}
	if c.FetchTimeout <= 0 || c.ConversionTimeout <= 0 || c.EnrichTimeout <= 0 {
		return fmt.Errorf("timeouts must be positive")
	}
	if c.EnrichMaxLinks < 0 || c.RSSEnrichMaxItems < 0 || c.SemanticBudget < 0 || c.RefreshLimit < 0 {
		return fmt.Errorf("limits must be non-negative")
	}
	if c.RefreshBatchSize < 1 {
		return fmt.Errorf("refresh batch size must be at least 1")
	}
	return nil
}

func applyTimezone(timezone string) error {
	if timezone != "" {
		if loc, err := time.LoadLocation(timezone); err != nil {
			return err
		} else {
			time.Local = loc
		}
	}
	return nil
}
