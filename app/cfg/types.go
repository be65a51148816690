package cfg

import "time"

type Cfg struct {
	// Storage
	DBPath string

	// Application configuration
	SeedsFile         string
	Port              string
	BaseUrl           string
	WorkerCount       int
	SchedulerInterval int
	APIAccessKey      string

	// Fetching and rendering
	UserAgent         string
	BrowserDisabled   bool
	FetchTimeout      time.Duration
	ConversionTimeout time.Duration

	// Enrichment
	EnrichMinChars    int
	EnrichMaxLinks    int
	EnrichTimeout     time.Duration
	RSSMinChars       int
	RSSEnrichMaxItems int

	// Novelty and refresh
	SemanticBudget   int
	RefreshBatchSize int
	RefreshLimit     int

	// Semantic adapter
	LLMAdapter string
	LLMAPIKey  string
	LLMModel   string
	LLMBaseURL string
	LLMTimeout time.Duration

	// Application metadata
	Timezone string
	Debug    bool
	Version  string
}
