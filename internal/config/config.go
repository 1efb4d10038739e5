// Package config handles loading and validation of the attache
// configuration file at ~/.attache/config.json.
package config

// Config is the full daemon configuration. Slack and OpenRouter are
// required; every other service section is optional, and the tools
// backed by an empty section report themselves as not configured
// instead of failing the daemon.
type Config struct {
	Slack      SlackConfig      `json:"slack"`
	OpenRouter OpenRouterConfig `json:"openrouter"`
	Exa        ExaConfig        `json:"exa"`
	Qdrant     QdrantConfig     `json:"qdrant"`
	Catalog    CatalogConfig    `json:"catalog"`
	Images     ImagesConfig     `json:"images"`
	Mem0       Mem0Config       `json:"mem0"`
	Persona    string           `json:"persona,omitempty"`
	Identity   IdentityConfig   `json:"identity"`
	Limits     LimitsConfig     `json:"limits"`
	StorePath  string           `json:"storePath,omitempty"`
	AuditPath  string           `json:"auditPath,omitempty"`
}

// SlackConfig holds the two Socket Mode credentials.
type SlackConfig struct {
	BotToken string `json:"botToken"`
	AppToken string `json:"appToken"`
}

// OpenRouterConfig configures the model provider. Model overrides the
// persona's default model when set.
type OpenRouterConfig struct {
	APIKey         string `json:"apiKey"`
	Model          string `json:"model,omitempty"`
	EmbeddingModel string `json:"embeddingModel,omitempty"`
	BaseURL        string `json:"baseURL,omitempty"`
}

// ExaConfig configures web search and company research.
type ExaConfig struct {
	APIKey string `json:"apiKey,omitempty"`
}

// Configured reports whether the section has credentials.
func (c ExaConfig) Configured() bool { return c.APIKey != "" }

// QdrantConfig configures the knowledge base vector store.
type QdrantConfig struct {
	URL            string  `json:"url,omitempty"`
	APIKey         string  `json:"apiKey,omitempty"`
	Collection     string  `json:"collection,omitempty"`
	ScoreThreshold float32 `json:"scoreThreshold,omitempty"`
}

// Configured reports whether the section has a server URL.
func (c QdrantConfig) Configured() bool { return c.URL != "" }

// CatalogConfig configures the product catalog service.
type CatalogConfig struct {
	BaseURL string `json:"baseURL,omitempty"`
	APIKey  string `json:"apiKey,omitempty"`
}

// Configured reports whether the section has a service URL.
func (c CatalogConfig) Configured() bool { return c.BaseURL != "" }

// ImagesConfig configures the image vectorization service.
type ImagesConfig struct {
	BaseURL string `json:"baseURL,omitempty"`
	APIKey  string `json:"apiKey,omitempty"`
}

// Configured reports whether the section has a service URL.
func (c ImagesConfig) Configured() bool { return c.BaseURL != "" }

// Mem0Config configures long-term user memory.
type Mem0Config struct {
	APIKey  string `json:"apiKey,omitempty"`
	BaseURL string `json:"baseURL,omitempty"`
}

// Configured reports whether the section has credentials.
func (c Mem0Config) Configured() bool { return c.APIKey != "" }

// IdentityConfig overrides how posted messages appear in the workspace.
type IdentityConfig struct {
	DisplayName string `json:"displayName,omitempty"`
	IconEmoji   string `json:"iconEmoji,omitempty"`
}

// LimitsConfig caps how much work the assistant takes on. MaxRunsPerHour
// is enforced per channel, MaxTokensPerDay across the whole workspace;
// zero means unlimited tokens.
type LimitsConfig struct {
	MaxRunsPerHour  int `json:"maxRunsPerHour,omitempty"`
	MaxTokensPerDay int `json:"maxTokensPerDay,omitempty"`
}
