package config

import "os"

// LLMProvider identifies the LLM provider type.
type LLMProvider string

const (
	LLMProviderOpenAI    LLMProvider = "openai"
	LLMProviderAnthropic LLMProvider = "anthropic"
)

// LLMConfig configures an LLM provider.
type LLMConfig struct {
	// Provider type (openai, anthropic). OpenAI-compatible gateways use
	// "openai" with a custom BaseURL.
	Provider LLMProvider `yaml:"provider,omitempty" json:"provider,omitempty"`

	// Model name (e.g. "gpt-4o").
	Model string `yaml:"model,omitempty" json:"model,omitempty"`

	// APIKey for authentication. Supports ${VAR} expansion.
	APIKey string `yaml:"api_key,omitempty" json:"api_key,omitempty"`

	// BaseURL overrides the default API endpoint (OPENAI_BASE_URL).
	BaseURL string `yaml:"base_url,omitempty" json:"base_url,omitempty"`

	Temperature float64 `yaml:"temperature,omitempty" json:"temperature,omitempty"`
	MaxTokens   int     `yaml:"max_tokens,omitempty" json:"max_tokens,omitempty"`

	// Timeout in seconds per request.
	Timeout int `yaml:"timeout,omitempty" json:"timeout,omitempty"`

	// MaxRetries for transport-level retry.
	MaxRetries int `yaml:"max_retries,omitempty" json:"max_retries,omitempty"`

	// RetryDelay in seconds between retries.
	RetryDelay int `yaml:"retry_delay,omitempty" json:"retry_delay,omitempty"`

	// StructuredOutputRetries bounds re-asks after schema validation failures.
	StructuredOutputRetries int `yaml:"structured_output_retries,omitempty" json:"structured_output_retries,omitempty"`
}

// SetDefaults applies default values, detecting the provider and API key
// from the environment when unset.
func (c *LLMConfig) SetDefaults() {
	if c.Provider == "" {
		if os.Getenv("ANTHROPIC_API_KEY") != "" && os.Getenv("OPENAI_API_KEY") == "" {
			c.Provider = LLMProviderAnthropic
		} else {
			c.Provider = LLMProviderOpenAI
		}
	}
	if c.Model == "" {
		switch c.Provider {
		case LLMProviderAnthropic:
			c.Model = "claude-sonnet-4-20250514"
		default:
			c.Model = "gpt-4o"
		}
	}
	if c.APIKey == "" {
		switch c.Provider {
		case LLMProviderAnthropic:
			c.APIKey = os.Getenv("ANTHROPIC_API_KEY")
		default:
			c.APIKey = os.Getenv("OPENAI_API_KEY")
		}
	}
	if c.BaseURL == "" && c.Provider == LLMProviderOpenAI {
		c.BaseURL = envString("OPENAI_BASE_URL", "https://api.openai.com/v1")
	}
	if c.Temperature == 0 {
		c.Temperature = 0.7
	}
	if c.MaxTokens == 0 {
		c.MaxTokens = 8192
	}
	if c.Timeout == 0 {
		c.Timeout = 120
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
	if c.RetryDelay == 0 {
		c.RetryDelay = 2
	}
	if c.StructuredOutputRetries == 0 {
		c.StructuredOutputRetries = 2
	}
}

// EmbedderConfig configures the embedding provider.
type EmbedderConfig struct {
	Model   string `yaml:"model,omitempty" json:"model,omitempty"`
	APIKey  string `yaml:"api_key,omitempty" json:"api_key,omitempty"`
	BaseURL string `yaml:"base_url,omitempty" json:"base_url,omitempty"`
}

func (c *EmbedderConfig) SetDefaults() {
	if c.Model == "" {
		c.Model = "text-embedding-3-small"
	}
	if c.APIKey == "" {
		c.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if c.BaseURL == "" {
		c.BaseURL = envString("OPENAI_BASE_URL", "https://api.openai.com/v1")
	}
}
