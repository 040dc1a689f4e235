package config

import "os"

// SearchConfig configures the search providers and result normalisation.
type SearchConfig struct {
	// SearxNGURL is the base URL of a SearxNG instance.
	SearxNGURL string `yaml:"searxng_url,omitempty" json:"searxng_url,omitempty"`

	// TavilyAPIKey enables the Tavily provider when set.
	TavilyAPIKey string `yaml:"tavily_api_key,omitempty" json:"tavily_api_key,omitempty"`

	// BlockedDomains are dropped from every result set.
	BlockedDomains []string `yaml:"blocked_domains,omitempty" json:"blocked_domains,omitempty"`

	// BlockedKeywords drop results whose title or snippet match.
	BlockedKeywords []string `yaml:"blocked_keywords,omitempty" json:"blocked_keywords,omitempty"`

	// PerDomainCap bounds results kept per normalised domain.
	PerDomainCap int `yaml:"per_domain_cap,omitempty" json:"per_domain_cap,omitempty"`

	// MaxResults is the default result count per query.
	MaxResults int `yaml:"max_results,omitempty" json:"max_results,omitempty"`

	// ScrapeTimeout in seconds per page fetch.
	ScrapeTimeout int `yaml:"scrape_timeout,omitempty" json:"scrape_timeout,omitempty"`
}

func (c *SearchConfig) SetDefaults() {
	if c.SearxNGURL == "" {
		c.SearxNGURL = os.Getenv("SEARXNG_INSTANCE_URL")
	}
	if c.TavilyAPIKey == "" {
		c.TavilyAPIKey = os.Getenv("TAVILY_API_KEY")
	}
	if c.BlockedDomains == nil {
		c.BlockedDomains = envList("SEARCH_BLOCKED_DOMAINS")
	}
	if c.BlockedKeywords == nil {
		c.BlockedKeywords = envList("SEARCH_BLOCKED_KEYWORDS")
	}
	if c.PerDomainCap == 0 {
		c.PerDomainCap = 2
	}
	if c.MaxResults == 0 {
		c.MaxResults = 8
	}
	if c.ScrapeTimeout == 0 {
		c.ScrapeTimeout = 30
	}
}
