package config

import "fmt"

// ModeBudget bounds one search/research mode.
type ModeBudget struct {
	MaxIterations int `yaml:"max_iterations,omitempty" json:"max_iterations,omitempty"`
	MaxConcurrent int `yaml:"max_concurrent,omitempty" json:"max_concurrent,omitempty"`
}

// ResearchConfig holds the deep-research budgets and limits.
type ResearchConfig struct {
	// NumAgents is the upper bound on specialist researchers per session.
	NumAgents int `yaml:"num_agents,omitempty" json:"num_agents,omitempty"`

	// MaxSupervisorCalls caps todo-mutating supervisor calls per session.
	MaxSupervisorCalls int `yaml:"max_supervisor_calls,omitempty" json:"max_supervisor_calls,omitempty"`

	// AgentMaxSteps bounds one researcher's ReAct loop.
	AgentMaxSteps int `yaml:"agent_max_steps,omitempty" json:"agent_max_steps,omitempty"`

	// SupervisorMaxIterations bounds one supervisor ReAct call.
	SupervisorMaxIterations int `yaml:"supervisor_max_iterations,omitempty" json:"supervisor_max_iterations,omitempty"`

	// DefaultMaxIterations bounds executor cycles.
	DefaultMaxIterations int `yaml:"default_max_iterations,omitempty" json:"default_max_iterations,omitempty"`

	// ChatHistoryLimit bounds history turns passed to the LLM.
	ChatHistoryLimit int `yaml:"chat_history_limit,omitempty" json:"chat_history_limit,omitempty"`

	// SourcesLimit caps distinct sources per finding.
	SourcesLimit int `yaml:"sources_limit,omitempty" json:"sources_limit,omitempty"`

	// SessionExpiryHours ages out stuck sessions.
	SessionExpiryHours int `yaml:"session_expiry_hours,omitempty" json:"session_expiry_hours,omitempty"`

	// MemoryRoot is the on-disk root for per-session artifact trees.
	MemoryRoot string `yaml:"memory_root,omitempty" json:"memory_root,omitempty"`

	// Mode budgets for the two-stage search service.
	Speed    ModeBudget `yaml:"speed,omitempty" json:"speed,omitempty"`
	Balanced ModeBudget `yaml:"balanced,omitempty" json:"balanced,omitempty"`
	Quality  ModeBudget `yaml:"quality,omitempty" json:"quality,omitempty"`
}

func (c *ResearchConfig) SetDefaults() {
	if c.NumAgents == 0 {
		c.NumAgents = envInt("DEEP_RESEARCH_NUM_AGENTS", 3)
	}
	if c.MaxSupervisorCalls == 0 {
		c.MaxSupervisorCalls = envInt("DEEP_RESEARCH_MAX_SUPERVISOR_CALLS", 10)
	}
	if c.AgentMaxSteps == 0 {
		c.AgentMaxSteps = envInt("DEEP_RESEARCH_AGENT_MAX_STEPS", 8)
	}
	if c.SupervisorMaxIterations == 0 {
		c.SupervisorMaxIterations = envInt("DEEP_RESEARCH_SUPERVISOR_MAX_ITERATIONS", 6)
	}
	if c.DefaultMaxIterations == 0 {
		c.DefaultMaxIterations = envInt("DEEP_RESEARCH_DEFAULT_MAX_ITERATIONS", 3)
	}
	if c.ChatHistoryLimit == 0 {
		c.ChatHistoryLimit = envInt("CHAT_HISTORY_LIMIT", 20)
	}
	if c.SourcesLimit == 0 {
		c.SourcesLimit = envInt("SOURCES_LIMIT", 15)
	}
	if c.SessionExpiryHours == 0 {
		c.SessionExpiryHours = 24
	}
	if c.MemoryRoot == "" {
		c.MemoryRoot = envString("DEEP_RESEARCH_MEMORY_ROOT", "./data/memory")
	}

	if c.Speed.MaxIterations == 0 {
		c.Speed.MaxIterations = envInt("SPEED_MAX_ITERATIONS", 1)
	}
	if c.Speed.MaxConcurrent == 0 {
		c.Speed.MaxConcurrent = envInt("SPEED_MAX_CONCURRENT", 2)
	}
	if c.Balanced.MaxIterations == 0 {
		c.Balanced.MaxIterations = envInt("BALANCED_MAX_ITERATIONS", 4)
	}
	if c.Balanced.MaxConcurrent == 0 {
		c.Balanced.MaxConcurrent = envInt("BALANCED_MAX_CONCURRENT", 3)
	}
	if c.Quality.MaxIterations == 0 {
		c.Quality.MaxIterations = envInt("QUALITY_MAX_ITERATIONS", 8)
	}
	if c.Quality.MaxConcurrent == 0 {
		c.Quality.MaxConcurrent = envInt("QUALITY_MAX_CONCURRENT", 3)
	}
}

func (c *ResearchConfig) Validate() error {
	if c.NumAgents < 1 {
		return fmt.Errorf("research.num_agents must be >= 1, got %d", c.NumAgents)
	}
	if c.DefaultMaxIterations < 1 {
		return fmt.Errorf("research.default_max_iterations must be >= 1, got %d", c.DefaultMaxIterations)
	}
	return nil
}
