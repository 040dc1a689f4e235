package orchestrator

import (
	"context"
	"fmt"
	"strings"

	"github.com/we11as22/deepresearch/pkg/agentfs"
	"github.com/we11as22/deepresearch/pkg/llms"
	"github.com/we11as22/deepresearch/pkg/protocol"
	"github.com/we11as22/deepresearch/pkg/streaming"
)

// createAgentCharacteristics generates the specialist pool: exactly
// min(estimated, configured) profiles, each with 2-3 todos whose titles
// are unique across all agents and whose objectives quote the original
// query.
func (o *Orchestrator) createAgentCharacteristics(ctx context.Context, state *SessionState, fs *agentfs.SessionFS, gen *streaming.Generator) error {
	if len(state.AgentCharacteristics) > 0 {
		return nil
	}

	n := state.EstimatedAgentCount
	if n < 1 {
		n = 1
	}
	if n > o.cfg.NumAgents {
		n = o.cfg.NumAgents
	}

	messages := []protocol.Message{
		protocol.SystemMessage(profilesSystemPrompt(state.UserLanguage, n)),
		protocol.UserMessage(profilesUserPrompt(state, n)),
	}
	profiles, resp, err := llms.Structured[AgentProfiles](ctx, o.llm, messages, "agent_profiles", structuredRetries)
	if resp != nil {
		state.addUsage(resp.Usage)
	}
	if err != nil {
		o.logger.Warn("agent profile generation failed, using fallback roles", "error", err)
		profiles = &AgentProfiles{}
	}

	agents := profiles.Agents
	if len(agents) > n {
		agents = agents[:n]
	}
	agents = padProfiles(agents, n, state.ResearchTopics)

	state.AgentCharacteristics = make(map[string]AgentCharacteristic, n)
	seenTitles := map[string]bool{}

	for i := range agents {
		profile := &agents[i]
		agentID := profile.AgentID
		if agentID == "" {
			agentID = fmt.Sprintf("agent_%d", i+1)
		}

		todos := make([]agentfs.Todo, 0, len(profile.Todos))
		for _, pt := range profile.Todos {
			title := strings.TrimSpace(pt.Title)
			if title == "" {
				continue
			}
			if seenTitles[strings.ToLower(title)] {
				title = agentfs.QualifyTitle(profile.Role, title)
			}
			seenTitles[strings.ToLower(title)] = true

			objective := pt.Objective
			if !strings.Contains(objective, state.OriginalQuery) {
				objective = strings.TrimSpace(objective) +
					fmt.Sprintf("\n\nOriginal research query: %q", state.OriginalQuery)
			}
			priority := agentfs.Priority(pt.Priority)
			if priority == "" {
				priority = agentfs.PriorityMedium
			}
			todos = append(todos, agentfs.Todo{
				Reasoning:      pt.Reasoning,
				Title:          title,
				Objective:      objective,
				ExpectedOutput: pt.ExpectedOutput,
				Priority:       priority,
				Status:         agentfs.TodoPending,
			})
		}
		if len(todos) == 0 {
			title := "Research " + profile.Expertise
			if seenTitles[strings.ToLower(title)] {
				title = agentfs.QualifyTitle(profile.Role, title)
			}
			seenTitles[strings.ToLower(title)] = true
			todos = append(todos, agentfs.Todo{
				Title: title,
				Objective: fmt.Sprintf("Investigate %s.\n\nOriginal research query: %q",
					profile.Expertise, state.OriginalQuery),
				Priority: agentfs.PriorityMedium,
				Status:   agentfs.TodoPending,
			})
		}

		file := &agentfs.AgentFile{
			AgentID: agentID,
			Character: agentfs.Character{
				Role:        profile.Role,
				Expertise:   profile.Expertise,
				Personality: profile.Personality,
			},
			Todos: todos,
		}
		if err := fs.WriteAgentFile(file); err != nil {
			return fmt.Errorf("write agent file %s: %w", agentID, err)
		}
		state.AgentCharacteristics[agentID] = AgentCharacteristic{
			Role:        profile.Role,
			Expertise:   profile.Expertise,
			Personality: profile.Personality,
		}
	}

	gen.Emit(streaming.EventResearchStart, map[string]any{
		"agents": len(state.AgentCharacteristics),
	})
	return nil
}

// padProfiles fills the pool up to n with fallback roles derived from
// topics no generated agent covers yet.
func padProfiles(agents []AgentProfile, n int, topics []string) []AgentProfile {
	covered := map[string]bool{}
	for _, a := range agents {
		covered[strings.ToLower(a.Expertise)] = true
	}

	var uncovered []string
	for _, topic := range topics {
		if !covered[strings.ToLower(topic)] {
			uncovered = append(uncovered, topic)
		}
	}

	for i := len(agents); i < n; i++ {
		expertise := "general research"
		if len(uncovered) > 0 {
			expertise = uncovered[0]
			uncovered = uncovered[1:]
		}
		agents = append(agents, AgentProfile{
			AgentID:   fmt.Sprintf("agent_%d", i+1),
			Role:      fmt.Sprintf("Research Specialist %d", i+1),
			Expertise: expertise,
		})
	}
	return agents
}
