package orchestrator

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/we11as22/deepresearch/pkg/agentfs"
	"github.com/we11as22/deepresearch/pkg/agents"
	"github.com/we11as22/deepresearch/pkg/streaming"
)

const reviewBatchSize = 10

type agentResult struct {
	agentID string
	finding *agents.Finding
	err     error
}

// executeAgents is the parallel executor: researchers run concurrently
// under a semaphore, completions are reviewed as they arrive, and the
// supervisor is serialised. Todo-mutating supervisor calls count against
// the cap; finding ingestion and draft writing never do.
func (o *Orchestrator) executeAgents(ctx context.Context, state *SessionState, fs *agentfs.SessionFS, gen *streaming.Generator) error {
	queue := agents.NewReviewQueue()
	visited := agents.NewVisitedSet()
	supervisor := agents.NewSupervisor(o.llm, fs, gen, agents.SupervisorConfig{
		MaxIterations: o.cfg.SupervisorMaxIterations,
	})
	researcher := agents.NewResearcher(o.llm, o.webSearch, o.scraper, fs, gen, queue, visited, agents.ResearcherConfig{
		MaxSteps:   o.cfg.AgentMaxSteps,
		MaxSources: o.cfg.SourcesLimit,
	})

	maxConcurrent := state.ModeConfig.MaxConcurrent
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	sem := semaphore.NewWeighted(int64(maxConcurrent))

	finished := false
	for cycle := state.Iteration + 1; cycle <= state.MaxIterations && !finished; cycle++ {
		state.Iteration = cycle

		// Supervisor-created agents join the pool between cycles.
		agentIDs, err := fs.ListAgentIDs()
		if err != nil {
			return err
		}
		if len(agentIDs) == 0 {
			break
		}
		gen.Emit(streaming.EventStatus, map[string]any{"status": "research_cycle", "cycle": cycle})

		results := make(chan agentResult, len(agentIDs))
		var wg sync.WaitGroup
		for _, agentID := range agentIDs {
			wg.Add(1)
			go func(agentID string) {
				defer wg.Done()
				if err := sem.Acquire(ctx, 1); err != nil {
					results <- agentResult{agentID: agentID, err: err}
					return
				}
				defer sem.Release(1)
				finding, err := researcher.Run(ctx, agentID, topicFor(state, agentID))
				results <- agentResult{agentID: agentID, finding: finding, err: err}
			}(agentID)
		}
		go func() {
			wg.Wait()
			close(results)
		}()

		noTasks := 0
		for res := range results {
			if err := ctx.Err(); err != nil {
				return err
			}
			if res.err != nil {
				// The worker slot recycles next cycle; other agents keep
				// running.
				o.logger.Warn("researcher failed", "agent_id", res.agentID, "error", res.err)
			} else if res.finding.NoTasks {
				noTasks++
			} else {
				state.AgentFindings = append(state.AgentFindings, *res.finding)
			}

			batch := queue.DrainBatch(reviewBatchSize)
			if len(batch) == 0 {
				continue
			}
			decision := o.reviewBatch(ctx, state, fs, supervisor, queue, batch, false)
			if decision == nil {
				continue
			}
			if decision.Decision == agents.DecisionReplan {
				state.ReplanningNeeded = true
				gen.Emit(streaming.EventReplan, map[string]any{"reasoning": decision.Reasoning})
			}
			if decision.Decision == agents.DecisionFinish {
				if pendingWorkExists(fs) {
					// New todos appeared during review; keep going.
					continue
				}
				finished = true
			}
		}

		if noTasks == len(agentIDs) {
			finished = true
		}
		if !pendingWorkExists(fs) {
			finished = true
		}
	}

	if state.Iteration >= state.MaxIterations && !finished {
		state.Degraded = true
	}

	// Mandatory finalisation call, past any cap.
	o.reviewBatch(ctx, state, fs, supervisor, queue, queue.DrainBatch(reviewBatchSize), true)
	state.ShouldContinue = false
	return nil
}

// reviewBatch runs one serialised supervisor call and applies the call
// accounting.
func (o *Orchestrator) reviewBatch(ctx context.Context, state *SessionState, fs *agentfs.SessionFS,
	supervisor *agents.Supervisor, queue *agents.ReviewQueue, batch []agents.QueueEvent, finalize bool) *agents.Decision {

	allowMutations := state.SupervisorCallCount < state.MaxSupervisorCalls && !finalize
	decision, err := supervisor.Review(ctx, agents.ReviewInput{
		OriginalQuery:        state.OriginalQuery,
		DeepSearchContext:    state.DeepSearchResult,
		ClarificationAnswers: state.ClarificationAnswers,
		ResearchPlan:         state.ResearchPlan,
		UserLanguage:         state.UserLanguage,
		Iteration:            state.Iteration,
		MaxIterations:        state.MaxIterations,
		Batch:                batch,
		AllowTodoMutations:   allowMutations,
		Finalize:             finalize,
	})
	if err != nil {
		o.logger.Warn("supervisor review failed", "session_id", state.SessionID, "error", err)
		// Each event gets one retry on a later review; retried events are
		// dropped for good.
		if !finalize {
			for _, event := range batch {
				if !event.Retried {
					event.Retried = true
					queue.Enqueue(event)
				}
			}
		}
		return nil
	}
	if decision.MutatedTodos {
		state.SupervisorCallCount++
	}
	return decision
}

// pendingWorkExists reports whether any agent still has pending or
// in-progress todos.
func pendingWorkExists(fs *agentfs.SessionFS) bool {
	agentIDs, err := fs.ListAgentIDs()
	if err != nil {
		return false
	}
	for _, agentID := range agentIDs {
		file, err := fs.ReadAgentFile(agentID)
		if err != nil {
			continue
		}
		counts := file.CountByStatus()
		if counts[agentfs.TodoPending] > 0 || counts[agentfs.TodoInProgress] > 0 {
			return true
		}
	}
	return false
}

func topicFor(state *SessionState, agentID string) string {
	if c, ok := state.AgentCharacteristics[agentID]; ok {
		return c.Expertise
	}
	return state.OriginalQuery
}
