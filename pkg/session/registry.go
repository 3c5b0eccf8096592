// Package session maintains the process-wide session_key -> pipeline
// map spec.md §5 describes: one System-agent pipeline per (bot_id,
// user_id) pair, created on first chat and destroyed on explicit
// delete. Grounded on the teacher's in-process
// pkg/memory/session_service.go (a mutex-guarded map[string]*T with
// get-or-create semantics), generalized from session messages to
// whole pipelines.
package session

import (
	"fmt"
	"sync"

	"github.com/CheKilo/bot-agent/pkg/agent"
	"github.com/CheKilo/bot-agent/pkg/agents/systemagent"
	"github.com/CheKilo/bot-agent/pkg/llms"
	"github.com/CheKilo/bot-agent/pkg/memory"
	"github.com/CheKilo/bot-agent/pkg/observability"
)

// Key identifies one conversation pipeline.
type Key struct {
	BotID  string
	UserID string
}

func (k Key) String() string { return fmt.Sprintf("%s/%s", k.BotID, k.UserID) }

// Registry owns every live pipeline for the process. Safe for
// concurrent use: different sessions are independent tasks per
// spec.md §5 and may run in parallel.
type Registry struct {
	registry *agent.Registry
	llm      *llms.Client
	manager  *memory.Manager

	mu        sync.RWMutex
	pipelines map[Key]*systemagent.Agent

	metrics       *observability.Metrics
	messageWindow int
	maxIterations int
}

// New builds an empty registry. registry/llm/manager are shared,
// stateless dependencies handed to every pipeline it creates.
func New(registry *agent.Registry, llm *llms.Client, manager *memory.Manager) *Registry {
	return &Registry{
		registry:  registry,
		llm:       llm,
		manager:   manager,
		pipelines: make(map[Key]*systemagent.Agent),
	}
}

// SetMetrics wires optional turn/tool metrics into every pipeline this
// registry creates from this point on; a nil Metrics disables recording.
func (r *Registry) SetMetrics(m *observability.Metrics) { r.metrics = m }

// SetMessageWindow overrides the trim/summarise threshold (cfg.Memory.MessageWindow)
// applied to every pipeline this registry creates from this point on.
func (r *Registry) SetMessageWindow(n int) { r.messageWindow = n }

// SetMaxIterations overrides the system agent's ReAct iteration budget
// (cfg.Memory.MaxIterations) applied to every pipeline this registry
// creates from this point on.
func (r *Registry) SetMaxIterations(n int) { r.maxIterations = n }

// GetOrCreate returns the existing pipeline for key, or builds and
// registers a new one on first use.
func (r *Registry) GetOrCreate(key Key) *systemagent.Agent {
	r.mu.RLock()
	p, ok := r.pipelines[key]
	r.mu.RUnlock()
	if ok {
		return p
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.pipelines[key]; ok {
		return p
	}
	p = systemagent.New(key.BotID, key.UserID, r.registry, r.llm, r.manager)
	p.SetMetrics(r.metrics)
	if r.messageWindow > 0 {
		p.SetMessageWindow(r.messageWindow)
	}
	p.MaxIterations = r.maxIterations
	r.pipelines[key] = p
	return p
}

// Delete destroys a pipeline, e.g. on an explicit delete_session call.
func (r *Registry) Delete(key Key) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.pipelines, key)
}

// Len reports the number of live pipelines.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.pipelines)
}
