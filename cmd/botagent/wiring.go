// wiring.go assembles the runtime (LLM backend, storage, memory
// manager, agent registry, session registry) from a loaded config.Config,
// the one place every cmd subcommand goes through to build a pipeline.
package main

import (
	"context"
	"fmt"

	"github.com/CheKilo/bot-agent/pkg/agent"
	"github.com/CheKilo/bot-agent/pkg/agents/characteragent"
	"github.com/CheKilo/bot-agent/pkg/agents/memoryagent"
	"github.com/CheKilo/bot-agent/pkg/config"
	"github.com/CheKilo/bot-agent/pkg/llms"
	"github.com/CheKilo/bot-agent/pkg/memory"
	"github.com/CheKilo/bot-agent/pkg/observability"
	"github.com/CheKilo/bot-agent/pkg/persona"
	"github.com/CheKilo/bot-agent/pkg/ranker"
	"github.com/CheKilo/bot-agent/pkg/rewriter"
	"github.com/CheKilo/bot-agent/pkg/session"
	"github.com/CheKilo/bot-agent/pkg/storage"
	"github.com/CheKilo/bot-agent/pkg/storage/relational"
	"github.com/CheKilo/bot-agent/pkg/storage/vector"
)

const embeddingDim = 1536

// runtime holds everything a subcommand needs after wiring up config.
type runtime struct {
	cfg      *config.Config
	llm      *llms.Client
	manager  *memory.Manager
	personas *persona.Catalogue
	sessions *session.Registry
	metrics  *observability.Metrics
}

func buildRuntime(cfg *config.Config) (*runtime, error) {
	backend, err := buildLLMBackend(cfg.LLM)
	if err != nil {
		return nil, err
	}
	llmClient := llms.NewClient(backend, cfg.LLM.Model, cfg.LLM.EmbedModel)

	store, err := buildStorage(cfg.Storage)
	if err != nil {
		return nil, err
	}

	metrics := observability.New("botagent")
	llmClient.SetMetrics(metrics)

	manager := memory.NewManager(llmClient, rewriter.New(llmClient), ranker.New(), store)
	manager.Metrics = metrics
	manager.TimeRangeDays = cfg.Memory.MidTermTimeRangeDays
	manager.SearchLimit = cfg.Memory.DefaultSearchLimit
	manager.PromotionThreshold = cfg.Memory.PromotionThreshold
	manager.MinScore = cfg.Memory.LongTermMinScore

	personas, err := buildPersonaCatalogue(cfg.PersonaPath)
	if err != nil {
		return nil, err
	}

	registry := agent.NewRegistry()
	memAgent := memoryagent.New(manager, llmClient, cfg.BotID)
	memAgent.SetMetrics(metrics)
	memAgent.MaxIterations = cfg.Memory.MaxIterations
	memAgent.RecentSummaryN = cfg.Memory.RecentSummaryN
	if err := registry.Register(memAgent); err != nil {
		return nil, fmt.Errorf("register memory_agent: %w", err)
	}

	charAgent := characteragent.New(llmClient, personas.Get(cfg.BotID))
	charAgent.SetMetrics(metrics)
	charAgent.MaxIterations = cfg.Memory.CharacterMaxIterations
	if err := registry.Register(charAgent); err != nil {
		return nil, fmt.Errorf("register character_agent: %w", err)
	}

	sessions := session.New(registry, llmClient, manager)
	sessions.SetMetrics(metrics)
	sessions.SetMessageWindow(cfg.Memory.MessageWindow)
	sessions.SetMaxIterations(cfg.Memory.MaxIterations)

	return &runtime{
		cfg:      cfg,
		llm:      llmClient,
		manager:  manager,
		personas: personas,
		sessions: sessions,
		metrics:  metrics,
	}, nil
}

func buildLLMBackend(cfg config.LLMConfig) (llms.Backend, error) {
	switch cfg.Provider {
	case "anthropic":
		return llms.NewAnthropicBackend(cfg.APIKey, 4096), nil
	case "openai":
		return llms.NewOpenAIBackend(cfg.APIKey), nil
	default:
		return nil, fmt.Errorf("wiring: unsupported llm.provider %q", cfg.Provider)
	}
}

func buildStorage(cfg config.StorageConfig) (storage.Backend, error) {
	var rel *relational.Backend
	var err error
	switch cfg.Relational.Driver {
	case "postgres":
		rel, err = relational.OpenPostgres(cfg.Relational.DSN)
	default:
		path := cfg.Relational.DSN
		if path == "" {
			path = "botagent.db"
		}
		rel, err = relational.OpenSQLite(path)
	}
	if err != nil {
		return nil, fmt.Errorf("wiring: open relational storage: %w", err)
	}
	if err := rel.EnsureSchema(context.Background()); err != nil {
		return nil, fmt.Errorf("wiring: ensure relational schema: %w", err)
	}

	var vec storage.Vector
	switch cfg.Vector.Driver {
	case "qdrant":
		host := cfg.Vector.DSN
		if host == "" {
			host = "localhost"
		}
		qb, err := vector.NewQdrantBackend(host, 6334, "", embeddingDim)
		if err != nil {
			return nil, fmt.Errorf("wiring: open qdrant: %w", err)
		}
		vec = qb
	default:
		vec = vector.NewChromemBackend()
	}

	return storage.Combine(rel, vec), nil
}

func buildPersonaCatalogue(path string) (*persona.Catalogue, error) {
	if path == "" {
		return persona.Empty(), nil
	}
	return persona.Load(path)
}
