// Package newsagent declares the news search agents: what they are called,
// which model and toolsets they use, and the instructions that steer them.
package newsagent

import (
	"context"
	"fmt"
	"iter"

	"github.com/dotcommander/newsagent/internal/config"
)

// Agent and state key names.
const (
	PipelineName   = "news_search_pipeline_agent"
	PlannerName    = "news_planner"
	ResearcherName = "news_researcher"
	PublisherName  = "news_publisher"

	KeyTopic         = "topic"
	KeySearchQueries = "search_queries"
	KeyNewsArticles  = "news_articles"
	KeyReport        = "news_report_document"
)

// Definition declares an agent. An agent with sub-agents runs them in
// order and does not call the model itself.
type Definition struct {
	Name        string
	Description string
	Model       string
	API         string
	Instruction string
	OutputKey   string
	Toolsets    []string
	SubAgents   []Definition
}

// IsSequential reports whether the agent only orchestrates sub-agents.
func (d Definition) IsSequential() bool {
	return len(d.SubAgents) > 0
}

// All yields the definition and every sub-agent, depth first.
func (d Definition) All() iter.Seq[Definition] {
	return func(yield func(Definition) bool) {
		d.walk(yield)
	}
}

func (d Definition) walk(yield func(Definition) bool) bool {
	if !yield(d) {
		return false
	}
	for _, sub := range d.SubAgents {
		if !sub.walk(yield) {
			return false
		}
	}
	return true
}

// Searchers yields the LLM agents that are given toolsets.
func (d Definition) Searchers() iter.Seq[Definition] {
	return func(yield func(Definition) bool) {
		for def := range d.All() {
			if def.IsSequential() || len(def.Toolsets) == 0 {
				continue
			}
			if !yield(def) {
				return
			}
		}
	}
}

// Build returns the definition selected by the agent mode.
func Build(ctx context.Context, cfg *config.Config) (Definition, error) {
	switch cfg.Agent.Mode {
	case config.ModeSingle, "":
		return Single(ctx, cfg)
	case config.ModePipeline:
		return Pipeline(ctx, cfg)
	default:
		return Definition{}, fmt.Errorf("unknown agent mode %q", cfg.Agent.Mode)
	}
}

// Single is the default agent: one model call loop with the search toolsets.
func Single(ctx context.Context, cfg *config.Config) (Definition, error) {
	params := ParamsFrom(cfg)
	def := Definition{
		Name:        cfg.Agent.Name,
		Description: cfg.Agent.Description,
		Model:       cfg.Model,
		API:         cfg.API,
		OutputKey:   KeyReport,
		Toolsets:    cfg.Agent.Toolsets,
	}
	if def.Name == "" {
		def.Name = config.Default().Agent.Name
	}
	instruction, err := instructionFor(ctx, cfg, def.Name, "assistant.tmpl", params)
	if err != nil {
		return Definition{}, err
	}
	def.Instruction = instruction
	return def, nil
}

// Pipeline is a planner, a researcher and a publisher run in sequence. Only
// the researcher gets the search toolsets.
func Pipeline(ctx context.Context, cfg *config.Config) (Definition, error) {
	params := ParamsFrom(cfg)
	subs := []Definition{
		{
			Name:        PlannerName,
			Description: "Plans news research by breaking down a topic into specific news search queries.",
			OutputKey:   KeySearchQueries,
		},
		{
			Name:        ResearcherName,
			Description: fmt.Sprintf("Executes news searches and extracts about %d articles with publication dates.", params.Articles),
			OutputKey:   KeyNewsArticles,
			Toolsets:    cfg.Agent.Toolsets,
		},
		{
			Name:        PublisherName,
			Description: "Sorts news articles by date and compiles them into a Markdown report.",
			OutputKey:   KeyReport,
		},
	}
	templates := []string{"planner.tmpl", "researcher.tmpl", "publisher.tmpl"}
	for i := range subs {
		subs[i].Model = cfg.Model
		subs[i].API = cfg.API
		instruction, err := instructionFor(ctx, cfg, subs[i].Name, templates[i], params)
		if err != nil {
			return Definition{}, err
		}
		subs[i].Instruction = instruction
	}
	return Definition{
		Name:        PipelineName,
		Description: fmt.Sprintf("Finds, summarizes and compiles about %d news articles on a topic, sorted by date.", params.Articles),
		Model:       cfg.Model,
		API:         cfg.API,
		OutputKey:   KeyReport,
		SubAgents:   subs,
	}, nil
}

func instructionFor(ctx context.Context, cfg *config.Config, name, tmpl string, params InstructionParams) (string, error) {
	if ref, ok := cfg.Instructions[name]; ok && ref != "" {
		text, err := config.LoadInstruction(ctx, ref)
		if err != nil {
			return "", fmt.Errorf("instruction for %s: %w", name, err)
		}
		return text, nil
	}
	return RenderInstruction(tmpl, params)
}
