package inventory

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/edgeopslabs/probe/pkg/config"
	"github.com/edgeopslabs/probe/pkg/discovery"
	"github.com/edgeopslabs/probe/pkg/policy"
	"github.com/edgeopslabs/probe/pkg/providers"
)

type Discoverer interface {
	Discover(ctx context.Context, spec discovery.ProviderInvocationSpec) discovery.SessionResult
}

type Options struct {
	// Timeout is the deadline for providers that do not set their own.
	Timeout     time.Duration
	Concurrency int
	Policy      *policy.Policy
	Logger      *slog.Logger
}

type ToolEntry struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"inputSchema,omitempty"`
	Status      policy.Decision `json:"status"`
}

type ProviderReport struct {
	Name    string                    `json:"name"`
	Source  string                    `json:"source,omitempty"`
	Success bool                      `json:"success"`
	Error   string                    `json:"error,omitempty"`
	Server  *discovery.ServerIdentity `json:"server,omitempty"`
	Tools   []ToolEntry               `json:"tools"`
	Elapsed string                    `json:"elapsed"`
}

type Report struct {
	Client    string           `json:"client"`
	Version   string           `json:"version"`
	Transport string           `json:"transport"`
	Providers []ProviderReport `json:"providers"`
}

func (r Report) Failed() int {
	failed := 0
	for _, p := range r.Providers {
		if !p.Success {
			failed++
		}
	}
	return failed
}

// Run discovers every definition as its own session, at most
// opts.Concurrency at a time. Reports keep the order of defs.
func Run(ctx context.Context, d Discoverer, defs []providers.Definition, opts Options) []ProviderReport {
	limit := opts.Concurrency
	if limit <= 0 {
		limit = 1
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	toolPolicy := opts.Policy
	if toolPolicy == nil {
		toolPolicy = policy.New(config.PolicyConfig{})
	}

	reports := make([]ProviderReport, len(defs))
	sem := make(chan struct{}, limit)
	var wg sync.WaitGroup
	for i, def := range defs {
		wg.Add(1)
		go func(i int, def providers.Definition) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			logger.Debug("discovering provider", "provider", def.Name, "source", def.Source)
			start := time.Now()
			result := d.Discover(ctx, def.Invocation(opts.Timeout))
			reports[i] = buildReport(def, result, toolPolicy, time.Since(start))
		}(i, def)
	}
	wg.Wait()
	return reports
}

func buildReport(def providers.Definition, result discovery.SessionResult, toolPolicy *policy.Policy, elapsed time.Duration) ProviderReport {
	report := ProviderReport{
		Name:    def.Name,
		Source:  def.Source,
		Success: result.Success,
		Error:   result.Error,
		Server:  result.ServerIdentity,
		Tools:   make([]ToolEntry, 0, len(result.Tools)),
		Elapsed: elapsed.Round(time.Millisecond).String(),
	}
	for _, tool := range result.Tools {
		report.Tools = append(report.Tools, ToolEntry{
			Name:        tool.Name,
			Description: tool.Description,
			InputSchema: tool.InputSchema,
			Status:      toolPolicy.Evaluate(def.Name, tool.Name),
		})
	}
	return report
}
