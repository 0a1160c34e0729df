package consult

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/specdeck/specdeck/internal/debug"
	"github.com/specdeck/specdeck/internal/spec"
)

// maxConcurrent bounds parallel fan-out so a long tool list does not
// spawn unbounded subprocesses.
const maxConcurrent = 4

// Options shape one consultation request.
type Options struct {
	SystemPrompt string
	Model        string
	Skill        string
	// Context is structured context (spec excerpts) hashed into the
	// cache key and appended to the prompt.
	Context []byte
	NoCache bool
}

// Orchestrator runs consultations against configured providers.
type Orchestrator struct {
	Config *Config
	Cache  *Cache
	Sub    Subscriber

	// run is swapped by tests to avoid spawning subprocesses.
	run runner
}

// NewOrchestrator wires an orchestrator. cache may be nil to disable
// caching entirely.
func NewOrchestrator(cfg *Config, cache *Cache, sub Subscriber) *Orchestrator {
	return &Orchestrator{Config: cfg, Cache: cache, Sub: sub, run: runProvider}
}

func (o *Orchestrator) sub() Subscriber {
	if o.Sub != nil {
		return o.Sub
	}
	return nopSubscriber{}
}

func (o *Orchestrator) runner() runner {
	if o.run != nil {
		return o.run
	}
	return runProvider
}

// Single consults one tool.
func (o *Orchestrator) Single(ctx context.Context, tool, prompt string, opts Options) (ToolResponse, *Failure) {
	p, err := o.Config.Provider(tool)
	if err != nil {
		return ToolResponse{Tool: tool}, &Failure{Tool: tool, Category: FailNotInstalled}
	}
	return o.consult(ctx, p, prompt, opts)
}

func (o *Orchestrator) consult(ctx context.Context, p Provider, prompt string, opts Options) (ToolResponse, *Failure) {
	model := o.Config.ResolveModel(opts.Skill, p.Tool, opts.Model)
	key := Key(p.Tool, model, prompt, opts.SystemPrompt, opts.Skill, ContextHash(opts.Context))
	sub := o.sub()

	if o.Cache != nil && !opts.NoCache {
		if resp, ok := o.Cache.Get(key); ok {
			sub.Completed(p.Tool, resp)
			return resp, nil
		}
	}

	fullPrompt := prompt
	if len(opts.Context) > 0 {
		fullPrompt = prompt + "\n\n" + string(opts.Context)
	}
	if opts.SystemPrompt != "" {
		fullPrompt = opts.SystemPrompt + "\n\n" + fullPrompt
	}

	resp, failure := o.runner()(ctx, p, model, fullPrompt, sub)
	if failure != nil {
		sub.Failed(p.Tool, *failure)
		return resp, failure
	}
	if o.Cache != nil && !opts.NoCache {
		if err := o.Cache.Put(key, resp); err != nil {
			debug.Logf("consult: cache write failed: %v", err)
		}
	}
	sub.Completed(p.Tool, resp)
	return resp, nil
}

// Parallel fans out to all tools concurrently and waits for the whole
// batch. One tool's failure never sinks the batch; partial results are
// returned with per-tool failure records.
func (o *Orchestrator) Parallel(ctx context.Context, tools []string, prompt string, opts Options) MultiToolResponse {
	var out MultiToolResponse
	if len(tools) == 0 {
		return out
	}

	deadline := time.Duration(0)
	for _, tool := range tools {
		if p, err := o.Config.Provider(tool); err == nil && p.Timeout() > deadline {
			deadline = p.Timeout()
		}
	}
	if deadline == 0 {
		deadline = 90 * time.Second
	}
	batchCtx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(batchCtx)
	g.SetLimit(maxConcurrent)
	for _, tool := range tools {
		g.Go(func() error {
			p, err := o.Config.Provider(tool)
			if err != nil {
				mu.Lock()
				out.Failures = append(out.Failures, Failure{Tool: tool, Category: FailNotInstalled})
				mu.Unlock()
				return nil
			}
			resp, failure := o.consult(gctx, p, prompt, opts)
			mu.Lock()
			defer mu.Unlock()
			if failure != nil {
				out.Failures = append(out.Failures, *failure)
				return nil
			}
			out.Responses = append(out.Responses, resp)
			return nil
		})
	}
	_ = g.Wait()

	out.Success = len(out.Responses) > 0
	return out
}

// WithFallback tries tools in priority order, returning the first
// success.
func (o *Orchestrator) WithFallback(ctx context.Context, tools []string, prompt string, opts Options) (ToolResponse, error) {
	var failures []Failure
	for _, tool := range tools {
		if ctx.Err() != nil {
			break
		}
		resp, failure := o.Single(ctx, tool, prompt, opts)
		if failure == nil {
			return resp, nil
		}
		failures = append(failures, *failure)
		debug.Logf("consult: %s failed (%s), falling back", tool, failure.Category)
	}
	return ToolResponse{}, spec.E(spec.KindConsultation, "all review tools failed").
		WithDetails(map[string]any{"failures": failures})
}
