// Package stride is the public API for embedding the Stride training-plan
// server.
//
// Library consumers import this package to construct and extend the server
// without forking it:
//
//	app, err := stride.New(
//	    stride.WithVersion(version),
//	    stride.WithLogger(logger),
//	    stride.WithGenerator(myBackend{}),
//	)
//	if err != nil { ... }
//	if err := app.Run(ctx); err != nil { ... }
//
// The import graph enforces a strict no-cycle rule: stride (root) imports
// internal/*, but internal/* never imports stride (root). Public types
// (Evidence, Verdict, RunLogEntry, etc.) are standalone structs with no
// internal imports; conversion adapters live here because this is the only
// file that sees both sides of the boundary.
package stride

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"github.com/paceline-ai/stride/api"
	"github.com/paceline-ai/stride/internal/config"
	"github.com/paceline-ai/stride/internal/embedding"
	"github.com/paceline-ai/stride/internal/generation"
	"github.com/paceline-ai/stride/internal/guard"
	"github.com/paceline-ai/stride/internal/mcp"
	"github.com/paceline-ai/stride/internal/model"
	"github.com/paceline-ai/stride/internal/retrieval"
	"github.com/paceline-ai/stride/internal/runlog"
	"github.com/paceline-ai/stride/internal/server"
	"github.com/paceline-ai/stride/internal/telemetry"
	"github.com/paceline-ai/stride/internal/workflow"
)

// App is the Stride server lifecycle. Construct with New(), run with Run(),
// or use GeneratePlan/AdjustToday directly for one-shot embedding.
// App has no public fields; use New() options to configure it.
type App struct {
	cfg          config.Config
	router       *workflow.Router
	runLog       runlog.Store
	srv          *server.Server
	qdrantIndex  *retrieval.QdrantIndex // nil unless Qdrant is the retrieval backend
	pgPool       *pgxpool.Pool          // nil unless pgvector is the retrieval backend
	otelShutdown func(context.Context) error
	logger       *slog.Logger
	version      string
}

// New initialises the Stride server. It connects to the configured retrieval
// and run log backends, wires all subsystems, and returns a ready-to-run App.
// It does NOT start any goroutines or accept HTTP connections; call Run().
func New(opts ...Option) (*App, error) {
	// Apply options.
	o := resolvedOptions{}
	for _, fn := range opts {
		fn(&o)
	}

	logger := o.logger
	if logger == nil {
		logger = slog.Default()
	}

	// Load .env file if present (non-fatal; production won't have one).
	_ = godotenv.Load()

	// Load configuration (env vars), then apply option overrides.
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if o.port != 0 {
		cfg.Port = o.port
	}
	if o.databaseURL != "" {
		cfg.DatabaseURL = o.databaseURL
	}
	if o.rules != nil {
		cfg.Rules = internalRules(*o.rules)
		if err := cfg.Rules.Validate(); err != nil {
			return nil, err
		}
	}
	version := o.version
	if version == "" {
		version = "dev"
	}

	logger.Info("stride starting", "version", version, "port", cfg.Port)

	// Initialize OpenTelemetry.
	otelShutdown, err := telemetry.Init(context.Background(), cfg.OTELEndpoint, cfg.ServiceName, version, cfg.OTELInsecure)
	if err != nil {
		return nil, fmt.Errorf("telemetry: %w", err)
	}

	app := &App{
		cfg:          cfg,
		otelShutdown: otelShutdown,
		logger:       logger,
		version:      version,
	}

	// Retrieval index: external override takes priority over configured backends.
	retriever, err := app.newRetriever(o)
	if err != nil {
		app.closeInfra()
		return nil, err
	}

	// Generation backend.
	var gen generation.Generator
	if o.generator != nil {
		gen = &generatorAdapter{g: o.generator}
	} else {
		gen = generation.NewOpenAIGenerator(generation.OpenAIConfig{
			BaseURL: cfg.GeneratorBaseURL,
			APIKey:  cfg.GeneratorAPIKey,
			Model:   cfg.GeneratorModel,
			Timeout: cfg.GenerationTimeout,
		}, logger)
		logger.Info("generation backend", "url", cfg.GeneratorBaseURL, "model", cfg.GeneratorModel)
	}

	// Run log store.
	app.runLog, err = app.newRunLogStore(o)
	if err != nil {
		app.closeInfra()
		return nil, err
	}

	// Workflow graph: Router -> {Planner | Adjuster} -> guards -> run log.
	ports := workflow.Ports{
		Retriever:         retriever,
		Generator:         gen,
		RetrievalTimeout:  cfg.RetrievalTimeout,
		GenerationTimeout: cfg.GenerationTimeout,
	}
	app.router = workflow.NewRouter(
		workflow.NewPlanner(ports, cfg.Rules, logger),
		workflow.NewAdjuster(ports, cfg.Rules, logger),
		guard.NewHallucination(cfg.Rules, logger),
		guard.NewSafety(cfg.Rules, logger),
		app.runLog,
		logger,
	)

	// MCP server, mounted at /mcp by the HTTP server.
	mcpSrv := mcp.New(app.router, app.runLog, logger)

	app.srv = server.New(server.Config{
		Router:       app.router,
		RunLog:       app.runLog,
		Logger:       logger,
		Retriever:    retriever,
		MCPServer:    mcpSrv.MCPServer(),
		OpenAPISpec:  api.OpenAPISpec,
		Port:         cfg.Port,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		Version:      version,
	})

	return app, nil
}

// Run starts the HTTP server and blocks until ctx is cancelled or a fatal
// server error occurs. On return, Shutdown is called automatically and
// callers should not call Shutdown separately.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		if err := a.srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return err
	}

	return a.Shutdown(context.Background())
}

// Shutdown stops accepting HTTP requests, drains in-flight ones, then closes
// the run log store, retrieval backend, and OTEL provider.
func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info("stride shutting down")

	httpCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	if err := a.srv.Shutdown(httpCtx); err != nil {
		a.logger.Error("http shutdown error", "error", err)
	}
	cancel()

	a.closeInfra()
	a.logger.Info("stride stopped")
	return nil
}

// Close releases backends without touching the HTTP server. Use it for
// one-shot embedding where Run() was never called.
func (a *App) Close() {
	a.closeInfra()
}

func (a *App) closeInfra() {
	if a.runLog != nil {
		if err := a.runLog.Close(); err != nil {
			a.logger.Error("run log close error", "error", err)
		}
		a.runLog = nil
	}
	if a.qdrantIndex != nil {
		_ = a.qdrantIndex.Close()
		a.qdrantIndex = nil
	}
	if a.pgPool != nil {
		a.pgPool.Close()
		a.pgPool = nil
	}
	if a.otelShutdown != nil {
		_ = a.otelShutdown(context.Background())
		a.otelShutdown = nil
	}
}

// Handler returns the root HTTP handler, for mounting Stride inside another
// mux or driving it with httptest.
func (a *App) Handler() http.Handler {
	return a.srv.Handler()
}

// GeneratePlan runs the plan workflow directly, bypassing HTTP. The result
// is still validated by both guards and appended to the run log.
func (a *App) GeneratePlan(ctx context.Context, req PlanRequest) (WorkflowResult, error) {
	result, err := a.router.Handle(ctx, model.Request{
		Kind: model.RequestGeneratePlan,
		Profile: model.RunnerProfile{
			GoalRace:      req.GoalRace,
			GoalDate:      req.GoalDate,
			WeeklyMileage: req.WeeklyMileage,
			LongestRun:    req.LongestRun,
			BaselinePace:  req.BaselinePace,
			InjuryFlags:   req.InjuryFlags,
		},
	})
	if err != nil {
		return WorkflowResult{}, err
	}
	return toPublicResult(result)
}

// AdjustToday runs the adjustment workflow directly, bypassing HTTP.
// PlanJSON may be either a bare plan document or the kind-tagged artifact
// exactly as returned by GeneratePlan.
func (a *App) AdjustToday(ctx context.Context, req AdjustRequest) (WorkflowResult, error) {
	plan, err := decodePlanJSON(req.PlanJSON)
	if err != nil {
		return WorkflowResult{}, err
	}
	actx := model.AdjustmentContext{
		Date:    req.Date,
		Fatigue: req.Fatigue,
		Weather: model.Weather{
			TempF:     req.TempF,
			Humidity:  req.Humidity,
			Condition: model.WeatherCondition(req.Condition),
		},
		InjuryFlags: req.InjuryFlags,
	}
	result, err := a.router.Handle(ctx, model.Request{
		Kind: model.RequestAdjustToday,
		Profile: model.RunnerProfile{
			GoalRace:      plan.GoalRace,
			GoalDate:      plan.GoalDate,
			WeeklyMileage: req.WeeklyMileage,
		},
		Plan:    plan,
		Context: &actx,
	})
	if err != nil {
		return WorkflowResult{}, err
	}
	return toPublicResult(result)
}

// decodePlanJSON accepts a bare TrainingPlan document or the kind-tagged
// artifact envelope produced by MarshalArtifact.
func decodePlanJSON(data []byte) (*model.TrainingPlan, error) {
	var wrapped struct {
		Kind     model.ArtifactKind `json:"kind"`
		Artifact json.RawMessage    `json:"artifact"`
	}
	if err := json.Unmarshal(data, &wrapped); err == nil && wrapped.Kind == model.ArtifactPlan {
		data = wrapped.Artifact
	}
	plan := &model.TrainingPlan{}
	if err := json.Unmarshal(data, plan); err != nil {
		return nil, fmt.Errorf("decode plan: %w", err)
	}
	return plan, nil
}

// RunLog returns recent audit entries in ascending commit order. kind, when
// non-empty, filters to GENERATE_PLAN or ADJUST_TODAY.
func (a *App) RunLog(ctx context.Context, kind string, limit int) ([]RunLogEntry, error) {
	entries, err := a.runLog.Query(ctx, runlog.Filter{
		Kind:  model.RequestKind(kind),
		Limit: limit,
	})
	if err != nil {
		return nil, err
	}
	out := make([]RunLogEntry, 0, len(entries))
	for _, e := range entries {
		pub, err := toPublicEntry(e)
		if err != nil {
			return nil, err
		}
		out = append(out, pub)
	}
	return out, nil
}

// ── Backend construction ───────────────────────────────────────────────────────

func (a *App) newRetriever(o resolvedOptions) (retrieval.Retriever, error) {
	if o.retriever != nil {
		a.logger.Info("retrieval: external retriever")
		return &retrieverAdapter{r: o.retriever}, nil
	}

	var embedder embedding.Provider
	if o.embeddingProvider != nil {
		embedder = &embeddingAdapter{p: o.embeddingProvider}
	} else {
		embedder = newEmbeddingProvider(a.cfg, a.logger)
	}

	if a.cfg.QdrantURL != "" {
		idx, err := retrieval.NewQdrantIndex(retrieval.QdrantConfig{
			URL:        a.cfg.QdrantURL,
			APIKey:     a.cfg.QdrantAPIKey,
			Collection: a.cfg.QdrantCollection,
			Dims:       uint64(a.cfg.EmbeddingDimensions), //nolint:gosec // validated positive in config.Validate
		}, embedder, a.logger)
		if err != nil {
			return nil, fmt.Errorf("qdrant: %w", err)
		}
		if err := idx.EnsureCollection(context.Background()); err != nil {
			_ = idx.Close()
			return nil, fmt.Errorf("qdrant ensure collection: %w", err)
		}
		a.qdrantIndex = idx
		a.logger.Info("retrieval: qdrant", "collection", a.cfg.QdrantCollection)
		return idx, nil
	}

	if a.cfg.DatabaseURL != "" {
		pool, err := retrieval.NewPgVectorPool(context.Background(), a.cfg.DatabaseURL, a.logger)
		if err != nil {
			return nil, fmt.Errorf("pgvector: %w", err)
		}
		a.pgPool = pool
		a.logger.Info("retrieval: pgvector")
		return retrieval.NewPgVectorIndex(pool, embedder, a.logger), nil
	}

	return nil, fmt.Errorf("retrieval: no backend configured (set QDRANT_URL or DATABASE_URL, or pass WithRetriever)")
}

func (a *App) newRunLogStore(o resolvedOptions) (runlog.Store, error) {
	if o.runLogStore != nil {
		a.logger.Info("run log: external store")
		return &runLogAdapter{s: o.runLogStore}, nil
	}

	switch a.cfg.RunLogBackend {
	case "postgres":
		store, err := runlog.OpenPostgres(context.Background(), a.cfg.DatabaseURL, a.logger)
		if err != nil {
			return nil, fmt.Errorf("run log: %w", err)
		}
		a.logger.Info("run log: postgres")
		return store, nil
	case "sqlite":
		store, err := runlog.OpenSQLite(a.cfg.SQLitePath, a.logger)
		if err != nil {
			return nil, fmt.Errorf("run log: %w", err)
		}
		a.logger.Info("run log: sqlite", "path", a.cfg.SQLitePath)
		return store, nil
	default: // "memory"; config.Validate rejects anything else
		a.logger.Warn("run log: memory (entries are lost on restart)")
		return runlog.NewMemory(), nil
	}
}

// newEmbeddingProvider creates an embedding provider based on configuration.
// Provider selection: "ollama", "openai", "noop", or "auto" (default).
// Auto mode tries Ollama if reachable, then OpenAI if key present, else noop.
// Ollama is preferred: query embeddings stay on-premises with no API costs.
func newEmbeddingProvider(cfg config.Config, logger *slog.Logger) embedding.Provider {
	dims := cfg.EmbeddingDimensions

	switch cfg.EmbeddingProvider {
	case "openai":
		if cfg.OpenAIAPIKey == "" {
			logger.Error("OPENAI_API_KEY required when STRIDE_EMBEDDING_PROVIDER=openai")
			return embedding.NewNoopProvider(dims)
		}
		logger.Info("embedding provider: openai", "model", cfg.EmbeddingModel, "dimensions", dims)
		return embedding.NewOpenAIProvider(cfg.OpenAIAPIKey, cfg.EmbeddingModel, dims)

	case "ollama":
		logger.Info("embedding provider: ollama", "url", cfg.OllamaURL, "model", cfg.OllamaModel, "dimensions", dims)
		return embedding.NewOllamaProvider(cfg.OllamaURL, cfg.OllamaModel, dims)

	case "noop":
		logger.Info("embedding provider: noop (semantic retrieval degraded)")
		return embedding.NewNoopProvider(dims)

	case "auto":
		fallthrough
	default:
		if ollamaReachable(cfg.OllamaURL) {
			logger.Info("embedding provider: ollama (auto-detected)", "url", cfg.OllamaURL, "model", cfg.OllamaModel, "dimensions", dims)
			return embedding.NewOllamaProvider(cfg.OllamaURL, cfg.OllamaModel, dims)
		}
		if cfg.OpenAIAPIKey != "" {
			logger.Info("embedding provider: openai (auto-detected)", "model", cfg.EmbeddingModel, "dimensions", dims)
			return embedding.NewOpenAIProvider(cfg.OpenAIAPIKey, cfg.EmbeddingModel, dims)
		}
		logger.Warn("no embedding provider available, using noop (semantic retrieval degraded)")
		return embedding.NewNoopProvider(dims)
	}
}

// ollamaReachable checks if an Ollama server is responding.
func ollamaReachable(baseURL string) bool {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/api/tags", nil)
	if err != nil {
		return false
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return false
	}
	_ = resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// ── Adapters (defined here because this file imports both sides) ───────────────

// embeddingAdapter wraps a public EmbeddingProvider to satisfy embedding.Provider.
type embeddingAdapter struct {
	p EmbeddingProvider
}

func (a *embeddingAdapter) Embed(ctx context.Context, text string) ([]float32, error) {
	return a.p.Embed(ctx, text)
}

func (a *embeddingAdapter) Dimensions() int { return a.p.Dimensions() }

// retrieverAdapter wraps a public Retriever to satisfy retrieval.Retriever.
type retrieverAdapter struct {
	r Retriever
}

func (a *retrieverAdapter) Search(ctx context.Context, query string, domain model.CorpusDomain, k int) ([]model.Evidence, error) {
	results, err := a.r.Search(ctx, query, string(domain), k)
	if err != nil {
		return nil, err
	}
	out := make([]model.Evidence, len(results))
	for i, e := range results {
		out[i] = model.Evidence{Source: e.Source, Text: e.Text, Score: e.Score, Rank: e.Rank}
	}
	return out, nil
}

func (a *retrieverAdapter) Healthy(ctx context.Context) error {
	return a.r.Healthy(ctx)
}

// generatorAdapter wraps a public Generator to satisfy generation.Generator.
// The standard prompt rendering and output parsing stay inside Stride so an
// external backend cannot bypass structural validation.
type generatorAdapter struct {
	g Generator
}

func (a *generatorAdapter) Generate(ctx context.Context, prompt generation.Prompt) (generation.Output, error) {
	system, user := generation.RenderMessages(prompt)
	raw, err := a.g.Generate(ctx, system, user)
	if err != nil {
		return generation.Output{}, err
	}
	return generation.ParseOutput(prompt, raw)
}

// runLogAdapter wraps a public RunLogStore to satisfy runlog.Store.
type runLogAdapter struct {
	s RunLogStore
}

func (a *runLogAdapter) Append(ctx context.Context, entry model.RunLogEntry) (model.RunLogEntry, error) {
	pub, err := toPublicEntry(entry)
	if err != nil {
		return model.RunLogEntry{}, err
	}
	stored, err := a.s.Append(ctx, pub)
	if err != nil {
		return model.RunLogEntry{}, err
	}
	return fromPublicEntry(stored)
}

func (a *runLogAdapter) Query(ctx context.Context, filter runlog.Filter) ([]model.RunLogEntry, error) {
	pubs, err := a.s.Query(ctx, string(filter.Kind), filter.Since, filter.Limit)
	if err != nil {
		return nil, err
	}
	out := make([]model.RunLogEntry, 0, len(pubs))
	for _, pub := range pubs {
		entry, err := fromPublicEntry(pub)
		if err != nil {
			return nil, err
		}
		out = append(out, entry)
	}
	return out, nil
}

func (a *runLogAdapter) Close() error { return a.s.Close() }

// ── Type converters ────────────────────────────────────────────────────────────

// toPublicResult converts an internal workflow result to the public view.
// Lives here because this is the only file that imports both sides of the
// boundary.
func toPublicResult(result model.WorkflowResult) (WorkflowResult, error) {
	artifact, err := model.MarshalArtifact(result.Artifact)
	if err != nil {
		return WorkflowResult{}, fmt.Errorf("serialize artifact: %w", err)
	}
	evidence := make([]Evidence, len(result.Evidence))
	for i, e := range result.Evidence {
		evidence[i] = Evidence{Source: e.Source, Text: e.Text, Score: e.Score, Rank: e.Rank}
	}
	return WorkflowResult{
		Artifact: artifact,
		Verdict: Verdict{
			Outcome:     string(result.Verdict.Outcome),
			Rules:       result.Verdict.Rules,
			Explanation: result.Verdict.Explanation,
		},
		Evidence: evidence,
	}, nil
}

func toPublicEntry(e model.RunLogEntry) (RunLogEntry, error) {
	profile, err := json.Marshal(e.Profile)
	if err != nil {
		return RunLogEntry{}, fmt.Errorf("serialize profile: %w", err)
	}
	var actx json.RawMessage
	if e.Context != nil {
		actx, err = json.Marshal(e.Context)
		if err != nil {
			return RunLogEntry{}, fmt.Errorf("serialize context: %w", err)
		}
	}
	evidence, err := json.Marshal(e.Evidence)
	if err != nil {
		return RunLogEntry{}, fmt.Errorf("serialize evidence: %w", err)
	}
	verdict, err := json.Marshal(e.Verdict)
	if err != nil {
		return RunLogEntry{}, fmt.Errorf("serialize verdict: %w", err)
	}
	return RunLogEntry{
		ID:          e.ID,
		Seq:         e.Seq,
		Timestamp:   e.Timestamp,
		RequestKind: string(e.RequestKind),
		Profile:     profile,
		Context:     actx,
		Evidence:    evidence,
		RawOutput:   e.RawOutput,
		Verdict:     verdict,
		Artifact:    e.Artifact,
		ChainHash:   e.ChainHash,
	}, nil
}

func fromPublicEntry(pub RunLogEntry) (model.RunLogEntry, error) {
	entry := model.RunLogEntry{
		ID:          pub.ID,
		Seq:         pub.Seq,
		Timestamp:   pub.Timestamp,
		RequestKind: model.RequestKind(pub.RequestKind),
		RawOutput:   pub.RawOutput,
		Artifact:    pub.Artifact,
		ChainHash:   pub.ChainHash,
	}
	if len(pub.Profile) > 0 {
		if err := json.Unmarshal(pub.Profile, &entry.Profile); err != nil {
			return model.RunLogEntry{}, fmt.Errorf("decode profile: %w", err)
		}
	}
	if len(pub.Context) > 0 {
		entry.Context = &model.AdjustmentContext{}
		if err := json.Unmarshal(pub.Context, entry.Context); err != nil {
			return model.RunLogEntry{}, fmt.Errorf("decode context: %w", err)
		}
	}
	if len(pub.Evidence) > 0 {
		if err := json.Unmarshal(pub.Evidence, &entry.Evidence); err != nil {
			return model.RunLogEntry{}, fmt.Errorf("decode evidence: %w", err)
		}
	}
	if len(pub.Verdict) > 0 {
		if err := json.Unmarshal(pub.Verdict, &entry.Verdict); err != nil {
			return model.RunLogEntry{}, fmt.Errorf("decode verdict: %w", err)
		}
	}
	return entry, nil
}

// DefaultSafetyRules returns the documented rule thresholds.
func DefaultSafetyRules() SafetyRules {
	return publicRules(config.DefaultRules())
}

func publicRules(r config.Rules) SafetyRules {
	return SafetyRules{
		OverloadCapPct:    r.OverloadCapPct,
		LongRunFraction:   r.LongRunFraction,
		LongRunCeiling:    r.LongRunCeiling,
		MinEvidence:       r.MinEvidence,
		RelevanceFloor:    r.RelevanceFloor,
		RetrievalK:        r.RetrievalK,
		FatigueThreshold:  r.FatigueThreshold,
		HeatTempF:         r.HeatTempF,
		HumidityThreshold: r.HumidityThreshold,
		FatigueReduction:  r.FatigueReduction,
		PaceWiden:         r.PaceWiden,
	}
}

func internalRules(r SafetyRules) config.Rules {
	return config.Rules{
		OverloadCapPct:    r.OverloadCapPct,
		LongRunFraction:   r.LongRunFraction,
		LongRunCeiling:    r.LongRunCeiling,
		MinEvidence:       r.MinEvidence,
		RelevanceFloor:    r.RelevanceFloor,
		RetrievalK:        r.RetrievalK,
		FatigueThreshold:  r.FatigueThreshold,
		HeatTempF:         r.HeatTempF,
		HumidityThreshold: r.HumidityThreshold,
		FatigueReduction:  r.FatigueReduction,
		PaceWiden:         r.PaceWiden,
	}
}
