// Command blackwell runs the clinical evaluation pipeline: an intake
// interview that produces an anamnesis report, followed by the multi-stage
// evaluation that researches, diagnoses, and composes a consultation report.
//
// Subcommands:
//
//	index     ingest documents from the data directory into the vector index
//	chat      interactive intake interview, then evaluation
//	evaluate  evaluate anamnesis report files (or stdin) directly
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/google/uuid"
	openaisdk "github.com/openai/openai-go/v3"
	"github.com/sweetpotato0/blackwell/anamnesis"
	"github.com/sweetpotato0/blackwell/checkpoint"
	checkpointmemory "github.com/sweetpotato0/blackwell/checkpoint/memory"
	checkpointmongo "github.com/sweetpotato0/blackwell/checkpoint/mongo"
	checkpointredis "github.com/sweetpotato0/blackwell/checkpoint/redis"
	"github.com/sweetpotato0/blackwell/config"
	"github.com/sweetpotato0/blackwell/evaluator"
	"github.com/sweetpotato0/blackwell/llm"
	"github.com/sweetpotato0/blackwell/llm/provider/claude"
	"github.com/sweetpotato0/blackwell/llm/provider/gemini"
	"github.com/sweetpotato0/blackwell/llm/provider/openai"
	"github.com/sweetpotato0/blackwell/pkg/logging"
	"github.com/sweetpotato0/blackwell/pkg/telemetry"
	"github.com/sweetpotato0/blackwell/prompt"
	"github.com/sweetpotato0/blackwell/pubmed"
	"github.com/sweetpotato0/blackwell/research"
	"github.com/sweetpotato0/blackwell/retrieval"
	openaiembedder "github.com/sweetpotato0/blackwell/retrieval/embedder/openai"
	"github.com/sweetpotato0/blackwell/runner"
	"github.com/sweetpotato0/blackwell/tokenizer"
	"github.com/sweetpotato0/blackwell/tool/mcp"
	"github.com/sweetpotato0/blackwell/vector"
	"github.com/sweetpotato0/blackwell/vector/inmemory"
	"github.com/sweetpotato0/blackwell/vector/pg"
	"github.com/sweetpotato0/blackwell/webfetch"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "blackwell:", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log := logging.WithComponent("main")

	shutdown, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName:    "blackwell",
		ServiceVersion: "1.0.0",
		Logger:         log,
	})
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		if err := shutdown(context.Background()); err != nil {
			log.Warn("telemetry shutdown failed", "error", err)
		}
	}()

	cmd := "chat"
	args := os.Args[1:]
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		cmd, args = args[0], args[1:]
	}

	switch cmd {
	case "index":
		return runIndex(ctx, cfg, args)
	case "chat":
		return runChat(ctx, cfg)
	case "evaluate":
		return runEvaluate(ctx, cfg, args)
	default:
		return fmt.Errorf("unknown command %q (want index, chat or evaluate)", cmd)
	}
}

// runIndex ingests plain-text documents from the data directory into the
// configured vector index.
func runIndex(ctx context.Context, cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("index", flag.ContinueOnError)
	dir := fs.String("dir", cfg.DataDir, "directory of .txt/.md documents to ingest")
	if err := fs.Parse(args); err != nil {
		return err
	}

	store, closeStore, err := newVectorStore(cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	retriever := retrieval.New(store, newEmbedder(cfg))
	log := logging.WithComponent("index")

	var docs []retrieval.Document
	err = filepath.WalkDir(*dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		ext := strings.ToLower(filepath.Ext(path))
		if d.IsDir() || (ext != ".txt" && ext != ".md") {
			return nil
		}
		content, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}
		name := filepath.Base(path)
		docs = append(docs, retrieval.Document{
			ID:      name,
			Title:   strings.TrimSuffix(name, ext),
			Content: string(content),
			Source:  name,
		})
		return nil
	})
	if err != nil {
		return err
	}
	if len(docs) == 0 {
		return fmt.Errorf("no .txt or .md documents under %s", *dir)
	}

	if err := retriever.Index(ctx, docs...); err != nil {
		return fmt.Errorf("index documents: %w", err)
	}
	count, _ := retriever.Count(ctx)
	log.Info("indexing complete", "documents", len(docs), "chunks", count)
	return nil
}

// runChat conducts the intake interview on the terminal, then evaluates the
// resulting anamnesis report.
func runChat(ctx context.Context, cfg *config.Config) error {
	pool, err := newPool(cfg)
	if err != nil {
		return err
	}
	orch, cleanup, err := newOrchestrator(ctx, cfg, pool)
	if err != nil {
		return err
	}
	defer cleanup()

	interview, err := anamnesis.New(pool.Fast)
	if err != nil {
		return err
	}

	fmt.Println("Hi, I am your clinical evaluation assistant. Describe your complaint; type 'exit' to quit.")
	scanner := bufio.NewScanner(os.Stdin)
	for !interview.Done() {
		fmt.Print("> ")
		if !scanner.Scan() {
			return scanner.Err()
		}
		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}
		if strings.EqualFold(input, "exit") {
			return nil
		}
		reply, err := interview.Send(ctx, input)
		if err != nil {
			return err
		}
		fmt.Println(reply)
	}

	fmt.Println("\nIntake complete. Running evaluation, this can take a few minutes...")
	outcome, err := orch.Evaluate(ctx, interview.Report(), interview.ID())
	if err != nil {
		return err
	}
	fmt.Println("\n" + outcome.FinalReport)
	return nil
}

// runEvaluate evaluates anamnesis report files given as arguments, or a
// single report read from stdin.
func runEvaluate(ctx context.Context, cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("evaluate", flag.ContinueOnError)
	concurrency := fs.Int("concurrency", 2, "evaluations to run in parallel")
	if err := fs.Parse(args); err != nil {
		return err
	}

	pool, err := newPool(cfg)
	if err != nil {
		return err
	}
	orch, cleanup, err := newOrchestrator(ctx, cfg, pool)
	if err != nil {
		return err
	}
	defer cleanup()

	var tasks []runner.Task
	if fs.NArg() == 0 {
		report, err := io.ReadAll(os.Stdin)
		if err != nil {
			return fmt.Errorf("read stdin: %w", err)
		}
		tasks = append(tasks, runner.Task{SessionID: uuid.NewString(), AnamnesisReport: string(report)})
	} else {
		for _, path := range fs.Args() {
			report, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("read %s: %w", path, err)
			}
			tasks = append(tasks, runner.Task{SessionID: uuid.NewString(), AnamnesisReport: string(report)})
		}
	}

	results := runner.New(orch, *concurrency).RunBatch(ctx, tasks)
	var failed int
	for _, res := range results {
		fmt.Printf("\n===== session %s =====\n", res.SessionID)
		if res.Err != nil {
			failed++
			fmt.Printf("evaluation failed: %v\n", res.Err)
			continue
		}
		fmt.Println(res.Outcome.FinalReport)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d evaluations failed", failed, len(results))
	}
	return nil
}

// newOrchestrator assembles the evaluation pipeline from the configuration.
// The returned cleanup closes owned stores and tool providers.
func newOrchestrator(ctx context.Context, cfg *config.Config, pool llm.Pool) (*evaluator.Orchestrator, func(), error) {
	log := logging.WithComponent("main")
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	store, closeStore, err := newVectorStore(cfg)
	if err != nil {
		return nil, nil, err
	}
	closers = append(closers, closeStore)

	retriever := retrieval.New(store, newEmbedder(cfg))
	fetcher := webfetch.New()
	knowledge := research.KnowledgeTools(retriever, fetcher)

	if cfg.MCPEndpoint != "" || cfg.MCPCommand != "" {
		provider, err := mcp.Connect(ctx, mcp.Config{Endpoint: cfg.MCPEndpoint, Command: cfg.MCPCommand})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("connect mcp server: %w", err)
		}
		closers = append(closers, func() { _ = provider.Close() })
		if err := provider.Register(ctx, knowledge); err != nil {
			cleanup()
			return nil, nil, err
		}
		log.Info("mcp tools registered", "tools", len(knowledge.List()))
	}

	var pubmedOpts []pubmed.Option
	if cfg.PubMed.APIKey != "" {
		pubmedOpts = append(pubmedOpts, pubmed.WithAPIKey(cfg.PubMed.APIKey))
	}
	if cfg.PubMed.Email != "" {
		pubmedOpts = append(pubmedOpts, pubmed.WithEmail(cfg.PubMed.Email))
	}
	literature := research.LiteratureTools(pubmed.New(pubmedOpts...))

	prompts := prompt.DefaultManager()
	knowledgePrompt, err := prompts.Render(prompt.KnowledgeResearcher, map[string]any{"Budget": research.KnowledgeBudget})
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	literaturePrompt, err := prompts.Render(prompt.LiteratureResearcher, map[string]any{"Budget": research.LiteratureBudget})
	if err != nil {
		cleanup()
		return nil, nil, err
	}

	agentClient := pool.ForTools()
	diagnostic := research.NewSubAgent("diagnostic", agentClient, knowledge, knowledgePrompt, research.KnowledgeBudget)
	therapeutic := research.NewSubAgent("therapeutic", agentClient, knowledge, knowledgePrompt, research.KnowledgeBudget)
	litAgent := research.NewSubAgent("literature", agentClient, literature, literaturePrompt, research.LiteratureBudget)

	opts := []evaluator.Option{
		evaluator.WithMaxResearchAttempts(cfg.MaxResearchAttempts),
		evaluator.WithEvidenceBudget(cfg.EvidenceBudget),
	}

	ckpt, closeCkpt, err := newCheckpointStore(ctx, cfg)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	closers = append(closers, closeCkpt)
	opts = append(opts, evaluator.WithCheckpoints(ckpt))

	if counter, err := tokenizer.New(""); err == nil {
		opts = append(opts, evaluator.WithTokenCounter(counter))
	} else {
		log.Warn("token counter unavailable, evidence will not be trimmed", "error", err)
	}

	return evaluator.New(pool, diagnostic, therapeutic, litAgent, opts...), cleanup, nil
}

// newPool builds the generator variants for the configured provider.
func newPool(cfg *config.Config) (llm.Pool, error) {
	c := cfg.LLM
	switch c.Provider {
	case config.ProviderOpenAI:
		return llm.Pool{
			Fast:    openai.New(&openai.Config{APIKey: c.APIKey, Model: c.FastModel}),
			Pro:     openai.New(&openai.Config{APIKey: c.APIKey, Model: c.ProModel}),
			Agentic: openai.New(&openai.Config{APIKey: c.APIKey, Model: c.AgenticModel, Temperature: 0.2}),
		}, nil
	case config.ProviderClaude:
		return llm.Pool{
			Fast:    claude.New(&claude.Config{APIKey: c.APIKey, Model: c.FastModel}),
			Pro:     claude.New(&claude.Config{APIKey: c.APIKey, Model: c.ProModel}),
			Agentic: claude.New(&claude.Config{APIKey: c.APIKey, Model: c.AgenticModel, Temperature: 0.2}),
		}, nil
	case config.ProviderGemini:
		// The Gemini provider does not support tool calls; route the agentic
		// variant through it only for plain generation and let tool loops use
		// Fast.
		return llm.Pool{
			Fast: gemini.New(&gemini.Config{APIKey: c.APIKey, Model: c.FastModel, Temperature: 0.1}),
			Pro:  gemini.New(&gemini.Config{APIKey: c.APIKey, Model: c.ProModel}),
		}, nil
	default:
		return llm.Pool{}, fmt.Errorf("unknown llm provider %q", c.Provider)
	}
}

func newEmbedder(cfg *config.Config) vector.Embedder {
	return openaiembedder.New(cfg.Embedding.APIKey, "", openaisdk.EmbeddingModel(cfg.Embedding.Model), cfg.Embedding.Dimension)
}

func newVectorStore(cfg *config.Config) (vector.Store, func(), error) {
	if cfg.VectorBackend == config.BackendPostgres {
		store, err := pg.New(&pg.Config{
			Host:      cfg.Postgres.Host,
			Port:      cfg.Postgres.Port,
			User:      cfg.Postgres.User,
			Password:  cfg.Postgres.Password,
			DBName:    cfg.Postgres.DBName,
			SSLMode:   cfg.Postgres.SSLMode,
			Table:     cfg.Postgres.Table,
			Dimension: cfg.Embedding.Dimension,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("open pgvector store: %w", err)
		}
		return store, func() { _ = store.Close() }, nil
	}
	return inmemory.New(), func() {}, nil
}

func newCheckpointStore(ctx context.Context, cfg *config.Config) (checkpoint.Store, func(), error) {
	switch cfg.CheckpointBackend {
	case config.BackendRedis:
		store := checkpointredis.New(&checkpointredis.Config{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			TTL:      cfg.Redis.TTL,
		})
		if err := store.Ping(ctx); err != nil {
			return nil, nil, fmt.Errorf("redis checkpoint store: %w", err)
		}
		return store, func() { _ = store.Close() }, nil
	case config.BackendMongo:
		store, err := checkpointmongo.New(&checkpointmongo.Config{
			URI:      cfg.Mongo.URI,
			Database: cfg.Mongo.Database,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("mongo checkpoint store: %w", err)
		}
		return store, func() { _ = store.Close() }, nil
	default:
		store := checkpointmemory.New()
		return store, func() {}, nil
	}
}
