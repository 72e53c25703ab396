// Kestrel is a tool-using conversational agent with semantic memory.
//
// It drives a local Ollama model through an orchestration loop: the
// model can call registered tools (remembering and recalling facts,
// among others), and each user message is enriched with semantically
// retrieved background from the persistent memory index. Configuration
// is loaded from a single YAML file discovered automatically (see
// [config.DefaultSearchPaths]).
//
// Usage:
//
//	kestrel chat              Start an interactive chat session
//	kestrel ask <question>    Ask a single question and exit
//	kestrel remember <text>   Store a fact in the memory index
//	kestrel init [dir]        Initialize a working directory with defaults
//	kestrel stats             Show memory index statistics
package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/google/uuid"

	"github.com/kestrel-ai/kestrel/internal/agent"
	"github.com/kestrel-ai/kestrel/internal/compose"
	"github.com/kestrel-ai/kestrel/internal/config"
	"github.com/kestrel-ai/kestrel/internal/embeddings"
	"github.com/kestrel-ai/kestrel/internal/llm"
	"github.com/kestrel-ai/kestrel/internal/memory"
	"github.com/kestrel-ai/kestrel/internal/tools"
)

// main is intentionally minimal. It constructs the OS-level environment
// (context, stdio, argv) and delegates immediately to [run]. This keeps
// os.Exit, os.Stdout, and os.Args out of the application logic so that
// the full lifecycle can be driven from tests.
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Stdin, os.Stdout, os.Stderr, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		os.Exit(1)
	}
}

// run is the real entry point for the kestrel command. OS-level
// dependencies are injected as parameters so tests can drive the whole
// lifecycle. Arguments are parsed by hand: the flag package relies on
// package-level globals, which interferes with parallel tests, and the
// argument surface here is small.
func run(ctx context.Context, stdin io.Reader, stdout, stderr io.Writer, args []string) error {
	var configPath string
	var command string
	var cmdArgs []string

	for i := 0; i < len(args); i++ {
		switch {
		case args[i] == "-config" && i+1 < len(args):
			configPath = args[i+1]
			i++ // skip the value
		case strings.HasPrefix(args[i], "-config="):
			configPath = strings.TrimPrefix(args[i], "-config=")
		case args[i] == "-h" || args[i] == "-help" || args[i] == "--help":
			return printUsage(stdout)
		case !strings.HasPrefix(args[i], "-") && command == "":
			command = args[i]
		default:
			if command != "" {
				cmdArgs = append(cmdArgs, args[i])
			} else {
				return fmt.Errorf("unknown flag: %s", args[i])
			}
		}
	}

	switch command {
	case "chat":
		return runChat(ctx, stdin, stdout, configPath)
	case "ask":
		if len(cmdArgs) == 0 {
			return fmt.Errorf("usage: kestrel ask <question>")
		}
		return runAsk(ctx, stdout, configPath, strings.Join(cmdArgs, " "))
	case "remember":
		if len(cmdArgs) == 0 {
			return fmt.Errorf("usage: kestrel remember <text>")
		}
		return runRemember(ctx, stdout, configPath, strings.Join(cmdArgs, " "))
	case "init":
		dir := "."
		if len(cmdArgs) > 0 {
			dir = cmdArgs[0]
		}
		return runInit(stdout, dir)
	case "stats":
		return runStats(stdout, configPath)
	case "":
		return printUsage(stdout)
	default:
		return fmt.Errorf("unknown command: %s", command)
	}
}

// printUsage writes the top-level help text to w.
func printUsage(w io.Writer) error {
	fmt.Fprintln(w, "Kestrel - Tool-Using Conversational Agent")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage: kestrel [flags] <command> [args]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  chat          Start an interactive chat session")
	fmt.Fprintln(w, "  ask           Ask a single question and exit")
	fmt.Fprintln(w, "  remember      Store a fact in the memory index")
	fmt.Fprintln(w, "  init [dir]    Initialize a working directory with defaults (default: .)")
	fmt.Fprintln(w, "  stats         Show memory index statistics")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Flags:")
	fmt.Fprintln(w, "  -config <path>    Path to config file (default: auto-discover)")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Config search order:")
	fmt.Fprintln(w, "  ./config.yaml, ~/.config/kestrel/config.yaml, /etc/kestrel/config.yaml")
	return nil
}

// env bundles everything a subcommand needs: config, logger, and the
// restored memory index with its persister attached.
type env struct {
	cfg    *config.Config
	logger *slog.Logger
	index  *memory.Index
	store  *memory.SQLiteStore
}

func (e *env) close() {
	if e.store != nil {
		e.store.Close()
	}
}

// setup loads config, builds the logger, opens the memory database, and
// restores the index from it.
func setup(stdout io.Writer, configPath string) (*env, error) {
	cfg, cfgPath, err := loadConfig(configPath)
	if err != nil {
		return nil, err
	}

	level := slog.LevelInfo
	if cfg.LogLevel != "" {
		level, err = config.ParseLogLevel(cfg.LogLevel)
		if err != nil {
			return nil, err
		}
	}
	logger := newLogger(stdout, level)
	logger.Debug("config loaded", "path", cfgPath)

	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return nil, fmt.Errorf("create data directory %s: %w", cfg.DataDir, err)
	}

	store, err := memory.NewSQLiteStore(filepath.Join(cfg.DataDir, "memory.db"))
	if err != nil {
		return nil, fmt.Errorf("open memory database: %w", err)
	}

	embedder := embeddings.New(embeddings.Config{
		BaseURL: cfg.EmbeddingsURL(),
		Model:   cfg.Embeddings.Model,
		Timeout: cfg.EmbedTimeout(),
	})

	index := memory.NewIndex(embedder, logger)
	entries, err := store.Load()
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("load memory entries: %w", err)
	}
	if err := index.Restore(entries); err != nil {
		store.Close()
		return nil, fmt.Errorf("restore memory index: %w", err)
	}
	index.SetPersister(store)
	logger.Info("memory restored", "entries", len(entries))

	return &env{cfg: cfg, logger: logger, index: index, store: store}, nil
}

// newSession wires a full agent session: tools over the shared index,
// the Ollama chat client, and the retrieval composer.
func newSession(e *env) (*agent.Session, error) {
	registry := tools.NewRegistry()
	if err := tools.RegisterBuiltins(registry, e.index); err != nil {
		return nil, fmt.Errorf("register tools: %w", err)
	}

	client := llm.NewOllamaClient(e.cfg.Model.OllamaURL)

	composer := compose.New(e.index, e.cfg.Memory.Collection, e.logger)
	composer.SetLimit(e.cfg.Memory.Limit)
	composer.SetMinRelevance(e.cfg.Memory.MinRelevance)

	opts := []agent.Option{
		agent.WithLogger(e.logger),
		agent.WithComposer(composer),
		agent.WithMaxRounds(e.cfg.Agent.MaxRounds),
		agent.WithMaxParallelTools(e.cfg.Agent.MaxParallelTools),
		agent.WithToolTimeout(e.cfg.ToolTimeout()),
		agent.WithModelTimeout(e.cfg.ModelTimeout()),
		agent.WithModelRetries(e.cfg.Model.Retries, 0),
	}
	if e.cfg.SystemPrompt != "" {
		opts = append(opts, agent.WithSystemPrompt(e.cfg.SystemPrompt))
	}

	return agent.New(client, e.cfg.Model.Name, registry, opts...), nil
}

// runAsk processes a single question and prints the answer.
func runAsk(ctx context.Context, stdout io.Writer, configPath, question string) error {
	e, err := setup(stdout, configPath)
	if err != nil {
		return err
	}
	defer e.close()

	session, err := newSession(e)
	if err != nil {
		return err
	}

	res, err := session.Send(ctx, question)
	if err != nil {
		return fmt.Errorf("ask: %w", err)
	}

	fmt.Fprintln(stdout, res.Content)
	if res.Status != agent.StatusAnswered {
		fmt.Fprintf(stdout, "[%s: %s]\n", res.Status, res.Diagnostic)
	}
	return nil
}

// runChat reads user messages line by line and keeps one session (one
// conversation log) alive for the whole exchange.
func runChat(ctx context.Context, stdin io.Reader, stdout io.Writer, configPath string) error {
	e, err := setup(stdout, configPath)
	if err != nil {
		return err
	}
	defer e.close()

	session, err := newSession(e)
	if err != nil {
		return err
	}

	fmt.Fprintln(stdout, "kestrel ready (ctrl-d to exit)")
	scanner := bufio.NewScanner(stdin)
	for {
		fmt.Fprint(stdout, "> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		res, err := session.Send(ctx, line)
		if err != nil {
			if ctx.Err() != nil {
				return nil // shutdown signal
			}
			fmt.Fprintf(stdout, "error: %v\n", err)
			continue
		}

		fmt.Fprintln(stdout, res.Content)
		if res.Status != agent.StatusAnswered {
			fmt.Fprintf(stdout, "[%s: %s]\n", res.Status, res.Diagnostic)
		}
	}
	return scanner.Err()
}

// runRemember stores one fact directly into the memory index, without
// going through the model.
func runRemember(ctx context.Context, stdout io.Writer, configPath, text string) error {
	e, err := setup(stdout, configPath)
	if err != nil {
		return err
	}
	defer e.close()

	id, err := uuid.NewV7()
	if err != nil {
		return fmt.Errorf("generate fact id: %w", err)
	}

	if err := e.index.Ingest(ctx, e.cfg.Memory.Collection, id.String(), text, nil); err != nil {
		return fmt.Errorf("remember: %w", err)
	}

	fmt.Fprintf(stdout, "remembered (id %s)\n", id)
	return nil
}

// runStats prints per-collection entry counts.
func runStats(stdout io.Writer, configPath string) error {
	e, err := setup(stdout, configPath)
	if err != nil {
		return err
	}
	defer e.close()

	stats := e.index.Stats()
	if len(stats) == 0 {
		fmt.Fprintln(stdout, "memory index is empty")
		return nil
	}
	for collection, count := range stats {
		fmt.Fprintf(stdout, "%-20s %d\n", collection, count)
	}
	return nil
}

func newLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{
		Level:       level,
		ReplaceAttr: config.ReplaceLogLevelNames,
	}))
}

// loadConfig locates and parses the YAML configuration file. If explicit
// is non-empty, that exact path is used (and must exist). Otherwise,
// [config.FindConfig] searches the default locations. A missing config
// file is not an error for kestrel: defaults target a local Ollama.
func loadConfig(explicit string) (*config.Config, string, error) {
	cfgPath, err := config.FindConfig(explicit)
	if err != nil {
		if explicit != "" {
			return nil, "", err
		}
		return config.Default(), "(defaults)", nil
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, cfgPath, fmt.Errorf("load config %s: %w", cfgPath, err)
	}

	return cfg, cfgPath, nil
}
