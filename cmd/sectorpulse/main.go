// SectorPulse — sector investment outlook engine.
//
// Main CLI entrypoint using cobra command framework.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"sectorpulse/api"
	"sectorpulse/internal/config"
	"sectorpulse/internal/datasource"
	"sectorpulse/internal/llm"
	"sectorpulse/internal/orchestrator"
	"sectorpulse/internal/report"
	"sectorpulse/internal/retrieval"
	"sectorpulse/internal/sentiment"
	"sectorpulse/internal/store"
	"sectorpulse/internal/tools"
	"sectorpulse/pkg/models"
)

// Build-time variables (set via -ldflags).
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Global config
var cfg *config.Config

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "sectorpulse",
	Short: "SectorPulse — sector investment outlook engine",
	Long: `SectorPulse answers "what is the investment outlook for sector X" by
orchestrating evidence-gathering tools (ETF momentum, live news, ranked
research retrieval) through a bounded decision loop and assembling a
narrative report.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		configFile, _ := cmd.Flags().GetString("config")
		if configFile != "" {
			cfg, err = config.LoadFromFile(configFile)
		} else {
			cfg, err = config.Load()
		}
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "config file path (default: ./config/config.yaml)")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(outlookCmd)
	rootCmd.AddCommand(ingestCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(statusCmd)
}

// --- Wiring ---

// app bundles the wired components behind the commands.
type app struct {
	store     *store.Store
	engine    *orchestrator.Engine
	assembler *report.Assembler
	embedder  llm.Embedder
	pipeline  *sentiment.Pipeline
}

// buildApp wires providers, store, pipeline, tools, and the loop engine.
func buildApp(ctx context.Context) (*app, error) {
	ollama := llm.NewOllamaProvider(cfg.LLM.OllamaURL,
		llm.WithOllamaEmbedModel(cfg.LLM.EmbedModel))

	router := llm.NewRouter(cfg.LLM.Primary, llm.WithFallbacks(llm.ProviderOllama))
	router.Register(ollama)
	if cfg.LLM.OpenAIKey != "" {
		openai, err := llm.NewOpenAIProvider(cfg.LLM.OpenAIKey, llm.WithOpenAIModel(cfg.LLM.Model))
		if err != nil {
			return nil, err
		}
		router.Register(openai)
	}

	st, err := store.Open(cfg.Store.Path)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	classifier := sentiment.NewLLMClassifier(router, &llm.ChatOptions{Temperature: 0})
	pipeline := sentiment.NewPipeline(ctx, classifier, st.SentimentCache())

	engine := retrieval.NewEngine(ollama, st.VectorIndex(), pipeline, retrieval.Options{
		CandidateLimit:   cfg.Retrieval.CandidateLimit,
		SimilarityFloor:  cfg.Retrieval.SimilarityFloor,
		SelectLimit:      cfg.Retrieval.SelectLimit,
		SimilarityWeight: cfg.Retrieval.SimilarityWeight,
		SentimentWeight:  cfg.Retrieval.SentimentWeight,
		TrustWeight:      cfg.Retrieval.TrustWeight,
	})

	catalog, err := tools.NewCatalog(
		tools.MomentumEntry(datasource.NewMarketData()),
		tools.LiveNewsEntry(datasource.NewLiveSearch()),
		tools.ResearchSearchEntry(engine),
	)
	if err != nil {
		return nil, err
	}

	loop := orchestrator.NewEngine(router, catalog,
		orchestrator.WithIterationCap(cfg.Orchestrator.IterationCap))

	return &app{
		store:     st,
		engine:    loop,
		assembler: report.NewAssembler(router),
		embedder:  ollama,
		pipeline:  pipeline,
	}, nil
}

// --- Version Command ---

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("SectorPulse %s\n", version)
		fmt.Printf("  commit:  %s\n", commit)
		fmt.Printf("  built:   %s\n", date)
	},
}

// --- Outlook Command ---

var outlookCmd = &cobra.Command{
	Use:   "outlook [sector]",
	Short: "Build the investment outlook for a sector",
	Long: `Run the full decision loop for a sector and print the assembled report.

Examples:
  sectorpulse outlook semiconductors
  sectorpulse outlook biotech --json`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sector := args[0]
		asJSON, _ := cmd.Flags().GetBool("json")

		a, err := buildApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.store.Close()

		start := time.Now()
		state, err := a.engine.Run(cmd.Context(), sector)
		if err != nil {
			return err
		}
		text, err := a.assembler.Assemble(cmd.Context(), state)
		if err != nil {
			return err
		}

		if asJSON {
			return json.NewEncoder(os.Stdout).Encode(state)
		}
		fmt.Println(text)
		fmt.Printf("\n(%d iterations, %s)\n", state.Iterations, time.Since(start).Round(time.Millisecond))
		return nil
	},
}

func init() {
	outlookCmd.Flags().Bool("json", false, "print the merged state as JSON")
}

// --- Ingest Command ---

// ingestDoc is the on-disk shape of one research document.
type ingestDoc struct {
	ID          string    `json:"id"`
	Text        string    `json:"text"`
	Source      string    `json:"source"`
	TrustScore  float64   `json:"trust_score"`
	PublishedAt time.Time `json:"published_at"`
}

var ingestCmd = &cobra.Command{
	Use:   "ingest [file]",
	Short: "Embed and store research documents from a JSON file",
	Long: `Read a JSON array of documents ({id, text, source, trust_score,
published_at}), embed each text, and upsert them into the vector index.
Missing ids are generated.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		var docs []ingestDoc
		if err := json.Unmarshal(data, &docs); err != nil {
			return fmt.Errorf("parse %s: %w", args[0], err)
		}

		a, err := buildApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.store.Close()

		index := a.store.VectorIndex()
		for _, d := range docs {
			if d.ID == "" {
				d.ID = uuid.NewString()
			}
			vec, err := a.embedder.Embed(cmd.Context(), d.Text)
			if err != nil {
				return fmt.Errorf("embed %s: %w", d.ID, err)
			}
			doc := models.Document{
				ID:          d.ID,
				Text:        d.Text,
				Source:      d.Source,
				TrustScore:  d.TrustScore,
				PublishedAt: d.PublishedAt,
			}
			if err := index.Upsert(cmd.Context(), doc, vec); err != nil {
				return fmt.Errorf("store %s: %w", d.ID, err)
			}
		}

		total, err := index.Count(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Printf("Ingested %d documents (%d total in index)\n", len(docs), total)
		return nil
	},
}

// --- Serve Command (API Server) ---

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := buildApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.store.Close()

		srv := api.NewServer(cfg, a.engine, a.assembler)
		addr := fmt.Sprintf("%s:%d", cfg.API.Host, cfg.API.Port)
		fmt.Printf("Starting SectorPulse API server on %s\n", addr)
		return srv.ListenAndServe(addr)
	},
}

// --- Status Command ---

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show system status and configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Println("═══════════════════════════════════════")
		fmt.Println("  SectorPulse — System Status")
		fmt.Println("═══════════════════════════════════════")
		fmt.Printf("  Version:       %s (%s)\n", version, commit)
		fmt.Println()

		fmt.Println("  Configuration:")
		fmt.Printf("    LLM Provider:  %s (model: %s)\n", cfg.LLM.Primary, cfg.LLM.Model)
		fmt.Printf("    Embed Model:   %s\n", cfg.LLM.EmbedModel)
		fmt.Printf("    Store:         %s\n", cfg.Store.Path)
		fmt.Printf("    Iteration Cap: %d\n", cfg.Orchestrator.IterationCap)
		fmt.Printf("    API Server:    %s:%d\n", cfg.API.Host, cfg.API.Port)
		fmt.Println()

		fmt.Println("  API Keys:")
		for _, k := range config.CheckAPIKeys(cfg) {
			status := "not set"
			if k.IsSet {
				status = fmt.Sprintf("set (%s: %s)", k.Source, k.Masked)
			}
			fmt.Printf("    %-25s %s\n", k.Name+":", status)
		}

		fmt.Println()
		fmt.Println("  Capabilities:")
		a, err := buildApp(cmd.Context())
		if err != nil {
			fmt.Printf("    wiring failed: %v\n", err)
		} else {
			defer a.store.Close()
			tier2 := "unavailable (lexicon only)"
			if a.pipeline.ModelAvailable() {
				tier2 = "available"
			}
			fmt.Printf("    Tier-2 sentiment: %s\n", tier2)
			if n, err := a.store.VectorIndex().Count(cmd.Context()); err == nil {
				fmt.Printf("    Indexed documents: %d\n", n)
			}
		}

		fmt.Println("═══════════════════════════════════════")
		return nil
	},
}
