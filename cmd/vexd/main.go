package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"

	"github.com/screenager/vexd/internal/client"
	"github.com/screenager/vexd/internal/embed"
	"github.com/screenager/vexd/internal/hnsw"
	"github.com/screenager/vexd/internal/ingest"
	"github.com/screenager/vexd/internal/server"
	"github.com/screenager/vexd/internal/tui"
	"github.com/screenager/vexd/internal/watcher"
)

// config holds the .vexd.toml keys; flags override file values.
type config struct {
	Addr          string   `toml:"addr"`
	Embedder      string   `toml:"embedder"`
	ModelDir      string   `toml:"model-dir"`
	OrtLib        string   `toml:"ort-lib"`
	Threads       int      `toml:"threads"`
	OllamaURL     string   `toml:"ollama-url"`
	OllamaModel   string   `toml:"ollama-model"`
	BatchInterval string   `toml:"batch-interval"`
	Watch         []string `toml:"watch"`
}

func main() {
	cfg := config{
		Addr:        server.DefaultAddr,
		Embedder:    "onnx",
		ModelDir:    "./models",
		OrtLib:      "",
		OllamaURL:   "http://localhost:11434",
		OllamaModel: "nomic-embed-text",
	}
	if b, err := os.ReadFile(".vexd.toml"); err == nil {
		if err := toml.Unmarshal(b, &cfg); err != nil {
			fmt.Fprintf(os.Stderr, "warning: bad .vexd.toml: %v\n", err)
		}
	}

	root := &cobra.Command{
		Use:   "vexd",
		Short: "In-memory vector search over your documents",
		Long:  "vexd — a small in-memory vector search service: upload free text, query by meaning.",
	}

	var (
		addr          string
		provider      string
		modelDir      string
		ortLib        string
		threads       int
		ollamaURL     string
		ollamaModel   string
		batchInterval time.Duration
		watchDirs     []string
		verbose       bool
	)
	root.PersistentFlags().StringVar(&addr, "addr", cfg.Addr, "server listen / target address")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the vector search service",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			log := newLogger(verbose)

			emb, cleanup, err := buildEmbedder(provider, modelDir, ortLib, threads, ollamaURL, ollamaModel)
			if err != nil {
				return err
			}
			defer cleanup()

			index := hnsw.New()
			queue := ingest.NewQueue()
			batcher := ingest.NewBatcher(queue, index, emb, batchInterval, log)
			batcher.Start()
			defer batcher.Stop()

			srv := server.New(addr, index, queue, emb, batcher, log)
			if err := srv.Start(); err != nil {
				return err
			}

			done := make(chan struct{})
			for _, dir := range watchDirs {
				w, err := watcher.New(queue, log)
				if err != nil {
					return err
				}
				go func(d string) {
					if err := w.Watch(d, done); err != nil {
						log.Error("watch failed", "dir", d, "err", err)
					}
				}(dir)
				log.Info("watching", "dir", dir)
			}

			<-ctx.Done()
			close(done)
			log.Info("shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Stop(shutdownCtx)
		},
	}
	serveCmd.Flags().StringVar(&provider, "embedder", cfg.Embedder, "embedding provider: onnx, ollama, or hash")
	serveCmd.Flags().StringVar(&modelDir, "model-dir", cfg.ModelDir, "directory with model.onnx and tokenizer.json")
	serveCmd.Flags().StringVar(&ortLib, "ort-lib", cfg.OrtLib, "path to onnxruntime.so (empty = system default)")
	serveCmd.Flags().IntVar(&threads, "threads", cfg.Threads, "ONNX intra-op threads (0 = auto)")
	serveCmd.Flags().StringVar(&ollamaURL, "ollama-url", cfg.OllamaURL, "ollama server URL")
	serveCmd.Flags().StringVar(&ollamaModel, "ollama-model", cfg.OllamaModel, "ollama embedding model")
	serveCmd.Flags().DurationVar(&batchInterval, "batch-interval", parseIntervalDefault(cfg.BatchInterval), "ingest batch tick period")
	serveCmd.Flags().StringSliceVar(&watchDirs, "watch", cfg.Watch, "directories to watch and ingest")
	root.AddCommand(serveCmd)

	// ---- vexd upload ---------------------------------------------------------
	var syncUpload bool
	uploadCmd := &cobra.Command{
		Use:   "upload <text...>",
		Short: "Upload a document to a running server",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			api := client.New("http://" + addr)
			content := strings.Join(args, " ")
			if syncUpload {
				id, err := api.UploadSync(cmd.Context(), content)
				if err != nil {
					return err
				}
				fmt.Printf("indexed with id %d\n", id)
				return nil
			}
			if err := api.Upload(cmd.Context(), content); err != nil {
				return err
			}
			fmt.Println("queued for indexing")
			return nil
		},
	}
	uploadCmd.Flags().BoolVar(&syncUpload, "sync", false, "index synchronously and print the id")
	root.AddCommand(uploadCmd)

	// ---- vexd search ---------------------------------------------------------
	var topK uint
	var jsonOut bool
	searchCmd := &cobra.Command{
		Use:   "search <query...>",
		Short: "Query a running server",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			api := client.New("http://" + addr)
			results, err := api.Search(cmd.Context(), strings.Join(args, " "), topK)
			if err != nil {
				return err
			}
			if jsonOut {
				j, err := json.MarshalIndent(results, "", "  ")
				if err != nil {
					return err
				}
				fmt.Println(string(j))
				return nil
			}
			if len(results) == 0 {
				fmt.Println("no results")
				return nil
			}
			for i, content := range results {
				fmt.Printf("%2d  %s\n", i+1, content)
			}
			return nil
		},
	}
	searchCmd.Flags().UintVarP(&topK, "top-k", "k", 10, "number of results")
	searchCmd.Flags().BoolVar(&jsonOut, "json", false, "output results as JSON")
	root.AddCommand(searchCmd)

	// ---- vexd stats ----------------------------------------------------------
	root.AddCommand(&cobra.Command{
		Use:   "stats",
		Short: "Show index statistics from a running server",
		RunE: func(cmd *cobra.Command, args []string) error {
			api := client.New("http://" + addr)
			st, err := api.Stats(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Printf("documents:       %d\n", st.Documents)
			fmt.Printf("embedding dim:   %d\n", st.Dim)
			fmt.Printf("queue depth:     %d\n", st.QueueDepth)
			fmt.Printf("batches indexed: %d\n", st.Batches)
			fmt.Printf("batches dropped: %d\n", st.DroppedBatch)
			layers := make([]string, len(st.LayerNodes))
			for i, n := range st.LayerNodes {
				layers[i] = fmt.Sprintf("%d", n)
			}
			fmt.Printf("layer nodes:     %s\n", strings.Join(layers, " / "))
			return nil
		},
	})

	// ---- vexd tui ------------------------------------------------------------
	root.AddCommand(&cobra.Command{
		Use:   "tui",
		Short: "Interactive search client",
		RunE: func(cmd *cobra.Command, args []string) error {
			m := tui.New(client.New("http://" + addr))
			p := tea.NewProgram(m, tea.WithAltScreen())
			_, err := p.Run()
			return err
		},
	})

	// ---- vexd bench ----------------------------------------------------------
	benchCmd := &cobra.Command{
		Use:   "bench",
		Short: "Measure embedding latency for the configured provider",
		RunE: func(cmd *cobra.Command, args []string) error {
			emb, cleanup, err := buildEmbedder(provider, modelDir, ortLib, threads, ollamaURL, ollamaModel)
			if err != nil {
				return err
			}
			defer cleanup()

			texts := []struct {
				label string
				text  string
			}{
				{"short (9 words) ", "the quick brown fox jumps over the lazy dog"},
				{"medium (~80 words)", strings.Repeat("the quick brown fox ", 20)},
				{"long (~180 words) ", strings.Repeat("the quick brown fox jumps over the lazy dog. ", 20)},
			}
			fmt.Printf("%-20s  %10s\n", "text size", "embed")
			fmt.Println(strings.Repeat("─", 34))
			for _, tc := range texts {
				start := time.Now()
				if _, err := emb.EmbedOne(cmd.Context(), tc.text); err != nil {
					return fmt.Errorf("bench %s: %w", tc.label, err)
				}
				fmt.Printf("%-20s  %10s\n", tc.label, time.Since(start).Round(time.Millisecond))
			}
			return nil
		},
	}
	benchCmd.Flags().StringVar(&provider, "embedder", cfg.Embedder, "embedding provider: onnx, ollama, or hash")
	benchCmd.Flags().StringVar(&modelDir, "model-dir", cfg.ModelDir, "directory with model.onnx and tokenizer.json")
	benchCmd.Flags().StringVar(&ortLib, "ort-lib", cfg.OrtLib, "path to onnxruntime.so")
	benchCmd.Flags().IntVar(&threads, "threads", cfg.Threads, "ONNX intra-op threads (0 = auto)")
	benchCmd.Flags().StringVar(&ollamaURL, "ollama-url", cfg.OllamaURL, "ollama server URL")
	benchCmd.Flags().StringVar(&ollamaModel, "ollama-model", cfg.OllamaModel, "ollama embedding model")
	root.AddCommand(benchCmd)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// buildEmbedder constructs the configured provider. cleanup releases any
// native resources and is safe to call unconditionally.
func buildEmbedder(provider, modelDir, ortLib string, threads int, ollamaURL, ollamaModel string) (embed.Embedder, func(), error) {
	switch provider {
	case "onnx":
		fmt.Fprint(os.Stderr, "Loading model… ")
		e, err := embed.NewONNX(modelDir, ortLib, threads)
		if err != nil {
			fmt.Fprintln(os.Stderr, "")
			return nil, func() {}, err
		}
		fmt.Fprintln(os.Stderr, "ready.")
		return e, e.Close, nil
	case "ollama":
		return embed.NewOllama(ollamaURL, ollamaModel, 0), func() {}, nil
	case "hash":
		return embed.NewHash(64), func() {}, nil
	default:
		return nil, func() {}, fmt.Errorf("unknown embedder %q (want onnx, ollama, or hash)", provider)
	}
}

// parseIntervalDefault parses the config file's batch-interval, falling back
// to the built-in default.
func parseIntervalDefault(s string) time.Duration {
	if s == "" {
		return ingest.DefaultInterval
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return ingest.DefaultInterval
	}
	return d
}

// newLogger builds the service logger.
func newLogger(verbose bool) *slog.Logger {
	lvl := slog.LevelInfo
	if verbose {
		lvl = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
