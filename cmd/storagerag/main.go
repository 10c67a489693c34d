package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/fatih/color"
	"github.com/joho/godotenv"
	"github.com/schollz/progressbar/v3"
	"github.com/xhad/storagerag/internal/types"
	cfgPkg "github.com/xhad/storagerag/pkg/config"
	"github.com/xhad/storagerag/pkg/extract"
	"github.com/xhad/storagerag/pkg/llm"
	"github.com/xhad/storagerag/pkg/processor"
	"github.com/xhad/storagerag/pkg/rag"
	"github.com/xhad/storagerag/pkg/scraper"
	"github.com/xhad/storagerag/pkg/store"
	"github.com/xhad/storagerag/server"
)

type Options struct {
	ConfigPath string
	File       string
	Serve      bool
	Addr       string
}

func main() {
	// A missing .env file is fine; the environment may already be set.
	_ = godotenv.Load()

	opts := parseFlags()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, opts); err != nil {
		log.Fatal(err)
	}
}

func parseFlags() Options {
	var opts Options

	flag.StringVar(&opts.ConfigPath, "config", "", "Path to config file")
	flag.StringVar(&opts.File, "file", "", "Document path or URL to index on startup")
	flag.BoolVar(&opts.Serve, "serve", false, "Run the HTTP and WebSocket server instead of the chat loop")
	flag.StringVar(&opts.Addr, "addr", "", "Server listen address (overrides server.addr)")
	flag.Parse()

	return opts
}

func getSpinner(description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(-1,
		progressbar.OptionSetDescription(color.CyanString(description)),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionSetWidth(20),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetRenderBlankState(true),
	)
}

func newEmbedder(cfg *cfgPkg.Config) (types.Embedder, error) {
	if cfg.Embedder.Provider == "openai" {
		embedder, err := llm.NewOpenAIEmbedder(llm.OpenAIConfig{
			APIKey:  cfg.Embedder.APIKey,
			BaseURL: cfg.Embedder.BaseURL,
			Model:   cfg.Embedder.Model,
		})
		if err != nil {
			return nil, err
		}
		return embedder, nil
	}

	embedder, err := llm.NewEmbedderWithConfig(llm.EmbedderConfig{
		Model:     cfg.Embedder.Model,
		BaseURL:   cfg.Embedder.BaseURL,
		BatchSize: cfg.Embedder.BatchSize,
	})
	if err != nil {
		return nil, err
	}
	return embedder, nil
}

func newGenerator(cfg *cfgPkg.Config) (types.Generator, error) {
	if cfg.LLM.Provider == "openai" {
		chat, err := llm.NewOpenAIChat(llm.OpenAIConfig{
			APIKey:      cfg.LLM.APIKey,
			BaseURL:     cfg.LLM.BaseURL,
			Model:       cfg.LLM.Model,
			Temperature: cfg.LLM.Temperature,
			MaxTokens:   cfg.LLM.MaxTokens,
		})
		if err != nil {
			return nil, err
		}
		return chat, nil
	}

	chat, err := llm.NewWithConfig(llm.ChatConfig{
		Model:       cfg.LLM.Model,
		Temperature: cfg.LLM.Temperature,
		MaxTokens:   cfg.LLM.MaxTokens,
		BaseURL:     cfg.LLM.BaseURL,
	})
	if err != nil {
		return nil, err
	}
	return chat, nil
}

func run(ctx context.Context, opts Options) error {
	cfg, err := cfgPkg.LoadConfig(opts.ConfigPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if errs := cfg.Validate(); len(errs) > 0 {
		for _, e := range errs {
			color.Red("config: %v", e)
		}
		return fmt.Errorf("invalid configuration (%d errors)", len(errs))
	}
	if cfg.UI.Theme == "plain" {
		color.NoColor = true
	}

	// Initialize components
	embedder, err := newEmbedder(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize embedder: %w", err)
	}

	generator, err := newGenerator(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize chat engine: %w", err)
	}

	vectorStore, err := store.New(ctx, store.Config{
		Type:           cfg.VectorStore.Type,
		URL:            cfg.VectorStore.URL,
		APIKey:         cfg.VectorStore.APIKey,
		DatabaseURL:    cfg.VectorStore.DatabaseURL,
		TablePrefix:    cfg.VectorStore.TablePrefix,
		SQLitePath:     cfg.VectorStore.SQLitePath,
		Timeout:        cfg.VectorStore.Timeout(),
		ScoreThreshold: cfg.VectorStore.ScoreThreshold,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize vector store: %w", err)
	}
	defer vectorStore.Close()

	extractor := extract.New()
	for _, ext := range cfg.Processor.TextExtensions {
		extractor.Register(ext, extract.Text)
	}

	chunker := processor.NewWithConfig(processor.ProcessorConfig{
		ChunkSize:    cfg.Processor.ChunkSize,
		ChunkOverlap: cfg.Processor.ChunkOverlap,
	})
	engine := rag.New(rag.Deps{
		Extractor: extractor,
		Chunker:   chunker,
		Embedder:  embedder,
		Store:     vectorStore,
		Generator: generator,
	}, rag.Config{TopK: cfg.Retrieval.TopK})

	scraperConfig := scraper.ScraperConfig{
		RateLimit: cfg.Scraper.RateLimit,
		Timeout:   cfg.Scraper.Timeout(),
		MaxBytes:  cfg.Scraper.MaxBytes,
	}
	// The chat loop shows a spinner instead.
	if opts.Serve {
		scraperConfig.OnProgress = func(url string) {
			log.Printf("Fetching %s", url)
		}
	}
	web := scraper.NewWithConfig(scraperConfig)

	if opts.File != "" {
		if err := indexSource(ctx, engine, web, opts.File); err != nil {
			return err
		}
	}

	if opts.Serve {
		addr := cfg.Server.Addr
		if opts.Addr != "" {
			addr = opts.Addr
		}
		chunking := chunker.Config()
		log.Printf("Chunking at %d characters with %d overlap; accepting %s",
			chunking.ChunkSize, chunking.ChunkOverlap, strings.Join(extractor.Extensions(), ", "))

		srv := server.New(engine, extractor, web, server.Config{
			MaxUploadMB:   cfg.Server.MaxUploadMB,
			MinUploadSize: cfg.Server.MinUploadSize,
		})
		return srv.ListenAndServe(addr)
	}

	return chat(ctx, engine, web)
}

// indexSource indexes a local file or, when source is a URL, the fetched page.
func indexSource(ctx context.Context, engine *rag.Engine, web *scraper.Scraper, source string) error {
	var (
		filename string
		data     []byte
	)

	if url := scraper.FindURL(source); url != "" && url == source {
		fetchSpinner := getSpinner("🌐 Fetching " + url)
		doc, err := web.Fetch(ctx, url)
		fetchSpinner.Finish()
		fmt.Print("\r")
		if err != nil {
			return err
		}
		filename, data = doc.Filename, doc.Data
	} else {
		raw, err := os.ReadFile(source)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", source, err)
		}
		filename, data = filepath.Base(source), raw
	}

	indexSpinner := getSpinner("📄 Indexing " + filename + "...")
	result, err := engine.Index(ctx, data, filename)
	indexSpinner.Finish()
	fmt.Print("\r")
	if err != nil {
		return err
	}

	color.Green("\n✓ Indexed %d chunks into collection %s\n", result.ChunkCount, result.CollectionName)
	return nil
}

func chat(ctx context.Context, engine *rag.Engine, web *scraper.Scraper) error {
	// Interactive chat loop with colored output
	color.Cyan("\nAsk questions about your document (type 'exit' to quit, ':index <path|url>' to load one, ':status' for the active index)")

	scanner := bufio.NewScanner(os.Stdin)
	userPrompt := color.New(color.FgGreen).PrintfFunc()
	assistantPrompt := color.New(color.FgCyan).PrintfFunc()

	for {
		userPrompt("\nYou: ")
		if !scanner.Scan() {
			break
		}

		query := strings.TrimSpace(scanner.Text())
		switch {
		case query == "":
			continue
		case strings.ToLower(query) == "exit":
			return nil
		case query == ":status":
			status := engine.Status()
			if !status.HasActiveIndex {
				color.Yellow("No document is indexed yet.")
			} else {
				color.Blue("Active collection: %s", status.ActiveCollection)
			}
			continue
		case strings.HasPrefix(query, ":index "):
			if err := indexSource(ctx, engine, web, strings.TrimSpace(strings.TrimPrefix(query, ":index "))); err != nil {
				color.Red("Error indexing: %v\n", err)
			}
			continue
		}

		// A URL in the question is indexed first; the rest is asked against it.
		if url := scraper.FindURL(query); url != "" {
			if err := indexSource(ctx, engine, web, url); err != nil {
				color.Red("Error indexing: %v\n", err)
				continue
			}
			query = strings.TrimSpace(strings.Replace(query, url, "", 1))
			if query == "" {
				continue
			}
		}

		responseSpinner := getSpinner("🤖 Generating response...")
		answer, err := engine.Answer(ctx, query)
		responseSpinner.Finish()
		fmt.Print("\r")

		if errors.Is(err, rag.ErrNoActiveIndex) {
			color.Yellow("No document is indexed yet. Use ':index <path|url>' first.\n")
			continue
		}
		if err != nil {
			color.Red("Error: %v\n", err)
			continue
		}
		assistantPrompt("Assistant: %s\n", answer)
	}

	return scanner.Err()
}
