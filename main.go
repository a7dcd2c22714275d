package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"docchat/chat"
	"docchat/config"
	"docchat/knowledge"
	"docchat/llm/parser"
	"docchat/llm/providers"
	"docchat/llm/vector"
	"docchat/server"

	"github.com/joho/godotenv"
)

func init() {
	// Load .env file if present; real env vars take precedence
	if err := godotenv.Load(); err == nil {
		log.Println("[INFO] Loaded environment variables from .env")
	}
}

func main() {
	configPath := flag.String("config", "config.yaml", "path to the configuration file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "docchat: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	chatModel, err := providers.CreateChatModel(ctx)
	if err != nil {
		return fmt.Errorf("failed to create chat model: %w", err)
	}

	embedder, err := providers.CreateEmbeddingModel(ctx)
	if err != nil {
		return fmt.Errorf("failed to create embedding model: %w", err)
	}

	// The vector store is built once here and shared by the ingestion
	// and query paths.
	var store vector.VectorStore
	switch cfg.VectorStore.Backend {
	case "redis":
		rc := cfg.VectorStore.Redis
		store, err = vector.NewRedisStore(ctx, embedder, vector.RedisConfig{
			Addr:      rc.Addr,
			Password:  rc.Password,
			DB:        rc.DB,
			PoolSize:  rc.PoolSize,
			IndexName: rc.Index,
			VectorDim: cfg.VectorStore.Dim,
		})
		if err != nil {
			return fmt.Errorf("failed to connect to Redis vector store: %w", err)
		}
		log.Printf("[INFO] Using Redis vector store at %s (index %s)", rc.Addr, rc.Index)
	case "memory":
		store = vector.NewMemoryStore(vector.NewEmbeddingService(embedder, cfg.VectorStore.Dim))
		log.Println("[INFO] Using in-memory vector store")
	default:
		return fmt.Errorf("unknown vector store backend: %q", cfg.VectorStore.Backend)
	}
	defer store.Close()

	kb, err := knowledge.NewBase(store, parser.DefaultRegistry(), knowledge.Config{
		DocumentsDir: cfg.Documents.Dir,
		ProcessedDir: cfg.Documents.ProcessedDir,
		Chunking: vector.ChunkConfig{
			ChunkSize:        cfg.Chunking.Size,
			ChunkOverlap:     cfg.Chunking.Overlap,
			MinChunkSize:     cfg.Chunking.MinSize,
			SplitByParagraph: true,
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create knowledge base: %w", err)
	}
	defer kb.Close()

	if cfg.Documents.Watch {
		watcher, err := knowledge.NewWatcher(kb)
		if err != nil {
			return fmt.Errorf("failed to create document watcher: %w", err)
		}
		go func() {
			if err := watcher.Run(ctx); err != nil {
				log.Printf("[WARN] document watcher stopped: %v", err)
			}
		}()
		log.Printf("[INFO] Watching %s for new documents", cfg.Documents.Dir)
	}

	sessions := chat.NewManager()
	go pruneSessions(ctx, sessions)

	gateway := chat.NewGateway(chatModel, kb, cfg.Retrieval.TopK)

	srv := server.NewServer(gateway, sessions, kb, cfg.Server.Addr)
	return srv.Start(ctx)
}

// pruneSessions expires idle conversations in the background.
func pruneSessions(ctx context.Context, sessions *chat.Manager) {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := sessions.PruneExpired(); n > 0 {
				log.Printf("[INFO] Pruned %d expired chat sessions", n)
			}
		}
	}
}
