// File: cmd/server/main.go
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/gorilla/mux"
	"gorm.io/gorm"

	"github.com/trialforge/protocol-agent/internal/config"
	"github.com/trialforge/protocol-agent/internal/domain"
	"github.com/trialforge/protocol-agent/internal/handlers"
	"github.com/trialforge/protocol-agent/internal/middleware"
	"github.com/trialforge/protocol-agent/internal/ratelimit"
	"github.com/trialforge/protocol-agent/internal/repository/history"
	"github.com/trialforge/protocol-agent/internal/services"
	"github.com/trialforge/protocol-agent/internal/services/ai"
	"github.com/trialforge/protocol-agent/internal/services/ingest"
	"github.com/trialforge/protocol-agent/internal/services/knowledge"
	"github.com/trialforge/protocol-agent/internal/services/protocol"
)

func main() {
	cfg := config.Load()
	logger := services.NewProductionLogger("protocol-agent")
	runtime := config.NewRuntime(cfg)

	db, err := gorm.Open(sqlite.Open(cfg.HistoryDBPath), &gorm.Config{})
	if err != nil {
		log.Fatalf("DB Error: %v", err)
	}
	if err := db.AutoMigrate(&domain.GenerationRecord{}); err != nil {
		log.Fatalf("DB Migration Error: %v", err)
	}

	// --- Repositories ---
	historyRepo := history.NewHistoryRepository(db)

	// --- Services ---
	aiService, err := ai.NewOpenAIProvider(ai.DefaultConfig(), runtime, logger)
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize AI provider: %v", err)
	}

	store := knowledge.NewStore(aiService, logger)
	persistence, err := knowledge.NewPersistence(cfg.DataDir)
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize persistence: %v", err)
	}
	persistence.Load(store)

	ingestService, err := ingest.NewService(store, aiService, persistence, cfg.UploadDir, logger)
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize ingest service: %v", err)
	}

	pipelineConfig := protocol.DefaultConfig()
	pipelineConfig.RetrievalTopK = cfg.RetrievalTopK
	pipeline, err := protocol.NewPipeline(aiService, store, pipelineConfig, logger)
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize protocol pipeline: %v", err)
	}

	// --- Handlers ---
	systemHandler := handlers.NewSystemHandler(aiService, runtime, store)
	knowledgeHandler := handlers.NewKnowledgeHandler(store, ingestService, runtime)
	protocolHandler := handlers.NewProtocolHandler(pipeline, historyRepo, logger)

	// --- Rate limiters ---
	uploadLimiter := ratelimit.NewMemoryRateLimiter(ratelimit.UploadConfig())
	defer uploadLimiter.Close()
	generationLimiter := ratelimit.NewMemoryRateLimiter(ratelimit.GenerationConfig())
	defer generationLimiter.Close()

	// --- Router Setup ---
	r := mux.NewRouter()
	r.Use(middleware.CORSMiddleware)
	r.Use(middleware.RecoverPanic)
	r.Use(middleware.LoggingMiddleware)

	r.HandleFunc("/", systemHandler.Root).Methods("GET")
	r.HandleFunc("/health", systemHandler.Health).Methods("GET")
	r.HandleFunc("/status", systemHandler.Status).Methods("GET")
	r.HandleFunc("/test/llm", systemHandler.TestLLM).Methods("POST")
	r.HandleFunc("/test/embedding", systemHandler.TestEmbedding).Methods("POST")
	r.HandleFunc("/chat", systemHandler.Chat).Methods("POST")
	r.HandleFunc("/chat_stream", systemHandler.ChatStream).Methods("POST")
	r.HandleFunc("/config/current", systemHandler.CurrentConfig).Methods("GET")
	r.HandleFunc("/config/update", systemHandler.UpdateConfig).Methods("POST")

	uploadGuard := middleware.RateLimitMiddleware(uploadLimiter, "upload")
	r.Handle("/knowledge/upload", uploadGuard(http.HandlerFunc(knowledgeHandler.Upload))).Methods("POST")
	r.HandleFunc("/knowledge/search", knowledgeHandler.Search).Methods("GET")
	r.HandleFunc("/knowledge/stats", knowledgeHandler.Stats).Methods("GET")
	r.HandleFunc("/knowledge/files", knowledgeHandler.ListFiles).Methods("GET")
	r.HandleFunc("/knowledge/file/{filename}", knowledgeHandler.DeleteFile).Methods("DELETE")
	r.HandleFunc("/knowledge/file/{filename}/details", knowledgeHandler.FileDetails).Methods("GET")

	generationGuard := middleware.RateLimitMiddleware(generationLimiter, "generation")
	r.HandleFunc("/extract_key_info", protocolHandler.ExtractKeyInfo).Methods("POST")
	r.HandleFunc("/extract_key_info_stream", protocolHandler.ExtractKeyInfoStream).Methods("POST")
	r.HandleFunc("/generate_outline", protocolHandler.GenerateOutline).Methods("POST")
	r.HandleFunc("/generate_outline_stream", protocolHandler.GenerateOutlineStream).Methods("POST")
	r.Handle("/generate", generationGuard(http.HandlerFunc(protocolHandler.Generate))).Methods("POST")
	r.Handle("/generate_protocol_stream", generationGuard(http.HandlerFunc(protocolHandler.GenerateProtocolStream))).Methods("POST")
	r.HandleFunc("/generate_section_stream", protocolHandler.GenerateSectionStream).Methods("POST")
	r.HandleFunc("/get_section_prompt", protocolHandler.GetSectionPrompt).Methods("POST")
	r.HandleFunc("/export_protocol", protocolHandler.ExportProtocol).Methods("POST")
	r.HandleFunc("/history", protocolHandler.ListHistory).Methods("GET")

	// --- Server Configuration ---
	port := ":8000"
	if cfg.ServerPort != "" {
		port = ":" + cfg.ServerPort
	}
	srv := &http.Server{
		Addr:    port,
		Handler: r,
	}

	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Printf("==================================================")
	log.Printf("Protocol Agent - Clinical Trial Protocol Writer")
	log.Printf("==================================================")
	log.Printf("Server starting on port %s", port)
	log.Printf("Knowledge base: %d documents loaded", store.DocumentCount())
	log.Printf("LLM backend: %s | %s", runtime.LLM().BaseURL, runtime.LLM().Model)
	log.Printf("==================================================")

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server startup failed: %v", err)
		}
	}()

	// --- Graceful Shutdown ---
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	log.Println("Shutting down server gracefully...")
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("Server shutdown failed: %v", err)
	}
	if err := persistence.Save(store); err != nil {
		log.Printf("Final knowledge snapshot failed: %v", err)
	}
	log.Println("Server stopped gracefully")
}
