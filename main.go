package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"sparkchat/internal/api"
	"sparkchat/internal/auth"
	"sparkchat/internal/chat"
	"sparkchat/internal/config"
	"sparkchat/internal/conversation"
	"sparkchat/internal/music"
	"sparkchat/internal/personality"
	"sparkchat/internal/prompt"
	"sparkchat/internal/provider"
	"sparkchat/internal/redis"
	"sparkchat/internal/storage"
	"sparkchat/internal/usage"

	"github.com/gin-gonic/gin"
)

func main() {
	cfgPath := os.Getenv("SPARKCHAT_CONFIG")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	dbType := os.Getenv("SPARKCHAT_DB")
	if dbType == "" {
		dbType = "sqlite3"
	}
	log.Printf("dbType: %s\n", dbType)
	db, err := storage.Open(dbType, cfg)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}
	defer db.Close()
	rdb, err := redis.NewRedisClient(cfg)
	if err != nil {
		log.Fatalf("create redis client: %v", err)
	}
	defer rdb.Close()

	// Create necessary tables: users, user_tokens, messages, usage_records, tracks
	if err := storage.Migrate(db, dbType); err != nil {
		log.Fatalf("migrate database: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	catalog := personality.NewCatalog()
	builder := prompt.NewBuilder()

	convStore := conversation.NewStore(db, rdb, catalog, conversation.Config{
		MaxMessages:   cfg.Conversation.MaxMessages,
		ContextWindow: cfg.Conversation.ContextWindow,
	})

	chatProvider, err := provider.NewChatService(ctx, cfg)
	if err != nil {
		log.Fatalf("init chat providers: %v", err)
	}
	chatOrc := chat.NewOrchestrator(convStore, catalog, builder, chatProvider, cfg.TextQueue, cfg.VisionQueue)

	gate := usage.NewGate(cfg.Freemium)
	usageStore := usage.NewStore(db, rdb)
	if err := usage.StartPremiumListener(ctx, rdb); err != nil {
		log.Printf("premium listener disabled: %v", err)
	}

	musicBackend, err := buildMusicBackend(cfg)
	if err != nil {
		log.Fatalf("init music backend: %v", err)
	}
	library := music.NewLibrary(db, cfg.BasicConfig.TrackBaseDir, cfg.Music.MaxLibraryTracks)
	musicOrc := music.NewOrchestrator(musicBackend, gate, usageStore, library, cfg.Music.EnhancePrompts)

	manager := chat.NewManager(chatOrc, musicOrc)
	authService := auth.NewService(db, 24*time.Hour)
	handlers := api.NewHandler(catalog, convStore, manager, library, usageStore, gate, authService, rdb)

	router := gin.Default()
	handlers.RegisterRoutes(router)

	addr := cfg.BasicConfig.ServerAddress
	if addr == "" {
		addr = ":8090"
	}

	if err := router.Run(addr); err != nil {
		log.Fatalf("server stopped: %v", err)
	}
}

func buildMusicBackend(cfg *config.Config) (*music.Backend, error) {
	backendCfg, ok := cfg.Music.Backends[cfg.Music.Active]
	if !ok {
		return nil, fmt.Errorf("music backend %q not configured", cfg.Music.Active)
	}

	b := &music.Backend{
		ID:              cfg.Music.Active,
		MimeType:        backendCfg.MimeType,
		DurationSeconds: backendCfg.DurationSeconds,
		PollInterval:    time.Duration(backendCfg.PollIntervalSeconds) * time.Second,
		PollMaxAttempts: backendCfg.PollMaxAttempts,
		FilterMarkers:   backendCfg.FilterMarkers,
	}

	switch backendCfg.Kind {
	case "replicate":
		b.Async = music.NewReplicateBackend(backendCfg, cfg.Music.MaxPromptChars)
	case "stable":
		b.Sync = music.NewStableAudioBackend(backendCfg)
	default:
		return nil, fmt.Errorf("unknown music backend kind %q", backendCfg.Kind)
	}
	return b, nil
}
