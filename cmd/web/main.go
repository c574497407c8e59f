package main

import (
	"fmt"
	"log"
	"time"

	"github.com/gorilla/sessions"

	"cms-front-prototype/core"
)

func main() {
	cfg := core.Load()

	logCloser, err := core.SetupLogging(cfg, "web.log")
	if err != nil {
		log.Fatalf("failed to setup logging: %v", err)
	}
	defer logCloser.Close()

	// The page cache is optional: without REDIS_URL every public page hits
	// the backend directly.
	var cache *core.PageCache
	if cfg.RedisURL != "" {
		redisClient, err := core.NewRedisClient(cfg.RedisURL)
		if err != nil {
			log.Fatalf("failed to connect redis: %v", err)
		}
		defer redisClient.Close()
		cache = core.NewPageCache(redisClient, time.Duration(cfg.CacheTTLSeconds)*time.Second)
	}

	// Gorilla cookie store holds the credential record browser-side.
	store := sessions.NewCookieStore([]byte(cfg.SessionKey))
	creds := core.NewCredentialStore(cfg, store)
	api := core.NewAPIClient(cfg.BackendURL)

	router := core.NewRouter(cfg, store, creds, api, cache)

	addr := fmt.Sprintf(":%s", cfg.Port)
	log.Printf("starting web frontend on %s (backend %s)", addr, cfg.BackendURL)
	if err := router.Run(addr); err != nil {
		log.Fatalf("server failed: %v", err)
	}
}
