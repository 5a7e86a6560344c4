package main

import (
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/joho/godotenv"

	"tankarena/internal/config"
	"tankarena/internal/gbe"
	"tankarena/internal/gbeapi"
	"tankarena/internal/msclient"
)

func main() {
	if err := godotenv.Load("../.env"); err != nil {
		if err := godotenv.Load(".env"); err != nil {
			log.Println("no .env file found, using environment variables only")
		}
	} else {
		log.Println("loaded environment from ../.env")
	}

	log.Println("================================")
	log.Println(" TANK ARENA - GAME BACKEND (GBE)")
	log.Println("================================")

	engineCfg := config.EngineFromEnv()
	weights := config.RewardWeightsFromEnv()
	tuning := config.RewardTuningFromEnv(engineCfg.TickMS)

	mapsDir := getEnvWithDefault("MAPS_DIR", "assets/maps")
	defsDir := getEnvWithDefault("TANKDEFS_DIR", "assets/tankdefs")
	msBaseURL := getEnvWithDefault("MODEL_STORE_URL", "http://localhost:8090")

	var allocator gbe.ModelAllocator
	if os.Getenv("DISABLE_MODEL_STORE") != "true" {
		allocator = msclient.New(msBaseURL)
		log.Printf("model store client: %s", msBaseURL)
	} else {
		log.Println("model store disabled, sessions will carry an empty modelKey")
	}

	registry := gbe.NewRegistry(engineCfg, weights, tuning, mapsDir, defsDir, allocator)
	server := gbeapi.NewServer(registry)

	debugCfg := gbeapi.DefaultObservabilityConfig()
	if os.Getenv("DISABLE_DEBUG_SERVER") == "true" {
		debugCfg.Enabled = false
	}
	if err := gbeapi.StartDebugServer(debugCfg, log.Printf); err != nil {
		log.Printf("debug server disabled: %v", err)
	}

	addr := ":" + strconv.Itoa(engineCfg.Port)
	go func() {
		log.Printf("game backend listening on %s", addr)
		if err := server.Start(addr); err != nil {
			log.Fatalf("game backend server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	log.Println("game backend ready, press Ctrl+C to stop")
	<-quit

	log.Println("shutting down game backend...")
	server.Stop()
	log.Println("goodbye")
}

func getEnvWithDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}
