package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"tankarena/internal/aib"
	"tankarena/internal/config"
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
	log.Println(" TANK ARENA - AI BACKEND (AIB)")
	log.Println("================================")

	cfg := config.AIBFromEnv()
	tuning := config.RewardTuningFromEnv(config.DefaultEngine().TickMS)

	mapsDir := getEnvWithDefault("MAPS_DIR", "assets/maps")
	defsDir := getEnvWithDefault("TANKDEFS_DIR", "assets/tankdefs")

	log.Printf("game backend: %s", cfg.GBEBaseURL)
	log.Printf("model store: %s", cfg.MSBaseURL)
	log.Printf("poll interval: %.1fs, save every %d steps", cfg.PollInterval, cfg.SaveEverySteps)

	debugAddr := getEnvWithDefault("AIB_DEBUG_ADDR", "127.0.0.1:6062")
	if os.Getenv("DISABLE_DEBUG_SERVER") != "true" {
		aib.StartDebugServer(debugAddr)
	}

	manager := aib.NewManager(cfg, mapsDir, defsDir, tuning.IdleTicks)
	stop := make(chan struct{})
	go manager.Run(stop)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	log.Println("ai backend ready, press Ctrl+C to stop")
	<-quit

	log.Println("shutting down ai backend...")
	close(stop)
	log.Println("goodbye")
}

func getEnvWithDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}
