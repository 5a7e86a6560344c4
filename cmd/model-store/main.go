package main

import (
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/joho/godotenv"

	"tankarena/internal/config"
	"tankarena/internal/msstore"
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
	log.Println(" TANK ARENA - MODEL STORE (MS)")
	log.Println("================================")

	cfg := config.MSFromEnv()

	store, err := msstore.Open(cfg.DBPath)
	if err != nil {
		log.Fatalf("ms: open store %s: %v", cfg.DBPath, err)
	}
	log.Printf("ms: store opened at %s", cfg.DBPath)

	server := msstore.NewServer(store)

	addr := cfg.Host + ":" + strconv.Itoa(cfg.Port)
	go func() {
		log.Printf("model store listening on %s", addr)
		if err := server.Start(addr); err != nil {
			log.Fatalf("model store server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	log.Println("model store ready, press Ctrl+C to stop")
	<-quit

	log.Println("shutting down model store...")
	log.Println("goodbye")
}
