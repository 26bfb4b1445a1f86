package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/MagicHoovy/Steve/internal/config"
	"github.com/MagicHoovy/Steve/server"
)

func main() {

	configPath := flag.String("conf", "config.yml", "path to config file")
	flag.Parse()

	conf, err := config.GetConfig(*configPath)
	if err != nil {
		log.Println("configuration error:", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	agent, err := server.NewAgent(ctx, conf)
	if err != nil {
		log.Println("agent initialization failed:", err)
		os.Exit(1)
	}
	agent.Run(ctx)
	agent.Close()
}
