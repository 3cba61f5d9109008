package main

import (
	"flag"
	"log"
	"os"

	approuters "github.com/abhigit-saha/hack36-sub000/internal/app_routers"
	"github.com/abhigit-saha/hack36-sub000/internal/configuration"
)

func main() {
	configPath := flag.String("config", os.Getenv("CHAT_CONFIG"), "path to the JSON config file")
	flag.Parse()

	config, err := configuration.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	container, err := configuration.BuildContainer(config)
	if err != nil {
		log.Fatalf("Failed to build container: %v", err)
	}

	// Ensure cleanup on shutdown
	defer container.Close()

	approuters.StartServer(container)
}
