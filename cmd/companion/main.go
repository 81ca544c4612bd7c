package main

import (
	"log"
	"os"

	"github.com/joho/godotenv"

	"github.com/mirovoy/companion/internal/cli"
)

func main() {
	// Load .env file
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("warning: failed to load .env file: %v", err)
	}

	cli.Execute()
}
