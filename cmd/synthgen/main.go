// Command synthgen submits generation requests from a terminal.
package main

import (
	"os"

	"github.com/joho/godotenv"
)

func main() {
	// A missing .env is fine; the environment is used as is.
	_ = godotenv.Load()

	if err := NewRootCmd(newApp()).Execute(); err != nil {
		os.Exit(1)
	}
}
