package main

import (
	"log"

	"github.com/x402hub/paygate/internal/app"
)

func main() {
	if err := app.New().Run(); err != nil {
		log.Fatalf("❌ paygate failed to start: %v", err)
	}
}
