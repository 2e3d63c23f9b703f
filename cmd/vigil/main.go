package main

import (
	"log"

	"github.com/MrSnakeDoc/vigil/internal/app"
)

func main() {
	if err := app.New().Run(); err != nil {
		log.Fatalf("❌ vigil failed to start: %v", err)
	}
}
