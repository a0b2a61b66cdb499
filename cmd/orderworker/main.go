package main

import (
	"log"

	"github.com/joho/godotenv"

	"github.com/MrSnakeDoc/orderfiles/internal/app"
)

func main() {
	// .env is optional, real environment variables win
	_ = godotenv.Load()

	if err := app.New(app.RoleWorker).Run(); err != nil {
		log.Fatalf("❌ orderworker failed: %v", err)
	}
}
