package main

import (
	"log"

	"github.com/joho/godotenv"

	"github.com/happyfeetfollowme/tdccp-ecommerce-platform/internal/products/app"
)

func main() {
	_ = godotenv.Load()

	if err := app.Run(); err != nil {
		log.Fatalf("product service failed: %v", err)
	}
}
