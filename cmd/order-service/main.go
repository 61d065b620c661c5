package main

import (
	"log"

	"github.com/joho/godotenv"

	"github.com/happyfeetfollowme/tdccp-ecommerce-platform/internal/orders/app"
)

func main() {
	_ = godotenv.Load()

	if err := app.Run(); err != nil {
		log.Fatalf("order service failed: %v", err)
	}
}
