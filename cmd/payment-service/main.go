package main

import (
	"log"

	"github.com/joho/godotenv"

	"github.com/happyfeetfollowme/tdccp-ecommerce-platform/internal/payments/app"
)

func main() {
	_ = godotenv.Load()

	if err := app.Run(); err != nil {
		log.Fatalf("payment service failed: %v", err)
	}
}
