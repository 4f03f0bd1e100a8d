package main

import (
	"log"

	"kgstyle/shop-service/internal/app"
)

func main() {
	if err := app.Run(); err != nil {
		log.Fatalf("shop service failed: %v", err)
	}
}
