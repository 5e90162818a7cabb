package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"

	"github.com/47anjan/tinderfood-sub000/internal/config"
	"github.com/47anjan/tinderfood-sub000/internal/relay"
)

func main() {
	cfg := config.LoadRelay()

	var broker relay.Broker
	if cfg.NATSURL != "" {
		js, err := relay.NewJetStreamBroker(cfg.NATSURL)
		if err != nil {
			log.Fatalf("Failed to initialize JetStream broker: %v", err)
		}
		broker = js
		log.Printf("Using JetStream broker at %s", cfg.NATSURL)
	} else {
		broker = relay.NewMemoryBroker()
		log.Println("Using in-memory broker")
	}
	defer broker.Close()

	app := fiber.New()
	app.Use(logger.New())

	r := relay.New(broker)
	r.Register(app)

	app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"connections": r.Registry().Count()})
	})

	go func() {
		log.Printf("Starting relay on %s", cfg.Addr)
		if err := app.Listen(cfg.Addr); err != nil {
			log.Fatalf("Relay failed to start: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down relay...")
	if err := app.Shutdown(); err != nil {
		log.Printf("Error shutting down: %v", err)
	}
	log.Println("Relay stopped")
}
