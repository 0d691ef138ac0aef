package main

import (
	"log"

	"dynamicbingo/config"
	"dynamicbingo/handlers"
	"dynamicbingo/models"
	"dynamicbingo/routes"
	"dynamicbingo/services"

	"github.com/gin-gonic/gin"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize database
	db, err := config.InitDB(cfg)
	if err != nil {
		log.Fatal("Failed to connect to database:", err)
	}

	// Auto-migrate database models
	err = db.AutoMigrate(
		&models.Game{},
		&models.GamePlayer{},
		&models.Board{},
		&models.Turn{},
		&models.Mark{},
	)
	if err != nil {
		log.Fatal("Failed to migrate database:", err)
	}

	// Initialize Redis
	redisClient := config.InitRedis(cfg)

	// Initialize services
	store := services.NewGormGameStore(db)
	gameService := services.NewGameService(store, redisClient, nil)

	// Initialize WebSocket hub
	hub := services.NewHub(gameService)
	go hub.Run()

	// The hub doubles as the engine's event broadcaster
	engine := services.NewEngineService(store, hub, cfg.TurnDuration, nil)

	// Background sweep for turns that expire with no player interaction
	sweeper := services.NewSweeper(engine, cfg.SweepEvery)
	go sweeper.Run()

	// Initialize handlers
	gameHandler := handlers.NewGameHandler(gameService, engine)

	// Setup Gin router
	router := gin.Default()

	// Setup routes
	routes.SetupRoutes(router, gameHandler, hub, gameService)

	// Start server
	log.Printf("Server starting on port %s", cfg.Port)
	if err := router.Run(":" + cfg.Port); err != nil {
		log.Fatal("Failed to start server:", err)
	}
}
