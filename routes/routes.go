package routes

import (
	"log"
	"net/http"

	"dynamicbingo/handlers"
	"dynamicbingo/services"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for development
	},
}

func SetupRoutes(
	router *gin.Engine,
	gameHandler *handlers.GameHandler,
	hub *services.Hub,
	gameService *services.GameService,
) {
	// API routes
	api := router.Group("/api")
	{
		games := api.Group("/games")
		{
			games.POST("", gameHandler.CreateGame)
			games.GET("/ongoing", gameHandler.GetOngoingGames)
			games.GET("/:id", gameHandler.GetGame)
			games.POST("/:id/join", gameHandler.JoinGame)
			games.POST("/:id/board", gameHandler.SetBoardLayout)
			games.POST("/:id/start", gameHandler.StartGame)
			games.POST("/:id/mark", gameHandler.MarkNumber)
		}
	}

	// WebSocket endpoint for real-time game events
	router.GET("/ws/:gameID/:userID", func(c *gin.Context) {
		gameID, err := uuid.Parse(c.Param("gameID"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid game id"})
			return
		}
		userID, err := uuid.Parse(c.Param("userID"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid user id"})
			return
		}

		// Only seated players may join a game channel.
		if !gameService.IsParticipant(c.Request.Context(), gameID, userID) {
			log.Printf("WebSocket rejected: user %s is not in game %s", userID, gameID)
			c.JSON(http.StatusUnauthorized, gin.H{"error": "User not found in game"})
			return
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			log.Printf("WebSocket upgrade failed for game %s, user %s: %v", gameID, userID, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to upgrade connection"})
			return
		}

		log.Printf("WebSocket connection established for game %s, user %s", gameID, userID)
		hub.RegisterClient(conn, gameID, userID)
	})

	// Health check endpoint
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
}
