package handlers

import (
	"errors"
	"net/http"

	"dynamicbingo/models"
	"dynamicbingo/services"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type GameHandler struct {
	gameService *services.GameService
	engine      *services.EngineService
}

func NewGameHandler(gameService *services.GameService, engine *services.EngineService) *GameHandler {
	return &GameHandler{
		gameService: gameService,
		engine:      engine,
	}
}

type joinGameRequest struct {
	UserID uuid.UUID `json:"user_id" binding:"required"`
}

type startGameRequest struct {
	UserID uuid.UUID `json:"user_id" binding:"required"`
}

type boardLayoutRequest struct {
	UserID uuid.UUID `json:"user_id" binding:"required"`
	Layout [][]int   `json:"layout" binding:"required"`
}

type markNumberRequest struct {
	UserID uuid.UUID `json:"user_id" binding:"required"`
	Number int       `json:"number" binding:"required"`
}

func (h *GameHandler) CreateGame(c *gin.Context) {
	var req services.CreateGameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	game, err := h.gameService.CreateGame(c.Request.Context(), &req)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, game)
}

func (h *GameHandler) JoinGame(c *gin.Context) {
	gameID, ok := gameIDParam(c)
	if !ok {
		return
	}

	var req joinGameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	game, err := h.gameService.JoinGame(c.Request.Context(), gameID, req.UserID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, game)
}

func (h *GameHandler) SetBoardLayout(c *gin.Context) {
	gameID, ok := gameIDParam(c)
	if !ok {
		return
	}

	var req boardLayoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.gameService.SetBoardLayout(c.Request.Context(), gameID, req.UserID, req.Layout); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Board layout saved"})
}

func (h *GameHandler) StartGame(c *gin.Context) {
	gameID, ok := gameIDParam(c)
	if !ok {
		return
	}

	var req startGameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.engine.StartGame(c.Request.Context(), gameID, req.UserID); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Game started"})
}

func (h *GameHandler) MarkNumber(c *gin.Context) {
	gameID, ok := gameIDParam(c)
	if !ok {
		return
	}

	var req markNumberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.engine.MarkNumber(c.Request.Context(), gameID, req.UserID, req.Number); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Number marked"})
}

func (h *GameHandler) GetGame(c *gin.Context) {
	gameID, ok := gameIDParam(c)
	if !ok {
		return
	}

	game, err := h.gameService.GetGame(c.Request.Context(), gameID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, game)
}

func (h *GameHandler) GetOngoingGames(c *gin.Context) {
	userID, err := uuid.Parse(c.Query("userId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Valid userId is required"})
		return
	}

	games, err := h.gameService.OngoingGames(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, games)
}

func gameIDParam(c *gin.Context) (uuid.UUID, bool) {
	gameID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid game id"})
		return uuid.Nil, false
	}
	return gameID, true
}

func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrGameNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, services.ErrGameNotActive),
		errors.Is(err, services.ErrNotYourTurn),
		errors.Is(err, services.ErrTurnExpired),
		errors.Is(err, services.ErrAlreadyMarked),
		errors.Is(err, services.ErrBadNumber),
		errors.Is(err, services.ErrNotCreator),
		errors.Is(err, services.ErrBoardNotReady),
		errors.Is(err, models.ErrNotPending),
		errors.Is(err, models.ErrHasOpponent),
		errors.Is(err, models.ErrOwnOpponent),
		errors.Is(err, models.ErrNoOpponent),
		errors.Is(err, models.ErrNotManualFill),
		errors.Is(err, models.ErrInvalidLayout):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
