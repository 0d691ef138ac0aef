package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"math/rand"
	"sync"
	"time"

	"dynamicbingo/models"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// GameService covers the lobby-facing side of a match: creation, seating,
// manual layouts and state queries. Move processing lives in EngineService.
type GameService struct {
	store GameStore
	redis *redis.Client

	rngMu sync.Mutex
	rng   *rand.Rand
}

func NewGameService(store GameStore, redisClient *redis.Client, rng *rand.Rand) *GameService {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &GameService{
		store: store,
		redis: redisClient,
		rng:   rng,
	}
}

type CreateGameRequest struct {
	UserID        uuid.UUID `json:"user_id" binding:"required"`
	Word          string    `json:"word" binding:"required"`
	FillMode      string    `json:"fill_mode" binding:"required"`
	StarterChoice string    `json:"starter_choice" binding:"required"`
}

// GameSnapshot is the live-state view cached in Redis for websocket sync.
type GameSnapshot struct {
	GameID        uuid.UUID      `json:"game_id"`
	Word          string         `json:"word"`
	N             int            `json:"n"`
	Status        string         `json:"status"`
	Scores        map[string]int `json:"scores"`
	MarkedNumbers []int          `json:"marked_numbers"`
	CurrentTurn   *TurnSnapshot  `json:"current_turn,omitempty"`
	Players       []uuid.UUID    `json:"players"`
}

type TurnSnapshot struct {
	PlayerID  uuid.UUID `json:"player_id"`
	Index     int       `json:"index"`
	ExpiresAt time.Time `json:"expires_at"`
}

// CreateGame creates a pending game with the creator seated and their board
// generated according to the fill mode.
func (s *GameService) CreateGame(ctx context.Context, req *CreateGameRequest) (*models.Game, error) {
	game, err := models.NewGame(req.Word, req.UserID, req.FillMode, req.StarterChoice)
	if err != nil {
		return nil, err
	}

	board, err := s.newBoard(game, req.UserID)
	if err != nil {
		return nil, err
	}
	game.Boards = append(game.Boards, *board)

	if err := s.store.Save(ctx, game); err != nil {
		return nil, err
	}

	s.cacheSnapshot(ctx, game)
	return game, nil
}

// JoinGame seats the opponent and generates their board.
func (s *GameService) JoinGame(ctx context.Context, gameID, userID uuid.UUID) (*models.Game, error) {
	game, err := s.store.Load(ctx, gameID)
	if err != nil {
		return nil, err
	}

	if err := game.AddOpponent(userID); err != nil {
		return nil, err
	}

	board, err := s.newBoard(game, userID)
	if err != nil {
		return nil, err
	}
	game.Boards = append(game.Boards, *board)

	if err := s.store.Save(ctx, game); err != nil {
		return nil, err
	}

	s.cacheSnapshot(ctx, game)
	return game, nil
}

// SetBoardLayout accepts a manually arranged grid for the caller's board.
// Only valid before the game starts.
func (s *GameService) SetBoardLayout(ctx context.Context, gameID, userID uuid.UUID, layout [][]int) error {
	game, err := s.store.Load(ctx, gameID)
	if err != nil {
		return err
	}
	if game.Status != models.StatusPending {
		return models.ErrNotPending
	}

	board := game.BoardByUser(userID)
	if board == nil {
		return ErrGameNotFound
	}
	if err := board.SetManualLayout(layout); err != nil {
		return err
	}

	return s.store.Save(ctx, game)
}

// GetGame returns the full aggregate.
func (s *GameService) GetGame(ctx context.Context, gameID uuid.UUID) (*models.Game, error) {
	return s.store.Load(ctx, gameID)
}

// OngoingGames lists the caller's active games.
func (s *GameService) OngoingGames(ctx context.Context, userID uuid.UUID) ([]models.Game, error) {
	return s.store.OngoingGamesForUser(ctx, userID)
}

// IsParticipant reports whether a user is seated in the game.
func (s *GameService) IsParticipant(ctx context.Context, gameID, userID uuid.UUID) bool {
	game, err := s.store.Load(ctx, gameID)
	if err != nil {
		return false
	}
	return game.PlayerByUser(userID) != nil
}

// CurrentSnapshot builds the live-state view from the store and refreshes the
// Redis cache. On a store failure the last cached snapshot is served instead,
// so reconnecting clients can still sync during a database hiccup.
func (s *GameService) CurrentSnapshot(ctx context.Context, gameID uuid.UUID) (*GameSnapshot, error) {
	game, err := s.store.Load(ctx, gameID)
	if err != nil {
		if cached := s.cachedSnapshot(ctx, gameID); cached != nil {
			return cached, nil
		}
		return nil, err
	}

	snapshot := s.cacheSnapshot(ctx, game)
	return snapshot, nil
}

func (s *GameService) newBoard(game *models.Game, userID uuid.UUID) (*models.Board, error) {
	s.rngMu.Lock()
	defer s.rngMu.Unlock()
	return models.NewBoard(game.ID, userID, game.FillMode, game.N, s.rng)
}

func (s *GameService) cacheSnapshot(ctx context.Context, game *models.Game) *GameSnapshot {
	snapshot := &GameSnapshot{
		GameID: game.ID,
		Word:   game.Word,
		N:      game.N,
		Status: game.Status,
		Scores: make(map[string]int, len(game.Players)),
	}
	for i := range game.Players {
		p := &game.Players[i]
		snapshot.Scores[p.UserID.String()] = p.Score
		snapshot.Players = append(snapshot.Players, p.UserID)
	}
	for i := range game.Marks {
		snapshot.MarkedNumbers = append(snapshot.MarkedNumbers, game.Marks[i].Number)
	}
	if turn := game.CurrentTurn(); turn != nil {
		snapshot.CurrentTurn = &TurnSnapshot{
			PlayerID:  turn.PlayerToMoveID,
			Index:     turn.Index,
			ExpiresAt: turn.ExpiresAt,
		}
	}

	data, err := json.Marshal(snapshot)
	if err != nil {
		log.Printf("Failed to marshal snapshot for game %s: %v", game.ID, err)
		return snapshot
	}

	// Cached with expiration (2 hours); the store stays authoritative.
	if err := s.redis.Set(ctx, snapshotKey(game.ID), data, 2*time.Hour).Err(); err != nil {
		log.Printf("Failed to cache snapshot for game %s: %v", game.ID, err)
	}
	return snapshot
}

func (s *GameService) cachedSnapshot(ctx context.Context, gameID uuid.UUID) *GameSnapshot {
	data, err := s.redis.Get(ctx, snapshotKey(gameID)).Result()
	if err != nil {
		if err != redis.Nil {
			log.Printf("Redis error getting snapshot for game %s: %v", gameID, err)
		}
		return nil
	}

	var snapshot GameSnapshot
	if err := json.Unmarshal([]byte(data), &snapshot); err != nil {
		log.Printf("Failed to unmarshal snapshot for game %s: %v", gameID, err)
		return nil
	}
	return &snapshot
}

func snapshotKey(gameID uuid.UUID) string {
	return fmt.Sprintf("game:%s", gameID)
}
