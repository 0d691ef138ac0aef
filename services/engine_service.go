package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"sync"
	"time"

	"dynamicbingo/models"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Rejected operations. These are expected, cheap, and leave the game
// untouched.
var (
	ErrGameNotActive = errors.New("game is not active")
	ErrNotYourTurn   = errors.New("not your turn")
	ErrTurnExpired   = errors.New("turn expired")
	ErrAlreadyMarked = errors.New("number already marked")
	ErrBadNumber     = errors.New("number out of range")
	ErrNotCreator    = errors.New("only the creator can start the game")
	ErrBoardNotReady = errors.New("all boards need a layout before starting")
)

// EngineService drives a match end to end: turn validation, idle escalation,
// marking, scoring, game-end resolution and turn advancement. Each game is a
// single-writer unit; the engine holds a per-game mutex across the whole
// load-mutate-save sequence, so different games never block each other.
type EngineService struct {
	store        GameStore
	broadcaster  Broadcaster
	turnDuration time.Duration
	locks        sync.Map // game id -> *sync.Mutex

	now func() time.Time

	rngMu sync.Mutex
	rng   *rand.Rand
}

// NewEngineService creates the engine. A nil rng gets a time-seeded source;
// tests pass a fixed seed for deterministic auto-marks and coin tosses.
func NewEngineService(store GameStore, broadcaster Broadcaster, turnDuration time.Duration, rng *rand.Rand) *EngineService {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &EngineService{
		store:        store,
		broadcaster:  broadcaster,
		turnDuration: turnDuration,
		now:          time.Now,
		rng:          rng,
	}
}

func gameChannel(id uuid.UUID) string {
	return "game-" + id.String()
}

// StartGame activates a pending game: resolves the starter, creates turn 0
// and announces it. Only the creator can start, and every board must have a
// playable layout.
func (e *EngineService) StartGame(ctx context.Context, gameID, userID uuid.UUID) error {
	lock := e.lock(gameID)
	lock.Lock()
	defer lock.Unlock()

	game, err := e.store.Load(ctx, gameID)
	if err != nil {
		return err
	}
	if userID != game.CreatorID {
		return ErrNotCreator
	}
	for i := range game.Boards {
		if !game.Boards[i].Ready() {
			return ErrBoardNotReady
		}
	}

	if err := game.Start(e.intn(2) == 0, e.now()); err != nil {
		return err
	}

	turn := models.NewTurn(game.ID, 0, *game.ResolvedStarterID, e.now(), e.turnDuration)
	game.Turns = append(game.Turns, *turn)
	e.publishTurnStarted(game, turn)

	return e.store.Save(ctx, game)
}

// MarkNumber processes one move attempt. On an expired turn the requested
// number is discarded and the idle-escalation ladder runs instead; the caller
// still gets a failure so it knows the move itself did not happen.
func (e *EngineService) MarkNumber(ctx context.Context, gameID, playerID uuid.UUID, number int) error {
	lock := e.lock(gameID)
	lock.Lock()
	defer lock.Unlock()

	game, err := e.store.Load(ctx, gameID)
	if err != nil {
		return err
	}
	if game.Status != models.StatusActive {
		return ErrGameNotActive
	}

	turn := game.CurrentTurn()
	if turn == nil || turn.PlayerToMoveID != playerID {
		return ErrNotYourTurn
	}

	now := e.now()
	if turn.Expired(now) {
		e.handleExpiredTurn(game, turn)
		if err := e.store.Save(ctx, game); err != nil {
			return err
		}
		return ErrTurnExpired
	}

	if number < 1 || number > game.N*game.N {
		return ErrBadNumber
	}
	if game.IsMarked(number) {
		return ErrAlreadyMarked
	}

	game.Marks = append(game.Marks, *models.NewMark(game.ID, number, playerID, turn.Index, now))
	turn.Resolve(models.OutcomeMark, &number, now)

	e.broadcaster.Publish(gameChannel(game.ID), "NumberMarked", gin.H{
		"byUserId":  playerID,
		"number":    number,
		"turnIndex": turn.Index,
		"auto":      false,
	})

	e.applyScores(game, number)
	e.endOrAdvance(game)

	return e.store.Save(ctx, game)
}

// SweepExpiredTurns escalates every active game whose open turn has silently
// expired. Lazy expiry checking alone would leave a match stuck if the idle
// player never calls back; the sweeper guarantees forward progress.
func (e *EngineService) SweepExpiredTurns(ctx context.Context) {
	ids, err := e.store.ActiveGameIDs(ctx)
	if err != nil {
		log.Printf("Sweep: failed to list active games: %v", err)
		return
	}

	for _, id := range ids {
		if err := e.sweepGame(ctx, id); err != nil {
			log.Printf("Sweep: game %s: %v", id, err)
		}
	}
}

func (e *EngineService) sweepGame(ctx context.Context, gameID uuid.UUID) error {
	lock := e.lock(gameID)
	lock.Lock()
	defer lock.Unlock()

	game, err := e.store.Load(ctx, gameID)
	if err != nil {
		return err
	}
	if game.Status != models.StatusActive {
		return nil
	}
	turn := game.CurrentTurn()
	if turn == nil || !turn.Expired(e.now()) {
		return nil
	}

	log.Printf("Sweep: turn %d of game %s expired for player %s", turn.Index, game.ID, turn.PlayerToMoveID)
	e.handleExpiredTurn(game, turn)
	return e.store.Save(ctx, game)
}

// handleExpiredTurn runs the idle-escalation ladder for the turn's owner:
// first offense auto-marks a random number, second forfeits the turn, third
// forfeits the whole match.
func (e *EngineService) handleExpiredTurn(game *models.Game, turn *models.Turn) {
	player := game.PlayerByUser(turn.PlayerToMoveID)
	player.IncrementIdle()
	now := e.now()

	switch {
	case player.IdleCount == 1:
		e.autoMark(game, turn, player)

	case player.IdleCount == 2:
		turn.Resolve(models.OutcomeForfeit, nil, now)
		e.broadcaster.Publish(gameChannel(game.ID), "PenaltyApplied", gin.H{
			"userId":  player.UserID,
			"type":    "IdleForfeit",
			"details": "Turn forfeited due to inactivity",
		})
		e.startNextTurn(game)

	default:
		turn.Resolve(models.OutcomeForfeit, nil, now)
		player.Forfeit("Game forfeited due to repeated inactivity")
		winner := game.OpponentOf(player.UserID)
		if err := game.End(models.EndReasonForfeit, &winner, now); err != nil {
			panic(fmt.Sprintf("forfeit on non-active game %s: %v", game.ID, err))
		}

		e.broadcaster.Publish(gameChannel(game.ID), "PenaltyApplied", gin.H{
			"userId":  player.UserID,
			"type":    "GameForfeit",
			"details": "Game forfeited due to repeated inactivity",
		})
		e.broadcaster.Publish(gameChannel(game.ID), "GameEnded", gin.H{
			"result":   "Win",
			"winnerId": winner,
			"reason":   "Opponent forfeited due to inactivity",
		})
	}
}

// autoMark plays the idle player's turn for them: a uniformly random pick
// among the unmarked numbers, then the same scoring, end-check and turn
// advance as a normal move. With nothing left to mark the turn resolves as a
// plain forfeit and play moves on without scoring.
func (e *EngineService) autoMark(game *models.Game, turn *models.Turn, player *models.GamePlayer) {
	now := e.now()
	marked := game.MarkedNumbers()
	var available []int
	for n := 1; n <= game.N*game.N; n++ {
		if !marked[n] {
			available = append(available, n)
		}
	}

	if len(available) == 0 {
		turn.Resolve(models.OutcomeForfeit, nil, now)
		e.startNextTurn(game)
		return
	}

	number := available[e.intn(len(available))]
	game.Marks = append(game.Marks, *models.NewMark(game.ID, number, player.UserID, turn.Index, now))
	turn.Resolve(models.OutcomeAutoMark, &number, now)

	e.broadcaster.Publish(gameChannel(game.ID), "NumberMarked", gin.H{
		"byUserId":  player.UserID,
		"number":    number,
		"turnIndex": turn.Index,
		"auto":      true,
	})
	e.broadcaster.Publish(gameChannel(game.ID), "PenaltyApplied", gin.H{
		"userId":  player.UserID,
		"type":    "IdleAutoMark",
		"details": fmt.Sprintf("Auto-marked number %d due to inactivity", number),
	})

	e.applyScores(game, number)
	e.endOrAdvance(game)
}

// applyScores recomputes both players' scores from the full marked set and
// applies only the positive deltas. A ScoreUpdated event goes out for each
// player whose score moved, carrying the lines the new mark completed on
// that player's own board.
func (e *EngineService) applyScores(game *models.Game, number int) {
	marked := game.MarkedNumbers()
	creator := game.CreatorPlayer()
	opponent := game.OpponentPlayer()

	for _, player := range []*models.GamePlayer{creator, opponent} {
		board := game.BoardByUser(player.UserID)
		newScore := ScoreBoard(board.Layout(), marked)
		if newScore == player.Score {
			continue
		}
		player.AddScore(newScore - player.Score)

		e.broadcaster.Publish(gameChannel(game.ID), "ScoreUpdated", gin.H{
			"userId":         player.UserID,
			"newScore":       player.Score,
			"completedLines": CompletedLinesForMark(board.Layout(), marked, number),
		})
	}
}

// endOrAdvance resolves the game if either side reached the win threshold,
// draws when both got there on the same move, and otherwise opens the next
// turn.
func (e *EngineService) endOrAdvance(game *models.Game) {
	creator := game.CreatorPlayer()
	opponent := game.OpponentPlayer()
	now := e.now()

	switch {
	case creator.HasWon() && opponent.HasWon():
		if err := game.End(models.EndReasonDraw, nil, now); err != nil {
			panic(fmt.Sprintf("draw on non-active game %s: %v", game.ID, err))
		}
		e.broadcaster.Publish(gameChannel(game.ID), "GameEnded", gin.H{
			"result":   "Draw",
			"winnerId": nil,
			"reason":   "Both players reached 5 points simultaneously",
		})

	case creator.HasWon() || opponent.HasWon():
		winner := creator
		if opponent.HasWon() {
			winner = opponent
		}
		if err := game.End(models.EndReasonWin, &winner.UserID, now); err != nil {
			panic(fmt.Sprintf("win on non-active game %s: %v", game.ID, err))
		}
		e.broadcaster.Publish(gameChannel(game.ID), "GameEnded", gin.H{
			"result":   "Win",
			"winnerId": winner.UserID,
			"reason":   "Reached 5 points",
		})

	default:
		e.startNextTurn(game)
	}
}

// startNextTurn opens the next slot for the opponent of whoever owned the
// previous turn. The owner flips even after auto-marks and turn forfeits,
// where the physical mover and the turn owner are the same idle player.
func (e *EngineService) startNextTurn(game *models.Game) {
	last := game.LastTurn()
	next := game.OpponentOf(last.PlayerToMoveID)

	turn := models.NewTurn(game.ID, last.Index+1, next, e.now(), e.turnDuration)
	game.Turns = append(game.Turns, *turn)
	e.publishTurnStarted(game, turn)
}

func (e *EngineService) publishTurnStarted(game *models.Game, turn *models.Turn) {
	e.broadcaster.Publish(gameChannel(game.ID), "TurnStarted", gin.H{
		"playerId":  turn.PlayerToMoveID,
		"turnIndex": turn.Index,
		"expiresAt": turn.ExpiresAt,
	})
}

func (e *EngineService) lock(gameID uuid.UUID) *sync.Mutex {
	actual, _ := e.locks.LoadOrStore(gameID, &sync.Mutex{})
	return actual.(*sync.Mutex)
}

// intn draws from the shared source; rand.Rand is not safe for concurrent
// use across games.
func (e *EngineService) intn(n int) int {
	e.rngMu.Lock()
	defer e.rngMu.Unlock()
	return e.rng.Intn(n)
}
