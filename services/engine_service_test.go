package services

import (
	"context"
	"encoding/json"
	"math/rand"
	"sync"
	"testing"
	"time"

	"dynamicbingo/models"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memoryStore keeps aggregates in a map, enough to drive the engine without
// Postgres.
type memoryStore struct {
	mu    sync.Mutex
	games map[uuid.UUID]*models.Game
}

func newMemoryStore() *memoryStore {
	return &memoryStore{games: make(map[uuid.UUID]*models.Game)}
}

func (m *memoryStore) Load(ctx context.Context, id uuid.UUID) (*models.Game, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	game, ok := m.games[id]
	if !ok {
		return nil, ErrGameNotFound
	}
	return game, nil
}

func (m *memoryStore) Save(ctx context.Context, game *models.Game) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.games[game.ID] = game
	return nil
}

func (m *memoryStore) ActiveGameIDs(ctx context.Context) ([]uuid.UUID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var ids []uuid.UUID
	for id, game := range m.games {
		if game.Status == models.StatusActive {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (m *memoryStore) OngoingGamesForUser(ctx context.Context, userID uuid.UUID) ([]models.Game, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var games []models.Game
	for _, game := range m.games {
		if game.Status != models.StatusActive {
			continue
		}
		if game.CreatorID == userID || (game.OpponentID != nil && *game.OpponentID == userID) {
			games = append(games, *game)
		}
	}
	return games, nil
}

type recordedEvent struct {
	channel string
	name    string
	payload gin.H
}

type recordingBroadcaster struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (b *recordingBroadcaster) Publish(channel, event string, payload interface{}) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, recordedEvent{channel: channel, name: event, payload: payload.(gin.H)})
}

func (b *recordingBroadcaster) named(event string) []recordedEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []recordedEvent
	for _, e := range b.events {
		if e.name == event {
			out = append(out, e)
		}
	}
	return out
}

func (b *recordingBroadcaster) reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = nil
}

// engineFixture wires an engine against in-memory fakes with a controllable
// clock.
type engineFixture struct {
	engine   *EngineService
	store    *memoryStore
	events   *recordingBroadcaster
	now      time.Time
	creator  uuid.UUID
	opponent uuid.UUID
	game     *models.Game
}

// rotate1 shifts every number of the sequential layout up by one, so marks
// that complete a sequential line leave this board one short.
func rotate1(n int) [][]int {
	grid := make([][]int, n)
	number := 1
	for row := range grid {
		grid[row] = make([]int, n)
		for col := range grid[row] {
			grid[row][col] = number%(n*n) + 1
			number++
		}
	}
	return grid
}

func sequential(n int) [][]int {
	grid := make([][]int, n)
	number := 1
	for row := range grid {
		grid[row] = make([]int, n)
		for col := range grid[row] {
			grid[row][col] = number
			number++
		}
	}
	return grid
}

// newEngineFixture builds an active 4x4 game. The creator's board is
// sequential; the opponent's is the rotated variant unless identicalBoards is
// set, in which case both are sequential and every line completes for both
// sides at once.
func newEngineFixture(t *testing.T, identicalBoards bool) *engineFixture {
	t.Helper()

	f := &engineFixture{
		store:    newMemoryStore(),
		events:   &recordingBroadcaster{},
		now:      time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
		creator:  uuid.New(),
		opponent: uuid.New(),
	}
	f.engine = NewEngineService(f.store, f.events, 30*time.Second, rand.New(rand.NewSource(1)))
	f.engine.now = func() time.Time { return f.now }

	game, err := models.NewGame("WORD", f.creator, models.FillManual, models.StarterCreator)
	require.NoError(t, err)
	require.NoError(t, game.AddOpponent(f.opponent))

	rng := rand.New(rand.NewSource(2))
	for _, userID := range []uuid.UUID{f.creator, f.opponent} {
		board, err := models.NewBoard(game.ID, userID, models.FillManual, game.N, rng)
		require.NoError(t, err)
		layout := sequential(game.N)
		if userID == f.opponent && !identicalBoards {
			layout = rotate1(game.N)
		}
		require.NoError(t, board.SetManualLayout(layout))
		game.Boards = append(game.Boards, *board)
	}

	require.NoError(t, f.store.Save(context.Background(), game))
	require.NoError(t, f.engine.StartGame(context.Background(), game.ID, f.creator))

	f.game = mustLoad(t, f.store, game.ID)
	f.events.reset()
	return f
}

func mustLoad(t *testing.T, store *memoryStore, id uuid.UUID) *models.Game {
	t.Helper()
	game, err := store.Load(context.Background(), id)
	require.NoError(t, err)
	return game
}

func (f *engineFixture) mark(t *testing.T, userID uuid.UUID, number int) {
	t.Helper()
	require.NoError(t, f.engine.MarkNumber(context.Background(), f.game.ID, userID, number))
	f.now = f.now.Add(time.Second)
}

func (f *engineFixture) expireCurrentTurn() {
	f.now = f.now.Add(31 * time.Second)
}

func TestStartGame(t *testing.T) {
	t.Run("creates the first turn for the resolved starter", func(t *testing.T) {
		f := newEngineFixture(t, false)

		game := f.game
		assert.Equal(t, models.StatusActive, game.Status)
		require.NotNil(t, game.ResolvedStarterID)
		assert.Equal(t, f.creator, *game.ResolvedStarterID)

		turn := game.CurrentTurn()
		require.NotNil(t, turn)
		assert.Equal(t, 0, turn.Index)
		assert.Equal(t, f.creator, turn.PlayerToMoveID)
		assert.Equal(t, f.now.Add(30*time.Second), turn.ExpiresAt)
	})

	t.Run("only the creator can start", func(t *testing.T) {
		store := newMemoryStore()
		events := &recordingBroadcaster{}
		engine := NewEngineService(store, events, 30*time.Second, rand.New(rand.NewSource(1)))

		game, err := models.NewGame("WORD", uuid.New(), models.FillSequential, models.StarterCreator)
		require.NoError(t, err)
		intruder := uuid.New()
		require.NoError(t, game.AddOpponent(intruder))
		require.NoError(t, store.Save(context.Background(), game))

		assert.ErrorIs(t, engine.StartGame(context.Background(), game.ID, intruder), ErrNotCreator)
	})

	t.Run("manual boards must have a layout", func(t *testing.T) {
		store := newMemoryStore()
		events := &recordingBroadcaster{}
		engine := NewEngineService(store, events, 30*time.Second, rand.New(rand.NewSource(1)))

		creator := uuid.New()
		game, err := models.NewGame("WORD", creator, models.FillManual, models.StarterCreator)
		require.NoError(t, err)
		require.NoError(t, game.AddOpponent(uuid.New()))
		board, err := models.NewBoard(game.ID, creator, models.FillManual, game.N, rand.New(rand.NewSource(3)))
		require.NoError(t, err)
		game.Boards = append(game.Boards, *board)
		require.NoError(t, store.Save(context.Background(), game))

		assert.ErrorIs(t, engine.StartGame(context.Background(), game.ID, creator), ErrBoardNotReady)
	})
}

func TestMarkNumberRejections(t *testing.T) {
	t.Run("unknown game", func(t *testing.T) {
		f := newEngineFixture(t, false)
		err := f.engine.MarkNumber(context.Background(), uuid.New(), f.creator, 1)
		assert.ErrorIs(t, err, ErrGameNotFound)
	})

	t.Run("wrong player leaves the game untouched", func(t *testing.T) {
		f := newEngineFixture(t, false)
		before, err := json.Marshal(f.game)
		require.NoError(t, err)

		err = f.engine.MarkNumber(context.Background(), f.game.ID, f.opponent, 1)
		assert.ErrorIs(t, err, ErrNotYourTurn)

		after, err := json.Marshal(mustLoad(t, f.store, f.game.ID))
		require.NoError(t, err)
		assert.JSONEq(t, string(before), string(after))
		assert.Empty(t, f.events.events)
	})

	t.Run("non-participant", func(t *testing.T) {
		f := newEngineFixture(t, false)
		err := f.engine.MarkNumber(context.Background(), f.game.ID, uuid.New(), 1)
		assert.ErrorIs(t, err, ErrNotYourTurn)
	})

	t.Run("number out of range", func(t *testing.T) {
		f := newEngineFixture(t, false)
		assert.ErrorIs(t, f.engine.MarkNumber(context.Background(), f.game.ID, f.creator, 0), ErrBadNumber)
		assert.ErrorIs(t, f.engine.MarkNumber(context.Background(), f.game.ID, f.creator, 17), ErrBadNumber)
		assert.Empty(t, f.game.Marks)
	})

	t.Run("already marked", func(t *testing.T) {
		f := newEngineFixture(t, false)
		f.mark(t, f.creator, 1)

		err := f.engine.MarkNumber(context.Background(), f.game.ID, f.opponent, 1)
		assert.ErrorIs(t, err, ErrAlreadyMarked)
		assert.Len(t, f.game.Marks, 1)
	})

	t.Run("inactive game", func(t *testing.T) {
		f := newEngineFixture(t, false)
		f.game.Status = models.StatusFinished
		require.NoError(t, f.store.Save(context.Background(), f.game))

		err := f.engine.MarkNumber(context.Background(), f.game.ID, f.creator, 1)
		assert.ErrorIs(t, err, ErrGameNotActive)
	})
}

func TestMarkNumberFlow(t *testing.T) {
	f := newEngineFixture(t, false)

	f.mark(t, f.creator, 1)

	game := f.game
	require.Len(t, game.Marks, 1)
	assert.Equal(t, 1, game.Marks[0].Number)
	assert.Equal(t, f.creator, game.Marks[0].MarkedByUserID)
	assert.Equal(t, 0, game.Marks[0].TurnIndex)

	resolved := &game.Turns[0]
	assert.Equal(t, models.OutcomeMark, resolved.Outcome)
	require.NotNil(t, resolved.MarkedNumber)
	assert.Equal(t, 1, *resolved.MarkedNumber)

	markedEvents := f.events.named("NumberMarked")
	require.Len(t, markedEvents, 1)
	assert.Equal(t, "game-"+game.ID.String(), markedEvents[0].channel)
	assert.Equal(t, false, markedEvents[0].payload["auto"])
	assert.Equal(t, 1, markedEvents[0].payload["number"])

	// turn flips to the opponent with a fresh deadline
	turnEvents := f.events.named("TurnStarted")
	require.Len(t, turnEvents, 1)
	current := game.CurrentTurn()
	require.NotNil(t, current)
	assert.Equal(t, 1, current.Index)
	assert.Equal(t, f.opponent, current.PlayerToMoveID)

	// no line is complete yet, so no score event
	assert.Empty(t, f.events.named("ScoreUpdated"))
	assert.Equal(t, 0, game.CreatorPlayer().Score)
}

func TestRowCompletionScoresOneSide(t *testing.T) {
	f := newEngineFixture(t, false)

	// alternating turns fill the creator's top row 1,2,3,4
	f.mark(t, f.creator, 1)
	f.mark(t, f.opponent, 2)
	f.mark(t, f.creator, 3)
	f.mark(t, f.opponent, 4)

	game := f.game
	assert.Equal(t, 1, game.CreatorPlayer().Score)
	assert.Equal(t, 0, game.OpponentPlayer().Score, "rotated board has no complete line")

	scoreEvents := f.events.named("ScoreUpdated")
	require.Len(t, scoreEvents, 1)
	assert.Equal(t, game.CreatorID, scoreEvents[0].payload["userId"])
	assert.Equal(t, 1, scoreEvents[0].payload["newScore"])
	assert.Equal(t, []int{1, 2, 3, 4}, scoreEvents[0].payload["completedLines"])

	assert.Equal(t, models.StatusActive, game.Status)
}

func TestDrawWhenBothReachFiveOnSameMove(t *testing.T) {
	f := newEngineFixture(t, true)

	// identical boards: every line completes for both sides on the same mark,
	// so whichever mark pushes the score past the threshold ends the match in
	// a draw
	turnOwner := f.creator
	number := 1
	for !f.game.Finished() {
		f.mark(t, turnOwner, number)
		number++
		turnOwner = f.game.OpponentOf(turnOwner)
	}

	game := f.game
	assert.Equal(t, models.StatusDraw, game.Status)
	assert.Equal(t, game.CreatorPlayer().Score, game.OpponentPlayer().Score)
	assert.True(t, game.CreatorPlayer().HasWon())
	assert.True(t, game.OpponentPlayer().HasWon())
	assert.False(t, game.CreatorPlayer().IsWinner)
	assert.False(t, game.OpponentPlayer().IsWinner)

	ended := f.events.named("GameEnded")
	require.Len(t, ended, 1)
	assert.Equal(t, "Draw", ended[0].payload["result"])
	assert.Nil(t, ended[0].payload["winnerId"])

	// a finished game accepts no further moves
	err := f.engine.MarkNumber(context.Background(), game.ID, f.creator, 1)
	assert.ErrorIs(t, err, ErrGameNotActive)
}

func TestIdleEscalationLadder(t *testing.T) {
	f := newEngineFixture(t, false)
	ctx := context.Background()

	// first offense: auto-mark and play continues
	f.expireCurrentTurn()
	err := f.engine.MarkNumber(ctx, f.game.ID, f.creator, 1)
	assert.ErrorIs(t, err, ErrTurnExpired)

	game := f.game
	assert.Equal(t, 1, game.CreatorPlayer().IdleCount)
	require.Len(t, game.Marks, 1)
	assert.Equal(t, f.creator, game.Marks[0].MarkedByUserID)
	assert.Equal(t, models.OutcomeAutoMark, game.Turns[0].Outcome)
	assert.Equal(t, models.StatusActive, game.Status)

	marked := f.events.named("NumberMarked")
	require.Len(t, marked, 1)
	assert.Equal(t, true, marked[0].payload["auto"])
	penalties := f.events.named("PenaltyApplied")
	require.Len(t, penalties, 1)
	assert.Equal(t, "IdleAutoMark", penalties[0].payload["type"])

	current := game.CurrentTurn()
	require.NotNil(t, current)
	assert.Equal(t, f.opponent, current.PlayerToMoveID)

	// opponent plays on time; an unmarked number well away from line completions
	autoMarked := game.Marks[0].Number
	pick := 9
	if pick == autoMarked {
		pick = 10
	}
	f.mark(t, f.opponent, pick)

	// second offense: turn forfeited, no mark recorded
	f.events.reset()
	f.expireCurrentTurn()
	err = f.engine.MarkNumber(ctx, f.game.ID, f.creator, 2)
	assert.ErrorIs(t, err, ErrTurnExpired)

	assert.Equal(t, 2, game.CreatorPlayer().IdleCount)
	assert.Len(t, game.Marks, 2, "turn forfeit records no mark")
	assert.Equal(t, models.OutcomeForfeit, game.Turns[2].Outcome)
	assert.Nil(t, game.Turns[2].MarkedNumber)

	penalties = f.events.named("PenaltyApplied")
	require.Len(t, penalties, 1)
	assert.Equal(t, "IdleForfeit", penalties[0].payload["type"])

	current = game.CurrentTurn()
	require.NotNil(t, current)
	assert.Equal(t, f.opponent, current.PlayerToMoveID, "turn flips to the opponent")

	// opponent plays on time again
	pick = 12
	if game.IsMarked(pick) {
		pick = 13
	}
	f.mark(t, f.opponent, pick)

	// third offense: match forfeited, opponent wins
	f.events.reset()
	f.expireCurrentTurn()
	err = f.engine.MarkNumber(ctx, f.game.ID, f.creator, 3)
	assert.ErrorIs(t, err, ErrTurnExpired)

	assert.Equal(t, 3, game.CreatorPlayer().IdleCount)
	assert.Equal(t, models.StatusForfeited, game.Status)
	assert.True(t, game.CreatorPlayer().HasForfeited())
	assert.True(t, game.OpponentPlayer().IsWinner)
	require.NotNil(t, game.FinishedAt)

	penalties = f.events.named("PenaltyApplied")
	require.Len(t, penalties, 1)
	assert.Equal(t, "GameForfeit", penalties[0].payload["type"])

	ended := f.events.named("GameEnded")
	require.Len(t, ended, 1)
	assert.Equal(t, "Win", ended[0].payload["result"])
	assert.Equal(t, f.opponent, ended[0].payload["winnerId"])
}

func TestIdleCounterSurvivesOnTimeMoves(t *testing.T) {
	f := newEngineFixture(t, false)
	ctx := context.Background()

	// creator stalls once, eating the auto-mark
	f.expireCurrentTurn()
	require.ErrorIs(t, f.engine.MarkNumber(ctx, f.game.ID, f.creator, 1), ErrTurnExpired)
	require.Equal(t, 1, f.game.CreatorPlayer().IdleCount)

	// both sides then play several prompt turns
	turnOwner := f.opponent
	for _, number := range []int{9, 10, 11} {
		if f.game.IsMarked(number) {
			continue
		}
		f.mark(t, turnOwner, number)
		turnOwner = f.game.OpponentOf(turnOwner)
	}

	assert.Equal(t, 1, f.game.CreatorPlayer().IdleCount, "on-time moves never reset the counter")

	// so the next stall is the second offense: a turn forfeit, not another
	// auto-mark
	for f.game.CurrentTurn().PlayerToMoveID != f.creator {
		free := firstUnmarked(f.game)
		f.mark(t, f.game.CurrentTurn().PlayerToMoveID, free)
	}
	marksBefore := len(f.game.Marks)
	f.expireCurrentTurn()
	require.ErrorIs(t, f.engine.MarkNumber(ctx, f.game.ID, f.creator, firstUnmarked(f.game)), ErrTurnExpired)

	assert.Equal(t, 2, f.game.CreatorPlayer().IdleCount)
	assert.Len(t, f.game.Marks, marksBefore, "second offense records no mark")
}

func firstUnmarked(game *models.Game) int {
	for n := 1; n <= game.N*game.N; n++ {
		if !game.IsMarked(n) {
			return n
		}
	}
	return 0
}

func TestAutoMarkWithEmptyPool(t *testing.T) {
	f := newEngineFixture(t, false)

	// force an exhausted pool with the game still open: every number marked
	// behind the engine's back
	game := f.game
	now := f.now
	for n := 1; n <= 16; n++ {
		game.Marks = append(game.Marks, *models.NewMark(game.ID, n, f.creator, 0, now))
	}
	require.NoError(t, f.store.Save(context.Background(), game))

	f.events.reset()
	f.expireCurrentTurn()
	err := f.engine.MarkNumber(context.Background(), game.ID, f.creator, 1)
	assert.ErrorIs(t, err, ErrTurnExpired)

	// nothing to auto-mark: the turn resolves as a forfeit and play moves on
	assert.Equal(t, models.OutcomeForfeit, game.Turns[0].Outcome)
	assert.Nil(t, game.Turns[0].MarkedNumber)
	assert.Len(t, game.Marks, 16)
	assert.Empty(t, f.events.named("NumberMarked"))
	assert.Empty(t, f.events.named("ScoreUpdated"))

	current := game.CurrentTurn()
	require.NotNil(t, current)
	assert.Equal(t, f.opponent, current.PlayerToMoveID)
}

func TestSweepEscalatesSilentGames(t *testing.T) {
	f := newEngineFixture(t, false)

	f.expireCurrentTurn()
	f.engine.SweepExpiredTurns(context.Background())

	game := f.game
	assert.Equal(t, 1, game.CreatorPlayer().IdleCount)
	assert.Equal(t, models.OutcomeAutoMark, game.Turns[0].Outcome)
	require.Len(t, game.Marks, 1, "sweep auto-marked without any player interaction")

	// a second sweep in the same window does nothing: the fresh turn is not
	// expired yet
	f.engine.SweepExpiredTurns(context.Background())
	assert.Len(t, game.Marks, 1)
	assert.Equal(t, 0, game.OpponentPlayer().IdleCount)
}

func TestAggregateRoundTrip(t *testing.T) {
	f := newEngineFixture(t, false)

	f.mark(t, f.creator, 1)
	f.mark(t, f.opponent, 2)
	f.mark(t, f.creator, 3)
	f.mark(t, f.opponent, 4)

	data, err := json.Marshal(f.game)
	require.NoError(t, err)

	var restored models.Game
	require.NoError(t, json.Unmarshal(data, &restored))

	require.Len(t, restored.Turns, len(f.game.Turns))
	for i := range restored.Turns {
		assert.Equal(t, f.game.Turns[i].Index, restored.Turns[i].Index)
		assert.Equal(t, f.game.Turns[i].PlayerToMoveID, restored.Turns[i].PlayerToMoveID)
		assert.Equal(t, f.game.Turns[i].Outcome, restored.Turns[i].Outcome)
	}

	require.Len(t, restored.Marks, len(f.game.Marks))
	for i := range restored.Marks {
		assert.Equal(t, f.game.Marks[i].Number, restored.Marks[i].Number)
		assert.Equal(t, f.game.Marks[i].TurnIndex, restored.Marks[i].TurnIndex)
	}

	assert.Equal(t, f.game.CreatorPlayer().Score, restored.CreatorPlayer().Score)
	assert.Equal(t, f.game.OpponentPlayer().Score, restored.OpponentPlayer().Score)
	assert.Equal(t, f.game.MarkedNumbers(), restored.MarkedNumbers())
}

func TestDifferentGamesDoNotBlockEachOther(t *testing.T) {
	f := newEngineFixture(t, false)
	g := newEngineFixture(t, false)

	var wg sync.WaitGroup
	for _, fix := range []*engineFixture{f, g} {
		wg.Add(1)
		go func(fix *engineFixture) {
			defer wg.Done()
			_ = fix.engine.MarkNumber(context.Background(), fix.game.ID, fix.creator, 1)
		}(fix)
	}
	wg.Wait()

	assert.Len(t, f.game.Marks, 1)
	assert.Len(t, g.game.Marks, 1)
}
