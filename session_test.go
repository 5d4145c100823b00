package main

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSession(t *testing.T, lookup func(string) bool) *Session {
	t.Helper()
	return newSession(newValidator(defaultBannedWords), 2, lookup)
}

// startedSession returns a session in AwaitingFirstPhrase with the given
// players joined, discarding the setup events.
func startedSession(t *testing.T, ids ...string) *Session {
	t.Helper()

	s := newTestSession(t, nil)
	_, err := s.open()
	require.NoError(t, err)

	for _, id := range ids {
		name := id
		if id == botPlayerID {
			name = botDisplayName
		}
		_, err := s.addPlayer(id, name)
		require.NoError(t, err)
	}

	_, err = s.begin()
	require.NoError(t, err)

	return s
}

func eventTypes(events []any) []string {
	types := make([]string, 0, len(events))
	for _, ev := range events {
		types = append(types, fmt.Sprintf("%T", ev))
	}
	return types
}

func TestSessionLifecycle(t *testing.T) {
	t.Parallel()

	s := newTestSession(t, nil)
	assert.Equal(t, PhaseIdle, s.phase)

	_, err := s.open()
	require.NoError(t, err)
	assert.Equal(t, PhaseOpen, s.phase)

	_, err = s.addPlayer("p1", "An")
	require.NoError(t, err)
	_, err = s.addPlayer("p2", "Bình")
	require.NoError(t, err)

	_, err = s.begin()
	require.NoError(t, err)
	assert.Equal(t, PhaseAwaitingFirstPhrase, s.phase)

	events := s.reset()
	assert.Equal(t, []string{"main.evGameReset"}, eventTypes(events))
	assert.Equal(t, PhaseIdle, s.phase)
	assert.Empty(t, s.roster)
	assert.Empty(t, s.usedPhrases)
	assert.Empty(t, s.currentPhrase)
}

func TestSessionPreconditions(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		desc     string
		setup    func(s *Session)
		action   func(s *Session) error
		expected error
	}{
		{
			desc:  "open while already open",
			setup: func(s *Session) { mustOpen(s) },
			action: func(s *Session) error {
				_, err := s.open()
				return err
			},
			expected: errWrongPhase,
		},
		{
			desc:  "join before open",
			setup: func(s *Session) {},
			action: func(s *Session) error {
				_, err := s.addPlayer("p1", "An")
				return err
			},
			expected: errWrongPhase,
		},
		{
			desc: "duplicate join",
			setup: func(s *Session) {
				mustOpen(s)
				mustJoin(s, "p1", "An")
			},
			action: func(s *Session) error {
				_, err := s.addPlayer("p1", "An")
				return err
			},
			expected: errDuplicateJoin,
		},
		{
			desc: "begin with a single player",
			setup: func(s *Session) {
				mustOpen(s)
				mustJoin(s, "p1", "An")
			},
			action: func(s *Session) error {
				_, err := s.begin()
				return err
			},
			expected: errNotEnoughPlayers,
		},
		{
			desc:  "begin before open",
			setup: func(s *Session) {},
			action: func(s *Session) error {
				_, err := s.begin()
				return err
			},
			expected: errWrongPhase,
		},
		{
			desc:  "submit while idle",
			setup: func(s *Session) {},
			action: func(s *Session) error {
				_, err := s.submit("p1", "bầu trời")
				return err
			},
			expected: errWrongPhase,
		},
	}

	for _, tC := range testCases {
		t.Run(tC.desc, func(t *testing.T) {
			t.Parallel()
			s := newTestSession(t, nil)
			tC.setup(s)

			before := s.phase
			err := tC.action(s)

			assert.ErrorIs(t, err, tC.expected)
			assert.Equal(t, before, s.phase, "failed preconditions must not change state")
		})
	}
}

func mustOpen(s *Session) {
	if _, err := s.open(); err != nil {
		panic(err)
	}
}

func mustJoin(s *Session, id, name string) {
	if _, err := s.addPlayer(id, name); err != nil {
		panic(err)
	}
}

func TestSubmitFromNonActivePlayerIsRejected(t *testing.T) {
	t.Parallel()

	s := startedSession(t, "p1", "p2")

	_, err := s.submit("p2", "bầu trời")

	assert.ErrorIs(t, err, errNotYourTurn)
	assert.Equal(t, PhaseAwaitingFirstPhrase, s.phase)
	assert.Len(t, s.roster, 2)
}

// Scenario: first valid phrase sets the chain anchor and passes the turn.
func TestFirstPhraseStartsChain(t *testing.T) {
	t.Parallel()

	s := startedSession(t, "p1", "p2")

	events, err := s.submit("p1", "bầu trời")
	require.NoError(t, err)

	assert.Equal(t, "bầu trời", s.currentPhrase)
	assert.Equal(t, PhaseAwaitingChainPhrase, s.phase)
	assert.Equal(t, "p2", s.activePlayer().ID)

	require.Equal(t, []string{"main.evMoveAccepted", "main.evTurnPrompt"}, eventTypes(events))

	accepted := events[0].(evMoveAccepted)
	assert.Equal(t, "trời", accepted.anchor)
	assert.Equal(t, "p2", accepted.next.ID)

	prompt := events[1].(evTurnPrompt)
	assert.Equal(t, "p2", prompt.player.ID)
	assert.Equal(t, "trời", prompt.anchor)
}

// Scenario: a phrase that breaks the chain eliminates its author, and
// the sole survivor wins.
func TestBrokenChainEliminatesAndFinishes(t *testing.T) {
	t.Parallel()

	s := startedSession(t, "p1", "p2")

	_, err := s.submit("p1", "bầu trời")
	require.NoError(t, err)

	events, err := s.submit("p2", "mây đen")
	require.NoError(t, err)

	require.Equal(t, []string{"main.evPlayerEliminated", "main.evGameWon"}, eventTypes(events))

	eliminated := events[0].(evPlayerEliminated)
	assert.Equal(t, "p2", eliminated.player.ID)
	assert.Equal(t, ReasonBrokenChain, eliminated.reason)
	assert.Equal(t, 1, eliminated.remaining)

	won := events[1].(evGameWon)
	assert.Equal(t, "p1", won.winner.ID)
	assert.Equal(t, PhaseFinished, s.phase)
}

// Scenario: repeating a phrase eliminates the repeater.
func TestRepeatedPhraseEliminates(t *testing.T) {
	t.Parallel()

	s := startedSession(t, "p1", "p2", "p3")

	_, err := s.submit("p1", "bầu trời")
	require.NoError(t, err)
	_, err = s.submit("p2", "trời ơi")
	require.NoError(t, err)
	_, err = s.submit("p3", "ơi trời")
	require.NoError(t, err)

	events, err := s.submit("p1", "trời ơi")
	require.NoError(t, err)

	eliminated := events[0].(evPlayerEliminated)
	assert.Equal(t, "p1", eliminated.player.ID)
	assert.Equal(t, ReasonAlreadyUsed, eliminated.reason)
}

func TestUsedPhrasesGrowMonotonically(t *testing.T) {
	t.Parallel()

	s := startedSession(t, "p1", "p2", "p3")

	phrases := []struct {
		player string
		text   string
	}{
		{"p1", "bầu trời"},
		{"p2", "trời xanh"},
		{"p3", "xanh ngắt"},
	}

	seen := 0
	for _, move := range phrases {
		_, err := s.submit(move.player, move.text)
		require.NoError(t, err)
		assert.Greater(t, len(s.usedPhrases), seen)
		seen = len(s.usedPhrases)
	}
}

// Scenario: a stale timeout (generation moved on) is a no-op; the
// current one eliminates the active player exactly once.
func TestTimeoutGenerationGuard(t *testing.T) {
	t.Parallel()

	s := startedSession(t, "p1", "p2", "p3")

	stale := s.generation
	_, err := s.submit("p1", "bầu trời")
	require.NoError(t, err)

	assert.Nil(t, s.timeout(stale), "stale generation must not eliminate anyone")
	assert.Len(t, s.roster, 3)

	current := s.generation
	events := s.timeout(current)
	require.NotEmpty(t, events)

	eliminated := events[0].(evPlayerEliminated)
	assert.Equal(t, "p2", eliminated.player.ID)
	assert.Equal(t, ReasonTimeout, eliminated.reason)

	// The same firing delivered twice must not eliminate twice.
	assert.Nil(t, s.timeout(current))
	assert.Len(t, s.roster, 2)
}

func TestTimeoutNeverFiresForBot(t *testing.T) {
	t.Parallel()

	s := startedSession(t, botPlayerID, "p1")

	// The bot opened synchronously, so a human is on the clock; fake a
	// state where the bot appears active instead.
	s.turnIndex = s.playerIndex(botPlayerID)

	assert.Nil(t, s.timeout(s.generation))
	assert.Len(t, s.roster, 2)
}

// Scenario: the bot plays its turn synchronously, with no timer involved.
func TestBotPlaysSynchronously(t *testing.T) {
	t.Parallel()

	s := startedSession(t, "p1", botPlayerID)

	events, err := s.submit("p1", "bầu trời")
	require.NoError(t, err)

	require.Equal(t,
		[]string{"main.evMoveAccepted", "main.evMoveAccepted", "main.evTurnPrompt"},
		eventTypes(events))

	botMove := events[1].(evMoveAccepted)
	assert.Equal(t, botPlayerID, botMove.player.ID)
	assert.Equal(t, "trời", botMove.phrase[:len("trời")])

	prompt := events[2].(evTurnPrompt)
	assert.Equal(t, "p1", prompt.player.ID, "turn returns to the human after the bot move")
	assert.True(t, s.awaitingHuman())
}

func TestBotOpensWhenFirst(t *testing.T) {
	t.Parallel()

	s := newTestSession(t, nil)
	mustOpen(s)
	mustJoin(s, botPlayerID, botDisplayName)
	mustJoin(s, "p1", "An")

	events, err := s.begin()
	require.NoError(t, err)

	require.Equal(t,
		[]string{"main.evGameBegun", "main.evMoveAccepted", "main.evTurnPrompt"},
		eventTypes(events))

	opener := events[1].(evMoveAccepted)
	assert.Equal(t, botPlayerID, opener.player.ID)
	assert.Contains(t, botOpeners, opener.phrase)
	assert.Equal(t, PhaseAwaitingChainPhrase, s.phase)
}

func TestBotConcessionEliminatesBot(t *testing.T) {
	t.Parallel()

	s := startedSession(t, "p1", botPlayerID)

	// Burn every phrase the bot could build on the anchor "trời" so its
	// strategies fall through to the concession.
	for _, word := range botVocabulary {
		s.usedPhrases["trời "+word] = struct{}{}
	}

	events, err := s.submit("p1", "bầu trời")
	require.NoError(t, err)

	require.Equal(t,
		[]string{"main.evMoveAccepted", "main.evPlayerEliminated", "main.evGameWon"},
		eventTypes(events))

	eliminated := events[1].(evPlayerEliminated)
	assert.Equal(t, botPlayerID, eliminated.player.ID)
	assert.Equal(t, ReasonBotConceded, eliminated.reason)

	won := events[2].(evGameWon)
	assert.Equal(t, "p1", won.winner.ID)
}

func TestEliminateRepairsTurnIndex(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		desc          string
		rosterSize    int
		turnIndex     int
		eliminate     int
		expectedIndex int
	}{
		{desc: "before active", rosterSize: 4, turnIndex: 2, eliminate: 0, expectedIndex: 1},
		{desc: "active mid-roster", rosterSize: 4, turnIndex: 1, eliminate: 1, expectedIndex: 1},
		{desc: "active at tail wraps", rosterSize: 4, turnIndex: 3, eliminate: 3, expectedIndex: 0},
		{desc: "after active", rosterSize: 4, turnIndex: 1, eliminate: 3, expectedIndex: 1},
	}

	for _, tC := range testCases {
		t.Run(tC.desc, func(t *testing.T) {
			t.Parallel()

			s := newTestSession(t, nil)
			mustOpen(s)
			for i := range tC.rosterSize {
				mustJoin(s, fmt.Sprintf("p%d", i), fmt.Sprintf("P%d", i))
			}
			_, err := s.begin()
			require.NoError(t, err)

			s.phase = PhaseAwaitingChainPhrase
			s.turnIndex = tC.turnIndex
			victim := s.roster[tC.eliminate].ID

			s.eliminate(victim, ReasonTimeout, nil)

			assert.Equal(t, tC.expectedIndex, s.turnIndex)
			assert.Less(t, s.turnIndex, len(s.roster))
			assert.Equal(t, -1, s.playerIndex(victim), "eliminated id must leave the roster")
		})
	}
}

// Property: the turn index stays valid through arbitrary eliminations.
func TestTurnIndexAlwaysValid(t *testing.T) {
	t.Parallel()

	for size := 2; size <= 6; size++ {
		for turn := range size {
			for victim := range size {
				s := newTestSession(t, nil)
				mustOpen(s)
				for i := range size {
					mustJoin(s, fmt.Sprintf("p%d", i), fmt.Sprintf("P%d", i))
				}
				_, err := s.begin()
				require.NoError(t, err)

				s.phase = PhaseAwaitingChainPhrase
				s.turnIndex = turn
				s.eliminate(s.roster[victim].ID, ReasonTimeout, nil)

				if len(s.roster) > 0 {
					assert.Less(t, s.turnIndex, len(s.roster),
						"size=%d turn=%d victim=%d", size, turn, victim)
				}
			}
		}
	}
}

func TestDictionaryLookupEliminatesUnknownPhrases(t *testing.T) {
	t.Parallel()

	lookup := func(phrase string) bool { return phrase == "bầu trời" }

	s := newSession(newValidator(defaultBannedWords), 2, lookup)
	mustOpen(s)
	mustJoin(s, "p1", "An")
	mustJoin(s, "p2", "Bình")
	_, err := s.begin()
	require.NoError(t, err)

	_, err = s.submit("p1", "bầu trời")
	require.NoError(t, err)
	assert.Len(t, s.roster, 2, "known phrase must be accepted")

	events, err := s.submit("p2", "trời cao")
	require.NoError(t, err)

	eliminated := events[0].(evPlayerEliminated)
	assert.Equal(t, "p2", eliminated.player.ID)
	assert.Equal(t, ReasonUnknownPhrase, eliminated.reason)
}

func TestResetClearsEverythingAfterWin(t *testing.T) {
	t.Parallel()

	s := startedSession(t, "p1", "p2")

	_, err := s.submit("p1", "bầu trời")
	require.NoError(t, err)
	_, err = s.submit("p2", "mây đen")
	require.NoError(t, err)
	require.Equal(t, PhaseFinished, s.phase)

	s.reset()

	assert.Equal(t, PhaseIdle, s.phase)
	assert.Empty(t, s.roster)
	assert.Empty(t, s.currentPhrase)
	assert.Empty(t, s.usedPhrases)
	assert.Zero(t, s.turnIndex)
}

func TestOpenAllowedAfterFinish(t *testing.T) {
	t.Parallel()

	s := startedSession(t, "p1", "p2")

	_, err := s.submit("p1", "bầu trời")
	require.NoError(t, err)
	_, err = s.submit("p2", "mây đen")
	require.NoError(t, err)
	require.Equal(t, PhaseFinished, s.phase)

	_, err = s.open()
	require.NoError(t, err)
	assert.Equal(t, PhaseOpen, s.phase)
	assert.Empty(t, s.roster)
}
