package main

import "errors"

// Phase is the lifecycle state of a game session.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseOpen
	PhaseAwaitingFirstPhrase
	PhaseAwaitingChainPhrase
	PhaseFinished
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseOpen:
		return "open"
	case PhaseAwaitingFirstPhrase:
		return "awaiting_first_phrase"
	case PhaseAwaitingChainPhrase:
		return "awaiting_chain_phrase"
	case PhaseFinished:
		return "finished"
	default:
		return "unknown"
	}
}

// Precondition failures. These reject the command without touching any
// game state; they never eliminate anybody.
var (
	errWrongPhase       = errors.New("wrong_phase")
	errDuplicateJoin    = errors.New("duplicate_join")
	errNotEnoughPlayers = errors.New("not_enough_players")
	errNotYourTurn      = errors.New("not_your_turn")
)

// SessionPlayer is one roster entry. Identity is the ID; the display
// name is cached at join time.
type SessionPlayer struct {
	ID   string
	Name string
}

// Events returned by session mutations, in emission order. The hub maps
// them onto outbound messages and side effects.
type evGameOpened struct{}

type evPlayerJoined struct {
	player SessionPlayer
	count  int
}

type evGameBegun struct{}

type evMoveAccepted struct {
	player SessionPlayer
	phrase string
	anchor string
	next   SessionPlayer
}

type evTurnPrompt struct {
	player     SessionPlayer
	anchor     string
	generation uint64
}

type evPlayerEliminated struct {
	player    SessionPlayer
	reason    Reason
	remaining int
}

type evGameWon struct {
	winner SessionPlayer
}

type evGameReset struct{}

// Session is the word-chaining state machine for one room. It is not
// safe for concurrent use: the owning hub serializes every mutation on
// its run goroutine, so each mutation path runs to completion
// (including chained bot turns) before the next one starts.
type Session struct {
	validator  *Validator
	bot        *Bot
	minPlayers int

	// lookup is the optional phrase-existence check. It runs after the
	// pure pipeline accepts a human phrase and before any state
	// mutation; nil disables it. Bot moves are never looked up.
	lookup func(phrase string) bool

	phase         Phase
	roster        []SessionPlayer
	turnIndex     int
	currentPhrase string
	usedPhrases   map[string]struct{}
	generation    uint64
}

func newSession(validator *Validator, minPlayers int, lookup func(string) bool) *Session {
	return &Session{
		validator:   validator,
		bot:         newBot(),
		minPlayers:  minPlayers,
		lookup:      lookup,
		phase:       PhaseIdle,
		usedPhrases: make(map[string]struct{}),
	}
}

// activePlayer is only meaningful while the roster is non-empty.
func (s *Session) activePlayer() SessionPlayer {
	return s.roster[s.turnIndex]
}

func (s *Session) awaitingPhrase() bool {
	return s.phase == PhaseAwaitingFirstPhrase || s.phase == PhaseAwaitingChainPhrase
}

// awaitingHuman reports whether a human player is currently on the
// clock. Bot turns are synchronous and never wait on a timer.
func (s *Session) awaitingHuman() bool {
	return s.awaitingPhrase() && len(s.roster) > 0 && s.activePlayer().ID != botPlayerID
}

func (s *Session) playerIndex(id string) int {
	for i, p := range s.roster {
		if p.ID == id {
			return i
		}
	}
	return -1
}

// reset returns the session to idle and clears all game data.
func (s *Session) reset() []any {
	s.phase = PhaseIdle
	s.roster = nil
	s.turnIndex = 0
	s.currentPhrase = ""
	s.usedPhrases = make(map[string]struct{})
	s.generation++
	s.bot.forget()
	return []any{evGameReset{}}
}

// open starts a fresh lobby. Allowed from idle or after a finished game.
func (s *Session) open() ([]any, error) {
	if s.phase != PhaseIdle && s.phase != PhaseFinished {
		return nil, errWrongPhase
	}
	events := s.reset()
	s.phase = PhaseOpen
	return append(events, evGameOpened{}), nil
}

// addPlayer appends a player to the roster during the lobby phase.
func (s *Session) addPlayer(id, name string) ([]any, error) {
	if s.phase != PhaseOpen {
		return nil, errWrongPhase
	}
	if s.playerIndex(id) >= 0 {
		return nil, errDuplicateJoin
	}
	s.roster = append(s.roster, SessionPlayer{ID: id, Name: name})
	return []any{evPlayerJoined{player: SessionPlayer{ID: id, Name: name}, count: len(s.roster)}}, nil
}

// begin closes the lobby and waits for the first phrase.
func (s *Session) begin() ([]any, error) {
	if s.phase != PhaseOpen {
		return nil, errWrongPhase
	}
	if len(s.roster) < s.minPlayers {
		return nil, errNotEnoughPlayers
	}
	s.phase = PhaseAwaitingFirstPhrase
	s.turnIndex = 0
	s.generation++
	events := []any{evGameBegun{}}
	return s.advanceTurn(events), nil
}

// submit plays raw text on behalf of playerID. Submissions outside an
// awaiting phase or from a non-active player are rejected without any
// state change. Any failed validation check eliminates the submitter;
// a rule violation is never a retry opportunity.
func (s *Session) submit(playerID, raw string) ([]any, error) {
	if !s.awaitingPhrase() {
		return nil, errWrongPhase
	}
	if len(s.roster) == 0 {
		// Unreachable unless an invariant broke; recover by resetting.
		return s.reset(), nil
	}
	if s.activePlayer().ID != playerID {
		return nil, errNotYourTurn
	}

	phrase, reason := s.validator.validate(raw, phraseContext{
		currentPhrase: s.currentPhrase,
		usedPhrases:   s.usedPhrases,
		isFirstPhrase: s.phase == PhaseAwaitingFirstPhrase,
	})
	if reason == ReasonNone && s.lookup != nil && !s.lookup(phrase) {
		reason = ReasonUnknownPhrase
	}
	if reason != ReasonNone {
		events := s.eliminate(s.activePlayer().ID, reason, nil)
		return s.advanceTurn(events), nil
	}

	s.bot.observe(phrase)
	events := s.accept(phrase)
	return s.advanceTurn(events), nil
}

// timeout handles a turn timer firing. The generation tag was recorded
// when the timer was started; if the session has moved on since then
// the event is stale and dropped, which is what makes the race between
// a deadline and a just-accepted submission harmless.
func (s *Session) timeout(generation uint64) []any {
	if generation != s.generation || !s.awaitingPhrase() || len(s.roster) == 0 {
		return nil
	}
	if s.activePlayer().ID == botPlayerID {
		return nil
	}
	events := s.eliminate(s.activePlayer().ID, ReasonTimeout, nil)
	return s.advanceTurn(events)
}

// accept records a validated phrase and passes the turn to the next
// roster entry.
func (s *Session) accept(phrase string) []any {
	player := s.activePlayer()
	s.currentPhrase = phrase
	s.usedPhrases[phrase] = struct{}{}
	s.turnIndex = (s.turnIndex + 1) % len(s.roster)
	s.generation++
	s.phase = PhaseAwaitingChainPhrase

	return []any{evMoveAccepted{
		player: player,
		phrase: phrase,
		anchor: lastToken(phrase),
		next:   s.activePlayer(),
	}}
}

// eliminate removes a player from the roster, repairs the turn index,
// and finishes the game once a single entry remains. Survivor order is
// preserved.
func (s *Session) eliminate(playerID string, reason Reason, events []any) []any {
	index := s.playerIndex(playerID)
	if index < 0 {
		return events
	}
	player := s.roster[index]
	s.roster = append(s.roster[:index], s.roster[index+1:]...)

	switch {
	case index < s.turnIndex:
		s.turnIndex--
	case index == s.turnIndex && s.turnIndex >= len(s.roster):
		s.turnIndex = 0
	}
	s.generation++

	events = append(events, evPlayerEliminated{
		player:    player,
		reason:    reason,
		remaining: len(s.roster),
	})

	if len(s.roster) == 1 {
		s.phase = PhaseFinished
		events = append(events, evGameWon{winner: s.roster[0]})
	}

	return events
}

// advanceTurn plays any pending bot turns and prompts the next human.
// Bot turns run as a loop bounded by the roster size instead of
// recursing; each pass either hands the turn to a human, eliminates the
// bot, or finishes the game.
func (s *Session) advanceTurn(events []any) []any {
	for range len(s.roster) {
		if !s.awaitingPhrase() || len(s.roster) == 0 || s.activePlayer().ID != botPlayerID {
			break
		}

		var lastWord string
		if s.phase == PhaseAwaitingChainPhrase {
			lastWord = lastToken(s.currentPhrase)
		}

		phrase, conceded := s.bot.nextMove(lastWord, s.usedPhrases)
		if conceded {
			events = s.eliminate(botPlayerID, ReasonBotConceded, events)
			continue
		}

		validated, reason := s.validator.validate(phrase, phraseContext{
			currentPhrase: s.currentPhrase,
			usedPhrases:   s.usedPhrases,
			isFirstPhrase: s.phase == PhaseAwaitingFirstPhrase,
		})
		if reason != ReasonNone {
			events = s.eliminate(botPlayerID, reason, events)
			continue
		}

		events = append(events, s.accept(validated)...)
	}

	if s.awaitingHuman() {
		events = append(events, evTurnPrompt{
			player:     s.activePlayer(),
			anchor:     lastToken(s.currentPhrase),
			generation: s.generation,
		})
	}

	return events
}
