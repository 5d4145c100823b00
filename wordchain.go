// Wordchain ("nối chữ") game
//
// Players take turns submitting two-word Vietnamese phrases. Each
// phrase must begin with the last word of the previous one; a phrase
// that is malformed, non-Vietnamese, banned, off-chain, already used,
// or late eliminates its author, and the last participant standing
// wins. An optional bot opponent plays its own turns.
//
// Features:
// - WebSockets per game ID: /wordchain/:gameid and /wordchain/:gameid/ws
// - Players identified by cookie (playerID)
// - One session actor per game; all mutations serialized on its goroutine
// - Per-turn countdown with a generation token guarding stale timers
// - Bot opponent: learned continuations, templated candidates, concession
// - Persistent win leaderboard, queryable from any room
// - Games auto-reaped after configurable idle timeout
// - Random 8-char game IDs via crypto/rand, with server-side collision check
// - In-browser QR button to share the current session, backed by go-qrcode

package main

import (
	"crypto/rand"
	_ "embed"
	"encoding/hex"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
	"github.com/skip2/go-qrcode"
	"golang.org/x/time/rate"
)

// Messages coming from clients
type ClientMessage struct {
	Type string `json:"type"`           // "start", "join", "botplay", "begin", "submit", "reset", "leaderboard"
	Name string `json:"name,omitempty"` // join
	Text string `json:"text,omitempty"` // submit
}

// SessionInfoMessage is sent immediately on connect so the client knows
// the current room state and whether this cookie already joined.
type SessionInfoMessage struct {
	Type    string   `json:"type"` // "session_info"
	Phase   string   `json:"phase"`
	Players []string `json:"players"`
	Anchor  string   `json:"anchor,omitempty"`
	Active  string   `json:"active,omitempty"`
	Joined  bool     `json:"joined"`
}

type GameOpenedMessage struct {
	Type string `json:"type"` // "game_opened"
}

type PlayerJoinedMessage struct {
	Type   string `json:"type"` // "player_joined"
	Player string `json:"player"`
	Count  int    `json:"count"`
}

type GameBegunMessage struct {
	Type string `json:"type"` // "game_begun"
}

// TurnPromptMessage tells everyone whose turn it is. The client counts
// the deadline down locally; the server timer stays authoritative.
type TurnPromptMessage struct {
	Type           string `json:"type"` // "turn_prompt"
	Player         string `json:"player"`
	Anchor         string `json:"anchor,omitempty"`
	DeadlineMillis int64  `json:"deadline_ms"`
	Generation     uint64 `json:"generation"`
}

type MoveAcceptedMessage struct {
	Type   string `json:"type"` // "move_accepted"
	Player string `json:"player"`
	Phrase string `json:"phrase"`
	Anchor string `json:"anchor"`
	Next   string `json:"next"`
}

type PlayerEliminatedMessage struct {
	Type      string `json:"type"` // "player_eliminated"
	Player    string `json:"player"`
	Reason    string `json:"reason"`
	Remaining int    `json:"remaining"`
}

type GameWonMessage struct {
	Type   string `json:"type"` // "game_won"
	Winner string `json:"winner"`
}

type GameResetMessage struct {
	Type string `json:"type"` // "game_reset"
}

// CommandRejectedMessage is sent only to the client whose command
// failed a precondition; the game state is untouched.
type CommandRejectedMessage struct {
	Type   string `json:"type"` // "command_rejected"
	Reason string `json:"reason"`
}

type LeaderboardMessage struct {
	Type    string     `json:"type"` // "leaderboard"
	Entries []WinEntry `json:"entries"`
}

type Client struct {
	conn     *websocket.Conn
	send     chan any
	playerID string
	limiter  *rate.Limiter
}

type command struct {
	client *Client
	msg    ClientMessage
}

type timeoutEvent struct {
	generation uint64
}

// Hub owns one game session. The run goroutine is the only place that
// touches the session, so every mutation path (submission, timeout,
// chained bot turns) runs to completion before the next one starts.
type Hub struct {
	id      string
	clients map[*Client]bool
	session *Session
	wins    *WinStore

	register chan *Client
	unreg    chan *Client
	commands chan command
	timeouts chan timeoutEvent
	shutdown chan struct{}

	// turn timer; owned by the run goroutine
	timer *time.Timer

	mu         sync.RWMutex
	createdAt  time.Time
	lastActive time.Time
}

func newHub(cfg *Config, gameID string, validator *Validator, wins *WinStore, dict *Dictionary) *Hub {
	var lookup func(string) bool
	if dict != nil {
		lookup = func(phrase string) bool {
			return dict.contains(cfg, phrase)
		}
	}

	now := time.Now()
	return &Hub{
		id:         gameID,
		clients:    make(map[*Client]bool),
		session:    newSession(validator, cfg.minPlayers, lookup),
		wins:       wins,
		register:   make(chan *Client),
		unreg:      make(chan *Client),
		commands:   make(chan command),
		timeouts:   make(chan timeoutEvent, 4),
		shutdown:   make(chan struct{}),
		createdAt:  now,
		lastActive: now,
	}
}

func (h *Hub) touch() {
	h.mu.Lock()
	h.lastActive = time.Now()
	h.mu.Unlock()
}

func (h *Hub) run(cfg *Config) {
	for {
		select {
		case c := <-h.register:
			h.touch()
			h.clients[c] = true
			h.sendTo(c, h.sessionInfo(c))

		case c := <-h.unreg:
			h.touch()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			// Disconnecting does not remove a player from the roster;
			// an absent player is eliminated by the turn timer instead.

		case cmd := <-h.commands:
			h.handleCommand(cfg, cmd)

		case ev := <-h.timeouts:
			h.handleTimeout(cfg, ev)

		case <-h.shutdown:
			if h.timer != nil {
				h.timer.Stop()
			}
			for c := range h.clients {
				close(c.send)
				if c.conn != nil {
					_ = c.conn.Close()
				}
				delete(h.clients, c)
			}
			return
		}
	}
}

func (h *Hub) sessionInfo(c *Client) SessionInfoMessage {
	s := h.session

	players := make([]string, 0, len(s.roster))
	for _, p := range s.roster {
		players = append(players, p.Name)
	}

	info := SessionInfoMessage{
		Type:    "session_info",
		Phase:   s.phase.String(),
		Players: players,
		Joined:  s.playerIndex(c.playerID) >= 0,
	}
	if s.awaitingPhrase() && len(s.roster) > 0 {
		info.Anchor = lastToken(s.currentPhrase)
		info.Active = s.activePlayer().Name
	}
	return info
}

func (h *Hub) handleCommand(cfg *Config, cmd command) {
	h.touch()
	c := cmd.client

	var events []any
	var err error

	switch cmd.msg.Type {
	case "start":
		events, err = h.session.open()

	case "join":
		name := strings.TrimSpace(cmd.msg.Name)
		if name == "" || c.playerID == "" {
			return
		}
		events, err = h.session.addPlayer(c.playerID, name)
		if err == nil {
			logf(cfg, "GAMES: Player %q joined %s", name, h.id)
		}

	case "botplay":
		events, err = h.session.addPlayer(botPlayerID, botDisplayName)

	case "begin":
		events, err = h.session.begin()

	case "submit":
		events, err = h.session.submit(c.playerID, cmd.msg.Text)

	case "reset":
		events = h.session.reset()

	case "leaderboard":
		h.sendLeaderboard(cfg, c)
		return

	default:
		// ignore unknown types
		return
	}

	if err != nil {
		h.sendTo(c, CommandRejectedMessage{
			Type:   "command_rejected",
			Reason: err.Error(),
		})
		return
	}

	h.dispatch(cfg, events)
	h.rearmTimer(cfg)
}

// handleTimeout runs a turn-timer firing through the session. The
// generation comparison happens inside the session, so a deadline that
// lost the race against a submission turns into a no-op here.
func (h *Hub) handleTimeout(cfg *Config, ev timeoutEvent) {
	events := h.session.timeout(ev.generation)
	if len(events) == 0 {
		return
	}

	h.touch()
	logf(cfg, "GAME: Turn timed out in %s", h.id)
	h.dispatch(cfg, events)
	h.rearmTimer(cfg)
}

// rearmTimer enforces the one-outstanding-timer invariant: starting a
// new countdown always cancels the previous one, and no timer runs
// unless a human is on the clock.
func (h *Hub) rearmTimer(cfg *Config) {
	if h.timer != nil {
		h.timer.Stop()
		h.timer = nil
	}

	if !h.session.awaitingHuman() {
		return
	}

	generation := h.session.generation
	h.timer = time.AfterFunc(cfg.turnTimeout, func() {
		select {
		case h.timeouts <- timeoutEvent{generation: generation}:
		default:
		}
	})
}

func (h *Hub) dispatch(cfg *Config, events []any) {
	for _, event := range events {
		switch ev := event.(type) {
		case evGameOpened:
			h.broadcast(GameOpenedMessage{Type: "game_opened"})

		case evPlayerJoined:
			h.broadcast(PlayerJoinedMessage{
				Type:   "player_joined",
				Player: ev.player.Name,
				Count:  ev.count,
			})

		case evGameBegun:
			logf(cfg, "GAME: Game begun in %s with %d players", h.id, len(h.session.roster))
			h.broadcast(GameBegunMessage{Type: "game_begun"})

		case evMoveAccepted:
			h.broadcast(MoveAcceptedMessage{
				Type:   "move_accepted",
				Player: ev.player.Name,
				Phrase: ev.phrase,
				Anchor: ev.anchor,
				Next:   ev.next.Name,
			})

		case evTurnPrompt:
			h.broadcast(TurnPromptMessage{
				Type:           "turn_prompt",
				Player:         ev.player.Name,
				Anchor:         ev.anchor,
				DeadlineMillis: cfg.turnTimeout.Milliseconds(),
				Generation:     ev.generation,
			})

		case evPlayerEliminated:
			logf(cfg, "GAME: Player %q eliminated in %s (%s)", ev.player.Name, h.id, ev.reason)
			h.broadcast(PlayerEliminatedMessage{
				Type:      "player_eliminated",
				Player:    ev.player.Name,
				Reason:    string(ev.reason),
				Remaining: ev.remaining,
			})

		case evGameWon:
			logf(cfg, "GAME: Player %q won in %s", ev.winner.Name, h.id)
			h.broadcast(GameWonMessage{
				Type:   "game_won",
				Winner: ev.winner.Name,
			})
			h.recordWin(cfg, ev.winner)

		case evGameReset:
			h.broadcast(GameResetMessage{Type: "game_reset"})
		}
	}

	// A finished game clears itself, matching the original behavior of
	// returning straight to idle after announcing the winner.
	if h.session.phase == PhaseFinished {
		h.dispatch(cfg, h.session.reset())
	}
}

// recordWin bumps the persistent tally. Store failures are logged and
// never block or corrupt the game.
func (h *Hub) recordWin(cfg *Config, winner SessionPlayer) {
	if h.wins == nil || winner.ID == botPlayerID {
		return
	}
	if err := h.wins.Increment(winner.Name); err != nil {
		logf(cfg, "GAME: Failed to record win for %q: %v", winner.Name, err)
	}
}

func (h *Hub) sendLeaderboard(cfg *Config, c *Client) {
	if h.wins == nil {
		h.sendTo(c, CommandRejectedMessage{Type: "command_rejected", Reason: "leaderboard_unavailable"})
		return
	}

	entries, err := h.wins.TopN(cfg.leaderboardSize)
	if err != nil {
		logf(cfg, "GAME: Leaderboard query failed: %v", err)
		h.sendTo(c, CommandRejectedMessage{Type: "command_rejected", Reason: "leaderboard_unavailable"})
		return
	}
	if entries == nil {
		entries = []WinEntry{}
	}

	h.sendTo(c, LeaderboardMessage{Type: "leaderboard", Entries: entries})
}

func (h *Hub) sendTo(c *Client, msg any) {
	select {
	case c.send <- msg:
	default:
		delete(h.clients, c)
		close(c.send)
	}
}

func (h *Hub) broadcast(msg any) {
	for client := range h.clients {
		select {
		case client.send <- msg:
		default:
			delete(h.clients, client)
			close(client.send)
		}
	}
}

// closeAll ends the hub (used by the reaper): the run goroutine
// disconnects every client, stops any pending turn timer, and exits.
// The cleanup happens on the actor so nothing races command dispatch.
// Must not be called twice for the same hub.
func (h *Hub) closeAll() {
	close(h.shutdown)
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

const playerCookieName = "wordchain_id"

func getOrSetPlayerID(w http.ResponseWriter, r *http.Request) string {
	if c, err := r.Cookie(playerCookieName); err == nil && c.Value != "" {
		return c.Value
	}

	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		log.Println("rand.Read error:", err)
		return ""
	}
	id := hex.EncodeToString(buf)

	http.SetCookie(w, &http.Cookie{
		Name:     playerCookieName,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	return id
}

// GameManager holds a set of hubs keyed by game ID, so each $path/$gameid
// is its own isolated session with no shared mutable state between rooms.
type GameManager struct {
	mu          sync.Mutex
	hubs        map[string]*Hub
	idleTimeout time.Duration

	validator *Validator
	wins      *WinStore
	dict      *Dictionary
}

func newGameManager(idleTimeout time.Duration, validator *Validator, wins *WinStore, dict *Dictionary) *GameManager {
	gm := &GameManager{
		hubs:        make(map[string]*Hub),
		idleTimeout: idleTimeout,
		validator:   validator,
		wins:        wins,
		dict:        dict,
	}
	if idleTimeout > 0 {
		go gm.reaperLoop()
	}
	return gm
}

func (gm *GameManager) getHub(cfg *Config, gameID string) *Hub {
	gm.mu.Lock()
	defer gm.mu.Unlock()

	if hub, ok := gm.hubs[gameID]; ok {
		return hub
	}

	hub := newHub(cfg, gameID, gm.validator, gm.wins, gm.dict)
	gm.hubs[gameID] = hub
	go hub.run(cfg)
	return hub
}

// newGameID generates a crypto-random game ID and ensures it doesn't
// collide with existing games.
func (gm *GameManager) newGameID() string {
	const letters = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
	for {
		buf := make([]byte, 8)
		if _, err := rand.Read(buf); err != nil {
			panic("crypto/rand failure: " + err.Error())
		}
		out := make([]byte, 8)
		for i := range out {
			out[i] = letters[int(buf[i])%len(letters)]
		}
		id := string(out)

		gm.mu.Lock()
		_, exists := gm.hubs[id]
		gm.mu.Unlock()

		if !exists {
			return id
		}
	}
}

// reaperLoop periodically removes hubs that have been idle longer than idleTimeout.
func (gm *GameManager) reaperLoop() {
	ticker := time.NewTicker(gm.idleTimeout / 2)
	for range ticker.C {
		cutoff := time.Now().Add(-gm.idleTimeout)

		gm.mu.Lock()
		for id, hub := range gm.hubs {
			hub.mu.RLock()
			last := hub.lastActive
			hub.mu.RUnlock()

			if last.Before(cutoff) {
				delete(gm.hubs, id)
				hub.closeAll()
			}
		}
		gm.mu.Unlock()
	}
}

// WebSocket handler that picks the hub based on :gameid
func serveWSForManager(cfg *Config, gm *GameManager) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		gameID := ps.ByName("gameid")
		if gameID == "" {
			http.Error(w, "missing game id", http.StatusBadRequest)
			return
		}

		playerID := getOrSetPlayerID(w, r)
		if playerID == "" {
			http.Error(w, "unable to assign player id", http.StatusInternalServerError)
			return
		}

		hub := gm.getHub(cfg, gameID)

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Println("upgrade error:", err)
			return
		}

		client := &Client{
			conn:     conn,
			send:     make(chan any, 8),
			playerID: playerID,
			limiter:  rate.NewLimiter(rate.Every(200*time.Millisecond), 5),
		}

		select {
		case hub.register <- client:
		case <-hub.shutdown:
			_ = conn.Close()
			return
		}

		go client.writePump()
		client.readPump(hub)
	}
}

func (c *Client) readPump(h *Hub) {
	defer func() {
		select {
		case h.unreg <- c:
		case <-h.shutdown:
		}
		_ = c.conn.Close()
	}()

	for {
		var msg ClientMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			return
		}

		// Drop floods instead of queueing them against the hub.
		if !c.limiter.Allow() {
			continue
		}

		h.commands <- command{
			client: c,
			msg:    msg,
		}
	}
}

func (c *Client) writePump() {
	defer c.conn.Close()

	for msg := range c.send {
		if err := c.conn.WriteJSON(msg); err != nil {
			return
		}
	}
}

// QR handler: generates a PNG QR code for the current game URL using go-qrcode.
func qrHandler(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	gameID := ps.ByName("gameid")
	if gameID == "" {
		http.Error(w, "missing game id", http.StatusBadRequest)
		return
	}

	// Derive scheme (respecting TLS and X-Forwarded-Proto if present).
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = proto
	}

	// We are at /.../:gameid/qr; strip trailing "/qr" to get the game URL.
	path := strings.TrimSuffix(r.URL.Path, "/qr")

	url := scheme + "://" + r.Host + path

	const qrSize = 320 // mobile-friendly size
	png, err := qrcode.Encode(url, qrcode.Medium, qrSize)
	if err != nil {
		http.Error(w, "qr generation failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	_, _ = w.Write(png)
}

// ---- Static file paths ----

//go:embed wordchain/index.html
var indexHTML []byte

//go:embed wordchain/app.css
var wordchainCSS []byte

//go:embed wordchain/app.js
var wordchainJS []byte

func getIndexHandler(cfg *Config) func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("Cache-Control", "public, max-age=3600")
		w.Header().Set("Expires", time.Now().Add(time.Hour).UTC().Format(http.TimeFormat))
		securityHeaders(cfg, w)

		_ = getOrSetPlayerID(w, r)

		_, _ = w.Write(indexHTML)
	}
}

func getCssHandler(cfg *Config) func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		w.Header().Set("Content-Type", "text/css; charset=utf-8")
		w.Header().Set("Cache-Control", "public, max-age=3600")
		w.Header().Set("Expires", time.Now().Add(time.Hour).UTC().Format(http.TimeFormat))
		securityHeaders(cfg, w)

		_, _ = w.Write(wordchainCSS)
	}
}

func getJsHandler(cfg *Config) func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		w.Header().Set("Content-Type", "application/javascript; charset=utf-8")
		w.Header().Set("Cache-Control", "public, max-age=3600")
		w.Header().Set("Expires", time.Now().Add(time.Hour).UTC().Format(http.TimeFormat))
		securityHeaders(cfg, w)

		_, _ = w.Write(wordchainJS)
	}
}

// redirectNewGame handles GET /path by generating a new random game ID
// (with server-side collision detection) and redirecting to /path/:gameid.
func redirectNewGame(cfg *Config, path string, gm *GameManager) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		gameID := gm.newGameID()
		logf(cfg, "GAMES: Created game %s/%s", path, gameID)
		http.Redirect(w, r, cfg.prefix+path+"/"+gameID, http.StatusTemporaryRedirect)
	}
}

// registerWordchainGame sets up routes so that:
//   - $path                  → redirects to new random game (8-char ID)
//   - $path/:gameid          → HTML client
//   - $path/:gameid/ws       → WebSocket for that game
//   - $path/:gameid/qr       → PNG QR code for that game URL
func registerWordchainGame(cfg *Config, path string, mux *httprouter.Router, validator *Validator, wins *WinStore, dict *Dictionary) {
	gm := newGameManager(cfg.sessionTimeout, validator, wins, dict)

	// Root path → redirect to new random game
	mux.GET(cfg.prefix+path, redirectNewGame(cfg, path, gm))

	// Per-game client view (HTML)
	mux.GET(cfg.prefix+path+"/:gameid", getIndexHandler(cfg))

	// Shared assets (no gameid in route)
	mux.GET(cfg.prefix+"/assets/wordchain/app.css", getCssHandler(cfg))
	mux.GET(cfg.prefix+"/assets/wordchain/app.js", getJsHandler(cfg))

	// Per-game websocket
	mux.GET(cfg.prefix+path+"/:gameid/ws", serveWSForManager(cfg, gm))

	// Per-game QR code
	mux.GET(cfg.prefix+path+"/:gameid/qr", qrHandler)
}
