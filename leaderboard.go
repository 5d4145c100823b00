package main

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"sort"
	"time"

	"go.etcd.io/bbolt"
)

const winsBucket = "wins"

// WinEntry is one leaderboard row.
type WinEntry struct {
	Player   string `json:"player"`
	Wins     int    `json:"wins"`
	FirstWin int64  `json:"first_win"`
}

// WinStore persists the win tally across restarts. Records are keyed by
// player display name so standings survive cookie churn between visits.
type WinStore struct {
	db *bbolt.DB
}

func openWinStore(path string) (*WinStore, error) {
	db, err := bbolt.Open(filepath.Clean(path), 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open win store: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(winsBucket))
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("prepare win store: %w", err)
	}

	return &WinStore{db: db}, nil
}

func (ws *WinStore) Close() error {
	if ws == nil || ws.db == nil {
		return nil
	}
	return ws.db.Close()
}

// Increment adds one win for the named player, recording the time of
// their first win for tie-breaking.
func (ws *WinStore) Increment(player string) error {
	if player == "" {
		return fmt.Errorf("player name is required")
	}

	return ws.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(winsBucket))
		if bucket == nil {
			return fmt.Errorf("wins bucket is missing")
		}

		entry := WinEntry{Player: player, FirstWin: time.Now().UnixNano()}
		if data := bucket.Get([]byte(player)); data != nil {
			if err := json.Unmarshal(data, &entry); err != nil {
				return fmt.Errorf("unmarshal win record: %w", err)
			}
		}
		entry.Wins++

		data, err := json.Marshal(entry)
		if err != nil {
			return fmt.Errorf("marshal win record: %w", err)
		}
		return bucket.Put([]byte(player), data)
	})
}

// TopN returns up to n entries ordered by win count, ties broken by
// whoever recorded their first win earlier.
func (ws *WinStore) TopN(n int) ([]WinEntry, error) {
	var entries []WinEntry

	err := ws.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(winsBucket))
		if bucket == nil {
			return fmt.Errorf("wins bucket is missing")
		}
		return bucket.ForEach(func(_, data []byte) error {
			var entry WinEntry
			if err := json.Unmarshal(data, &entry); err != nil {
				return fmt.Errorf("unmarshal win record: %w", err)
			}
			entries = append(entries, entry)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].Wins != entries[j].Wins {
			return entries[i].Wins > entries[j].Wins
		}
		return entries[i].FirstWin < entries[j].FirstWin
	})

	if len(entries) > n {
		entries = entries[:n]
	}
	return entries, nil
}
