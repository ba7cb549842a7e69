// Package adminstore keeps the small mutable operator state: the admin
// allowlist and the main channel the bot posts to. Both survive
// restarts through a JSON file in the data dir; config-seeded admins
// are merged in at startup and can never be removed at runtime.
package adminstore

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"sync"

	logx "postbot/pkg/logx"
)

type state struct {
	Admins    []int64 `json:"admins"`
	ChannelID int64   `json:"channelId,omitempty"`
}

// Store is the authorization and channel registry consulted by the
// command layer. In-memory state is authoritative; the file is a
// best-effort mirror written asynchronously on every mutation.
type Store struct {
	mu      sync.Mutex
	admins  map[int64]bool
	seeded  map[int64]bool // from config; immutable at runtime
	channel int64

	path string
	log  logx.Logger
	io   sync.Mutex // serializes file writes
	wg   sync.WaitGroup
}

// Open loads the persisted state (a missing or broken file starts
// empty) and merges in the config-seeded admin ids and channel.
func Open(path string, seedAdmins []int64, seedChannel int64, log logx.Logger) *Store {
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Store{
		admins: map[int64]bool{},
		seeded: map[int64]bool{},
		path:   path,
		log:    log,
	}
	if b, err := os.ReadFile(path); err == nil {
		var st state
		if err := json.Unmarshal(b, &st); err != nil {
			log.Warn("admin store malformed, starting from config", logx.String("path", path), logx.Err(err))
		} else {
			for _, id := range st.Admins {
				s.admins[id] = true
			}
			s.channel = st.ChannelID
		}
	} else if !os.IsNotExist(err) {
		log.Warn("admin store read failed", logx.String("path", path), logx.Err(err))
	}
	for _, id := range seedAdmins {
		s.admins[id] = true
		s.seeded[id] = true
	}
	if s.channel == 0 {
		s.channel = seedChannel
	}
	return s
}

// IsAdmin reports whether the user may run privileged commands. An
// empty allowlist means the bot was started unconfigured, so everyone
// passes until the first admin is added.
func (s *Store) IsAdmin(userID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.admins) == 0 {
		return true
	}
	return s.admins[userID]
}

// Admins lists all admin ids, ascending.
func (s *Store) Admins() []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]int64, 0, len(s.admins))
	for id := range s.admins {
		out = append(out, id)
	}
	sort.Slice(out, func(i, k int) bool { return out[i] < out[k] })
	return out
}

// Add grants admin rights. Returns false when the id already had them.
func (s *Store) Add(userID int64) bool {
	s.mu.Lock()
	if s.admins[userID] {
		s.mu.Unlock()
		return false
	}
	s.admins[userID] = true
	s.persistLocked()
	s.mu.Unlock()
	s.log.Info("admin added", logx.Int64("user", userID))
	return true
}

// Remove revokes admin rights. Config-seeded admins cannot be removed;
// that keeps the operator from locking themselves out via a typo.
func (s *Store) Remove(userID int64) bool {
	s.mu.Lock()
	if !s.admins[userID] || s.seeded[userID] {
		s.mu.Unlock()
		return false
	}
	delete(s.admins, userID)
	s.persistLocked()
	s.mu.Unlock()
	s.log.Info("admin removed", logx.Int64("user", userID))
	return true
}

// IsSeeded reports whether the id came from the config file.
func (s *Store) IsSeeded(userID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seeded[userID]
}

func (s *Store) Channel() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.channel
}

func (s *Store) SetChannel(chatID int64) {
	s.mu.Lock()
	s.channel = chatID
	s.persistLocked()
	s.mu.Unlock()
	s.log.Info("main channel set", logx.Int64("channel", chatID))
}

func (s *Store) persistLocked() {
	st := state{ChannelID: s.channel}
	for id := range s.admins {
		st.Admins = append(st.Admins, id)
	}
	sort.Slice(st.Admins, func(i, k int) bool { return st.Admins[i] < st.Admins[k] })

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.io.Lock()
		defer s.io.Unlock()
		b, err := json.MarshalIndent(st, "", "  ")
		if err == nil {
			if err = os.MkdirAll(filepath.Dir(s.path), 0o755); err == nil {
				tmp := s.path + ".tmp"
				if err = os.WriteFile(tmp, b, 0o600); err == nil {
					err = os.Rename(tmp, s.path)
				}
			}
		}
		if err != nil {
			s.log.Warn("admin store write failed", logx.String("path", s.path), logx.Err(err))
		}
	}()
}

// Wait blocks until pending writes finish. Called on shutdown.
func (s *Store) Wait() { s.wg.Wait() }
