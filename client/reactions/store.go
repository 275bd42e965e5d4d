// Package reactions keeps the user's like/dislike marks on this machine only.
// Marks are keyed by a fingerprint of the message text, so two messages with
// identical text share a mark.
package reactions

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"adichat/backend/pkg/logger"

	"github.com/cockroachdb/pebble"
	"golang.org/x/crypto/blake2b"
)

const keyPrefix = "reaction:"

// Reaction is the mark on one message. Liked and Disliked are never both set.
type Reaction struct {
	Liked    bool `json:"liked"`
	Disliked bool `json:"disliked"`
}

// Fingerprint derives the storage key component from message content
func Fingerprint(content string) string {
	sum := blake2b.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

func key(fingerprint string) []byte {
	return []byte(keyPrefix + fingerprint)
}

type Store struct {
	mu  sync.Mutex
	db  *pebble.DB
	log *logger.Logger
}

// Open opens or creates the store at path
func Open(path string, log *logger.Logger) (*Store, error) {
	if log == nil {
		log = logger.Nop()
	}
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("open reactions store: %w", err)
	}
	log.Debug("reactions store opened", "path", path)
	return &Store{db: db, log: log.WithComponent("reactions")}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Get returns the reaction for a fingerprint. ok is false when none was recorded.
func (s *Store) Get(fingerprint string) (Reaction, bool, error) {
	data, closer, err := s.db.Get(key(fingerprint))
	if errors.Is(err, pebble.ErrNotFound) {
		return Reaction{}, false, nil
	}
	if err != nil {
		return Reaction{}, false, err
	}
	defer closer.Close()

	var r Reaction
	if err := json.Unmarshal(data, &r); err != nil {
		return Reaction{}, false, fmt.Errorf("decode reaction: %w", err)
	}
	return r, true, nil
}

func (s *Store) put(fingerprint string, r Reaction) error {
	data, err := json.Marshal(r)
	if err != nil {
		return err
	}
	if err := s.db.Set(key(fingerprint), data, pebble.Sync); err != nil {
		s.log.Error("save reaction failed", "fingerprint", fingerprint, "error", err)
		return err
	}
	return nil
}

// SetLiked sets or clears the like. Setting it clears a dislike.
func (s *Store) SetLiked(fingerprint string, liked bool) (Reaction, error) {
	return s.update(fingerprint, func(r *Reaction) {
		r.Liked = liked
		if liked {
			r.Disliked = false
		}
	})
}

// SetDisliked sets or clears the dislike. Setting it clears a like.
func (s *Store) SetDisliked(fingerprint string, disliked bool) (Reaction, error) {
	return s.update(fingerprint, func(r *Reaction) {
		r.Disliked = disliked
		if disliked {
			r.Liked = false
		}
	})
}

// ToggleLike flips the like, the way the like button does
func (s *Store) ToggleLike(fingerprint string) (Reaction, error) {
	return s.update(fingerprint, func(r *Reaction) {
		r.Liked = !r.Liked
		if r.Liked {
			r.Disliked = false
		}
	})
}

func (s *Store) ToggleDislike(fingerprint string) (Reaction, error) {
	return s.update(fingerprint, func(r *Reaction) {
		r.Disliked = !r.Disliked
		if r.Disliked {
			r.Liked = false
		}
	})
}

func (s *Store) update(fingerprint string, mutate func(*Reaction)) (Reaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, _, err := s.Get(fingerprint)
	if err != nil {
		return Reaction{}, err
	}
	mutate(&r)
	if err := s.put(fingerprint, r); err != nil {
		return Reaction{}, err
	}
	return r, nil
}
