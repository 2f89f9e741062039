package escalation

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/odyssey-lms/odyssey-lms/internal/platform/cache"
)

const sessionKeyPrefix = "authz:escalation:"

// sessionStore keeps one session record per user in the key-value store.
type sessionStore struct {
	store cache.Store
}

func (s sessionStore) key(userID string) string {
	return sessionKeyPrefix + userID
}

// load returns the stored record even when it is past its expiry.
func (s sessionStore) load(ctx context.Context, userID string) (Session, bool, error) {
	payload, err := s.store.Get(ctx, s.key(userID))
	if errors.Is(err, cache.ErrMiss) {
		return Session{}, false, nil
	}
	if err != nil {
		return Session{}, false, err
	}
	var sess Session
	if err := json.Unmarshal(payload, &sess); err != nil {
		return Session{}, false, nil
	}
	return sess, true, nil
}

func (s sessionStore) save(ctx context.Context, sess Session, ttl time.Duration) error {
	payload, err := json.Marshal(sess)
	if err != nil {
		return err
	}
	return s.store.Set(ctx, s.key(sess.UserID), payload, ttl)
}

func (s sessionStore) delete(ctx context.Context, userID string) (bool, error) {
	return s.store.Delete(ctx, s.key(userID))
}
