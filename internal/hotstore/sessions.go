package hotstore

import (
	"context"

	"github.com/redis/go-redis/v9"

	"github.com/jai-bhardwaj/tradecore/internal/domain"
	"github.com/jai-bhardwaj/tradecore/internal/errs"
)

// SaveSession writes a broker session to session:{user_id}:{cred_id} with no
// TTL; this layer just mirrors state. The entry is removed only by
// DeleteSession (BA's RemoveUser); nothing tears sessions down on idle.
func (s *Store) SaveSession(ctx context.Context, sess *domain.Session) error {
	ctx, cancel := withDeadline(ctx, defaultRedisTimeout)
	defer cancel()

	payload, err := marshal(sess)
	if err != nil {
		return err
	}
	key := sessionKey(sess.UserID, sess.CredentialID)
	if err := s.rdb.Set(ctx, key, payload, 0).Err(); err != nil {
		return errs.Wrap(errs.KindTransient, "redis.save_session", err)
	}
	return nil
}

// GetSession reads a session by (userID, credentialID), or errs.ErrNotFound.
func (s *Store) GetSession(ctx context.Context, userID, credentialID string) (*domain.Session, error) {
	ctx, cancel := withDeadline(ctx, defaultRedisTimeout)
	defer cancel()

	raw, err := s.rdb.Get(ctx, sessionKey(userID, credentialID)).Result()
	if err == redis.Nil {
		return nil, errs.ErrNotFound
	}
	if err != nil {
		return nil, errs.Wrap(errs.KindTransient, "redis.get_session", err)
	}
	var sess domain.Session
	if err := unmarshal(raw, &sess); err != nil {
		return nil, err
	}
	return &sess, nil
}

// DeleteSession drops a torn-down session's cache entry.
func (s *Store) DeleteSession(ctx context.Context, userID, credentialID string) error {
	ctx, cancel := withDeadline(ctx, defaultRedisTimeout)
	defer cancel()
	if err := s.rdb.Del(ctx, sessionKey(userID, credentialID)).Err(); err != nil {
		return errs.Wrap(errs.KindTransient, "redis.delete_session", err)
	}
	return nil
}
