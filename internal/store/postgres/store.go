// Package postgres implements the Store Gateway (internal/store.Store)
// against a pgx-backed Postgres connection pool, wrapping every operation
// in the gateway's retry-once-on-stale-connection policy.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/jycamier/chatfanout/backend/internal/chatmodel"
	"github.com/jycamier/chatfanout/backend/internal/store"
)

// Store implements store.Store.
type Store struct {
	pool *pool
}

var _ store.Store = (*Store)(nil)

// New creates a Store connected to dsn.
func New(ctx context.Context, dsn string) (*Store, error) {
	p, err := newPool(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres store: %w", err)
	}
	return &Store{pool: p}, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() {
	s.pool.close()
}

func (s *Store) retry(ctx context.Context, op func(ctx context.Context) error) error {
	return store.WithRetry(ctx, s.pool.reopen, op)
}

func (s *Store) GetUser(ctx context.Context, userID uuid.UUID) (chatmodel.User, error) {
	var u chatmodel.User
	err := s.retry(ctx, func(ctx context.Context) error {
		row := s.pool.get().QueryRow(ctx,
			`SELECT id, username, sex, password_hash, created_at FROM users WHERE id = $1`,
			userID,
		)
		var sex int
		if scanErr := row.Scan(&u.ID, &u.Username, &sex, &u.PasswordHash, &u.CreatedAt); scanErr != nil {
			if errors.Is(scanErr, pgx.ErrNoRows) {
				return store.ErrNotFound
			}
			return scanErr
		}
		u.Sex = chatmodel.Sex(sex)
		return nil
	})
	return u, err
}

func (s *Store) GetUserByUsername(ctx context.Context, username string) (chatmodel.User, error) {
	var u chatmodel.User
	err := s.retry(ctx, func(ctx context.Context) error {
		row := s.pool.get().QueryRow(ctx,
			`SELECT id, username, sex, password_hash, created_at FROM users WHERE username = $1`,
			username,
		)
		var sex int
		if scanErr := row.Scan(&u.ID, &u.Username, &sex, &u.PasswordHash, &u.CreatedAt); scanErr != nil {
			if errors.Is(scanErr, pgx.ErrNoRows) {
				return store.ErrNotFound
			}
			return scanErr
		}
		u.Sex = chatmodel.Sex(sex)
		return nil
	})
	return u, err
}

func (s *Store) CreateRoom(ctx context.Context, room chatmodel.Room) error {
	return s.retry(ctx, func(ctx context.Context) error {
		_, err := s.pool.get().Exec(ctx,
			`INSERT INTO rooms (id, name, is_private, disabled) VALUES ($1, $2, $3, $4)`,
			room.ID, room.Name, room.IsPrivate, room.Disabled,
		)
		return err
	})
}

func (s *Store) GetRoom(ctx context.Context, roomID uuid.UUID) (chatmodel.Room, error) {
	var r chatmodel.Room
	err := s.retry(ctx, func(ctx context.Context) error {
		row := s.pool.get().QueryRow(ctx,
			`SELECT id, name, is_private, disabled, created_at FROM rooms WHERE id = $1`,
			roomID,
		)
		if scanErr := row.Scan(&r.ID, &r.Name, &r.IsPrivate, &r.Disabled, &r.CreatedAt); scanErr != nil {
			if errors.Is(scanErr, pgx.ErrNoRows) {
				return store.ErrNotFound
			}
			return scanErr
		}
		return nil
	})
	return r, err
}

func (s *Store) SetRoomDisabled(ctx context.Context, roomID uuid.UUID, disabled bool) error {
	return s.retry(ctx, func(ctx context.Context) error {
		var err error
		if disabled {
			_, err = s.pool.get().Exec(ctx, `UPDATE rooms SET disabled = now() WHERE id = $1`, roomID)
		} else {
			_, err = s.pool.get().Exec(ctx, `UPDATE rooms SET disabled = NULL WHERE id = $1`, roomID)
		}
		return err
	})
}

func (s *Store) DeleteRoomMember(ctx context.Context, roomID, userID uuid.UUID) error {
	return s.retry(ctx, func(ctx context.Context) error {
		_, err := s.pool.get().Exec(ctx,
			`DELETE FROM room_members WHERE room_id = $1 AND user_id = $2`,
			roomID, userID,
		)
		return err
	})
}

func (s *Store) CreateMembership(ctx context.Context, m chatmodel.Membership) error {
	return s.retry(ctx, func(ctx context.Context) error {
		_, err := s.pool.get().Exec(ctx,
			`INSERT INTO room_members (user_id, room_id) VALUES ($1, $2)`,
			m.UserID, m.RoomID,
		)
		if isUniqueViolation(err) {
			return store.ErrAlreadyMember
		}
		return err
	})
}

func (s *Store) IsMember(ctx context.Context, roomID, userID uuid.UUID) (bool, error) {
	var ok bool
	err := s.retry(ctx, func(ctx context.Context) error {
		row := s.pool.get().QueryRow(ctx,
			`SELECT EXISTS(SELECT 1 FROM room_members WHERE room_id = $1 AND user_id = $2)`,
			roomID, userID,
		)
		return row.Scan(&ok)
	})
	return ok, err
}

func (s *Store) LookupDirectRoom(ctx context.Context, userA, userB uuid.UUID) (store.DirectRoomLookup, error) {
	low, high := sortPair(userA, userB)
	var out store.DirectRoomLookup
	err := s.retry(ctx, func(ctx context.Context) error {
		row := s.pool.get().QueryRow(ctx,
			`SELECT r.id, r.disabled IS NOT NULL
			   FROM direct_room_pairs p
			   JOIN rooms r ON r.id = p.room_id
			  WHERE p.user_low = $1 AND p.user_high = $2`,
			low, high,
		)
		if scanErr := row.Scan(&out.RoomID, &out.Disabled); scanErr != nil {
			if errors.Is(scanErr, pgx.ErrNoRows) {
				return store.ErrNotFound
			}
			return scanErr
		}
		return nil
	})
	return out, err
}

func (s *Store) CreateDirectRoom(ctx context.Context, room chatmodel.Room, userA, userB uuid.UUID) error {
	low, high := sortPair(userA, userB)
	return s.retry(ctx, func(ctx context.Context) error {
		tx, err := s.pool.get().Begin(ctx)
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback(ctx) }()

		// Serializes concurrent create_direct_channel calls for the same
		// pair; the first caller to reach here wins, the rest block until
		// it commits or rolls back (§9 Open Question #3).
		lockKey := directRoomLockKey(low, high)
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, lockKey); err != nil {
			return err
		}

		_, err = tx.Exec(ctx,
			`INSERT INTO rooms (id, name, is_private, disabled) VALUES ($1, NULL, true, NULL)`,
			room.ID,
		)
		if err != nil {
			return err
		}
		_, err = tx.Exec(ctx,
			`INSERT INTO room_members (user_id, room_id) VALUES ($1, $3), ($2, $3)`,
			userA, userB, room.ID,
		)
		if err != nil {
			return err
		}
		_, err = tx.Exec(ctx,
			`INSERT INTO direct_room_pairs (room_id, user_low, user_high) VALUES ($1, $2, $3)`,
			room.ID, low, high,
		)
		if isUniqueViolation(err) {
			return store.ErrDirectRoomExists
		}
		if err != nil {
			return err
		}
		return tx.Commit(ctx)
	})
}

func (s *Store) InsertMessage(ctx context.Context, msg chatmodel.Message) (chatmodel.Message, error) {
	err := s.retry(ctx, func(ctx context.Context) error {
		row := s.pool.get().QueryRow(ctx,
			`INSERT INTO messages (sender_id, receiver_id, room_id, content, image, created_at_ms)
			 VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`,
			msg.SenderID, msg.ReceiverID, msg.RoomID, msg.Content, msg.Image, msg.CreatedAtMs,
		)
		return row.Scan(&msg.ID)
	})
	return msg, err
}

func (s *Store) FetchRoomsWithUsers(ctx context.Context, userID uuid.UUID) ([]chatmodel.RoomWithUsers, error) {
	var out []chatmodel.RoomWithUsers
	err := s.retry(ctx, func(ctx context.Context) error {
		out = nil
		rows, err := s.pool.get().Query(ctx,
			`SELECT u.id, u.username, u.sex, r.id, r.name
			   FROM room_members mine
			   JOIN rooms r ON r.id = mine.room_id
			   JOIN room_members other ON other.room_id = r.id
			   JOIN users u ON u.id = other.user_id
			  WHERE mine.user_id = $1 AND r.disabled IS NULL`,
			userID,
		)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var rw chatmodel.RoomWithUsers
			var sex int
			if err := rows.Scan(&rw.UserID, &rw.UserName, &sex, &rw.RoomID, &rw.RoomName); err != nil {
				return err
			}
			rw.Sex = chatmodel.Sex(sex)
			out = append(out, rw)
		}
		return rows.Err()
	})
	return out, err
}

// FetchMessagesBefore implements the visibility predicate from §4.3: public
// (room message) OR sender = viewer OR receiver = viewer, ordered
// descending by id, strictly below HeaderID when supplied.
func (s *Store) FetchMessagesBefore(ctx context.Context, f store.MessagesBefore) ([]chatmodel.Message, error) {
	var out []chatmodel.Message
	err := s.retry(ctx, func(ctx context.Context) error {
		out = nil
		query := `SELECT id, sender_id, receiver_id, room_id, content, image, created_at_ms
			        FROM messages
			       WHERE (receiver_id IS NULL OR sender_id = $1 OR receiver_id = $1)`
		args := []any{f.VisibleTo}
		if f.HeaderID != nil {
			query += ` AND id < $2 ORDER BY id DESC LIMIT $3`
			args = append(args, *f.HeaderID, f.Count)
		} else {
			query += ` ORDER BY id DESC LIMIT $2`
			args = append(args, f.Count)
		}

		rows, err := s.pool.get().Query(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var m chatmodel.Message
			if err := rows.Scan(&m.ID, &m.SenderID, &m.ReceiverID, &m.RoomID, &m.Content, &m.Image, &m.CreatedAtMs); err != nil {
				return err
			}
			out = append(out, m)
		}
		return rows.Err()
	})
	return out, err
}

func (s *Store) GetOrCreateIP(ctx context.Context, ip string, enricher store.IPEnricher) (chatmodel.IPAddress, error) {
	var addr chatmodel.IPAddress
	err := s.retry(ctx, func(ctx context.Context) error {
		row := s.pool.get().QueryRow(ctx,
			`SELECT ip, isp, country, country_code, region, city FROM ip_addresses WHERE ip = $1`,
			ip,
		)
		scanErr := row.Scan(&addr.IP, &addr.ISP, &addr.Country, &addr.CountryCode, &addr.Region, &addr.City)
		if scanErr == nil {
			return nil
		}
		if !errors.Is(scanErr, pgx.ErrNoRows) {
			return scanErr
		}

		addr = chatmodel.IPAddress{IP: ip}
		if enricher != nil {
			if enriched, enrichErr := enricher.Enrich(ctx, ip); enrichErr == nil && enriched != nil {
				addr = *enriched
			}
		}

		_, err := s.pool.get().Exec(ctx,
			`INSERT INTO ip_addresses (ip, isp, country, country_code, region, city)
			 VALUES ($1, $2, $3, $4, $5, $6)
			 ON CONFLICT (ip) DO NOTHING`,
			addr.IP, addr.ISP, addr.Country, addr.CountryCode, addr.Region, addr.City,
		)
		return err
	})
	return addr, err
}

func (s *Store) RecordUserJoined(ctx context.Context, info chatmodel.UserJoinedInfo) error {
	return s.retry(ctx, func(ctx context.Context) error {
		_, err := s.pool.get().Exec(ctx,
			`INSERT INTO user_joined_infos (user_id, ip) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
			info.UserID, info.IP,
		)
		return err
	})
}

func sortPair(a, b uuid.UUID) (low, high uuid.UUID) {
	if a.String() <= b.String() {
		return a, b
	}
	return b, a
}

// directRoomLockKey derives a deterministic advisory-lock key from a sorted
// pair of user ids, stable regardless of call order since the pair is
// already sorted by sortPair.
func directRoomLockKey(low, high uuid.UUID) int64 {
	h := fnv.New64a()
	_, _ = h.Write(low[:])
	_, _ = h.Write(high[:])
	return int64(h.Sum64())
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var pgErr interface{ SQLState() string }
	if errors.As(err, &pgErr) {
		return pgErr.SQLState() == "23505"
	}
	return false
}
