package matrix

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const sessionKeyPrefix = "slotbook:session:"

// Session is a server-side edit session: the draft buffer of one grid.
type Session struct {
	ID        string             `json:"id"`
	MatrixID  string             `json:"matrix_id"`
	Draft     map[CellKey]string `json:"-"`
	CreatedAt time.Time          `json:"created_at"`
}

type draftEntry struct {
	RowID    string `json:"r"`
	ColumnID string `json:"c"`
	Value    string `json:"v"`
}

type storedSession struct {
	ID        string       `json:"id"`
	MatrixID  string       `json:"matrix_id"`
	Entries   []draftEntry `json:"entries"`
	CreatedAt time.Time    `json:"created_at"`
}

// DraftRepository keeps edit sessions between requests.
type DraftRepository interface {
	Create(ctx context.Context, matrixID string) (Session, error)
	Load(ctx context.Context, id string) (Session, error)
	Save(ctx context.Context, sess Session) error
	Delete(ctx context.Context, id string) error
}

// DraftStore keeps edit sessions in Redis with a sliding TTL.
type DraftStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewDraftStore constructs DraftStore.
func NewDraftStore(client *redis.Client, ttl time.Duration) *DraftStore {
	if ttl <= 0 {
		ttl = 2 * time.Hour
	}
	return &DraftStore{client: client, ttl: ttl}
}

func sessionKey(id string) string {
	return sessionKeyPrefix + id
}

// Create opens an empty session for matrixID.
func (s *DraftStore) Create(ctx context.Context, matrixID string) (Session, error) {
	sess := Session{
		ID:        uuid.NewString(),
		MatrixID:  matrixID,
		Draft:     map[CellKey]string{},
		CreatedAt: time.Now().UTC(),
	}
	if err := s.Save(ctx, sess); err != nil {
		return Session{}, err
	}
	return sess, nil
}

// Load fetches a session and refreshes its TTL.
func (s *DraftStore) Load(ctx context.Context, id string) (Session, error) {
	raw, err := s.client.GetEx(ctx, sessionKey(id), s.ttl).Bytes()
	if errors.Is(err, redis.Nil) {
		return Session{}, ErrSessionNotFound
	}
	if err != nil {
		return Session{}, fmt.Errorf("matrix: load session: %w", err)
	}
	var stored storedSession
	if err := json.Unmarshal(raw, &stored); err != nil {
		return Session{}, fmt.Errorf("matrix: decode session: %w", err)
	}
	sess := Session{
		ID:        stored.ID,
		MatrixID:  stored.MatrixID,
		Draft:     make(map[CellKey]string, len(stored.Entries)),
		CreatedAt: stored.CreatedAt,
	}
	for _, e := range stored.Entries {
		sess.Draft[CellKey{RowID: e.RowID, ColumnID: e.ColumnID}] = e.Value
	}
	return sess, nil
}

// Save writes the session, replacing its draft.
func (s *DraftStore) Save(ctx context.Context, sess Session) error {
	stored := storedSession{
		ID:        sess.ID,
		MatrixID:  sess.MatrixID,
		Entries:   make([]draftEntry, 0, len(sess.Draft)),
		CreatedAt: sess.CreatedAt,
	}
	for key, value := range sess.Draft {
		stored.Entries = append(stored.Entries, draftEntry{RowID: key.RowID, ColumnID: key.ColumnID, Value: value})
	}
	raw, err := json.Marshal(stored)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, sessionKey(sess.ID), raw, s.ttl).Err(); err != nil {
		return fmt.Errorf("matrix: save session: %w", err)
	}
	return nil
}

// Delete drops a session. Deleting a missing session is not an error.
func (s *DraftStore) Delete(ctx context.Context, id string) error {
	return s.client.Del(ctx, sessionKey(id)).Err()
}
