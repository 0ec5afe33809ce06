// Package archive persists received HL7 messages to PostgreSQL.
package archive

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog"

	"github.com/ehr/hl7/internal/platform/mllp"
	"github.com/ehr/hl7/pkg/hl7"
)

// ErrNotFound is returned by Get when no message has the control id.
var ErrNotFound = errors.New("archive: message not found")

// DB is the subset of *pgxpool.Pool the store uses.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Record is one archived message.
type Record struct {
	ControlID       string
	MessageType     string
	SendingApp      string
	SendingFacility string
	Version         string
	Raw             string
	ReceivedAt      time.Time
}

// RecordFromMessage pulls the archive columns out of msg's MSH segment.
// MessageType keeps its component separators, e.g. "ADT^A01".
func RecordFromMessage(msg *hl7.Message, receivedAt time.Time) Record {
	rec := Record{Raw: msg.String(), ReceivedAt: receivedAt}
	rec.ControlID, _ = msg.Get("MSH.10")
	rec.SendingApp, _ = msg.Get("MSH.3")
	rec.SendingFacility, _ = msg.Get("MSH.4")
	rec.Version, _ = msg.Get("MSH.12")
	if msh, err := msg.Segment("MSH"); err == nil {
		if f := msh.Field(9); f != nil {
			rec.MessageType = f.String()
		}
	}
	return rec
}

const schemaSQL = `CREATE TABLE IF NOT EXISTS hl7_messages (
    id BIGSERIAL PRIMARY KEY,
    control_id VARCHAR(199) NOT NULL,
    message_type VARCHAR(64) NOT NULL DEFAULT '',
    sending_app VARCHAR(227) NOT NULL DEFAULT '',
    sending_facility VARCHAR(227) NOT NULL DEFAULT '',
    version VARCHAR(16) NOT NULL DEFAULT '',
    raw TEXT NOT NULL,
    received_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    UNIQUE (sending_app, control_id)
)`

const insertSQL = `INSERT INTO hl7_messages
    (control_id, message_type, sending_app, sending_facility, version, raw, received_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (sending_app, control_id) DO NOTHING`

const selectSQL = `SELECT control_id, message_type, sending_app, sending_facility, version, raw, received_at
FROM hl7_messages WHERE sending_app = $1 AND control_id = $2`

// Store reads and writes archived messages.
type Store struct {
	db DB
}

func NewStore(db DB) *Store {
	return &Store{db: db}
}

// EnsureSchema creates the hl7_messages table if it does not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("archive: create hl7_messages table: %w", err)
	}
	return nil
}

// Save inserts rec. It reports duplicate=true when a message with the same
// sending application and control id was already archived.
func (s *Store) Save(ctx context.Context, rec Record) (duplicate bool, err error) {
	if rec.ControlID == "" {
		return false, fmt.Errorf("archive: message has no control id")
	}
	tag, err := s.db.Exec(ctx, insertSQL,
		rec.ControlID, rec.MessageType, rec.SendingApp, rec.SendingFacility, rec.Version, rec.Raw, rec.ReceivedAt)
	if err != nil {
		return false, fmt.Errorf("archive: insert %s: %w", rec.ControlID, err)
	}
	return tag.RowsAffected() == 0, nil
}

// Get loads the message archived under sendingApp and controlID.
func (s *Store) Get(ctx context.Context, sendingApp, controlID string) (Record, error) {
	var rec Record
	err := s.db.QueryRow(ctx, selectSQL, sendingApp, controlID).Scan(
		&rec.ControlID, &rec.MessageType, &rec.SendingApp, &rec.SendingFacility, &rec.Version, &rec.Raw, &rec.ReceivedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, fmt.Errorf("archive: get %s: %w", controlID, err)
	}
	return rec, nil
}

// Handler archives each message before passing it to next. When the insert
// fails the sender gets an AE acknowledgment so it retries later.
func (s *Store) Handler(next mllp.MessageHandler, ack *hl7.ACKOptions, logger zerolog.Logger) mllp.MessageHandler {
	return func(ctx context.Context, msg *hl7.Message) *hl7.Message {
		rec := RecordFromMessage(msg, time.Now().UTC())
		duplicate, err := s.Save(ctx, rec)
		if err != nil {
			logger.Error().Err(err).Str("control_id", rec.ControlID).Msg("archive failed")
			nak, nerr := msg.CreateACK(hl7.AckError, ack)
			if nerr != nil {
				return nil
			}
			return nak
		}
		if duplicate {
			logger.Info().Str("control_id", rec.ControlID).Str("sending_app", rec.SendingApp).Msg("duplicate message")
		}
		return next(ctx, msg)
	}
}
