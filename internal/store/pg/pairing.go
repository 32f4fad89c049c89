package pg

import (
	"crypto/rand"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/letsgo/gateway/internal/channeltype"
	"github.com/letsgo/gateway/internal/pairing"
)

// PairingStore implements store.PairingStore against Postgres, with an
// in-memory cache mirroring the approach PGSessionStore takes for
// sessions: hot reads come from the cache, writes go through the
// database first and only update the cache on success.
type PairingStore struct {
	db  *sql.DB
	mu  sync.RWMutex
	rec map[string]*pairing.SenderRecord
	cod map[string]*pairing.PairingCode

	limiter *pairing.SenderRateLimiter

	codeTTL time.Duration
}

// NewPairingStore creates a Postgres-backed pairing store. Schema is
// created by the `letsgo migrate` command from migrations/.
func NewPairingStore(db *sql.DB, codeTTL time.Duration, maxMessagesPerMinute int) *PairingStore {
	if codeTTL <= 0 {
		codeTTL = 5 * time.Minute
	}
	return &PairingStore{
		db:      db,
		rec:     make(map[string]*pairing.SenderRecord),
		cod:     make(map[string]*pairing.PairingCode),
		limiter: pairing.NewSenderRateLimiter(maxMessagesPerMinute),
		codeTTL: codeTTL,
	}
}

func pairKey(channel channeltype.Type, senderID string) string {
	return fmt.Sprintf("%s:%s", channel, senderID)
}

func generatePairingCode() (string, error) {
	const alphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	raw := make([]byte, 6)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	out := make([]byte, 6)
	for i, b := range raw {
		out[i] = alphabet[int(b)%len(alphabet)]
	}
	return string(out), nil
}

func (s *PairingStore) RequestPairing(senderID string, channel channeltype.Type, channelName, label string) (string, error) {
	code, err := generatePairingCode()
	if err != nil {
		return "", fmt.Errorf("generate pairing code: %w", err)
	}
	now := time.Now()
	expires := now.Add(s.codeTTL)

	_, err = s.db.Exec(
		`INSERT INTO senders (channel, sender_id, channel_name, status, label, message_count)
		 VALUES ($1, $2, $3, 'pending', $4, 0)
		 ON CONFLICT (channel, sender_id) DO NOTHING`,
		string(channel), senderID, channelName, label,
	)
	if err != nil {
		return "", fmt.Errorf("upsert sender: %w", err)
	}
	_, err = s.db.Exec(
		`INSERT INTO pairing_codes (channel, sender_id, code, issued_at, expires_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (channel, sender_id) DO UPDATE SET code = $3, issued_at = $4, expires_at = $5`,
		string(channel), senderID, code, now, expires,
	)
	if err != nil {
		return "", fmt.Errorf("upsert pairing code: %w", err)
	}

	s.mu.Lock()
	k := pairKey(channel, senderID)
	s.cod[k] = &pairing.PairingCode{SenderID: senderID, Channel: channel, Code: code, IssuedAt: now, ExpiresAt: expires}
	if _, ok := s.rec[k]; !ok {
		s.rec[k] = &pairing.SenderRecord{SenderID: senderID, Channel: channel, ChannelName: channelName, Status: pairing.StatusPending, Label: label}
	}
	s.mu.Unlock()

	return code, nil
}

func (s *PairingStore) VerifyPairing(senderID string, channel channeltype.Type, code string) (bool, error) {
	var expiresAt time.Time
	var storedCode string
	row := s.db.QueryRow(
		`SELECT code, expires_at FROM pairing_codes WHERE channel = $1 AND sender_id = $2`,
		string(channel), senderID,
	)
	if err := row.Scan(&storedCode, &expiresAt); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("query pairing code: %w", err)
	}
	if !time.Now().Before(expiresAt) || storedCode != code {
		return false, nil
	}

	now := time.Now()
	tx, err := s.db.Begin()
	if err != nil {
		return false, fmt.Errorf("begin verify tx: %w", err)
	}
	if _, err := tx.Exec(`UPDATE senders SET status = 'approved', approved_at = $3 WHERE channel = $1 AND sender_id = $2`, string(channel), senderID, now); err != nil {
		tx.Rollback()
		return false, fmt.Errorf("approve sender: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM pairing_codes WHERE channel = $1 AND sender_id = $2`, string(channel), senderID); err != nil {
		tx.Rollback()
		return false, fmt.Errorf("consume pairing code: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit verify tx: %w", err)
	}

	s.mu.Lock()
	k := pairKey(channel, senderID)
	if rec, ok := s.rec[k]; ok {
		rec.Status = pairing.StatusApproved
		rec.ApprovedAt = &now
	}
	delete(s.cod, k)
	s.mu.Unlock()

	return true, nil
}

func (s *PairingStore) IsApproved(senderID string, channel channeltype.Type) bool {
	rec, ok := s.Lookup(senderID, channel)
	return ok && rec.Status == pairing.StatusApproved
}

func (s *PairingStore) Lookup(senderID string, channel channeltype.Type) (pairing.SenderRecord, bool) {
	s.mu.RLock()
	if rec, ok := s.rec[pairKey(channel, senderID)]; ok {
		cached := *rec
		s.mu.RUnlock()
		return cached, true
	}
	s.mu.RUnlock()

	var rec pairing.SenderRecord
	var approvedAt, lastSeen sql.NullTime
	row := s.db.QueryRow(
		`SELECT sender_id, channel, channel_name, status, label, approved_at, last_seen, message_count
		 FROM senders WHERE channel = $1 AND sender_id = $2`,
		string(channel), senderID,
	)
	var channelStr string
	if err := row.Scan(&rec.SenderID, &channelStr, &rec.ChannelName, &rec.Status, &rec.Label, &approvedAt, &lastSeen, &rec.MessageCount); err != nil {
		return pairing.SenderRecord{}, false
	}
	rec.Channel = channeltype.Type(channelStr)
	if approvedAt.Valid {
		rec.ApprovedAt = &approvedAt.Time
	}
	if lastSeen.Valid {
		rec.LastSeen = &lastSeen.Time
	}

	s.mu.Lock()
	cp := rec
	s.rec[pairKey(channel, senderID)] = &cp
	s.mu.Unlock()

	return rec, true
}

func (s *PairingStore) PendingCode(senderID string, channel channeltype.Type) (pairing.PairingCode, bool) {
	var pc pairing.PairingCode
	pc.SenderID = senderID
	pc.Channel = channel
	row := s.db.QueryRow(`SELECT code, issued_at, expires_at FROM pairing_codes WHERE channel = $1 AND sender_id = $2`, string(channel), senderID)
	if err := row.Scan(&pc.Code, &pc.IssuedAt, &pc.ExpiresAt); err != nil {
		return pairing.PairingCode{}, false
	}
	if !time.Now().Before(pc.ExpiresAt) {
		return pairing.PairingCode{}, false
	}
	return pc, true
}

func (s *PairingStore) BlockSender(senderID string, channel channeltype.Type) error {
	return s.setStatus(senderID, channel, "blocked")
}

func (s *PairingStore) UnblockSender(senderID string, channel channeltype.Type) error {
	res, err := s.db.Exec(`UPDATE senders SET status = 'approved' WHERE channel = $1 AND sender_id = $2 AND status = 'blocked'`, string(channel), senderID)
	if err != nil {
		return fmt.Errorf("unblock sender: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil
	}
	s.mu.Lock()
	if rec, ok := s.rec[pairKey(channel, senderID)]; ok {
		rec.Status = pairing.StatusApproved
	}
	s.mu.Unlock()
	return nil
}

func (s *PairingStore) setStatus(senderID string, channel channeltype.Type, status string) error {
	if _, err := s.db.Exec(`UPDATE senders SET status = $3 WHERE channel = $1 AND sender_id = $2`, string(channel), senderID, status); err != nil {
		return fmt.Errorf("update sender status: %w", err)
	}
	s.mu.Lock()
	if rec, ok := s.rec[pairKey(channel, senderID)]; ok {
		rec.Status = pairing.AuthStatus(status)
	}
	s.mu.Unlock()
	return nil
}

func (s *PairingStore) GetAllSenders(channel channeltype.Type) []pairing.SenderRecord {
	return s.query(channel, "")
}

func (s *PairingStore) GetAllApproved(channel channeltype.Type) []pairing.SenderRecord {
	return s.query(channel, "approved")
}

func (s *PairingStore) query(channel channeltype.Type, status string) []pairing.SenderRecord {
	q := `SELECT sender_id, channel, channel_name, status, label, approved_at, last_seen, message_count FROM senders WHERE 1=1`
	args := []any{}
	idx := 1
	if channel != "" {
		q += fmt.Sprintf(" AND channel = $%d", idx)
		args = append(args, string(channel))
		idx++
	}
	if status != "" {
		q += fmt.Sprintf(" AND status = $%d", idx)
		args = append(args, status)
		idx++
	}
	rows, err := s.db.Query(q, args...)
	if err != nil {
		return nil
	}
	defer rows.Close()

	var out []pairing.SenderRecord
	for rows.Next() {
		var rec pairing.SenderRecord
		var channelStr string
		var approvedAt, lastSeen sql.NullTime
		if err := rows.Scan(&rec.SenderID, &channelStr, &rec.ChannelName, &rec.Status, &rec.Label, &approvedAt, &lastSeen, &rec.MessageCount); err != nil {
			continue
		}
		rec.Channel = channeltype.Type(channelStr)
		if approvedAt.Valid {
			rec.ApprovedAt = &approvedAt.Time
		}
		if lastSeen.Valid {
			rec.LastSeen = &lastSeen.Time
		}
		out = append(out, rec)
	}
	return out
}

// CheckRateLimit keeps the token bucket in memory only (matching the
// teacher's in-memory cache-first approach for hot paths) while
// persisting message_count/last_seen to Postgres so admin reads see
// current counters across processes.
func (s *PairingStore) CheckRateLimit(senderID string, channel channeltype.Type) bool {
	k := pairKey(channel, senderID)
	now := time.Now()
	allowed := s.limiter.Allow(k)

	s.db.Exec(`UPDATE senders SET message_count = message_count + 1, last_seen = $3 WHERE channel = $1 AND sender_id = $2`, string(channel), senderID, now)
	s.mu.Lock()
	if rec, ok := s.rec[k]; ok {
		rec.MessageCount++
		rec.LastSeen = &now
	}
	s.mu.Unlock()

	return allowed
}

// Flush is a no-op for Postgres: every mutator already commits before
// returning.
func (s *PairingStore) Flush() error { return nil }
