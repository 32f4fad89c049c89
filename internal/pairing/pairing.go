// Package pairing implements the durable sender authentication and
// rate-limit store: the sole mutator of sender records, keyed by
// "{channel}:{sender_id}".
package pairing

import (
	"crypto/rand"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/letsgo/gateway/internal/channeltype"
)

// AuthStatus is the lifecycle state of a SenderRecord.
type AuthStatus string

const (
	StatusPending  AuthStatus = "pending"
	StatusApproved AuthStatus = "approved"
	StatusBlocked  AuthStatus = "blocked"
)

// SenderRecord tracks one sender's pairing and usage state.
type SenderRecord struct {
	SenderID     string           `json:"sender_id"`
	Channel      channeltype.Type `json:"channel"`
	ChannelName  string           `json:"channel_name"`
	Status       AuthStatus       `json:"status"`
	Label        string           `json:"label,omitempty"`
	ApprovedAt   *time.Time       `json:"approved_at,omitempty"`
	LastSeen     *time.Time       `json:"last_seen,omitempty"`
	MessageCount int              `json:"message_count"`
}

// PairingCode is a single-use, TTL-expiring code issued by RequestPairing.
type PairingCode struct {
	SenderID  string           `json:"sender_id"`
	Channel   channeltype.Type `json:"channel"`
	Code      string           `json:"code"`
	IssuedAt  time.Time        `json:"issued_at"`
	ExpiresAt time.Time        `json:"expires_at"`
}

// document is the on-disk shape, written atomically on every mutation.
type document struct {
	Senders map[string]*SenderRecord `json:"senders"`
	Codes   map[string]*PairingCode  `json:"codes"`
}

// Service is the pairing/auth/rate-limit engine. It owns its own
// persistence (a single JSON document, replaced atomically) so that
// store.File/store.PG wrappers need only translate method names.
type Service struct {
	mu      sync.RWMutex
	path    string
	senders map[string]*SenderRecord
	codes   map[string]*PairingCode
	limiter *SenderRateLimiter
	codeTTL time.Duration
}

// Options configures a Service.
type Options struct {
	Path                 string
	CodeTTL              time.Duration
	MaxMessagesPerMinute int
}

// NewService constructs a Service backed by the document at path. If the
// file exists it is loaded; a missing file starts empty.
func NewService(opts Options) (*Service, error) {
	if opts.CodeTTL <= 0 {
		opts.CodeTTL = 5 * time.Minute
	}
	s := &Service{
		path:    opts.Path,
		senders: make(map[string]*SenderRecord),
		codes:   make(map[string]*PairingCode),
		limiter: NewSenderRateLimiter(opts.MaxMessagesPerMinute),
		codeTTL: opts.CodeTTL,
	}
	if opts.Path != "" {
		if err := s.load(); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func key(channel channeltype.Type, senderID string) string {
	return fmt.Sprintf("%s:%s", channel, senderID)
}

func (s *Service) load() error {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read pairing store: %w", err)
	}
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("parse pairing store: %w", err)
	}
	if doc.Senders != nil {
		s.senders = doc.Senders
	}
	if doc.Codes != nil {
		s.codes = doc.Codes
	}
	return nil
}

// persist writes the document atomically: write to a sibling temp file,
// then rename over the target. Must be called with s.mu held.
func (s *Service) persist() error {
	if s.path == "" {
		return nil
	}
	doc := document{Senders: s.senders, Codes: s.codes}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal pairing store: %w", err)
	}
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create pairing store dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".pairing-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp pairing file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp pairing file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp pairing file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace pairing store: %w", err)
	}
	return nil
}

// generateCode returns an N-character human-typable code drawn uniformly
// from a safe alphabet (no 0/O/1/I ambiguity).
func generateCode(n int) (string, error) {
	const alphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	buf := make([]byte, n)
	raw := make([]byte, n)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	for i, b := range raw {
		buf[i] = alphabet[int(b)%len(alphabet)]
	}
	return string(buf), nil
}

// RequestPairing issues a fresh code for the sender, replacing any
// outstanding one, and ensures a pending SenderRecord exists.
func (s *Service) RequestPairing(senderID string, channel channeltype.Type, channelName, label string) (string, error) {
	code, err := generateCode(6)
	if err != nil {
		return "", fmt.Errorf("generate pairing code: %w", err)
	}

	s.mu.Lock()
	k := key(channel, senderID)
	prevCode, hadCode := s.codes[k]
	prevSender, hadSender := s.senders[k]

	now := time.Now()
	s.codes[k] = &PairingCode{
		SenderID:  senderID,
		Channel:   channel,
		Code:      code,
		IssuedAt:  now,
		ExpiresAt: now.Add(s.codeTTL),
	}
	if !hadSender {
		s.senders[k] = &SenderRecord{
			SenderID:    senderID,
			Channel:     channel,
			ChannelName: channelName,
			Status:      StatusPending,
			Label:       label,
		}
	}

	if err := s.persist(); err != nil {
		// Roll back: persistence failure is fatal for the mutation.
		if hadCode {
			s.codes[k] = prevCode
		} else {
			delete(s.codes, k)
		}
		if !hadSender {
			delete(s.senders, k)
		} else {
			s.senders[k] = prevSender
		}
		s.mu.Unlock()
		return "", fmt.Errorf("persist pairing request: %w", err)
	}
	s.mu.Unlock()
	return code, nil
}

// VerifyPairing consumes a pending code. Returns true iff a non-expired
// code exists for the key and matches exactly.
func (s *Service) VerifyPairing(senderID string, channel channeltype.Type, code string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := key(channel, senderID)
	pc, ok := s.codes[k]
	if !ok {
		return false, nil
	}
	if !time.Now().Before(pc.ExpiresAt) {
		return false, nil
	}
	if pc.Code != code {
		return false, nil
	}

	prevSender := s.senders[k]
	now := time.Now()
	rec, ok := s.senders[k]
	if !ok {
		rec = &SenderRecord{SenderID: senderID, Channel: channel}
		s.senders[k] = rec
	}
	rec.Status = StatusApproved
	rec.ApprovedAt = &now
	delete(s.codes, k)

	if err := s.persist(); err != nil {
		s.senders[k] = prevSender
		s.codes[k] = pc
		return false, fmt.Errorf("persist pairing verification: %w", err)
	}
	return true, nil
}

// IsApproved reports whether the sender's current status is approved.
func (s *Service) IsApproved(senderID string, channel channeltype.Type) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.senders[key(channel, senderID)]
	return ok && rec.Status == StatusApproved
}

// Lookup returns a copy of the sender record, if one exists.
func (s *Service) Lookup(senderID string, channel channeltype.Type) (SenderRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.senders[key(channel, senderID)]
	if !ok {
		return SenderRecord{}, false
	}
	return *rec, true
}

// PendingCode returns the outstanding code for a sender, if any and unexpired.
func (s *Service) PendingCode(senderID string, channel channeltype.Type) (PairingCode, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	pc, ok := s.codes[key(channel, senderID)]
	if !ok || !time.Now().Before(pc.ExpiresAt) {
		return PairingCode{}, false
	}
	return *pc, true
}

// BlockSender transitions a sender's status to blocked.
func (s *Service) BlockSender(senderID string, channel channeltype.Type) error {
	return s.setStatus(senderID, channel, StatusBlocked, StatusPending, StatusApproved)
}

// UnblockSender transitions a blocked sender back to approved. No-op
// unless the current status is blocked.
func (s *Service) UnblockSender(senderID string, channel channeltype.Type) error {
	return s.setStatus(senderID, channel, StatusApproved, StatusBlocked)
}

// setStatus moves a sender to target if its current status is one of from
// (empty from means "any"). No-op, non-error if the record is missing or
// the current status doesn't match.
func (s *Service) setStatus(senderID string, channel channeltype.Type, target AuthStatus, from ...AuthStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := key(channel, senderID)
	rec, ok := s.senders[k]
	if !ok {
		return nil
	}
	if len(from) > 0 {
		matched := false
		for _, f := range from {
			if rec.Status == f {
				matched = true
				break
			}
		}
		if !matched {
			return nil
		}
	}

	prevStatus := rec.Status
	rec.Status = target
	if target == StatusApproved && rec.ApprovedAt == nil {
		now := time.Now()
		rec.ApprovedAt = &now
	}

	if err := s.persist(); err != nil {
		rec.Status = prevStatus
		return fmt.Errorf("persist status change: %w", err)
	}
	return nil
}

// GetAllSenders lists sender records, optionally filtered by channel.
func (s *Service) GetAllSenders(channel channeltype.Type) []SenderRecord {
	return s.filterSenders(channel, nil)
}

// GetAllApproved lists only approved sender records, optionally filtered.
func (s *Service) GetAllApproved(channel channeltype.Type) []SenderRecord {
	approved := StatusApproved
	return s.filterSenders(channel, &approved)
}

func (s *Service) filterSenders(channel channeltype.Type, status *AuthStatus) []SenderRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]SenderRecord, 0, len(s.senders))
	for _, rec := range s.senders {
		if channel != "" && rec.Channel != channel {
			continue
		}
		if status != nil && rec.Status != *status {
			continue
		}
		out = append(out, *rec)
	}
	return out
}

// CheckRateLimit returns true (allowed) iff the sender's per-minute token
// bucket still has capacity. It also increments message_count and
// updates last_seen on the record.
func (s *Service) CheckRateLimit(senderID string, channel channeltype.Type) bool {
	k := key(channel, senderID)
	allowed := s.limiter.Allow(k)
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()
	if rec, ok := s.senders[k]; ok {
		rec.MessageCount++
		rec.LastSeen = &now
		// Rate-limit counters are an in-memory fast path; persistence
		// failure here would block every inbound message, so message
		// count/last_seen updates are best-effort and not persisted
		// synchronously on this hot path.
	}
	return allowed
}

// Flush persists any pending in-memory state. Called on daemon shutdown.
func (s *Service) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.persist()
}
