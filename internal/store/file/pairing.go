// Package file provides single-file, atomic-replace-on-write
// implementations of the daemon's store interfaces — the default,
// dependency-free persistence mode.
package file

import (
	"github.com/letsgo/gateway/internal/channeltype"
	"github.com/letsgo/gateway/internal/pairing"
)

// PairingStore wraps a pairing.Service, which owns its own file
// persistence, to satisfy store.PairingStore.
type PairingStore struct {
	svc *pairing.Service
}

// NewPairingStore wraps an already-constructed pairing.Service.
func NewPairingStore(svc *pairing.Service) *PairingStore {
	return &PairingStore{svc: svc}
}

func (s *PairingStore) RequestPairing(senderID string, channel channeltype.Type, channelName, label string) (string, error) {
	return s.svc.RequestPairing(senderID, channel, channelName, label)
}

func (s *PairingStore) VerifyPairing(senderID string, channel channeltype.Type, code string) (bool, error) {
	return s.svc.VerifyPairing(senderID, channel, code)
}

func (s *PairingStore) IsApproved(senderID string, channel channeltype.Type) bool {
	return s.svc.IsApproved(senderID, channel)
}

func (s *PairingStore) Lookup(senderID string, channel channeltype.Type) (pairing.SenderRecord, bool) {
	return s.svc.Lookup(senderID, channel)
}

func (s *PairingStore) PendingCode(senderID string, channel channeltype.Type) (pairing.PairingCode, bool) {
	return s.svc.PendingCode(senderID, channel)
}

func (s *PairingStore) BlockSender(senderID string, channel channeltype.Type) error {
	return s.svc.BlockSender(senderID, channel)
}

func (s *PairingStore) UnblockSender(senderID string, channel channeltype.Type) error {
	return s.svc.UnblockSender(senderID, channel)
}

func (s *PairingStore) GetAllSenders(channel channeltype.Type) []pairing.SenderRecord {
	return s.svc.GetAllSenders(channel)
}

func (s *PairingStore) GetAllApproved(channel channeltype.Type) []pairing.SenderRecord {
	return s.svc.GetAllApproved(channel)
}

func (s *PairingStore) CheckRateLimit(senderID string, channel channeltype.Type) bool {
	return s.svc.CheckRateLimit(senderID, channel)
}

func (s *PairingStore) Flush() error {
	return s.svc.Flush()
}
