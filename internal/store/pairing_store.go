// Package store defines the durable-storage interfaces the daemon depends
// on. Concrete implementations live in store/file (single-file JSON, the
// default) and store/pg (Postgres, for multi-process deployments).
package store

import (
	"github.com/letsgo/gateway/internal/channeltype"
	"github.com/letsgo/gateway/internal/pairing"
)

// PairingStore is the durable sender-auth/rate-limit surface the daemon's
// inbound pipeline and admin API depend on.
type PairingStore interface {
	RequestPairing(senderID string, channel channeltype.Type, channelName, label string) (string, error)
	VerifyPairing(senderID string, channel channeltype.Type, code string) (bool, error)
	IsApproved(senderID string, channel channeltype.Type) bool
	Lookup(senderID string, channel channeltype.Type) (pairing.SenderRecord, bool)
	PendingCode(senderID string, channel channeltype.Type) (pairing.PairingCode, bool)
	BlockSender(senderID string, channel channeltype.Type) error
	UnblockSender(senderID string, channel channeltype.Type) error
	GetAllSenders(channel channeltype.Type) []pairing.SenderRecord
	GetAllApproved(channel channeltype.Type) []pairing.SenderRecord
	CheckRateLimit(senderID string, channel channeltype.Type) bool
	Flush() error
}
