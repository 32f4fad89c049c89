package backend

import (
	"context"
	"fmt"

	"github.com/letsgo/gateway/internal/message"
)

// EchoBackend is a dependency-free router.Backend used by `letsgo gateway`
// when no backend.url is configured, and by tests to exercise the full
// pipeline without a real agent collaborator.
type EchoBackend struct{}

// Handle implements router.Backend.
func (EchoBackend) Handle(_ context.Context, msg message.Inbound) (string, error) {
	return fmt.Sprintf("echo: %s", msg.Text), nil
}
