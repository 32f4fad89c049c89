// Package channeltype defines the open-ended channel type carrier.
package channeltype

// Type is a wrapped string identifying a channel adapter kind. Unlike a
// closed Go enum, unknown values remain valid carriers so that a plugin
// can introduce a new kind without modifying this package.
type Type string

// Built-in channel kinds registered compile-time.
const (
	Webhook  Type = "webhook"
	Telegram Type = "telegram"
	Discord  Type = "discord"
	Slack    Type = "slack"
	WhatsApp Type = "whatsapp"
	Matrix   Type = "matrix"
	IRC      Type = "irc"
	Signal   Type = "signal"
	Canvas   Type = "canvas"
)

// String returns the underlying value.
func (t Type) String() string {
	return string(t)
}
