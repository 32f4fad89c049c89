// Package message defines the wire-independent message data model shared
// by every channel adapter, the session router, and the daemon pipeline.
package message

import (
	"time"

	"github.com/letsgo/gateway/internal/channeltype"
)

// Attachment is a single piece of media carried alongside a message.
type Attachment struct {
	Filename string
	MIMEType string
	URL      string
	Data     []byte
}

// Inbound is constructed by a channel adapter and is immutable once built;
// transforms in the daemon pipeline replace it with a modified copy rather
// than mutating it in place.
type Inbound struct {
	Channel     channeltype.Type
	ChannelName string
	SenderID    string
	SenderLabel string
	Text        string
	ThreadID    string
	Attachments []Attachment
	Timestamp   time.Time
	Raw         any
}

// Outbound is constructed by the daemon or an outbound transform and handed
// to an adapter's Send method.
type Outbound struct {
	Channel     channeltype.Type
	ChannelName string
	ThreadID    string
	Text        string
	Attachments []Attachment
}
