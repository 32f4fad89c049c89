// Package display implements the display-routing subsystem: it classifies
// outbound payloads and, for structured content, maintains an in-memory
// canvas state and broadcasts updates to connected display clients.
package display

import "encoding/json"

// ContentType enumerates the structured content kinds a DisplayEnvelope
// can carry.
type ContentType string

const (
	ContentChart    ContentType = "chart"
	ContentHTML     ContentType = "html"
	ContentSVG      ContentType = "svg"
	ContentMarkdown ContentType = "markdown"
	ContentCode     ContentType = "code"
	ContentTable    ContentType = "table"
)

var validContentTypes = map[ContentType]bool{
	ContentChart: true, ContentHTML: true, ContentSVG: true,
	ContentMarkdown: true, ContentCode: true, ContentTable: true,
}

// Envelope is the validated, tagged-variant display payload.
type Envelope struct {
	ContentType ContentType `json:"content_type"`
	Content     string      `json:"content"`
	ID          string      `json:"id,omitempty"`
	Title       string      `json:"title,omitempty"`
}

// ParseEnvelope attempts to parse text as a DisplayEnvelope. It returns
// ok=false (never an error) when text isn't a valid envelope — the
// fallback is to treat it as a plain chat reply, not to raise.
func ParseEnvelope(text string) (Envelope, bool) {
	var env Envelope
	if err := json.Unmarshal([]byte(text), &env); err != nil {
		return Envelope{}, false
	}
	if env.ContentType == "" || !validContentTypes[env.ContentType] || env.Content == "" {
		return Envelope{}, false
	}
	return env, true
}
