package nodes

import (
	"strings"

	contractx "github.com/tanpawarit/whiteboard-agent/agent/contract"
)

type MessageInput struct {
	SessionID string
	Text      string
}

// ValidateRequest checks an incoming user message and trims its text. The
// session id is kept as given.
func ValidateRequest(in MessageInput) (MessageInput, error) {
	sessionID := in.SessionID
	if err := contractx.CheckSessionID(sessionID); err != nil {
		return MessageInput{}, err
	}
	text := strings.TrimSpace(in.Text)
	if text == "" {
		return MessageInput{}, contractx.ErrInvalidMessage
	}
	return MessageInput{SessionID: sessionID, Text: text}, nil
}
