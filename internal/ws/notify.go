package ws

import "time"

const EventSegmentUpdated = "segment_updated"

type Event struct {
	Event     string `json:"event"`
	SegmentID int64  `json:"segment_id"`
	Timestamp string `json:"timestamp"`
}

// Notify pushes an event onto the token's channel. Tokens without an active
// session drop the message.
func (m *Manager) Notify(token, event string, segmentID int64) error {
	if token == "" {
		return nil
	}
	return m.SendMessage(token, Event{
		Event:     event,
		SegmentID: segmentID,
		Timestamp: time.Now().Format(time.RFC3339),
	})
}
