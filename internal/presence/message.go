package presence

import (
	"encoding/json"

	"github.com/mmsocial/mmclient/internal/core/domain"
)

// Event is one presence transition for one user.
type Event struct {
	UserID int64 `json:"user_id" yaml:"user_id"`
	Online bool  `json:"online" yaml:"online"`
}

type envelope struct {
	Status *status `json:"Status"`
}

// status uses pointers so that missing fields can be told apart from
// zero values.
type status struct {
	UserID *int64 `json:"user_id"`
	Online *bool  `json:"online"`
}

// ParseEvent decodes a Status envelope. Any other shape, including other
// envelope kinds and Status bodies with missing fields, returns
// ErrMalformedPresenceMessage.
func ParseEvent(data []byte) (Event, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Event{}, domain.ErrMalformedPresenceMessage.WithCause(err)
	}
	if env.Status == nil {
		return Event{}, domain.ErrMalformedPresenceMessage.WithDetails("not a Status envelope")
	}
	if env.Status.UserID == nil {
		return Event{}, domain.ErrMalformedPresenceMessage.WithDetails("missing user_id")
	}
	if env.Status.Online == nil {
		return Event{}, domain.ErrMalformedPresenceMessage.WithDetails("missing online")
	}
	return Event{UserID: *env.Status.UserID, Online: *env.Status.Online}, nil
}

// Encode renders ev as a Status envelope.
func Encode(ev Event) ([]byte, error) {
	return json.Marshal(envelope{Status: &status{UserID: &ev.UserID, Online: &ev.Online}})
}
