package connection

import (
	"encoding/json"

	"github.com/vicinity-chat/vicinity-go/internal/models"
)

// DecodeEvent maps an inbound domain frame to its typed payload. Frame
// types this client does not model (chat messages, typing) decode to a
// generic map so downstream consumers can still observe them.
func DecodeEvent(frame models.Frame) (any, error) {
	switch frame.Type {
	case models.EventRoomCreated:
		return decode[models.RoomCreatedEvent](frame.Payload)
	case models.EventRoomUpdated:
		return decode[models.RoomUpdatedEvent](frame.Payload)
	case models.EventRoomClosed:
		return decode[models.RoomClosedEvent](frame.Payload)
	case models.EventRoomExpiring:
		return decode[models.RoomExpiringEvent](frame.Payload)
	case models.EventParticipantCount:
		return decode[models.ParticipantCountEvent](frame.Payload)
	case models.EventUserJoined, models.EventUserLeft:
		return decode[models.MembershipEvent](frame.Payload)
	case models.EventUserKicked, models.EventUserBanned, models.EventUserUnbanned:
		return decode[models.ModerationEvent](frame.Payload)
	default:
		return decode[map[string]any](frame.Payload)
	}
}

func decode[T any](raw json.RawMessage) (T, error) {
	var v T
	if len(raw) == 0 {
		return v, nil
	}
	err := json.Unmarshal(raw, &v)
	return v, err
}
