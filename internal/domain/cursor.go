package domain

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// MessageCursor указывает на самое раннее сообщение уже загруженной части.
// Снаружи передается непрозрачной строкой.
type MessageCursor struct {
	Timestamp int64     `json:"ts"`
	ID        uuid.UUID `json:"id"`
}

func CursorFor(m *Message) MessageCursor {
	return MessageCursor{Timestamp: m.Timestamp.UnixMicro(), ID: m.ID}
}

func (c MessageCursor) Time() time.Time {
	return time.UnixMicro(c.Timestamp).UTC()
}

func EncodeCursor(c MessageCursor) string {
	raw, _ := json.Marshal(c)
	return base64.RawURLEncoding.EncodeToString(raw)
}

func DecodeCursor(s string) (MessageCursor, error) {
	var c MessageCursor
	raw, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return c, fmt.Errorf("decode cursor: %w", err)
	}
	if err := json.Unmarshal(raw, &c); err != nil {
		return c, fmt.Errorf("unmarshal cursor: %w", err)
	}
	if c.ID == uuid.Nil || c.Timestamp <= 0 {
		return c, fmt.Errorf("cursor is incomplete")
	}
	return c, nil
}
