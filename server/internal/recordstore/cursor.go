package recordstore

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"
)

// cursorPayload 记录上一页最后一条的排序键。
type cursorPayload struct {
	LastUpdatedAt time.Time `json:"last_updated_at"`
	LastKey       string    `json:"last_key"`
}

func encodeCursor(updatedAt time.Time, key string) string {
	b, err := json.Marshal(cursorPayload{LastUpdatedAt: updatedAt.UTC(), LastKey: key})
	if err != nil {
		return ""
	}
	return base64.RawURLEncoding.EncodeToString(b)
}

// decodeCursor 解析游标；空字符串表示第一页，返回 ok=false。
func decodeCursor(cursor string) (cp cursorPayload, ok bool, err error) {
	if cursor == "" {
		return cp, false, nil
	}
	data, err := base64.RawURLEncoding.DecodeString(cursor)
	if err != nil {
		return cp, false, fmt.Errorf("%w: decode base64: %v", ErrInvalidCursor, err)
	}
	if err := json.Unmarshal(data, &cp); err != nil {
		return cp, false, fmt.Errorf("%w: decode json: %v", ErrInvalidCursor, err)
	}
	return cp, true, nil
}

// after 判断 (updatedAt, key) 在 (updated_at DESC, key DESC) 顺序下是否排在游标之后。
func (c cursorPayload) after(updatedAt time.Time, key string) bool {
	if updatedAt.Equal(c.LastUpdatedAt) {
		return key < c.LastKey
	}
	return updatedAt.Before(c.LastUpdatedAt)
}
