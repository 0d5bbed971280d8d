package domain

import (
	"encoding/json"
	"fmt"
	"os"

	"chat-drafts/server/internal/model"
)

// LoadSeed 从指定路径加载演示数据（用户、消息、附件）。
func LoadSeed(path string) (model.SeedData, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return model.SeedData{}, fmt.Errorf("read seed: %w", err)
	}

	var seed model.SeedData
	if err := json.Unmarshal(data, &seed); err != nil {
		return model.SeedData{}, fmt.Errorf("parse seed: %w", err)
	}

	for i, u := range seed.Users {
		if u.ID == "" {
			return model.SeedData{}, fmt.Errorf("parse seed: users[%d] missing id", i)
		}
	}
	for i, m := range seed.Messages {
		if m.ID == "" || m.ChannelCID == "" {
			return model.SeedData{}, fmt.Errorf("parse seed: messages[%d] missing id or channel_cid", i)
		}
	}
	for i, a := range seed.Attachments {
		if a.ID == "" || a.ChannelCID == "" {
			return model.SeedData{}, fmt.Errorf("parse seed: attachments[%d] missing id or channel_cid", i)
		}
	}
	return seed, nil
}
