package models

import "time"

// Draft holds booking fields collected across conversation turns.
type Draft struct {
	BotID          string            `json:"bot_id"`
	ConversationID string            `json:"conversation_id"`
	Intent         string            `json:"intent,omitempty"`
	Fields         map[string]string `json:"fields"`
	UpdatedAt      time.Time         `json:"updated_at"`
}

func (d *Draft) Get(key string) string {
	if d.Fields == nil {
		return ""
	}
	return d.Fields[key]
}

// Merge overwrites fields with non-empty values from update. An empty value
// removes the key.
func (d *Draft) Merge(update map[string]string) {
	if d.Fields == nil {
		d.Fields = make(map[string]string, len(update))
	}
	for k, v := range update {
		if v == "" {
			delete(d.Fields, k)
			continue
		}
		d.Fields[k] = v
	}
}
