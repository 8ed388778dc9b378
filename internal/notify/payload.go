package notify

import "encoding/json"

// Defaults used when a push payload omits its fields.
const (
	DefaultTitle = "Toggle App"
	DefaultBody  = "State changed"
)

// DecodePayload extracts the title and body from a delivered push payload.
// Payloads are JSON {"title": ..., "body": ...}; a malformed or non-JSON
// payload becomes the literal body under the default title.
func DecodePayload(payload []byte) (title, body string) {
	title = DefaultTitle
	body = DefaultBody

	if len(payload) == 0 {
		return title, body
	}

	var msg struct {
		Title string `json:"title"`
		Body  string `json:"body"`
	}
	if err := json.Unmarshal(payload, &msg); err != nil {
		return title, string(payload)
	}

	if msg.Title != "" {
		title = msg.Title
	}
	if msg.Body != "" {
		body = msg.Body
	}
	return title, body
}
