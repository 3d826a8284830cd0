package faye

import "encoding/json"

// Alert is a user-facing notification extracted from a data message.
type Alert struct {
	Body string
}

// Decode extracts the alert carried at data.alert. Heartbeats, acks and
// subscription confirmations yield ok == false. Decode never mutates m.
func Decode(m Message) (Alert, bool) {
	if len(m.Data) == 0 {
		return Alert{}, false
	}
	var data map[string]json.RawMessage
	if err := json.Unmarshal(m.Data, &data); err != nil {
		return Alert{}, false
	}
	raw, ok := data["alert"]
	if !ok || string(raw) == "null" {
		return Alert{}, false
	}
	var body string
	if err := json.Unmarshal(raw, &body); err != nil {
		return Alert{}, false
	}
	return Alert{Body: body}, true
}

// DecodeAll returns the alerts found in a reply, in order.
func DecodeAll(msgs []Message) []Alert {
	var alerts []Alert
	for _, m := range msgs {
		if a, ok := Decode(m); ok {
			alerts = append(alerts, a)
		}
	}
	return alerts
}
