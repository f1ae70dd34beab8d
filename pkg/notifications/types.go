// Package notifications delivers deployment and payment events to external
// webhook endpoints.
package notifications

// Publisher receives service events. The websocket server and Notifier both
// implement it.
type Publisher interface {
	Publish(eventType string, data interface{})
}

// Payload is the JSON body POSTed to each webhook endpoint
type Payload struct {
	ID        string      `json:"id"`
	EventType string      `json:"eventType"`
	Timestamp string      `json:"timestamp"`
	Data      interface{} `json:"data"`
}

type fanout []Publisher

func (f fanout) Publish(eventType string, data interface{}) {
	for _, p := range f {
		p.Publish(eventType, data)
	}
}

// Fanout returns a Publisher that forwards every event to each non-nil
// publisher in order
func Fanout(publishers ...Publisher) Publisher {
	out := make(fanout, 0, len(publishers))
	for _, p := range publishers {
		if p != nil {
			out = append(out, p)
		}
	}
	return out
}
