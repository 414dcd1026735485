package events

import (
	"encoding/json"
	"strconv"
	"strings"
)

// Kind is the type of a notification. The values are the SSE event names.
type Kind string

const (
	KindCreated    Kind = "thing_created"
	KindUpdated    Kind = "thing_updated"
	KindDeleted    Kind = "thing_deleted"
	KindQueryMatch Kind = "query_notification"
)

// Kinds lists every event kind.
var Kinds = []Kind{KindCreated, KindUpdated, KindDeleted, KindQueryMatch}

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	switch k {
	case KindCreated, KindUpdated, KindDeleted, KindQueryMatch:
		return true
	}
	return false
}

// Event is an immutable notification.
type Event struct {
	Seq     int64
	Kind    Kind
	ThingID string

	// SubscriptionID is set for query matches only.
	SubscriptionID int64
}

type payload struct {
	ID string `json:"id"`
}

// Data returns the JSON payload carried on the wire: {"id":"<thing id>"}.
func (e Event) Data() []byte {
	data, err := json.Marshal(payload{ID: e.ThingID})
	if err != nil {
		// A struct with one string field always marshals.
		panic(err)
	}
	return data
}

// Channel keys.
const (
	// AllChannel receives every event.
	AllChannel = "events"

	subscriptionPrefix = string(KindQueryMatch) + "/"
)

// KindChannel returns the fixed channel of a mutation kind.
func KindChannel(k Kind) string {
	return string(k)
}

// SubscriptionChannel returns the channel of a continuous query.
func SubscriptionChannel(id int64) string {
	return subscriptionPrefix + strconv.FormatInt(id, 10)
}

// ParseSubscriptionChannel returns the subscription id of a channel key.
func ParseSubscriptionChannel(key string) (int64, bool) {
	rest, ok := strings.CutPrefix(key, subscriptionPrefix)
	if !ok {
		return 0, false
	}
	id, err := strconv.ParseInt(rest, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// FixedChannels are the channels that live for the lifetime of a Mux.
func FixedChannels() []string {
	return []string{AllChannel, KindChannel(KindCreated), KindChannel(KindUpdated), KindChannel(KindDeleted)}
}

// channelMatches reports whether ev belongs on the channel key.
func channelMatches(key string, ev Event) bool {
	if key == AllChannel {
		return true
	}
	if id, ok := ParseSubscriptionChannel(key); ok {
		return ev.Kind == KindQueryMatch && ev.SubscriptionID == id
	}
	return ev.Kind != KindQueryMatch && string(ev.Kind) == key
}
