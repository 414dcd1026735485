package events

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSubscriptionChannel(t *testing.T) {
	key := SubscriptionChannel(12)
	assert.Equal(t, "query_notification/12", key)

	id, ok := ParseSubscriptionChannel(key)
	assert.True(t, ok)
	assert.Equal(t, int64(12), id)

	for _, bad := range []string{"query_notification", "query_notification/", "query_notification/x", "query_notification/0", "events"} {
		_, ok := ParseSubscriptionChannel(bad)
		assert.False(t, ok, bad)
	}
}

func TestEventData(t *testing.T) {
	ev := Event{Seq: 1, Kind: KindCreated, ThingID: `urn:dev:"quoted"`}
	assert.Equal(t, `{"id":"urn:dev:\"quoted\""}`, string(ev.Data()))
}

func TestKindValid(t *testing.T) {
	for _, k := range Kinds {
		assert.True(t, k.Valid(), k)
	}
	assert.False(t, Kind("thing_renamed").Valid())
}
