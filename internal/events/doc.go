// Package events records directory notifications and fans them out to
// stream readers.
//
// Every notification is appended to the Log, which stamps it with the next
// value of a logical Clock, and then published on one or more channels of
// the Mux:
//
//   - "events" receives every event
//   - "thing_created", "thing_updated" and "thing_deleted" receive events of
//     their kind
//   - "query_notification/<id>" receives the matches of one continuous query
//
// Publishing never blocks. A reader that is not receiving when an event is
// published misses it; it can catch up with a replay from the Log using the
// last sequence number it saw.
package events
