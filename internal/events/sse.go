package events

import (
	"fmt"
	"io"
)

// WriteSSE writes ev as one server-sent event:
//
//	id: <seq>
//	event: <kind>
//	data: {"id":"<thing id>"}
func WriteSSE(w io.Writer, ev Event) error {
	if _, err := fmt.Fprintf(w, "id: %d\nevent: %s\ndata: %s\n\n", ev.Seq, ev.Kind, ev.Data()); err != nil {
		return fmt.Errorf("write event %d: %w", ev.Seq, err)
	}
	return nil
}

// WriteComment writes an SSE comment line, used as a heartbeat.
func WriteComment(w io.Writer, text string) error {
	if _, err := fmt.Fprintf(w, ": %s\n\n", text); err != nil {
		return fmt.Errorf("write comment: %w", err)
	}
	return nil
}
