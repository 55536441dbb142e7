package mqtt

import "log"

// outboxMsg is a serialized message waiting for the connection to come back.
type outboxMsg struct {
	topic    string
	payload  []byte
	qos      byte
	retained bool
}

// outbox keeps the newest messages published while offline, dropping the
// oldest once full. Not safe for concurrent use.
type outbox struct {
	msgs    []outboxMsg
	next    int // slot for the next push
	count   int
	dropped int // dropped since the last drain
}

// newOutbox creates an outbox; capacity <= 0 drops every message.
func newOutbox(capacity int) *outbox {
	return &outbox{msgs: make([]outboxMsg, max(capacity, 0))}
}

func (o *outbox) push(msg outboxMsg) {
	capacity := len(o.msgs)
	if capacity == 0 {
		o.dropped++
		return
	}
	if o.count == capacity {
		if o.dropped == 0 {
			log.Printf("mqtt: outbox full (%d messages), dropping oldest", capacity)
		}
		o.dropped++
	} else {
		o.count++
	}
	o.msgs[o.next] = msg
	o.next = (o.next + 1) % capacity
}

// drain returns the held messages oldest first and empties the outbox.
func (o *outbox) drain() []outboxMsg {
	if o.count == 0 {
		o.dropped = 0
		return nil
	}

	capacity := len(o.msgs)
	out := make([]outboxMsg, 0, o.count)
	first := (o.next - o.count + capacity) % capacity
	for i := 0; i < o.count; i++ {
		out = append(out, o.msgs[(first+i)%capacity])
	}

	if o.dropped > 0 {
		log.Printf("mqtt: %d messages were dropped while offline", o.dropped)
	}
	o.next, o.count, o.dropped = 0, 0, 0
	return out
}

func (o *outbox) len() int {
	return o.count
}
