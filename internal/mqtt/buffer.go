package mqtt

import "log/slog"

// queuedMsg is a serialized message waiting for the broker to come back.
type queuedMsg struct {
	topic    string
	payload  []byte
	qos      byte
	retained bool
}

// offlineQueue keeps the most recent messages published while the broker was
// unreachable. When full it overwrites the oldest entry.
// Not safe for concurrent use; caller must synchronize.
type offlineQueue struct {
	buf     []queuedMsg
	head    int // next write position
	count   int
	dropped uint64 // total overwritten, never reset
	warned  bool   // overflow already logged since the last drain
	logger  *slog.Logger
}

func newOfflineQueue(capacity int, logger *slog.Logger) *offlineQueue {
	if capacity < 1 {
		capacity = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &offlineQueue{
		buf:    make([]queuedMsg, capacity),
		logger: logger,
	}
}

func (q *offlineQueue) push(msg queuedMsg) {
	if q.count == len(q.buf) {
		if !q.warned {
			q.logger.Warn("mqtt offline queue full, dropping oldest", "capacity", len(q.buf))
			q.warned = true
		}
		q.dropped++
		// head points at the oldest entry when full
		q.buf[q.head] = msg
		q.head = (q.head + 1) % len(q.buf)
		return
	}
	q.buf[q.head] = msg
	q.head = (q.head + 1) % len(q.buf)
	q.count++
}

// drainAll returns the queued messages oldest first and empties the queue.
func (q *offlineQueue) drainAll() []queuedMsg {
	if q.count == 0 {
		return nil
	}

	out := make([]queuedMsg, q.count)
	start := (q.head - q.count + len(q.buf)) % len(q.buf)
	for i := range out {
		out[i] = q.buf[(start+i)%len(q.buf)]
		q.buf[(start+i)%len(q.buf)] = queuedMsg{}
	}

	q.count = 0
	q.head = 0
	q.warned = false
	return out
}

func (q *offlineQueue) len() int {
	return q.count
}
