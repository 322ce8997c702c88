package serial

// Queue is the host-side elastic buffer sitting in front of a Port. Bytes
// are kept in arrival order; the oldest byte is at the head and consumption
// is strictly FIFO. With a zero maximum size the buffer grows on demand.
type Queue struct {
	port    Port
	maxSize int
	data    []byte
	head    int
	count   int
}

// NewQueue creates a queue over the given port. A maxSize of zero allows
// unbounded growth.
func NewQueue(port Port, maxSize int) *Queue {
	return &Queue{port: port, maxSize: maxSize}
}

// Reset detaches any buffered data and rebinds the queue to a port.
func (q *Queue) Reset(port Port) {
	q.port = port
	q.head = 0
	q.count = 0
}

// Count returns the number of bytes buffered locally.
func (q *Queue) Count() int {
	return q.count
}

// Refresh pulls bytes queued by the driver into the local buffer, growing
// it when unbounded. It returns the local byte count.
func (q *Queue) Refresh() int {
	if q.port == nil {
		return q.count
	}
	avail, err := q.port.Available()
	if err != nil || avail == 0 {
		return q.count
	}

	part := avail
	if q.maxSize == 0 {
		// Grow to accommodate everything the driver holds.
		if avail > len(q.data)-q.count {
			grown := make([]byte, q.count+avail)
			copy(grown, q.data[q.head:q.head+q.count])
			q.data = grown
			q.head = 0
		}
	} else if len(q.data) < q.maxSize {
		q.data = make([]byte, q.maxSize)
	} else if q.count >= len(q.data) {
		part = 0
	}
	if q.maxSize != 0 && part > len(q.data)-q.count {
		part = len(q.data) - q.count
	}

	// Compact live bytes to the head before appending.
	if q.count > 0 && q.head > 0 {
		copy(q.data, q.data[q.head:q.head+q.count])
	}
	q.head = 0

	if part > 0 {
		n, _ := q.port.Read(q.data[q.count : q.count+part])
		q.count += n
	}
	return q.count
}

// Available reports the total bytes ready: locally queued plus whatever the
// driver still holds.
func (q *Queue) Available() int {
	q.Refresh()
	if q.port == nil {
		return q.count
	}
	n, _ := q.port.Available()
	return q.count + n
}

// GetData copies exactly len(buf) bytes from the queue, refreshing from the
// port until the request is satisfied. Callers bound the wait by checking
// Available first.
func (q *Queue) GetData(buf []byte) int {
	actual := 0
	for actual < len(buf) {
		q.Refresh()
		part := len(buf) - actual
		if part > q.count {
			part = q.count
		}
		if part > 0 {
			copy(buf[actual:], q.data[q.head:q.head+part])
			actual += part
			q.head += part
			q.count -= part
		}
	}
	return actual
}

// Flush drops locally queued bytes and the driver's input queue.
func (q *Queue) Flush() {
	q.head = 0
	q.count = 0
	if q.port != nil {
		q.port.FlushInput()
	}
}
