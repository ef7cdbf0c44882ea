package stream

// recordBuffer is a bounded FIFO of fetched-but-not-yet-yielded records for
// one shard. It decouples how many records one network fetch returns from
// how many the caller consumes per step: the coordinator fetches in batches
// and yields one record at a time.
type recordBuffer struct {
	records []Record
	limit   int
}

func newRecordBuffer(limit int) *recordBuffer {
	return &recordBuffer{limit: limit}
}

// free reports how many more records fit; the shard caps its fetch size with
// this so a poll can never overflow the buffer.
func (b *recordBuffer) free() int {
	return b.limit - len(b.records)
}

func (b *recordBuffer) len() int {
	return len(b.records)
}

func (b *recordBuffer) push(records ...Record) {
	b.records = append(b.records, records...)
}

// peek returns the oldest buffered record without removing it.
func (b *recordBuffer) peek() (Record, bool) {
	if len(b.records) == 0 {
		return Record{}, false
	}
	return b.records[0], true
}

// pop removes and returns the oldest buffered record.
func (b *recordBuffer) pop() (Record, bool) {
	if len(b.records) == 0 {
		return Record{}, false
	}
	r := b.records[0]
	b.records = b.records[1:]
	return r, true
}
