// Package eventlog keeps the ordered journal of committed ledger
// events: an in-memory tail for reads and live subscriptions, an
// optional durable archive, and a bloom index over every account that
// has ever appeared in a record.
package eventlog

import (
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/willf/bloom"

	"github.com/cinder-labs/cinder/crypto/address"
	"github.com/cinder-labs/cinder/ledger"
)

const (
	// DefaultRetained is the in-memory tail length. Older records are
	// evicted from memory but stay in the archive and the bloom index.
	DefaultRetained = 4096

	// subscriberBuffer is each subscriber's channel depth. A subscriber
	// that falls this far behind starts losing records.
	subscriberBuffer = 128

	expectedAddresses = 1_000_000
	falsePositiveRate = 0.01
)

// Record is one committed event with its journal position and the wall
// time of the commit in unix milliseconds.
type Record struct {
	Seq   uint64       `cbor:"1,keyasint" json:"seq"`
	Time  int64        `cbor:"2,keyasint" json:"time"`
	Event ledger.Event `cbor:"3,keyasint" json:"event"`
}

// Archive persists record batches as they are appended. A failed write
// is logged and does not stop the journal.
type Archive interface {
	SaveRecords(recs []Record) error
}

// Config tunes a Journal. The zero value is usable.
type Config struct {
	// Retained caps the in-memory tail. Zero means DefaultRetained.
	Retained int
	// Archive, when set, receives every appended batch before fan-out.
	Archive Archive
	// Now overrides the wall clock, for tests.
	Now func() time.Time
	// Log defaults to slog.Default().
	Log *slog.Logger
}

// Journal collects committed ledger events in order. It implements
// ledger.EventSink.
type Journal struct {
	mu       sync.RWMutex
	records  []Record
	seq      uint64
	dropped  uint64
	retained int
	seen     *bloom.BloomFilter
	subs     map[uuid.UUID]chan Record
	archive  Archive
	now      func() time.Time
	log      *slog.Logger
}

var _ ledger.EventSink = (*Journal)(nil)

func New(cfg Config) *Journal {
	j := &Journal{
		retained: cfg.Retained,
		seen:     bloom.NewWithEstimates(expectedAddresses, falsePositiveRate),
		subs:     make(map[uuid.UUID]chan Record),
		archive:  cfg.Archive,
		now:      cfg.Now,
		log:      cfg.Log,
	}
	if j.retained <= 0 {
		j.retained = DefaultRetained
	}
	if j.now == nil {
		j.now = time.Now
	}
	if j.log == nil {
		j.log = slog.Default()
	}
	return j
}

// Append stamps and journals the records of one committed operation.
// The ledger calls it with its lock held, so nothing here waits on a
// subscriber: a lagging subscriber loses records instead of stalling
// the committer. The archive write is the only I/O.
func (j *Journal) Append(events []ledger.Event) {
	if len(events) == 0 {
		return
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	now := j.now().UnixMilli()
	recs := make([]Record, len(events))
	for i, ev := range events {
		j.seq++
		recs[i] = Record{Seq: j.seq, Time: now, Event: ev}
		j.markSeen(ev)
	}

	if j.archive != nil {
		if err := j.archive.SaveRecords(recs); err != nil {
			j.log.Error("event archive write failed", "first_seq", recs[0].Seq, "error", err)
		}
	}

	j.records = append(j.records, recs...)
	j.evict()

	for id, ch := range j.subs {
		for _, rec := range recs {
			select {
			case ch <- rec:
			default:
				j.dropped++
				j.log.Warn("subscriber lagging, record dropped", "subscriber", id, "seq", rec.Seq)
			}
		}
	}
}

// Restore seeds the journal from previously archived records, oldest
// first, without notifying subscribers. Call it before the first
// Append.
func (j *Journal) Restore(recs ...Record) {
	j.mu.Lock()
	defer j.mu.Unlock()

	for _, rec := range recs {
		if rec.Seq > j.seq {
			j.seq = rec.Seq
		}
		j.markSeen(rec.Event)
		j.records = append(j.records, rec)
	}
	j.evict()
}

func (j *Journal) markSeen(ev ledger.Event) {
	if !ev.From.IsNull() {
		j.seen.AddString(string(ev.From[:]))
	}
	if !ev.To.IsNull() {
		j.seen.AddString(string(ev.To[:]))
	}
}

func (j *Journal) evict() {
	if over := len(j.records) - j.retained; over > 0 {
		kept := make([]Record, j.retained)
		copy(kept, j.records[over:])
		j.records = kept
	}
}

// Seen reports whether addr has ever been party to a committed record.
// False positives occur at the bloom rate; false negatives do not. The
// null address is not an account and always reports false.
func (j *Journal) Seen(addr address.Address) bool {
	if addr.IsNull() {
		return false
	}
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.seen.TestString(string(addr[:]))
}

// LastSeq returns the newest assigned sequence number, zero when no
// record was ever appended or restored.
func (j *Journal) LastSeq() uint64 {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.seq
}

// Len reports how many records the in-memory tail holds.
func (j *Journal) Len() int {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return len(j.records)
}

// Dropped counts records lost to lagging subscribers.
func (j *Journal) Dropped() uint64 {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.dropped
}

// Recent returns up to n of the newest retained records, oldest first.
func (j *Journal) Recent(n int) []Record {
	j.mu.RLock()
	defer j.mu.RUnlock()

	if n <= 0 {
		return nil
	}
	if n > len(j.records) {
		n = len(j.records)
	}
	out := make([]Record, n)
	copy(out, j.records[len(j.records)-n:])
	return out
}

// Since returns up to limit retained records with Seq greater than
// after, oldest first. Records already evicted from memory are only
// available from the archive.
func (j *Journal) Since(after uint64, limit int) []Record {
	j.mu.RLock()
	defer j.mu.RUnlock()

	if limit <= 0 {
		return nil
	}
	i := sort.Search(len(j.records), func(i int) bool { return j.records[i].Seq > after })
	rest := j.records[i:]
	if limit > len(rest) {
		limit = len(rest)
	}
	out := make([]Record, limit)
	copy(out, rest[:limit])
	return out
}

// Subscribe registers a live feed of appended records. The returned
// channel is closed by Unsubscribe or Close.
func (j *Journal) Subscribe() (uuid.UUID, <-chan Record) {
	j.mu.Lock()
	defer j.mu.Unlock()

	id := uuid.New()
	ch := make(chan Record, subscriberBuffer)
	j.subs[id] = ch
	return id, ch
}

func (j *Journal) Unsubscribe(id uuid.UUID) {
	j.mu.Lock()
	defer j.mu.Unlock()

	if ch, ok := j.subs[id]; ok {
		delete(j.subs, id)
		close(ch)
	}
}

// Close drops every subscriber. The journal itself stays readable.
func (j *Journal) Close() {
	j.mu.Lock()
	defer j.mu.Unlock()

	for id, ch := range j.subs {
		delete(j.subs, id)
		close(ch)
	}
}
