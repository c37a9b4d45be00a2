package outbox

import (
	"encoding/binary"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/pebble"
)

// State tracks an entry's progress through the publish pipeline.
type State byte

const (
	// StateNew: persisted, not yet handed to the broker.
	StateNew State = iota
	// StateSent: handed to the broker, acknowledgement pending.
	StateSent
	// StateAcked: broker confirmed; the entry is eligible for removal.
	StateAcked
)

// Record is one durably stored execution report awaiting publication.
type Record struct {
	Seq         uint64
	State       State
	Attempts    uint32
	LastAttempt int64
	Payload     []byte
}

// Outbox is a write-ahead store for outbound execution reports. Reports are
// appended before any publish attempt, so a crash between matching and
// publication loses nothing; the publisher drains pending entries on a
// schedule and acknowledges them once the broker accepts.
type Outbox struct {
	db  *pebble.DB
	seq atomic.Uint64
}

const keyPrefix = "exec/"

func key(seq uint64) []byte {
	return []byte(fmt.Sprintf("%s%020d", keyPrefix, seq))
}

// value layout: [state:1][attempts:4][lastAttempt:8][payload]
const headerLen = 1 + 4 + 8

func encode(r *Record) []byte {
	buf := make([]byte, headerLen+len(r.Payload))
	buf[0] = byte(r.State)
	binary.BigEndian.PutUint32(buf[1:5], r.Attempts)
	binary.BigEndian.PutUint64(buf[5:13], uint64(r.LastAttempt))
	copy(buf[headerLen:], r.Payload)
	return buf
}

func decode(seq uint64, val []byte) (*Record, error) {
	if len(val) < headerLen {
		return nil, fmt.Errorf("outbox: entry %d truncated (%d bytes)", seq, len(val))
	}
	r := &Record{
		Seq:         seq,
		State:       State(val[0]),
		Attempts:    binary.BigEndian.Uint32(val[1:5]),
		LastAttempt: int64(binary.BigEndian.Uint64(val[5:13])),
	}
	r.Payload = append(r.Payload, val[headerLen:]...)
	return r, nil
}

// Open opens (or creates) the outbox store at dir and resumes the append
// sequence after the highest persisted entry.
func Open(dir string) (*Outbox, error) {
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("outbox: open %s: %w", dir, err)
	}
	o := &Outbox{db: db}
	if err := o.recoverSeq(); err != nil {
		db.Close()
		return nil, err
	}
	return o, nil
}

func (o *Outbox) recoverSeq() error {
	iter, err := o.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte(keyPrefix),
		UpperBound: []byte(keyPrefix + "~"),
	})
	if err != nil {
		return fmt.Errorf("outbox: recover: %w", err)
	}
	defer iter.Close()

	if iter.Last() {
		var last uint64
		if _, err := fmt.Sscanf(string(iter.Key()), keyPrefix+"%d", &last); err != nil {
			return fmt.Errorf("outbox: malformed key %q: %w", iter.Key(), err)
		}
		o.seq.Store(last)
	}
	return nil
}

// Append durably stores a new entry and returns its sequence number. The
// write is synced before returning.
func (o *Outbox) Append(payload []byte) (uint64, error) {
	seq := o.seq.Add(1)
	r := &Record{Seq: seq, State: StateNew, Payload: payload}
	if err := o.db.Set(key(seq), encode(r), pebble.Sync); err != nil {
		return 0, fmt.Errorf("outbox: append %d: %w", seq, err)
	}
	return seq, nil
}

func (o *Outbox) get(seq uint64) (*Record, error) {
	val, closer, err := o.db.Get(key(seq))
	if err != nil {
		return nil, fmt.Errorf("outbox: get %d: %w", seq, err)
	}
	defer closer.Close()
	return decode(seq, val)
}

func (o *Outbox) put(r *Record, sync bool) error {
	opts := pebble.NoSync
	if sync {
		opts = pebble.Sync
	}
	if err := o.db.Set(key(r.Seq), encode(r), opts); err != nil {
		return fmt.Errorf("outbox: put %d: %w", r.Seq, err)
	}
	return nil
}

// MarkSent records a publish attempt on the entry.
func (o *Outbox) MarkSent(seq uint64) error {
	r, err := o.get(seq)
	if err != nil {
		return err
	}
	r.State = StateSent
	r.Attempts++
	r.LastAttempt = time.Now().UnixNano()
	return o.put(r, false)
}

// MarkAcked records broker confirmation; acked entries are skipped by scans
// and removed by the next cleanup.
func (o *Outbox) MarkAcked(seq uint64) error {
	r, err := o.get(seq)
	if err != nil {
		return err
	}
	r.State = StateAcked
	return o.put(r, true)
}

// Delete removes the entry outright.
func (o *Outbox) Delete(seq uint64) error {
	if err := o.db.Delete(key(seq), pebble.Sync); err != nil {
		return fmt.Errorf("outbox: delete %d: %w", seq, err)
	}
	return nil
}

// ScanPending walks all non-acked entries in sequence order and hands each
// to fn. A non-nil error from fn aborts the scan.
func (o *Outbox) ScanPending(fn func(*Record) error) error {
	iter, err := o.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte(keyPrefix),
		UpperBound: []byte(keyPrefix + "~"),
	})
	if err != nil {
		return fmt.Errorf("outbox: scan: %w", err)
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		var seq uint64
		if _, err := fmt.Sscanf(string(iter.Key()), keyPrefix+"%d", &seq); err != nil {
			return fmt.Errorf("outbox: malformed key %q: %w", iter.Key(), err)
		}
		r, err := decode(seq, iter.Value())
		if err != nil {
			return err
		}
		if r.State == StateAcked {
			continue
		}
		if err := fn(r); err != nil {
			return err
		}
	}
	return iter.Error()
}

// Compact removes all acked entries.
func (o *Outbox) Compact() error {
	iter, err := o.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte(keyPrefix),
		UpperBound: []byte(keyPrefix + "~"),
	})
	if err != nil {
		return fmt.Errorf("outbox: compact: %w", err)
	}
	defer iter.Close()

	batch := o.db.NewBatch()
	for iter.First(); iter.Valid(); iter.Next() {
		val := iter.Value()
		if len(val) >= 1 && State(val[0]) == StateAcked {
			if err := batch.Delete(iter.Key(), nil); err != nil {
				batch.Close()
				return fmt.Errorf("outbox: compact: %w", err)
			}
		}
	}
	if err := iter.Error(); err != nil {
		batch.Close()
		return err
	}
	return batch.Commit(pebble.Sync)
}

func (o *Outbox) Close() error {
	return o.db.Close()
}
