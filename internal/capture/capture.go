// Package capture records raw frame traffic exchanged with the printer. The
// protocol is only partially documented, so keeping the last N frames around
// for a post-mortem hex dump is the main debugging tool when a job misbehaves.
package capture

import (
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/hedzr/go-ringbuf/v2/mpmc"
)

// Direction marks which side of the link produced a record.
type Direction int

const (
	// TX is host-to-device traffic (control and data frames).
	TX Direction = iota
	// RX is device-to-host traffic (notification frames).
	RX
)

func (d Direction) String() string {
	if d == TX {
		return "TX"
	}
	return "RX"
}

// Record is one captured frame.
type Record struct {
	Ts   time.Time
	Dir  Direction
	Data []byte
}

// String renders the record as a single capture-log line.
func (r Record) String() string {
	return fmt.Sprintf("%s %s % X", r.Ts.Format("15:04:05.000"), r.Dir, r.Data)
}

// Log is a fixed-capacity traffic capture. When full, the oldest records are
// overwritten so a long job cannot grow memory without bound. All methods are
// safe for concurrent use.
type Log struct {
	buffer      mpmc.RichOverlappedRingBuffer[Record]
	overwritten atomic.Int64
}

// NewLog creates a capture log holding up to capacity records.
func NewLog(capacity uint32) *Log {
	if capacity == 0 {
		capacity = 256
	}
	return &Log{buffer: mpmc.NewOverlappedRingBuffer[Record](capacity)}
}

// Record stores one frame. The data slice is copied; callers may reuse it.
func (l *Log) Record(dir Direction, data []byte) {
	cp := make([]byte, len(data))
	copy(cp, data)
	rec := Record{Ts: time.Now(), Dir: dir, Data: cp}
	if overwrites, err := l.buffer.EnqueueM(rec); err == nil {
		l.overwritten.Add(int64(overwrites))
	}
}

// Drain removes and returns all buffered records in arrival order.
func (l *Log) Drain() []Record {
	var records []Record
	for !l.buffer.IsEmpty() {
		rec, err := l.buffer.Dequeue()
		if err != nil {
			break
		}
		records = append(records, rec)
	}
	return records
}

// Dump drains the log and renders it as one hex-dump line per frame.
func (l *Log) Dump() string {
	var sb strings.Builder
	for _, rec := range l.Drain() {
		sb.WriteString(rec.String())
		sb.WriteByte('\n')
	}
	return sb.String()
}

// Overwritten reports how many records were lost to buffer wrap-around.
func (l *Log) Overwritten() int64 {
	return l.overwritten.Load()
}
