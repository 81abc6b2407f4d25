// Package capture stores serial traffic as a stream of CBOR records.
package capture

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"
)

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error

	encOpts := cbor.EncOptions{
		Sort:          cbor.SortCanonical,
		IndefLength:   cbor.IndefLengthForbidden,
		NilContainers: cbor.NilContainerAsNull,
		Time:          cbor.TimeRFC3339Nano,
	}
	encMode, err = encOpts.EncMode()
	if err != nil {
		panic(fmt.Sprintf("capture: encoder mode: %v", err))
	}

	decOpts := cbor.DecOptions{
		DupMapKey:   cbor.DupMapKeyQuiet,
		IndefLength: cbor.IndefLengthAllowed,
	}
	decMode, err = decOpts.DecMode()
	if err != nil {
		panic(fmt.Sprintf("capture: decoder mode: %v", err))
	}
}

// Direction of the captured bytes relative to the host.
type Direction uint8

const (
	DirectionRX Direction = 0
	DirectionTX Direction = 1
)

func (d Direction) String() string {
	switch d {
	case DirectionRX:
		return "RX"
	case DirectionTX:
		return "TX"
	default:
		return fmt.Sprintf("Direction(%d)", d)
	}
}

// Record is one chunk of traffic, or a condition reported by the port when
// Condition is set.
type Record struct {
	Time      time.Time `cbor:"1,keyasint"`
	Port      string    `cbor:"2,keyasint"`
	Direction Direction `cbor:"3,keyasint"`
	Data      []byte    `cbor:"4,keyasint,omitempty"`
	Condition string    `cbor:"5,keyasint,omitempty"`
}

// Writer appends records to an io.Writer. It is safe for concurrent use.
type Writer struct {
	mu     sync.Mutex
	enc    *cbor.Encoder
	count  int
	closed bool
}

func NewWriter(w io.Writer) *Writer {
	return &Writer{enc: encMode.NewEncoder(w)}
}

// Write encodes r. Writes after Close are dropped.
func (w *Writer) Write(r Record) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	if err := w.enc.Encode(r); err != nil {
		return err
	}
	w.count++
	return nil
}

// Count returns the number of records written.
func (w *Writer) Count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.count
}

// Close stops further writes. It does not close the underlying writer.
func (w *Writer) Close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
}

// Reader iterates over records written by a Writer.
type Reader struct {
	dec *cbor.Decoder
}

func NewReader(r io.Reader) *Reader {
	return &Reader{dec: decMode.NewDecoder(r)}
}

// Next returns the next record, or io.EOF at the end of the stream.
func (r *Reader) Next() (Record, error) {
	var rec Record
	if err := r.dec.Decode(&rec); err != nil {
		if errors.Is(err, io.EOF) {
			return Record{}, io.EOF
		}
		return Record{}, err
	}
	return rec, nil
}

// ReadAll decodes every record in r.
func ReadAll(r io.Reader) ([]Record, error) {
	reader := NewReader(r)
	var records []Record
	for {
		rec, err := reader.Next()
		if err == io.EOF {
			return records, nil
		}
		if err != nil {
			return records, err
		}
		records = append(records, rec)
	}
}
