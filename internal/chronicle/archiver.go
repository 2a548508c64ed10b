package chronicle

import (
	"bytes"
	"fmt"

	"github.com/pierrec/lz4/v4"
)

// Archiver compresses closed Chronicle segments before they roll off to
// cold storage. This is the natural "large appendable log" consumer for
// lz4 in the stack: the hash chain itself stays uncompressed on the live
// device (HashChain.Verify reads it directly), but a segment that has
// aged out and is headed for cold storage is archived through here.
type Archiver struct {
	segments [][]byte
}

// Append lz4-compresses segment and retains it in the archiver's buffer.
func (a *Archiver) Append(segment []byte) error {
	var out bytes.Buffer
	w := lz4.NewWriter(&out)
	if _, err := w.Write(segment); err != nil {
		w.Close()
		return fmt.Errorf("chronicle: lz4 compress: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("chronicle: lz4 close: %w", err)
	}
	a.segments = append(a.segments, out.Bytes())
	return nil
}

// Segments returns the compressed segments archived so far, in append
// order.
func (a *Archiver) Segments() [][]byte {
	return a.segments
}

// Restore decompresses one archived segment back to its original bytes.
func Restore(compressed []byte) ([]byte, error) {
	r := lz4.NewReader(bytes.NewReader(compressed))
	var out bytes.Buffer
	if _, err := out.ReadFrom(r); err != nil {
		return nil, fmt.Errorf("chronicle: lz4 decompress: %w", err)
	}
	return out.Bytes(), nil
}
