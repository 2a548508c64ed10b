package format

import (
	"bytes"
	"fmt"
	"io"

	"github.com/ulikunitz/xz"
)

// DumpGeometry renders a human-readable region layout report and
// XZ-compresses it, the format the CLI's geometry-dump subcommand writes to
// disk (spec §6: the CLI frontend is an external collaborator whose
// interface is otherwise fixed, but this export is purely descriptive —
// support tooling, not a wire format the engine itself reads back).
func DumpGeometry(g *Geometry) ([]byte, error) {
	var plain bytes.Buffer
	fmt.Fprintf(&plain, "profile=%s\n", g.Profile)
	fmt.Fprintf(&plain, "block_size=%d\n", g.BlockSize)
	fmt.Fprintf(&plain, "total_blocks=%d\n", g.TotalBlocks)
	fmt.Fprintf(&plain, "epoch_start=%d epoch_bytes=%d\n", g.EpochStart.Uint64(), g.EpochBytes)
	fmt.Fprintf(&plain, "cortex_start=%d cortex_bytes=%d\n", g.CortexStart.Uint64(), g.CortexBytes)
	fmt.Fprintf(&plain, "bitmap_start=%d bitmap_bytes=%d\n", g.BitmapStart.Uint64(), g.BitmapBytes)
	fmt.Fprintf(&plain, "qmask_start=%d qmask_bytes=%d\n", g.QMaskStart.Uint64(), g.QMaskBytes)
	fmt.Fprintf(&plain, "flux_start=%d flux_bytes=%d\n", g.FluxStart.Uint64(), g.FluxBytes)
	fmt.Fprintf(&plain, "horizon_start=%d horizon_bytes=%d\n", g.HorizonStart.Uint64(), g.HorizonBytes)
	fmt.Fprintf(&plain, "chronicle_start=%d chronicle_bytes=%d\n", g.ChronicleStart.Uint64(), g.ChronicleBytes)
	fmt.Fprintf(&plain, "tail_start=%d\n", g.TailStart.Uint64())

	var out bytes.Buffer
	w, err := xz.NewWriter(&out)
	if err != nil {
		return nil, fmt.Errorf("format: xz writer: %w", err)
	}
	if _, err := w.Write(plain.Bytes()); err != nil {
		w.Close()
		return nil, fmt.Errorf("format: xz write: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("format: xz close: %w", err)
	}
	return out.Bytes(), nil
}

// LoadGeometryDump decompresses a report produced by DumpGeometry back to
// its plain-text form.
func LoadGeometryDump(compressed []byte) (string, error) {
	r, err := xz.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return "", fmt.Errorf("format: xz reader: %w", err)
	}
	out, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("format: xz read: %w", err)
	}
	return string(out), nil
}
