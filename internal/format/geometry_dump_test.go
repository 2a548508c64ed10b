package format

import (
	"strings"
	"testing"

	"github.com/hn4/hydra-nexus/internal/superblock"
)

func TestDumpGeometryRoundTrip(t *testing.T) {
	g, err := ComputeGeometry(superblock.ProfileGeneric, 200<<20, 512, false, 0)
	if err != nil {
		t.Fatal(err)
	}
	compressed, err := DumpGeometry(g)
	if err != nil {
		t.Fatal(err)
	}
	if len(compressed) == 0 {
		t.Fatal("expected non-empty compressed dump")
	}
	plain, err := LoadGeometryDump(compressed)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(plain, "profile=GENERIC") {
		t.Fatalf("decompressed dump missing profile line:\n%s", plain)
	}
	if !strings.Contains(plain, "block_size=4096") {
		t.Fatalf("decompressed dump missing block_size line:\n%s", plain)
	}
}
