package main

import (
	"fmt"

	flag "github.com/spf13/pflag"

	hn4 "github.com/hn4/hydra-nexus"
)

func cmdFsck(args []string) error {
	fs := flag.NewFlagSet("fsck", flag.ContinueOnError)
	sectorSize := fs.Uint32("sector-size", 4096, "device logical sector size")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() < 1 {
		return fmt.Errorf("fsck: missing device path")
	}
	path := fs.Arg(0)

	h, err := openDevice(path, *sectorSize)
	if err != nil {
		return err
	}

	vol, err := hn4.Mount(h, hn4.MountParams{Flags: hn4.MountReadOnly})
	if err != nil {
		h.Close()
		return err
	}
	defer vol.Close()

	fmt.Printf("fsck %s: degraded=%v panicked=%v taint=%d\n", path, vol.Degraded(), vol.Panicked(), vol.TaintCounter())

	report := vol.ZeroScanReport()
	if report == nil {
		fmt.Println("zero-scan: not run (resource load failed on this degraded mount)")
		return nil
	}
	fmt.Printf("zero-scan: anchors_scanned=%d ghosts_revived=%d taint_delta=%d\n",
		report.AnchorsScanned, report.GhostsRevived, report.TaintDelta)
	return nil
}
