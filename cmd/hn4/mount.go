package main

import (
	"fmt"

	flag "github.com/spf13/pflag"

	hn4 "github.com/hn4/hydra-nexus"
)

func cmdMount(args []string) error {
	fs := flag.NewFlagSet("mount", flag.ContinueOnError)
	sectorSize := fs.Uint32("sector-size", 4096, "device logical sector size")
	readOnly := fs.BoolP("read-only", "r", false, "mount with mount_flags READ_ONLY")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() < 1 {
		return fmt.Errorf("mount: missing device path")
	}
	path := fs.Arg(0)

	var flags hn4.MountFlag
	if *readOnly {
		flags |= hn4.MountReadOnly
	}

	h, err := openDevice(path, *sectorSize)
	if err != nil {
		return err
	}

	vol, err := hn4.Mount(h, hn4.MountParams{Flags: flags})
	if err != nil {
		h.Close()
		return err
	}

	fmt.Printf("mounted %s: label=%q read_only=%v degraded=%v panicked=%v taint=%d\n",
		path, vol.Label(), vol.ReadOnly(), vol.Degraded(), vol.Panicked(), vol.TaintCounter())
	return vol.Unmount()
}
