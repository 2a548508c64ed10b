package main

import (
	"fmt"

	flag "github.com/spf13/pflag"

	"github.com/hn4/hydra-nexus/internal/format"
	"github.com/hn4/hydra-nexus/internal/hal"
)

func cmdGeometry(args []string) error {
	if len(args) == 0 || args[0] != "dump" {
		return fmt.Errorf("geometry: expected subcommand \"dump\"")
	}
	args = args[1:]

	fs := flag.NewFlagSet("geometry dump", flag.ContinueOnError)
	profile := fs.String("profile", "generic", "target profile: generic|ai|system")
	sectorSize := fs.Uint32("sector-size", 4096, "device logical sector size")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() < 1 {
		return fmt.Errorf("geometry dump: missing device path")
	}
	path := fs.Arg(0)

	p, err := profileFromString(*profile)
	if err != nil {
		return err
	}

	h, err := openDevice(path, *sectorSize)
	if err != nil {
		return err
	}
	defer h.Close()

	caps := h.Capabilities()
	isZNS := caps.HWFlags.Has(hal.HWFlagZNSNative)
	geo, err := format.ComputeGeometry(p, caps.TotalCapacityBytes, caps.LogicalBlockSize, isZNS, caps.ZoneSizeBytes)
	if err != nil {
		return err
	}

	dump, err := format.DumpGeometry(geo)
	if err != nil {
		return err
	}
	report, err := format.LoadGeometryDump(dump)
	if err != nil {
		return err
	}
	fmt.Print(report)
	return nil
}
