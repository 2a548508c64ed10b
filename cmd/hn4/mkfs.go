package main

import (
	"encoding/binary"
	"fmt"

	"github.com/google/uuid"
	flag "github.com/spf13/pflag"

	"github.com/hn4/hydra-nexus/internal/addr"
	hn4 "github.com/hn4/hydra-nexus"
)

func cmdMkfs(args []string) error {
	fs := flag.NewFlagSet("mkfs", flag.ContinueOnError)
	profile := fs.String("profile", "generic", "target profile: generic|ai|system")
	label := fs.String("label", "", "volume label")
	sectorSize := fs.Uint32("sector-size", 4096, "device logical sector size")
	overrideCapacity := fs.Uint64("override-capacity", 0, "format a logical volume smaller than the device")
	specificUUID := fs.String("specific-uuid", "", "clone a specific volume UUID instead of generating one")
	mountIntent := fs.Uint32("mount-intent", 0, "mount_intent_flags to stamp into the superblock")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() < 1 {
		return fmt.Errorf("mkfs: missing device path")
	}
	path := fs.Arg(0)

	p, err := profileFromString(*profile)
	if err != nil {
		return err
	}

	fp := hn4.FormatParams{
		Profile:               p,
		VolumeLabel:           *label,
		MountIntentFlags:      *mountIntent,
		OverrideCapacityBytes: *overrideCapacity,
	}
	if *specificUUID != "" {
		id, err := uuid.Parse(*specificUUID)
		if err != nil {
			return fmt.Errorf("mkfs: invalid --specific-uuid: %w", err)
		}
		b := id[:]
		fp.CloneUUID = true
		fp.SpecificUUID = addr.U128{
			Hi: binary.BigEndian.Uint64(b[0:8]),
			Lo: binary.BigEndian.Uint64(b[8:16]),
		}
	}

	h, err := openDevice(path, *sectorSize)
	if err != nil {
		return err
	}
	defer h.Close()

	geo, err := hn4.Format(h, fp)
	if err != nil {
		return err
	}
	fmt.Printf("formatted %s: profile=%s block_size=%d total_blocks=%d\n", path, *profile, geo.BlockSize, geo.TotalBlocks)
	return nil
}

func profileFromString(s string) (hn4.Profile, error) {
	switch s {
	case "generic":
		return hn4.ProfileGeneric, nil
	case "ai":
		return hn4.ProfileAI, nil
	case "system":
		return hn4.ProfileSystem, nil
	default:
		return 0, fmt.Errorf("unknown profile %q (want generic|ai|system)", s)
	}
}
