package main

import "github.com/hn4/hydra-nexus/internal/hal"

// openDevice opens a backing file as a real HAL, strict-flushing every
// barrier the way a production mount would (spec §4.3 HAL contract).
func openDevice(path string, sectorSize uint32) (*hal.SysHAL, error) {
	return hal.OpenSysHAL(path, sectorSize, 0, true)
}
