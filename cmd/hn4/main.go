// Command hn4 is a thin manual-testing harness over the hn4 package: a
// minimal CLI frontend, out of core scope per spec.md §1, just enough to
// mkfs, mount, dump geometry, and run a fsck-lite Zero-Scan report against a
// device file from a shell.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	if len(args) == 0 {
		fmt.Println(usage())
		return nil
	}

	switch args[0] {
	case "mkfs":
		return cmdMkfs(args[1:])
	case "mount":
		return cmdMount(args[1:])
	case "geometry":
		return cmdGeometry(args[1:])
	case "fsck":
		return cmdFsck(args[1:])
	case "help", "-h", "--help":
		fmt.Println(usage())
		return nil
	default:
		return fmt.Errorf("unknown command %q\n%s", args[0], usage())
	}
}

func usage() string {
	return `Usage: hn4 <command> [options]

Commands:
  mkfs <device>          Format a device (Format params, spec §6)
  mount <device>         Mount a device and report its published state
  geometry dump <device> Print the computed region layout
  fsck <device>          Mount read-only and report the Zero-Scan reconciliation
  help                   Show this message`
}
