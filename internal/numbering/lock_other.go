//go:build !(darwin || dragonfly || freebsd || linux || netbsd || openbsd || windows)

package numbering

import "os"

// No advisory locking on this platform; a single process per store is assumed.
func lockFile(*os.File) error { return nil }

func unlockFile(*os.File) error { return nil }
