//go:build !unix

package storage

import "os"

// Without flock the file driver is only safe for a single process.
func lockFile(*os.File) error   { return nil }
func unlockFile(*os.File) error { return nil }
