//go:build linux

package shm

import (
	"github.com/shirou/gopsutil/v3/disk"
)

// canCreateOnDevShm reports whether dir has size bytes free. A dir whose
// usage cannot be read is not treated as full.
func canCreateOnDevShm(size uint64, dir string) bool {
	stat, err := disk.Usage(dir)
	if err != nil {
		return true
	}
	return stat.Free >= size
}
