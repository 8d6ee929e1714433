//go:build !linux && !darwin && !windows

package checkpoint

import (
	"io/fs"
	"time"
)

func fileCreationTime(_ string, info fs.FileInfo) time.Time {
	return info.ModTime()
}
