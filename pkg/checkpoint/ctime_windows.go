//go:build windows

package checkpoint

import (
	"io/fs"
	"syscall"
	"time"
)

func fileCreationTime(_ string, info fs.FileInfo) time.Time {
	if attr, ok := info.Sys().(*syscall.Win32FileAttributeData); ok {
		return time.Unix(0, attr.CreationTime.Nanoseconds())
	}
	return info.ModTime()
}
