//go:build darwin

package checkpoint

import (
	"io/fs"
	"syscall"
	"time"
)

func fileCreationTime(_ string, info fs.FileInfo) time.Time {
	if st, ok := info.Sys().(*syscall.Stat_t); ok {
		return time.Unix(st.Birthtimespec.Unix())
	}
	return info.ModTime()
}
