// Package checkpoint derives the resume position of a member directory.
//
// The position is never stored separately: it is the timestamp encoded in
// the name of the most recently created tracked file (".txt", ".jpg",
// ".m4a", ".mp4"). Creation time is read from the file system birth time
// where the platform exposes it:
//   - Linux: statx(2) STATX_BTIME, falling back to ctime
//   - macOS: Birthtimespec
//   - Windows: CreationTime
//   - elsewhere: modification time
//
// Ties are broken by the lexicographically greatest file name, so the
// result does not depend on directory listing order.
//
// The package also keeps a small hidden ledger per member of messages whose
// media could not be downloaded. The next sync starts no later than the
// earliest of them, so a failed download is retried instead of skipped.
package checkpoint
