package storage

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// TimestampLayout is the compact publish time embedded in artifact names
const TimestampLayout = "20060102150405"

// TypeCode is the second underscore field of an artifact name
type TypeCode int

const (
	TypeText    TypeCode = 0
	TypePicture TypeCode = 1
	TypeVideo   TypeCode = 2
	TypeVoice   TypeCode = 3
)

// Tracked extensions. Only files with these extensions take part in
// checkpoint resolution.
const (
	ExtText  = ".txt"
	ExtImage = ".jpg"
	ExtVoice = ".m4a"
	ExtVideo = ".mp4"
)

var trackedExtensions = map[string]bool{
	ExtText:  true,
	ExtImage: true,
	ExtVoice: true,
	ExtVideo: true,
}

// IsTracked reports whether name carries one of the tracked extensions
func IsTracked(name string) bool {
	return trackedExtensions[filepath.Ext(name)]
}

// Artifact is the decoded form of "<id>_<typecode>_<yyyyMMddHHmmss><ext>"
type Artifact struct {
	ID    string
	Type  TypeCode
	Stamp string
	Ext   string
}

// ValidateID reports whether id can be the first field of an artifact name.
// The name must decode back to the same id and stay inside the member
// directory.
func ValidateID(id string) error {
	switch {
	case id == "":
		return fmt.Errorf("message id is empty")
	case strings.ContainsAny(id, `_/\`):
		return fmt.Errorf("message id %q contains a separator", id)
	case strings.HasPrefix(id, "."):
		return fmt.Errorf("message id %q starts with a dot", id)
	}
	return nil
}

// Stem returns the name without extension
func (a Artifact) Stem() string {
	return fmt.Sprintf("%s_%d_%s", a.ID, a.Type, a.Stamp)
}

// FileName returns the full artifact name
func (a Artifact) FileName() string {
	return a.Stem() + a.Ext
}

// WithExt returns a copy of a using ext
func (a Artifact) WithExt(ext string) Artifact {
	a.Ext = ext
	return a
}

// IsSentinel reports whether a is the "no messages yet" anchor
func (a Artifact) IsSentinel() bool {
	return a.ID == "0" && a.Type == TypeText
}

// Time parses the first 14 characters of the stamp as a UTC time
func (a Artifact) Time() (time.Time, error) {
	return ParseStamp(a.Stamp)
}

// ParseStamp parses the leading yyyyMMddHHmmss of s as UTC
func ParseStamp(s string) (time.Time, error) {
	if len(s) < len(TimestampLayout) {
		return time.Time{}, fmt.Errorf("timestamp segment %q is shorter than %d characters", s, len(TimestampLayout))
	}
	t, err := time.ParseInLocation(TimestampLayout, s[:len(TimestampLayout)], time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp segment %q: %w", s, err)
	}
	return t, nil
}

// ParseFileName decodes an artifact name. The third underscore field may
// carry trailing characters after the 14-digit stamp.
func ParseFileName(name string) (Artifact, error) {
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)

	parts := strings.Split(stem, "_")
	if len(parts) < 3 {
		return Artifact{}, fmt.Errorf("file name %q has fewer than three underscore fields", name)
	}

	code, err := strconv.Atoi(parts[1])
	if err != nil {
		return Artifact{}, fmt.Errorf("file name %q has a non-numeric type code: %w", name, err)
	}

	if _, err := ParseStamp(parts[2]); err != nil {
		return Artifact{}, fmt.Errorf("file name %q: %w", name, err)
	}

	return Artifact{
		ID:    parts[0],
		Type:  TypeCode(code),
		Stamp: parts[2][:len(TimestampLayout)],
		Ext:   ext,
	}, nil
}

// CompactTimestamp converts an API publish time into yyyyMMddHHmmss (UTC).
// Values that are not RFC 3339 fall back to stripping separators.
func CompactTimestamp(publishedAt string) (string, error) {
	if t, err := time.Parse(time.RFC3339Nano, publishedAt); err == nil {
		return t.UTC().Format(TimestampLayout), nil
	}

	stripped := strings.NewReplacer("-", "", ":", "", "T", "", "Z", "", " ", "").Replace(publishedAt)
	if len(stripped) < len(TimestampLayout) {
		return "", fmt.Errorf("published_at %q cannot be compacted", publishedAt)
	}
	stamp := stripped[:len(TimestampLayout)]
	if _, err := ParseStamp(stamp); err != nil {
		return "", fmt.Errorf("published_at %q: %w", publishedAt, err)
	}
	return stamp, nil
}

// SentinelName returns "0_0_<now as yyyyMMddHHmmss UTC>.txt"
func SentinelName(now time.Time) string {
	return Artifact{ID: "0", Type: TypeText, Stamp: now.UTC().Format(TimestampLayout), Ext: ExtText}.FileName()
}
