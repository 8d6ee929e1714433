package checkpoint

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"talksync/pkg/errors"
	"talksync/pkg/storage"
)

// CreationTimeFunc reports when the file at path was created
type CreationTimeFunc func(path string, info fs.FileInfo) time.Time

// Checkpoint is the resume position of a member directory
type Checkpoint struct {
	storage.Artifact

	// Name is the file the position was read from
	Name string
	// Time is the publish time encoded in Name (UTC)
	Time time.Time
	// Created is the file system creation time of Name
	Created time.Time
}

// Resolver finds the latest tracked file of a member directory
type Resolver struct {
	creationTime CreationTimeFunc
}

// NewResolver returns a resolver using the platform creation time
func NewResolver() *Resolver {
	return &Resolver{creationTime: fileCreationTime}
}

// WithCreationTime replaces the creation time source
func (r *Resolver) WithCreationTime(fn CreationTimeFunc) *Resolver {
	return &Resolver{creationTime: fn}
}

// Resolve is NewResolver().Resolve(dir)
func Resolve(dir string) (Checkpoint, error) {
	return NewResolver().Resolve(dir)
}

// Resolve returns the position encoded in the most recently created tracked
// file of dir. It fails with ErrorTypeMalformedCheckpoint when dir holds no
// tracked file or the winner's timestamp segment does not parse.
func (r *Resolver) Resolve(dir string) (Checkpoint, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return Checkpoint{}, errors.Wrap(errors.ErrorTypeMalformedCheckpoint, err, "failed to read member directory")
	}

	var (
		latestName    string
		latestCreated time.Time
		found         bool
	)
	for _, entry := range entries {
		if !entry.Type().IsRegular() || !storage.IsTracked(entry.Name()) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			// removed between listing and stat
			continue
		}
		created := r.creationTime(filepath.Join(dir, entry.Name()), info)
		if !found || created.After(latestCreated) ||
			(created.Equal(latestCreated) && entry.Name() > latestName) {
			latestName, latestCreated, found = entry.Name(), created, true
		}
	}

	if !found {
		return Checkpoint{}, errors.New(errors.ErrorTypeMalformedCheckpoint,
			fmt.Sprintf("no tracked files in %s", dir))
	}

	a, err := storage.ParseFileName(latestName)
	if err != nil {
		return Checkpoint{}, errors.Wrap(errors.ErrorTypeMalformedCheckpoint, err,
			fmt.Sprintf("latest file %s does not encode a timestamp", latestName))
	}
	t, err := a.Time()
	if err != nil {
		return Checkpoint{}, errors.Wrap(errors.ErrorTypeMalformedCheckpoint, err, latestName)
	}

	return Checkpoint{
		Artifact: a,
		Name:     latestName,
		Time:     t,
		Created:  latestCreated,
	}, nil
}
