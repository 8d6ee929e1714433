package materializer

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"talksync/pkg/errors"
	"talksync/pkg/logger"
	"talksync/pkg/storage"
	"talksync/pkg/talk"
)

// MediaDownloader streams message media
type MediaDownloader interface {
	Download(ctx context.Context, url string, w io.Writer) (int64, error)
}

// FailedRecord is a published message that could not be stored
type FailedRecord struct {
	Position    int
	ID          string
	Type        string
	PublishedAt time.Time
	Err         error
}

// Result summarizes one batch
type Result struct {
	// Written counts stored messages; a picture counts once
	Written int
	// Files counts artifact files renamed into place
	Files   int
	Deleted int
	Skipped int
	Failed  []FailedRecord
	// Stored lists the ids stored successfully, in arrival order
	Stored []string
}

// Materializer writes timeline messages into one member directory
type Materializer struct {
	store  *storage.Manager
	media  MediaDownloader
	logger logger.Logger
}

// New creates a materializer for store
func New(store *storage.Manager, media MediaDownloader, log logger.Logger) *Materializer {
	if log == nil {
		log = logger.GetLogger()
	}
	return &Materializer{store: store, media: media, logger: log}
}

// Materialize stores messages in the order given. Media failures are
// recorded in the result and do not stop the batch. A local write failure
// or cancellation stops it and is returned with the partial result.
func (m *Materializer) Materialize(ctx context.Context, messages []talk.Message) (Result, error) {
	var result Result

	if len(messages) == 0 {
		m.logger.Info("no new messages")
		return result, nil
	}

	for i, msg := range messages {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		position := i + 1

		fields := map[string]interface{}{
			"position": position,
			"id":       msg.ID.String(),
			"type":     msg.Type,
		}

		if !msg.IsPublished() {
			result.Deleted++
			m.logger.InfoWithFields("message deleted", fields)
			continue
		}

		if err := storage.ValidateID(msg.ID.String()); err != nil {
			result.Skipped++
			m.logger.WithError(err).WarnWithFields("message skipped: unusable id", fields)
			continue
		}

		stamp, err := storage.CompactTimestamp(msg.PublishedAt)
		if err != nil {
			result.Skipped++
			m.logger.WithError(err).WarnWithFields("message skipped: unreadable publish time", fields)
			continue
		}

		code, ok := typeCode(msg.Type)
		if !ok {
			result.Skipped++
			m.logger.WarnWithFields("message skipped: unknown type", fields)
			continue
		}

		artifact := storage.Artifact{ID: msg.ID.String(), Type: code, Stamp: stamp}
		files, err := m.storeMessage(ctx, artifact, msg)
		if err != nil {
			if !errors.IsType(err, errors.ErrorTypeMediaDownload) {
				return result, err
			}
			publishedAt, _ := artifact.Time()
			result.Failed = append(result.Failed, FailedRecord{
				Position:    position,
				ID:          artifact.ID,
				Type:        msg.Type,
				PublishedAt: publishedAt,
				Err:         err,
			})
			m.logger.WithError(err).ErrorWithFields("media download failed", fields)
			continue
		}

		result.Written++
		result.Files += files
		result.Stored = append(result.Stored, artifact.ID)
		fields["file"] = artifact.Stem()
		m.logger.InfoWithFields("message saved", fields)
	}

	return result, nil
}

// storeMessage writes the artifact files of one message and returns how many
// were committed
func (m *Materializer) storeMessage(ctx context.Context, a storage.Artifact, msg talk.Message) (int, error) {
	switch a.Type {
	case storage.TypeText:
		return 1, m.store.WriteFile(a.WithExt(storage.ExtText).FileName(), strings.NewReader(msg.Text))

	case storage.TypePicture:
		image, err := m.stageMedia(ctx, a.WithExt(storage.ExtImage), msg.File)
		if err != nil {
			return 0, err
		}
		caption, err := m.store.Stage(a.WithExt(storage.ExtText).FileName(), strings.NewReader(msg.Text))
		if err != nil {
			m.store.Discard(image)
			return 0, err
		}
		// image first so the caption is the last file created
		return 2, m.store.Commit(image, caption)

	case storage.TypeVideo:
		return m.storeMedia(ctx, a.WithExt(storage.ExtVideo), msg.File)

	case storage.TypeVoice:
		return m.storeMedia(ctx, a.WithExt(storage.ExtVoice), msg.File)
	}
	return 0, fmt.Errorf("unhandled type code %d", a.Type)
}

func (m *Materializer) storeMedia(ctx context.Context, a storage.Artifact, url string) (int, error) {
	staged, err := m.stageMedia(ctx, a, url)
	if err != nil {
		return 0, err
	}
	return 1, m.store.Commit(staged)
}

func (m *Materializer) stageMedia(ctx context.Context, a storage.Artifact, url string) (*storage.Staged, error) {
	if url == "" {
		return nil, errors.New(errors.ErrorTypeMediaDownload, "message has no media URL")
	}
	return m.store.StageWith(a.FileName(), func(w io.Writer) error {
		_, err := m.media.Download(ctx, url, w)
		return err
	})
}

func typeCode(msgType string) (storage.TypeCode, bool) {
	switch msgType {
	case talk.TypeText:
		return storage.TypeText, true
	case talk.TypePicture:
		return storage.TypePicture, true
	case talk.TypeVideo:
		return storage.TypeVideo, true
	case talk.TypeVoice:
		return storage.TypeVoice, true
	}
	return 0, false
}
