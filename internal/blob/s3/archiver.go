package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/openquorum/resolved/internal/domain"
)

// Archiver uploads the durable record of a finalized topic to object storage.
// A topic produces two objects: the full serialized resolution state and the
// append-only event log as newline-delimited JSON.
//
//	archive/topics/{id}/state.json
//	archive/topics/{id}/events.jsonl
type Archiver struct {
	writer domain.BlobWriter
	events domain.EventStore
}

// NewArchiver creates a new Archiver.
func NewArchiver(writer domain.BlobWriter, events domain.EventStore) *Archiver {
	return &Archiver{
		writer: writer,
		events: events,
	}
}

// ArchiveTopic uploads the state blob and the event log of a finalized topic.
// The primary store keeps its copy; the archive is a verification artifact,
// not a migration.
func (a *Archiver) ArchiveTopic(ctx context.Context, topicID string, state []byte) error {
	statePath := archivePath(topicID, "state.json")
	if err := a.writer.Put(ctx, statePath, state, "application/json"); err != nil {
		return fmt.Errorf("s3blob: archive topic %s state: %w", topicID, err)
	}

	events, err := a.events.ListByTopic(ctx, topicID, domain.ListOpts{Limit: archiveEventLimit})
	if err != nil {
		return fmt.Errorf("s3blob: archive topic %s events query: %w", topicID, err)
	}
	if len(events) == 0 {
		return nil
	}

	buf, err := marshalJSONL(events)
	if err != nil {
		return fmt.Errorf("s3blob: archive topic %s events marshal: %w", topicID, err)
	}

	eventsPath := archivePath(topicID, "events.jsonl")
	if err := a.writer.Put(ctx, eventsPath, buf, "application/x-ndjson"); err != nil {
		return fmt.Errorf("s3blob: archive topic %s events upload: %w", topicID, err)
	}
	return nil
}

// archiveEventLimit bounds the event log read for one topic. A single topic
// cannot realistically exceed this many events before finalization.
const archiveEventLimit = 100000

func archivePath(topicID, name string) string {
	return fmt.Sprintf("archive/topics/%s/%s", topicID, name)
}

// marshalJSONL serialises a slice of values as newline-delimited JSON.
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}
