package ingest

import (
	"encoding/json"
	"net/url"

	"github.com/rotisserie/eris"

	"github.com/sells-group/esg-pipeline/internal/model"
)

// Event is a storage notification naming an uploaded blob. Continuation
// payloads use the flat bucket/key/offset form instead.
type Event struct {
	Records []EventRecord `json:"Records"`
	Offset  int           `json:"offset,omitempty"`

	Bucket string `json:"bucket,omitempty"`
	Key    string `json:"key,omitempty"`
}

// EventRecord is one entry of a storage notification.
type EventRecord struct {
	S3 struct {
		Bucket struct {
			Name string `json:"name"`
		} `json:"bucket"`
		Object struct {
			Key string `json:"key"`
		} `json:"object"`
	} `json:"s3"`
}

// ParseEvent extracts the blob to ingest from a notification or continuation payload.
// Only the first notification record is used.
func ParseEvent(data []byte) (model.SourceRef, error) {
	var ev Event
	if err := json.Unmarshal(data, &ev); err != nil {
		return model.SourceRef{}, eris.Wrap(err, "ingest: decode event")
	}
	if ev.Offset < 0 {
		return model.SourceRef{}, eris.Errorf("ingest: negative offset %d", ev.Offset)
	}

	if len(ev.Records) > 0 {
		rec := ev.Records[0].S3
		key := rec.Object.Key
		// Notification keys are form-encoded.
		if unescaped, err := url.QueryUnescape(key); err == nil {
			key = unescaped
		}
		if rec.Bucket.Name == "" || key == "" {
			return model.SourceRef{}, eris.Wrap(ErrUnknownEvent, "ingest: notification missing bucket or key")
		}
		return model.SourceRef{Bucket: rec.Bucket.Name, Key: key, Offset: ev.Offset}, nil
	}

	if ev.Bucket != "" && ev.Key != "" {
		return model.SourceRef{Bucket: ev.Bucket, Key: ev.Key, Offset: ev.Offset}, nil
	}
	return model.SourceRef{}, eris.Wrap(ErrUnknownEvent, "ingest: event names no blob")
}

// NotificationFor builds the storage-notification payload for ref.
func NotificationFor(ref model.SourceRef) ([]byte, error) {
	var rec EventRecord
	rec.S3.Bucket.Name = ref.Bucket
	rec.S3.Object.Key = url.QueryEscape(ref.Key)
	data, err := json.Marshal(Event{Records: []EventRecord{rec}, Offset: ref.Offset})
	if err != nil {
		return nil, eris.Wrap(err, "ingest: encode event")
	}
	return data, nil
}
