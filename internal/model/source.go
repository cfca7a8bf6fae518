package model

import "fmt"

// SourceRef identifies a blob to ingest and the first record index not yet written.
type SourceRef struct {
	Bucket string `json:"bucket"`
	Key    string `json:"key"`
	Offset int    `json:"offset,omitempty"`
}

func (s SourceRef) String() string {
	if s.Offset > 0 {
		return fmt.Sprintf("%s/%s@%d", s.Bucket, s.Key, s.Offset)
	}
	return s.Bucket + "/" + s.Key
}
