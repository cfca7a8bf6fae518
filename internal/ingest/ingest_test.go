package ingest

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sells-group/esg-pipeline/internal/fetcher"
	"github.com/sells-group/esg-pipeline/internal/model"
	"github.com/sells-group/esg-pipeline/internal/store"
	"github.com/sells-group/esg-pipeline/internal/transform"
	"github.com/sells-group/esg-pipeline/internal/trigger"
)

var fixedNow = time.Date(2025, time.March, 14, 9, 30, 0, 0, time.UTC)

const csvHeader = "ticker,timestamp,total_score,environment_score,social_score,governance_score,company_name"

// blobs is an in-memory BlobSource keyed by "bucket/key".
type blobs map[string][]byte

func (b blobs) Get(_ context.Context, bucket, key string) ([]byte, error) {
	data, ok := b[bucket+"/"+key]
	if !ok {
		return nil, fetcher.ErrNotFound
	}
	return data, nil
}

// esgCSV renders n valid rows observed in 2024.
func esgCSV(n int) []byte {
	var sb strings.Builder
	sb.WriteString(csvHeader + "\n")
	for i := range n {
		fmt.Fprintf(&sb, "T%04d,2024-01-11T00:00:00.000Z,%d.7,10,20,30,Company %d\n", i, i%50, i)
	}
	return []byte(sb.String())
}

func newOrchestrator(src fetcher.BlobSource, st store.Store, tr trigger.Trigger, budget Budget) *Orchestrator {
	return &Orchestrator{
		Source:    src,
		Writer:    NewWriter(st, DefaultChunkSize),
		Trigger:   tr,
		Validator: transform.NewValidator(),
		Budget:    budget,
		Clock:     func() time.Time { return fixedNow },
	}
}

func ref(key string) model.SourceRef {
	return model.SourceRef{Bucket: "drops", Key: key}
}
