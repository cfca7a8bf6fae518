// Package model defines the ESG record types shared by the ingestion and retention pipelines.
package model

import (
	"strings"

	"github.com/rotisserie/eris"
)

// Rating is the ordinal letter grade derived from a total ESG score.
type Rating string

const (
	RatingA Rating = "A"
	RatingB Rating = "B"
	RatingC Rating = "C"
	RatingD Rating = "D"
	RatingE Rating = "E"
)

// RawRow is one parsed line of a source file: normalized column name to cell
// text. Decoders key rows with NormalizeHeader.
type RawRow map[string]string

// NormalizeHeader trims and lowercases a column name.
func NormalizeHeader(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// Get returns the value of a column.
func (r RawRow) Get(col string) (string, bool) {
	v, ok := r[NormalizeHeader(col)]
	return v, ok
}

// Key is the primary key of a Record.
type Key struct {
	EntityID   string `json:"entity_id"`
	ObservedAt string `json:"observed_at"`
}

// String renders the key as entity_id#observed_at.
func (k Key) String() string {
	return k.EntityID + "#" + k.ObservedAt
}

// Record is a validated, normalized ESG observation.
type Record struct {
	EntityID           string `json:"entity_id" yaml:"entity_id"`
	ObservedAt         string `json:"observed_at" yaml:"observed_at"`
	LastProcessedAt    string `json:"last_processed_at" yaml:"last_processed_at"`
	TotalScore         int    `json:"total_score" yaml:"total_score"`
	EnvironmentalScore int    `json:"environmental_score" yaml:"environmental_score"`
	SocialScore        int    `json:"social_score" yaml:"social_score"`
	GovernanceScore    int    `json:"governance_score" yaml:"governance_score"`
	Rating             Rating `json:"rating" yaml:"rating"`
	EntityName         string `json:"entity_name,omitempty" yaml:"entity_name,omitempty"`
}

// Key returns the record's primary key.
func (r Record) Key() Key {
	return Key{EntityID: r.EntityID, ObservedAt: r.ObservedAt}
}

// Validate checks the fields a store needs to address the record.
func (r Record) Validate() error {
	if r.EntityID == "" {
		return eris.New("model: record missing entity_id")
	}
	if r.ObservedAt == "" {
		return eris.Errorf("model: record %s missing observed_at", r.EntityID)
	}
	return nil
}
