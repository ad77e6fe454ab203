package model

import (
	"encoding/json"
	"time"
)

// ResolutionStats counts the decisions of one resolution batch
type ResolutionStats struct {
	EntitiesMerged   int `json:"entities_merged"`
	LLMConfirmations int `json:"llm_confirmations"`
	SimilarityChecks int `json:"similarity_checks"`
	EntitiesSkipped  int `json:"entities_skipped"`
}

// IngestionStats is the result of one StoreKnowledge call.
// ProcessingTime is serialized as fractional seconds.
type IngestionStats struct {
	EntitiesCreated      int           `json:"entities_created"`
	EntitiesUpdated      int           `json:"entities_updated"`
	EntitiesMerged       int           `json:"entities_merged"`
	EntitiesSkipped      int           `json:"entities_skipped"`
	RelationshipsCreated int           `json:"relationships_created"`
	RelationshipsUpdated int           `json:"relationships_updated"`
	RelationshipsSkipped int           `json:"relationships_skipped"`
	LLMConfirmations     int           `json:"llm_confirmations"`
	SimilarityChecks     int           `json:"similarity_checks"`
	ProcessingTime       time.Duration `json:"-"`
}

// AddResolution copies the resolution counters into the ingestion stats
func (s *IngestionStats) AddResolution(r ResolutionStats) {
	s.EntitiesMerged += r.EntitiesMerged
	s.LLMConfirmations += r.LLMConfirmations
	s.SimilarityChecks += r.SimilarityChecks
	s.EntitiesSkipped += r.EntitiesSkipped
}

type ingestionStatsJSON struct {
	ingestionStatsFields
	ProcessingTime float64 `json:"processing_time"`
}

type ingestionStatsFields IngestionStats

// MarshalJSON writes the processing time in seconds
func (s IngestionStats) MarshalJSON() ([]byte, error) {
	return json.Marshal(ingestionStatsJSON{
		ingestionStatsFields: ingestionStatsFields(s),
		ProcessingTime:       s.ProcessingTime.Seconds(),
	})
}

// UnmarshalJSON reads the processing time in seconds
func (s *IngestionStats) UnmarshalJSON(data []byte) error {
	var v ingestionStatsJSON
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*s = IngestionStats(v.ingestionStatsFields)
	s.ProcessingTime = time.Duration(v.ProcessingTime * float64(time.Second))
	return nil
}
