package job

import (
	"encoding/json"
	"fmt"
)

// Payload is the type-specific portion of a job. Each job type has one
// concrete payload struct; the job's Type field selects the variant when a
// persisted payload is decoded.
type Payload interface {
	jobPayload()
}

// AfterAction values request a follow-up job once an import completes.
const (
	AfterNone     = ""
	AfterClassify = "classify"
	AfterReid     = "reid"
)

// ImportPayload drives a file/directory import. ProcessedPaths is a
// resumption marker: a retried job skips every path already present, so
// resumption is per-file, not per-job.
type ImportPayload struct {
	Paths          []string `json:"paths"`
	GroupName      string   `json:"group_name,omitempty"`
	GroupID        int64    `json:"group_id,omitempty"`
	ProcessedPaths []string `json:"processed_paths,omitempty"`
	AfterAction    string   `json:"after_action,omitempty"`
	Species        string   `json:"species,omitempty"`
}

type ThumbnailPayload struct {
	ImageID    int64  `json:"image_id"`
	SourcePath string `json:"source_path"`
}

type DetectPayload struct {
	SelectedPaths []string `json:"selected_paths"`
	ImageIDs      []int64  `json:"image_ids,omitempty"`
	ChainReid     bool     `json:"chain_reid,omitempty"`
	Species       string   `json:"species,omitempty"`
}

type ReidPayload struct {
	ImageIDs []int64 `json:"image_ids"`
	Species  string  `json:"species"`
}

func (*ImportPayload) jobPayload()    {}
func (*ThumbnailPayload) jobPayload() {}
func (*DetectPayload) jobPayload()    {}
func (*ReidPayload) jobPayload()      {}

// MarshalPayload serializes a payload for the durable store.
func MarshalPayload(p Payload) ([]byte, error) {
	if p == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(p)
}

// ClonePayload returns a detached copy. Snapshots and store writes hold
// clones so the running handler can keep mutating its payload.
func ClonePayload(t Type, p Payload) Payload {
	if p == nil {
		return nil
	}
	data, err := MarshalPayload(p)
	if err != nil {
		return nil
	}
	clone, err := UnmarshalPayload(t, data)
	if err != nil {
		return nil
	}
	return clone
}

// UnmarshalPayload decodes a persisted payload into the variant matching the
// job type.
func UnmarshalPayload(t Type, data []byte) (Payload, error) {
	if len(data) == 0 {
		data = []byte("{}")
	}
	var p Payload
	switch t {
	case TypeImport:
		p = &ImportPayload{}
	case TypeThumbnail:
		p = &ThumbnailPayload{}
	case TypeDetect:
		p = &DetectPayload{}
	case TypeReid:
		p = &ReidPayload{}
	default:
		return nil, fmt.Errorf("unknown job type %q", t)
	}
	if err := json.Unmarshal(data, p); err != nil {
		return nil, fmt.Errorf("failed to decode %s payload: %w", t, err)
	}
	return p, nil
}
