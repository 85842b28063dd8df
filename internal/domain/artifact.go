package domain

import "time"

// BlockKey identifies the extraction output of one variable for one label
// within one period.
type BlockKey struct {
	Variable string
	Label    string
	Period   Period
}

// Compare orders keys by period, then label.
func (k BlockKey) Compare(o BlockKey) int {
	if c := k.Period.Compare(o.Period); c != 0 {
		return c
	}
	switch {
	case k.Label < o.Label:
		return -1
	case k.Label > o.Label:
		return 1
	}
	return 0
}

// Block is the regions extracted for one key, shaped (n, height, width),
// with one metadata row per region.
type Block struct {
	Key      BlockKey
	Data     Array
	Metadata Metadata
}

// Channel is every block of one variable concatenated in canonical order.
type Channel struct {
	Variable string
	Data     Array
	Metadata Metadata
}

// Stats are the normalization parameters of a channel.
type Stats struct {
	Mean       float64
	Std        float64
	ComputedAt time.Time
}

// Tensor is the final stack of channels, shaped (n, height, width, channels).
type Tensor struct {
	ID       string
	Split    string
	Channels []string
	Data     Array
	Metadata Metadata
	Stats    []Stats
}

// ArtifactKind names what a persisted artifact holds.
type ArtifactKind string

const (
	ArtifactBlock   ArtifactKind = "block"
	ArtifactChannel ArtifactKind = "channel"
	ArtifactTensor  ArtifactKind = "tensor"
)

// Artifact describes one persisted output of a run.
type Artifact struct {
	RunID      string       `json:"run_id"`
	Kind       ArtifactKind `json:"kind"`
	Subject    string       `json:"subject"`
	Split      string       `json:"split,omitempty"`
	Label      string       `json:"label,omitempty"`
	Period     string       `json:"period,omitempty"`
	Path       string       `json:"path"`
	Rows       int          `json:"rows"`
	ProducedAt time.Time    `json:"produced_at"`
}
