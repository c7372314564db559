// Package progress defines the event structures emitted by crawl cycles.
package progress

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Stage denotes the type of milestone represented by an Event.
type Stage string

// Supported progress stages.
const (
	StageCycleStart Stage = "CYCLE_START"
	StageCycleDone  Stage = "CYCLE_DONE"
	StageCycleError Stage = "CYCLE_ERROR"
	StageFetchDone  Stage = "FETCH_DONE"
	StageMatchSaved Stage = "MATCH_SAVED"
)

// StatusClass is a coarse HTTP response grouping.
type StatusClass string

// Supported HTTP status classes tracked for fetch completions.
const (
	Status2xx   StatusClass = "2xx"
	Status3xx   StatusClass = "3xx"
	Status4xx   StatusClass = "4xx"
	Status5xx   StatusClass = "5xx"
	StatusOther StatusClass = "other"
)

// Event captures a single milestone of a cycle run.
type Event struct {
	// RunID uniquely identifies a cycle run using the 16-byte UUID form.
	// Fetch events issued outside a run carry the zero value and are only
	// counted by metric sinks.
	RunID [16]byte
	// TS is the UTC timestamp recorded by the emitter.
	TS time.Time
	// Stage denotes which lifecycle or fetch milestone occurred.
	Stage Stage
	// Cycle names the cycle ("users" or "matches") for lifecycle events.
	Cycle string
	// Route labels the upstream endpoint for fetch events.
	Route string
	// StatusClass groups HTTP response codes (2xx, 3xx, etc).
	StatusClass StatusClass
	// Count carries a delta, e.g. matches saved.
	Count int64
	// Dur captures latency for fetches and cycle completions.
	Dur time.Duration
	// Note lets emitters attach low-volume context (e.g. error text).
	Note string
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Stage {
	case StageCycleStart, StageCycleDone, StageCycleError:
		if e.RunID == [16]byte{} {
			return errors.New("run id is required")
		}
		if e.Cycle == "" {
			return errors.New("cycle events require cycle name")
		}
	case StageMatchSaved:
		if e.RunID == [16]byte{} {
			return errors.New("run id is required")
		}
	case StageFetchDone:
		if e.Route == "" {
			return errors.New("fetch done requires route")
		}
		if e.StatusClass == "" {
			return errors.New("fetch done requires status class")
		}
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	return nil
}

// HasRun reports whether the event is attributed to a run.
func (e Event) HasRun() bool {
	return e.RunID != [16]byte{}
}

// RunUUID converts the binary run ID to uuid.UUID for repositories.
func (e Event) RunUUID() uuid.UUID {
	return uuid.UUID(e.RunID)
}

// UUIDToBytes encodes a uuid.UUID into the Event form.
func UUIDToBytes(id uuid.UUID) [16]byte {
	var dest [16]byte
	copy(dest[:], id[:])
	return dest
}

// ClassifyStatus groups HTTP status codes for fetch events.
func ClassifyStatus(code int) StatusClass {
	switch {
	case code >= 200 && code < 300:
		return Status2xx
	case code >= 300 && code < 400:
		return Status3xx
	case code >= 400 && code < 500:
		return Status4xx
	case code >= 500 && code < 600:
		return Status5xx
	default:
		return StatusOther
	}
}
