package metric

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrUnknownKind    = errors.New("unknown metric kind")
	ErrEntryNotFound  = errors.New("entry not found")
	ErrInvalidDate    = errors.New("date must be formatted as YYYY-MM-DD")
	ErrValueOutOfRange = errors.New("value is out of the plausible range")
)

// DateLayout is the calendar-day format entries are keyed by. Entries
// carry no time component: the date names the day the measurement
// applies to, not when the record was created.
const DateLayout = "2006-01-02"

type Kind string

const (
	KindWeight   Kind = "weight"
	KindDistance Kind = "distance"
)

// Kinds lists every tracked metric kind.
var Kinds = []Kind{KindWeight, KindDistance}

func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case KindWeight:
		return KindWeight, nil
	case KindDistance:
		return KindDistance, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
}

// Config holds the per-kind unit label and plausible value range.
// The range is enforced at entry time by input validation, never by
// the store or the persistence layer.
type Config struct {
	Unit     string
	Min, Max float64
	// ValueTag is the validator expression for the open interval (Min, Max).
	ValueTag string
}

var configs = map[Kind]Config{
	KindWeight:   {Unit: "kg", Min: 30, Max: 300, ValueTag: "gt=30,lt=300"},
	KindDistance: {Unit: "km", Min: 0.1, Max: 200, ValueTag: "gt=0.1,lt=200"},
}

func (k Kind) Config() Config {
	cfg, ok := configs[k]
	if !ok {
		panic("no config for kind " + string(k))
	}
	return cfg
}

// Entry is a single logged measurement. The identifier is assigned by
// the persistence collaborator on insert and immutable afterwards.
// Entries are never updated, only created and deleted.
type Entry struct {
	ID      int64   `json:"id"`
	Kind    Kind    `json:"kind"`
	Value   float64 `json:"value"`
	Date    string  `json:"date"`
	OwnerID string  `json:"owner_id"`
}

// ParseDate validates and parses a calendar-day string.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, ErrInvalidDate
	}
	return t, nil
}

// Day truncates an instant to its local calendar day.
func Day(t time.Time) string {
	return t.Format(DateLayout)
}

const (
	EventRecorded = "metric.recorded"
	EventDeleted  = "metric.deleted"
)

type RecordedEvent struct {
	At    time.Time
	Entry Entry
}

func (e RecordedEvent) Type() string { return EventRecorded }

func (e RecordedEvent) PublishedAt() time.Time { return e.At }

type DeletedEvent struct {
	At      time.Time
	EntryID int64
	Kind    Kind
	OwnerID string
}

func (e DeletedEvent) Type() string { return EventDeleted }

func (e DeletedEvent) PublishedAt() time.Time { return e.At }
