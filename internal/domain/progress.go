package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"
)

// StatusKind enumerates the variants of Status.
type StatusKind int

const (
	StatusInitiated StatusKind = iota
	StatusInProgress
	StatusCompleted
)

func (k StatusKind) String() string {
	switch k {
	case StatusInitiated:
		return "Initiated"
	case StatusInProgress:
		return "InProgress"
	case StatusCompleted:
		return "Completed"
	default:
		return fmt.Sprintf("StatusKind(%d)", int(k))
	}
}

// ErrInvalidStatus reports an unknown variant or an out-of-range InProgress payload.
var ErrInvalidStatus = errors.New("invalid course status")

// Status is the course progress variant. Only InProgress carries a payload.
// The zero value is Initiated.
type Status struct {
	kind    StatusKind
	percent float64
}

// Initiated is the status of a fresh registration.
func Initiated() Status { return Status{kind: StatusInitiated} }

// Completed is the status once every class of the course is done.
func Completed() Status { return Status{kind: StatusCompleted} }

// InProgress builds the in-progress variant; percent must lie in [0, 100].
func InProgress(percent float64) (Status, error) {
	s := Status{kind: StatusInProgress, percent: percent}
	if err := s.Validate(); err != nil {
		return Status{}, err
	}
	return s, nil
}

// Kind reports the variant.
func (s Status) Kind() StatusKind { return s.kind }

// Percent returns the InProgress payload; ok is false for the other variants.
func (s Status) Percent() (percent float64, ok bool) {
	if s.kind != StatusInProgress {
		return 0, false
	}
	return s.percent, true
}

// Validate checks the variant and its payload.
func (s Status) Validate() error {
	switch s.kind {
	case StatusInitiated, StatusCompleted:
		return nil
	case StatusInProgress:
		if math.IsNaN(s.percent) || s.percent < 0 || s.percent > 100 {
			return fmt.Errorf("%w: progress must be between 0 and 100", ErrInvalidStatus)
		}
		return nil
	default:
		return fmt.Errorf("%w: unknown variant %d", ErrInvalidStatus, int(s.kind))
	}
}

func (s Status) String() string {
	switch s.kind {
	case StatusInProgress:
		return fmt.Sprintf("In Progress: %.2f%%", s.percent)
	default:
		return s.kind.String()
	}
}

type statusJSON struct {
	Type  string   `json:"type"`
	Value *float64 `json:"value,omitempty"`
}

// MarshalJSON encodes the tagged form {"type": "...", "value": n}.
func (s Status) MarshalJSON() ([]byte, error) {
	out := statusJSON{Type: s.kind.String()}
	if s.kind == StatusInProgress {
		p := s.percent
		out.Value = &p
	}
	return json.Marshal(out)
}

// UnmarshalJSON decodes the tagged form and validates the payload.
func (s *Status) UnmarshalJSON(data []byte) error {
	var in statusJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	switch in.Type {
	case "Initiated":
		*s = Initiated()
	case "Completed":
		*s = Completed()
	case "InProgress":
		if in.Value == nil {
			return fmt.Errorf("%w: InProgress requires a value", ErrInvalidStatus)
		}
		st, err := InProgress(*in.Value)
		if err != nil {
			return err
		}
		*s = st
	default:
		return fmt.Errorf("%w: unknown type %q", ErrInvalidStatus, in.Type)
	}
	return nil
}

// ProgressKey is the composite (user, course) key of a progress record.
type ProgressKey struct {
	UserEmail string
	CourseID  string
}

// PartitionKey is the user half of the key.
func (k ProgressKey) PartitionKey() string { return "user#" + k.UserEmail }

// SortKey is the course half of the key.
func (k ProgressKey) SortKey() string { return "course#" + k.CourseID }

// ProgressRecord is one user's completion state for one course.
type ProgressRecord struct {
	Key                  ProgressKey
	Status               Status
	CompletedClasses     []string
	CompletionPercentage int
	UpdatedAt            time.Time
}

// NewProgressRecord returns the record written on registration.
func NewProgressRecord(key ProgressKey, now time.Time) ProgressRecord {
	return ProgressRecord{
		Key:              key,
		Status:           Initiated(),
		CompletedClasses: []string{},
		UpdatedAt:        now,
	}
}

// HasCompleted reports whether classID is in the completed set.
func (r ProgressRecord) HasCompleted(classID string) bool {
	i := sort.SearchStrings(r.CompletedClasses, classID)
	return i < len(r.CompletedClasses) && r.CompletedClasses[i] == classID
}

// AddCompletedClass inserts classID keeping the set sorted. It returns false
// when the class was already present.
func (r *ProgressRecord) AddCompletedClass(classID string) bool {
	i := sort.SearchStrings(r.CompletedClasses, classID)
	if i < len(r.CompletedClasses) && r.CompletedClasses[i] == classID {
		return false
	}
	r.CompletedClasses = append(r.CompletedClasses, "")
	copy(r.CompletedClasses[i+1:], r.CompletedClasses[i:])
	r.CompletedClasses[i] = classID
	return true
}

// Recompute derives percentage and status from the completed set and the
// course's current class total.
func (r *ProgressRecord) Recompute(totalClasses int, now time.Time) {
	r.CompletionPercentage = CompletionPercentage(len(r.CompletedClasses), totalClasses)
	r.Status = StatusForPercentage(r.CompletionPercentage)
	r.UpdatedAt = now
}

// CompletionPercentage is round(100*completed/total) clamped to [0, 100];
// zero when the course has no classes.
func CompletionPercentage(completed, total int) int {
	if total <= 0 || completed <= 0 {
		return 0
	}
	p := int(math.Round(float64(completed) * 100 / float64(total)))
	if p > 100 {
		return 100
	}
	return p
}

// StatusForPercentage maps a percentage to Completed at 100 and InProgress below.
func StatusForPercentage(percent int) Status {
	if percent >= 100 {
		return Completed()
	}
	if percent < 0 {
		percent = 0
	}
	return Status{kind: StatusInProgress, percent: float64(percent)}
}
