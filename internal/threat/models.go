// Package threat provides the registry of community-reported threat locations.
package threat

import (
	"errors"
	"time"

	"github.com/saferoute/saferoute/pkg/geo"
)

// Registry errors.
var (
	// ErrThreatNotFound indicates the requested threat location does not exist.
	ErrThreatNotFound = errors.New("threat location not found")
)

// Level represents the severity of a reported threat.
type Level string

const (
	LevelLow    Level = "low"
	LevelMedium Level = "medium"
	LevelHigh   Level = "high"
)

// AvoidRadiusKm returns the avoidance radius for this threat level in
// kilometers. The same radii are used when threats are passed to the routing
// provider as soft avoid-area constraints.
func (l Level) AvoidRadiusKm() float64 {
	switch l {
	case LevelHigh:
		return 0.5
	case LevelMedium:
		return 0.3
	default:
		return 0.1
	}
}

// Weight returns the scoring weight for this threat level.
func (l Level) Weight() float64 {
	switch l {
	case LevelHigh:
		return 5
	case LevelMedium:
		return 3
	default:
		return 1
	}
}

// Valid reports whether the level is a known value.
func (l Level) Valid() bool {
	switch l {
	case LevelLow, LevelMedium, LevelHigh:
		return true
	}
	return false
}

// Category classifies the kind of safety concern reported.
type Category string

const (
	CategoryHarassment   Category = "harassment"
	CategoryTheft        Category = "theft"
	CategoryAssault      Category = "assault"
	CategoryPoorLighting Category = "poor_lighting"
	CategoryIsolation    Category = "isolation"
	CategoryOther        Category = "other"
)

// Valid reports whether the category is a known value.
func (c Category) Valid() bool {
	switch c {
	case CategoryHarassment, CategoryTheft, CategoryAssault,
		CategoryPoorLighting, CategoryIsolation, CategoryOther:
		return true
	}
	return false
}

// TimeOfDay tags when a threat is considered active.
type TimeOfDay string

const (
	TimeMorning   TimeOfDay = "morning"
	TimeAfternoon TimeOfDay = "afternoon"
	TimeEvening   TimeOfDay = "evening"
	TimeNight     TimeOfDay = "night"
	TimeAllDay    TimeOfDay = "all_day"
)

// Location represents a community-reported threat location.
type Location struct {
	ID          string
	Name        string
	Description string
	Coordinate  geo.Coordinate
	Level       Level
	Category    Category
	TimeOfDay   []TimeOfDay

	// Verification state. VerifiedBy and VerifiedAt are only set when
	// Verified is true.
	Verified   bool
	VerifiedBy string
	VerifiedAt time.Time

	// Votes may go negative; ReportCount is always >= 1.
	Votes       int
	ReportCount int

	ReportedAt     time.Time
	LastReportDate time.Time
}

// ActiveAt reports whether the threat is tagged as active for the given
// time-of-day tag. A threat tagged all_day matches any requested tag, and a
// threat with no tags matches nothing.
func (l *Location) ActiveAt(tod TimeOfDay) bool {
	for _, tag := range l.TimeOfDay {
		if tag == tod || tag == TimeAllDay {
			return true
		}
	}
	return false
}

// Filters narrows a registry query. Zero values mean "no constraint".
type Filters struct {
	Verified   *bool
	Level      Level
	Category   Category
	TimeOfDay  TimeOfDay
	MinVotes   *int
	MinReports *int

	// Spatial filter: when Center is set, only threats within RadiusKm of
	// Center match.
	Center   *geo.Coordinate
	RadiusKm float64
}

// CreateInput carries the fields of a new threat report.
type CreateInput struct {
	Name        string
	Description string
	Coordinate  geo.Coordinate
	Level       Level
	Category    Category
	TimeOfDay   []TimeOfDay
}
