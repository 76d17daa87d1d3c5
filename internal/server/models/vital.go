package models

import "time"

// Vital is a single measurement attached to exactly one report.
type Vital struct {
	ID         string
	ReportID   string
	VitalType  string
	Value      string
	Unit       string
	MeasuredAt time.Time
	CreatedAt  time.Time

	// ReportDate is filled by trend queries only.
	ReportDate time.Time
}

// VitalFilter narrows VitalsTrend. Date bounds apply to the report date.
type VitalFilter struct {
	VitalType string
	From      *time.Time
	To        *time.Time
}

// VitalSummary aggregates a user's vitals of one (type, unit) pair.
type VitalSummary struct {
	VitalType         string
	Unit              string
	Count             int
	LatestValue       string
	LatestMeasurement time.Time
	// RecentValues holds up to RecentValuesLimit values, newest first.
	RecentValues []string
}

const RecentValuesLimit = 3
