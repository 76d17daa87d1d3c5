package models

import "time"

// Report is one uploaded artifact plus its metadata. UserID is the owner and
// never changes after creation.
type Report struct {
	ID         string
	UserID     string
	Title      string
	ReportType string
	// FilePath is the opaque file reference handed out by the file store.
	FilePath string
	// FileType is the declared MIME type of the backing file.
	FileType   string
	UploadDate time.Time
	// ReportDate is the clinical date, distinct from UploadDate.
	ReportDate time.Time
	Notes      string

	// VitalCount is filled by listing queries only.
	VitalCount int
}

// ReportFilter narrows SearchReports. Zero values mean "no constraint".
type ReportFilter struct {
	From       *time.Time
	To         *time.Time
	ReportType string
	VitalType  string
}

// ReportFile identifies a report's backing file, used by reconciliation.
type ReportFile struct {
	ReportID string
	UserID   string
	FilePath string
}
