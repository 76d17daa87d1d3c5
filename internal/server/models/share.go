package models

import "time"

// ShareGrant gives read-only access to one report. RecipientEmail is the
// durable key; RecipientUserID is a resolved cross-reference and may be empty.
type ShareGrant struct {
	ID              string
	ReportID        string
	SharedBy        string
	RecipientEmail  string
	RecipientUserID string
	AccessLevel     string
	SharedAt        time.Time
}

// ReceivedShare is a grant seen from the recipient side.
type ReceivedShare struct {
	Grant      ShareGrant
	Report     Report
	OwnerName  string
	OwnerEmail string
}

// SentShare is a grant seen from the grantor side, with the recipient's
// display name when the email resolved to a user.
type SentShare struct {
	Grant         ShareGrant
	ReportTitle   string
	RecipientName string
}
