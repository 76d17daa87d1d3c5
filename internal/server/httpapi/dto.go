package httpapi

import (
	"time"

	"github.com/dmitrijs2005/healthvault/internal/server/models"
	"github.com/dmitrijs2005/healthvault/internal/server/services"
)

const dateLayout = "2006-01-02"

type userJSON struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	FullName string `json:"fullName"`
}

type authResponse struct {
	User userJSON `json:"user"`
	services.TokenPair
}

type reportJSON struct {
	ID         string    `json:"id"`
	UserID     string    `json:"userId"`
	Title      string    `json:"title"`
	ReportType string    `json:"reportType"`
	FileType   string    `json:"fileType"`
	UploadDate time.Time `json:"uploadDate"`
	ReportDate string    `json:"reportDate"`
	Notes      string    `json:"notes"`
	VitalCount int       `json:"vitalCount"`
}

func toReportJSON(r models.Report) reportJSON {
	return reportJSON{
		ID:         r.ID,
		UserID:     r.UserID,
		Title:      r.Title,
		ReportType: r.ReportType,
		FileType:   r.FileType,
		UploadDate: r.UploadDate,
		ReportDate: r.ReportDate.Format(dateLayout),
		Notes:      r.Notes,
		VitalCount: r.VitalCount,
	}
}

func toReportsJSON(rs []models.Report) []reportJSON {
	out := make([]reportJSON, 0, len(rs))
	for _, r := range rs {
		out = append(out, toReportJSON(r))
	}
	return out
}

type vitalJSON struct {
	ID         string    `json:"id"`
	ReportID   string    `json:"reportId"`
	VitalType  string    `json:"vitalType"`
	Value      string    `json:"value"`
	Unit       string    `json:"unit"`
	MeasuredAt time.Time `json:"measuredAt"`
	ReportDate string    `json:"reportDate,omitempty"`
}

func toVitalsJSON(vs []models.Vital) []vitalJSON {
	out := make([]vitalJSON, 0, len(vs))
	for _, v := range vs {
		j := vitalJSON{
			ID:         v.ID,
			ReportID:   v.ReportID,
			VitalType:  v.VitalType,
			Value:      v.Value,
			Unit:       v.Unit,
			MeasuredAt: v.MeasuredAt,
		}
		if !v.ReportDate.IsZero() {
			j.ReportDate = v.ReportDate.Format(dateLayout)
		}
		out = append(out, j)
	}
	return out
}

type summaryJSON struct {
	VitalType         string    `json:"vitalType"`
	Unit              string    `json:"unit"`
	Count             int       `json:"count"`
	LatestValue       string    `json:"latestValue"`
	LatestMeasurement time.Time `json:"latestMeasurement"`
	RecentValues      []string  `json:"recentValues"`
}

type uploadResponse struct {
	Report   reportJSON              `json:"report"`
	Vitals   []vitalJSON             `json:"vitals"`
	Failures []services.VitalFailure `json:"failures"`
	Outcome  services.Outcome        `json:"outcome"`
}

type reportViewJSON struct {
	Report     reportJSON          `json:"report"`
	Vitals     []vitalJSON         `json:"vitals"`
	Capability services.Capability `json:"capability"`
}

type shareJSON struct {
	ID              string    `json:"id"`
	ReportID        string    `json:"reportId"`
	SharedBy        string    `json:"sharedBy"`
	RecipientEmail  string    `json:"recipientEmail"`
	RecipientUserID string    `json:"recipientUserId,omitempty"`
	AccessLevel     string    `json:"accessLevel"`
	SharedAt        time.Time `json:"sharedAt"`
}

func toShareJSON(g models.ShareGrant) shareJSON {
	return shareJSON{
		ID:              g.ID,
		ReportID:        g.ReportID,
		SharedBy:        g.SharedBy,
		RecipientEmail:  g.RecipientEmail,
		RecipientUserID: g.RecipientUserID,
		AccessLevel:     g.AccessLevel,
		SharedAt:        g.SharedAt,
	}
}

type receivedShareJSON struct {
	shareJSON
	Report     reportJSON `json:"report"`
	OwnerName  string     `json:"ownerName"`
	OwnerEmail string     `json:"ownerEmail"`
}

type sentShareJSON struct {
	shareJSON
	ReportTitle   string `json:"reportTitle"`
	RecipientName string `json:"recipientName,omitempty"`
}

func toSentJSON(ss []models.SentShare) []sentShareJSON {
	out := make([]sentShareJSON, 0, len(ss))
	for _, s := range ss {
		out = append(out, sentShareJSON{
			shareJSON:     toShareJSON(s.Grant),
			ReportTitle:   s.ReportTitle,
			RecipientName: s.RecipientName,
		})
	}
	return out
}
