package models

import (
	"strings"

	"github.com/dmitrijs2005/healthvault/internal/common"
)

func blank(s string) bool { return strings.TrimSpace(s) == "" }

// Validate checks the fields a report cannot be stored without.
func (r *Report) Validate() error {
	switch {
	case blank(r.Title):
		return common.NewValidationError("title", "is required")
	case blank(r.ReportType):
		return common.NewValidationError("reportType", "is required")
	case r.ReportDate.IsZero():
		return common.NewValidationError("reportDate", "is required")
	}
	return nil
}

// Validate checks the fields a vital cannot be stored without.
func (v *Vital) Validate() error {
	switch {
	case blank(v.VitalType):
		return common.NewValidationError("vitalType", "is required")
	case blank(v.Value):
		return common.NewValidationError("value", "is required")
	case blank(v.Unit):
		return common.NewValidationError("unit", "is required")
	}
	return nil
}
