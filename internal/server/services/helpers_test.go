package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/healthvault/internal/logging"
	"github.com/dmitrijs2005/healthvault/internal/server/config"
	"github.com/dmitrijs2005/healthvault/internal/server/filestore"
	"github.com/dmitrijs2005/healthvault/internal/server/models"
	"github.com/dmitrijs2005/healthvault/internal/server/repositories/repomanager"
)

var reportDay = time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)

type testEnv struct {
	rm      repomanager.RepositoryManager
	files   filestore.Store
	access  *AccessControl
	reports *ReportService
	vitals  *VitalService
	sharing *SharingService
	users   *UserService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	files, err := filestore.NewLocalStore(t.TempDir())
	require.NoError(t, err)
	return newTestEnvWith(t, repomanager.NewMemoryRepositoryManager(), files)
}

func newTestEnvWith(t *testing.T, rm repomanager.RepositoryManager, files filestore.Store) *testEnv {
	t.Helper()
	cfg := &config.Config{
		SecretKey:                    "k",
		AccessTokenValidityDuration:  time.Hour,
		RefreshTokenValidityDuration: 2 * time.Hour,
	}
	log := logging.Nop{}
	access := NewAccessControl(rm)
	users := NewUserService(rm, files, log, cfg)
	return &testEnv{
		rm:      rm,
		files:   files,
		access:  access,
		reports: NewReportService(rm, files, access, log, 1<<20),
		vitals:  NewVitalService(rm, access),
		sharing: NewSharingService(rm, access, users, log),
		users:   users,
	}
}

func (e *testEnv) register(t *testing.T, email, name string) models.Identity {
	t.Helper()
	u, _, err := e.users.Register(context.Background(), email, "password", name)
	require.NoError(t, err)
	return models.Identity{UserID: u.ID, Email: u.Email}
}

func (e *testEnv) upload(t *testing.T, owner models.Identity, title string, vitals ...VitalInput) *models.Report {
	t.Helper()
	res, err := e.reports.UploadReport(context.Background(), owner,
		NewReport{Title: title, ReportType: "Blood Test", ReportDate: reportDay},
		Upload{Data: []byte("%PDF-1.4 " + title), ContentType: "application/pdf"},
		vitals)
	require.NoError(t, err)
	return res.Report
}
