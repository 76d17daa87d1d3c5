package services

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/healthvault/internal/common"
	"github.com/dmitrijs2005/healthvault/internal/server/models"
)

func at(h int) *time.Time {
	t := reportDay.Add(time.Duration(h) * time.Hour)
	return &t
}

func TestVitalsSummary_LatestValuePerGroup(t *testing.T) {
	ctx := context.Background()
	e := newTestEnv(t)
	alice := e.register(t, "alice@example.com", "Alice")
	rep := e.upload(t, alice, "Weigh-ins")

	for i, v := range []string{"70", "71", "72", "73"} {
		_, err := e.vitals.AddVital(ctx, alice, rep.ID, VitalInput{VitalType: "Weight", Value: v, Unit: "kg", MeasuredAt: at(i)})
		require.NoError(t, err)
	}

	sum, err := e.vitals.VitalsSummary(ctx, alice)
	require.NoError(t, err)
	require.Len(t, sum, 1)
	assert.Equal(t, models.VitalSummary{
		VitalType: "Weight", Unit: "kg", Count: 4, LatestValue: "73", LatestMeasurement: *at(3),
		RecentValues: []string{"73", "72", "71"},
	}, sum[0])
}

func TestVitalsSummary_SplitsByUnitAndOwner(t *testing.T) {
	ctx := context.Background()
	e := newTestEnv(t)
	alice := e.register(t, "alice@example.com", "Alice")
	bob := e.register(t, "bob@example.com", "Bob")
	e.upload(t, alice, "A",
		VitalInput{VitalType: "Weight", Value: "70", Unit: "kg"},
		VitalInput{VitalType: "Weight", Value: "154", Unit: "lb"})
	e.upload(t, bob, "B", VitalInput{VitalType: "Weight", Value: "90", Unit: "kg"})

	sum, err := e.vitals.VitalsSummary(ctx, alice)
	require.NoError(t, err)
	require.Len(t, sum, 2)
	assert.Equal(t, "kg", sum[0].Unit)
	assert.Equal(t, "70", sum[0].LatestValue)
	assert.Equal(t, "lb", sum[1].Unit)
}

func TestAddVital_OnlyOwner(t *testing.T) {
	ctx := context.Background()
	e := newTestEnv(t)
	alice := e.register(t, "alice@example.com", "Alice")
	bob := e.register(t, "bob@example.com", "Bob")
	rep := e.upload(t, alice, "CBC")
	_, err := e.sharing.ShareReport(ctx, alice, rep.ID, bob.Email)
	require.NoError(t, err)

	_, err = e.vitals.AddVital(ctx, bob, rep.ID, VitalInput{VitalType: "Weight", Value: "70", Unit: "kg"})
	assert.ErrorIs(t, err, common.ErrNotFoundOrForbidden)

	_, err = e.vitals.AddVital(ctx, alice, rep.ID, VitalInput{VitalType: "Weight", Unit: "kg"})
	assert.ErrorIs(t, err, common.ErrValidation)

	_, err = e.vitals.AddVital(ctx, alice, uuid.NewString(), VitalInput{VitalType: "Weight", Value: "70", Unit: "kg"})
	assert.ErrorIs(t, err, common.ErrNotFoundOrForbidden)

	v, err := e.vitals.AddVital(ctx, alice, rep.ID, VitalInput{VitalType: "Weight", Value: "70", Unit: "kg"})
	require.NoError(t, err)
	assert.False(t, v.MeasuredAt.IsZero(), "single additions default to now")
}

func TestListVitalsForReport_NewestFirstAndSharedRead(t *testing.T) {
	ctx := context.Background()
	e := newTestEnv(t)
	alice := e.register(t, "alice@example.com", "Alice")
	bob := e.register(t, "bob@example.com", "Bob")
	eve := e.register(t, "eve@example.com", "Eve")
	rep := e.upload(t, alice, "CBC",
		VitalInput{VitalType: "Heart Rate", Value: "60", Unit: "bpm", MeasuredAt: at(1)},
		VitalInput{VitalType: "Heart Rate", Value: "80", Unit: "bpm", MeasuredAt: at(3)},
		VitalInput{VitalType: "Heart Rate", Value: "70", Unit: "bpm", MeasuredAt: at(2)})
	_, err := e.sharing.ShareReport(ctx, alice, rep.ID, bob.Email)
	require.NoError(t, err)

	list, err := e.vitals.ListVitalsForReport(ctx, rep.ID, bob)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, []string{"80", "70", "60"}, []string{list[0].Value, list[1].Value, list[2].Value})

	_, err = e.vitals.ListVitalsForReport(ctx, rep.ID, eve)
	assert.ErrorIs(t, err, common.ErrNotFoundOrForbidden)
}

func TestDeleteVital(t *testing.T) {
	ctx := context.Background()
	e := newTestEnv(t)
	alice := e.register(t, "alice@example.com", "Alice")
	bob := e.register(t, "bob@example.com", "Bob")
	rep := e.upload(t, alice, "CBC")
	_, err := e.sharing.ShareReport(ctx, alice, rep.ID, bob.Email)
	require.NoError(t, err)
	v, err := e.vitals.AddVital(ctx, alice, rep.ID, VitalInput{VitalType: "Weight", Value: "70", Unit: "kg"})
	require.NoError(t, err)

	assert.ErrorIs(t, e.vitals.DeleteVital(ctx, v.ID, bob), common.ErrNotFoundOrForbidden)
	require.NoError(t, e.vitals.DeleteVital(ctx, v.ID, alice))
	assert.ErrorIs(t, e.vitals.DeleteVital(ctx, v.ID, alice), common.ErrNotFoundOrForbidden)
	assert.ErrorIs(t, e.vitals.DeleteVital(ctx, "bogus", alice), common.ErrNotFoundOrForbidden)
}

func TestVitalsTrend(t *testing.T) {
	ctx := context.Background()
	e := newTestEnv(t)
	alice := e.register(t, "alice@example.com", "Alice")
	e.upload(t, alice, "Jan",
		VitalInput{VitalType: "Weight", Value: "71", Unit: "kg", MeasuredAt: at(2)},
		VitalInput{VitalType: "Weight", Value: "70", Unit: "kg", MeasuredAt: at(1)},
		VitalInput{VitalType: "Heart Rate", Value: "72", Unit: "bpm", MeasuredAt: at(1)})

	trend, err := e.vitals.VitalsTrend(ctx, alice, models.VitalFilter{VitalType: "Weight"})
	require.NoError(t, err)
	require.Len(t, trend, 2)
	assert.Equal(t, "70", trend[0].Value)
	assert.Equal(t, reportDay, trend[0].ReportDate)

	from := reportDay.AddDate(0, 0, 1)
	trend, err = e.vitals.VitalsTrend(ctx, alice, models.VitalFilter{From: &from})
	require.NoError(t, err)
	assert.Empty(t, trend)

	to := reportDay.AddDate(0, 0, -1)
	_, err = e.vitals.VitalsTrend(ctx, alice, models.VitalFilter{From: &from, To: &to})
	assert.ErrorIs(t, err, common.ErrValidation)
}
