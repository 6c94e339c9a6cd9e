package service

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/study-planner-api/internal/models"
	"github.com/noah-isme/study-planner-api/internal/timegrid"
	appErrors "github.com/noah-isme/study-planner-api/pkg/errors"
	"github.com/noah-isme/study-planner-api/pkg/export"
	"github.com/noah-isme/study-planner-api/pkg/storage"
)

func newExportFixture(t *testing.T) (*plannerFixture, *ExportService) {
	t.Helper()
	f := newPlannerFixture(t)
	f.plans.addRun("u1", testWeek, "db", models.WorkTypePersonal, nil, timegrid.Monday, "10:00", "12:00")
	f.plans.fixed = append(f.plans.fixed, models.FixedScheduleItem{
		ID: "lec", UserID: "u1", Title: "Lecture", Kind: models.FixedItemLecture,
		Day: timegrid.Tuesday, StartTime: timegrid.Hour(9), EndTime: timegrid.Hour(10), Location: "Hall B",
	})

	store, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	signer := storage.NewSignedURLSigner("test-secret", time.Hour)
	views := NewScheduleViewService(f.plans, f.plans, f.plans)
	svc := NewExportService(views, store, signer, ExportConfig{APIPrefix: "/api/v1/"}, zap.NewNop())
	svc.now = func() time.Time { return time.Date(2026, 5, 2, 8, 30, 0, 0, time.UTC) }
	return f, svc
}

func TestExportServiceRendersCSV(t *testing.T) {
	_, svc := newExportFixture(t)

	file, err := svc.Render(context.Background(), "u1", "2026-05-03", "CSV")
	require.NoError(t, err)
	assert.Equal(t, "plan_2026-05-03.csv", file.Name)
	assert.Equal(t, export.FormatCSV, file.Format)
	assert.Equal(t, "text/csv; charset=utf-8", file.ContentType)

	lines := strings.Split(strings.TrimSpace(string(file.Data)), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "Date,Day,Start,End,Course,Type,Source", lines[0])
	assert.Equal(t, "2026-05-04,Monday,10:00,12:00,DB,personal,manual", lines[1])
	assert.Equal(t, "2026-05-05,Tuesday,09:00,10:00,Lecture,lecture,timetable", lines[2])
}

func TestExportServiceRendersCalendar(t *testing.T) {
	_, svc := newExportFixture(t)

	file, err := svc.Render(context.Background(), "u1", "2026-05-03", "ics")
	require.NoError(t, err)
	body := string(file.Data)
	assert.Equal(t, 2, strings.Count(body, "BEGIN:VEVENT"))
	assert.Contains(t, body, "20260504T100000Z")
	assert.Contains(t, body, "lec-2026-05-03@study-planner")
	assert.Contains(t, body, "Hall B")
}

func TestExportServiceRejectsUnknownFormat(t *testing.T) {
	_, svc := newExportFixture(t)
	_, err := svc.Render(context.Background(), "u1", "2026-05-03", "docx")
	require.Error(t, err)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrValidation.Code))
}

func TestExportServicePublishAndOpen(t *testing.T) {
	_, svc := newExportFixture(t)
	ctx := context.Background()

	link, err := svc.Publish(ctx, "u1", "2026-05-03", "csv")
	require.NoError(t, err)
	assert.Equal(t, "/api/v1/exports/"+link.Token, link.URL)
	assert.Equal(t, export.FormatCSV, link.Format)

	file, format, err := svc.Open(link.Token)
	require.NoError(t, err)
	defer file.Close()
	assert.Equal(t, export.FormatCSV, format)
	data, err := io.ReadAll(file)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "Date,Day,Start,End"))

	_, _, err = svc.Open(link.Token + "x")
	require.Error(t, err)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrNotFound.Code))

	svc.Cleanup(ctx)
	reopened, _, err := svc.Open(link.Token)
	require.NoError(t, err)
	reopened.Close()
}

func TestExportServiceWithoutStorage(t *testing.T) {
	f := newPlannerFixture(t)
	svc := NewExportService(NewScheduleViewService(f.plans, f.plans, f.plans), nil, nil, ExportConfig{}, nil)

	_, err := svc.Publish(context.Background(), "u1", "2026-05-03", "pdf")
	require.Error(t, err)
	_, _, err = svc.Open("anything")
	require.Error(t, err)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrNotFound.Code))
}

func TestSanitizeFilename(t *testing.T) {
	assert.Equal(t, "na", sanitizeFilename(""))
	assert.Equal(t, "a_b-c", sanitizeFilename("a b/c"))
}
