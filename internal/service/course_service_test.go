package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/study-planner-api/internal/dto"
	appErrors "github.com/noah-isme/study-planner-api/pkg/errors"
)

func newCourseFixture(t *testing.T) (*plannerFixture, *CourseService) {
	t.Helper()
	f := newPlannerFixture(t)
	f.courses.addCourse("234218", "Data Structures", 4)
	return f, NewCourseService(f.courses, f.prefSvc, nil, nil, "2026a")
}

func TestCourseServiceEnrollUsesCatalog(t *testing.T) {
	f, svc := newCourseFixture(t)
	ctx := context.Background()

	resp, err := svc.Enroll(ctx, "u1", dto.EnrollRequest{CourseNumber: "234218", CourseName: "data structures"})
	require.NoError(t, err)
	assert.Equal(t, dto.EnrollmentCreated, resp.Status)
	assert.Equal(t, "Data Structures", resp.Enrollment.CourseName)
	assert.Equal(t, 4.0, resp.Enrollment.CreditPoints)
	assert.Equal(t, "2026a", resp.Enrollment.Term)
	assert.True(t, resp.Enrollment.Active)

	listed, err := svc.List(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Equal(t, "234218", listed[0].CourseNumber)

	pref, err := f.prefs.Get(ctx, "u1", "234218")
	require.NoError(t, err)
	assert.Equal(t, 6.0, pref.PersonalHoursPerWeek)
	assert.Equal(t, 6.0, pref.GroupHoursPerWeek)

	// enrolled courses resolve by name for block creation
	found, err := f.courses.FindEnrollmentByName(ctx, "u1", "data")
	require.NoError(t, err)
	assert.Equal(t, "234218", found.CourseNumber)
}

func TestCourseServiceEnrollTwiceReportsExisting(t *testing.T) {
	f, svc := newCourseFixture(t)
	ctx := context.Background()

	_, err := svc.Enroll(ctx, "u1", dto.EnrollRequest{CourseNumber: "234218"})
	require.NoError(t, err)
	resp, err := svc.Enroll(ctx, "u1", dto.EnrollRequest{CourseNumber: "234218"})
	require.NoError(t, err)
	assert.Equal(t, dto.EnrollmentAlreadyExists, resp.Status)
	assert.Len(t, f.courses.enrollments["u1"], 1)
}

func TestCourseServiceEnrollRejections(t *testing.T) {
	f, svc := newCourseFixture(t)
	ctx := context.Background()

	_, err := svc.Enroll(ctx, "u1", dto.EnrollRequest{CourseNumber: "999999"})
	require.Error(t, err)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrNotFound.Code))

	_, err = svc.Enroll(ctx, "u1", dto.EnrollRequest{CourseNumber: "234218", CourseName: "Algorithms"})
	require.Error(t, err)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrValidation.Code))
	assert.Contains(t, err.Error(), "Data Structures")

	_, err = svc.Enroll(ctx, "u1", dto.EnrollRequest{})
	require.Error(t, err)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrValidation.Code))

	assert.Empty(t, f.courses.enrollments["u1"])
}
