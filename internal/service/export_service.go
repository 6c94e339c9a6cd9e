package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/study-planner-api/internal/dto"
	"github.com/noah-isme/study-planner-api/internal/timegrid"
	appErrors "github.com/noah-isme/study-planner-api/pkg/errors"
	"github.com/noah-isme/study-planner-api/pkg/export"
	applogger "github.com/noah-isme/study-planner-api/pkg/logger"
	"github.com/noah-isme/study-planner-api/pkg/storage"
)

type weekViewer interface {
	GetWeek(ctx context.Context, userID, rawWeek string) (*dto.WeekView, error)
}

type fileStorage interface {
	Save(filename string, data []byte) (string, error)
	Open(filename string) (*os.File, error)
	CleanupOlderThan(ttl time.Duration) ([]string, error)
}

type tableRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

type calendarRenderer interface {
	Render(name string, events []export.Event) ([]byte, error)
}

// ExportConfig tunes export behaviour.
type ExportConfig struct {
	APIPrefix string
	ResultTTL time.Duration
	Location  *time.Location
}

// ExportFile is a rendered plan.
type ExportFile struct {
	Name        string
	Format      export.Format
	ContentType string
	Data        []byte
}

// ExportLink points at a stored export.
type ExportLink struct {
	Token     string        `json:"token"`
	URL       string        `json:"url"`
	Format    export.Format `json:"format"`
	ExpiresAt time.Time     `json:"expiresAt"`
}

var planHeaders = []string{"Date", "Day", "Start", "End", "Course", "Type", "Source"}

// ExportService renders weekly plans and stores them behind signed download links.
type ExportService struct {
	views    weekViewer
	storage  fileStorage
	signer   *storage.SignedURLSigner
	tables   map[export.Format]tableRenderer
	calendar calendarRenderer
	logger   *zap.Logger
	cfg      ExportConfig
	now      func() time.Time
}

// NewExportService constructs an ExportService. storage and signer may be nil when only
// inline rendering is needed.
func NewExportService(views weekViewer, store fileStorage, signer *storage.SignedURLSigner, cfg ExportConfig, logger *zap.Logger) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ResultTTL <= 0 {
		cfg.ResultTTL = 24 * time.Hour
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	return &ExportService{
		views:   views,
		storage: store,
		signer:  signer,
		tables: map[export.Format]tableRenderer{
			export.FormatCSV:  export.NewCSVExporter(),
			export.FormatPDF:  export.NewPDFExporter(),
			export.FormatXLSX: export.NewXLSXExporter("Plan"),
		},
		calendar: export.NewICSExporter(""),
		logger:   logger,
		cfg:      cfg,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Render builds the user's week in the requested format.
func (s *ExportService) Render(ctx context.Context, userID, rawWeek, rawFormat string) (*ExportFile, error) {
	format, err := export.ParseFormat(strings.ToLower(rawFormat))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid export format")
	}
	view, err := s.views.GetWeek(ctx, userID, rawWeek)
	if err != nil {
		return nil, err
	}
	week, err := timegrid.ParseWeek(view.WeekStart)
	if err != nil {
		return nil, appErrors.Internal(err, "invalid week in view")
	}

	title := fmt.Sprintf("Study plan, week of %s", view.WeekStart)
	var data []byte
	if format == export.FormatICS {
		data, err = s.calendar.Render(title, s.events(week, view))
	} else {
		data, err = s.tables[format].Render(s.dataset(title, week, view))
	}
	if err != nil {
		return nil, appErrors.Internal(err, "failed to render export")
	}
	return &ExportFile{
		Name:        fmt.Sprintf("plan_%s.%s", view.WeekStart, format),
		Format:      format,
		ContentType: format.ContentType(),
		Data:        data,
	}, nil
}

// Publish renders the week, stores it and returns a signed download link.
func (s *ExportService) Publish(ctx context.Context, userID, rawWeek, rawFormat string) (*ExportLink, error) {
	if s.storage == nil || s.signer == nil {
		return nil, appErrors.Clone(appErrors.ErrInternal, "export storage not configured")
	}
	file, err := s.Render(ctx, userID, rawWeek, rawFormat)
	if err != nil {
		return nil, err
	}
	name := fmt.Sprintf("%s/%s_%s", sanitizeFilename(userID), s.now().Format("20060102_150405"), file.Name)
	relPath, err := s.storage.Save(name, file.Data)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to store export")
	}
	token, expiresAt, err := s.signer.Generate(userID, relPath)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to sign export link")
	}
	prefix := strings.TrimRight(s.cfg.APIPrefix, "/")
	if prefix == "" {
		prefix = "/api/v1"
	}
	applogger.FromContext(ctx, s.logger).Info("export published", zap.String("user_id", userID), zap.String("path", relPath), zap.String("format", string(file.Format)))
	return &ExportLink{
		Token:     token,
		URL:       fmt.Sprintf("%s/exports/%s", prefix, token),
		Format:    file.Format,
		ExpiresAt: expiresAt,
	}, nil
}

// Open resolves a download token to the stored file and its format.
func (s *ExportService) Open(token string) (*os.File, export.Format, error) {
	if s.storage == nil || s.signer == nil {
		return nil, "", appErrors.Clone(appErrors.ErrNotFound, "export not found")
	}
	_, relPath, _, err := s.signer.Parse(token, false)
	if err != nil {
		if errors.Is(err, storage.ErrTokenExpired) {
			return nil, "", appErrors.Clone(appErrors.ErrNotFound, "export link expired")
		}
		return nil, "", appErrors.Clone(appErrors.ErrNotFound, "export not found")
	}
	file, err := s.storage.Open(relPath)
	if err != nil {
		return nil, "", appErrors.Clone(appErrors.ErrNotFound, "export not found")
	}
	ext := relPath[strings.LastIndex(relPath, ".")+1:]
	format, err := export.ParseFormat(ext)
	if err != nil {
		format = export.FormatCSV
	}
	return file, format, nil
}

// Cleanup removes stored exports older than the configured TTL.
func (s *ExportService) Cleanup(_ context.Context) {
	if s.storage == nil {
		return
	}
	deleted, err := s.storage.CleanupOlderThan(s.cfg.ResultTTL)
	if err != nil {
		s.logger.Warn("export cleanup failed", zap.Error(err))
		return
	}
	if len(deleted) > 0 {
		s.logger.Info("expired exports removed", zap.Int("count", len(deleted)))
	}
}

func (s *ExportService) dataset(title string, week time.Time, view *dto.WeekView) export.Dataset {
	rows := make([]map[string]string, 0, len(view.Sessions)+len(view.Fixed))
	for _, session := range view.Sessions {
		name := session.CourseName
		if name == "" {
			name = session.CourseNumber
		}
		rows = append(rows, map[string]string{
			"Date":   timegrid.DateOf(week, session.Day).Format(timegrid.DateLayout),
			"Day":    session.Day.String(),
			"Start":  session.StartTime.String(),
			"End":    session.EndTime.String(),
			"Course": name,
			"Type":   string(session.WorkType),
			"Source": string(session.Source),
		})
	}
	for _, item := range view.Fixed {
		rows = append(rows, map[string]string{
			"Date":   timegrid.DateOf(week, item.Day).Format(timegrid.DateLayout),
			"Day":    item.Day.String(),
			"Start":  item.StartTime.String(),
			"End":    item.EndTime.String(),
			"Course": item.Title,
			"Type":   string(item.Kind),
			"Source": "timetable",
		})
	}
	return export.Dataset{Title: title, Headers: planHeaders, Rows: rows}
}

func (s *ExportService) events(week time.Time, view *dto.WeekView) []export.Event {
	events := make([]export.Event, 0, len(view.Sessions)+len(view.Fixed))
	for _, session := range view.Sessions {
		name := session.CourseName
		if name == "" {
			name = session.CourseNumber
		}
		events = append(events, export.Event{
			UID:         session.BlockIDs[0] + "@study-planner",
			Summary:     fmt.Sprintf("%s (%s study)", name, session.WorkType),
			Description: "Course " + session.CourseNumber,
			Start:       s.at(week, session.Day, session.StartTime),
			End:         s.at(week, session.Day, session.EndTime),
		})
	}
	for _, item := range view.Fixed {
		events = append(events, export.Event{
			UID:      fmt.Sprintf("%s-%s@study-planner", item.ID, view.WeekStart),
			Summary:  item.Title,
			Location: item.Location,
			Start:    s.at(week, item.Day, item.StartTime),
			End:      s.at(week, item.Day, item.EndTime),
		})
	}
	return events
}

func (s *ExportService) at(week time.Time, day timegrid.Day, c timegrid.Clock) time.Time {
	y, m, d := timegrid.DateOf(week, day).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, s.cfg.Location).Add(time.Duration(c) * time.Minute)
}

func sanitizeFilename(raw string) string {
	if raw == "" {
		return "na"
	}
	replacer := strings.NewReplacer(" ", "_", "/", "-", "\\", "-", ":", "-", "..", ".", "__", "_")
	result := replacer.Replace(raw)
	if len(result) > 100 {
		return result[:100]
	}
	return result
}
