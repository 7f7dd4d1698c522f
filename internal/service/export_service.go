package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/capstone-api/internal/dto"
	appErrors "github.com/noah-isme/capstone-api/pkg/errors"
	"github.com/noah-isme/capstone-api/pkg/export"
	"github.com/noah-isme/capstone-api/pkg/storage"
)

// Export formats understood by the renderer set.
const (
	ExportFormatCSV  = "csv"
	ExportFormatPDF  = "pdf"
	ExportFormatXLSX = "xlsx"
)

type reportStorage interface {
	Save(ctx context.Context, key string, data []byte, contentType string) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
}

type downloadSigner interface {
	Sign(subject, key string) (string, time.Time, error)
	Verify(token string) (storage.DownloadGrant, error)
}

// ExportConfig tunes export behaviour.
type ExportConfig struct {
	APIPrefix string
}

// ExportFile is an opened export ready to be streamed.
type ExportFile struct {
	Body        io.ReadCloser
	Filename    string
	ContentType string
}

// ExportService renders recommendation reports and stores them behind signed download tokens.
type ExportService struct {
	storage   reportStorage
	signer    downloadSigner
	renderers map[string]export.Renderer
	logger    *zap.Logger
	cfg       ExportConfig
	now       func() time.Time
}

// NewExportService constructs an ExportService with CSV, PDF and XLSX renderers.
func NewExportService(store reportStorage, signer downloadSigner, cfg ExportConfig, logger *zap.Logger) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	renderers := map[string]export.Renderer{}
	for _, renderer := range []export.Renderer{export.NewCSVExporter(), export.NewPDFExporter(), export.NewXLSXExporter()} {
		renderers[renderer.Extension()] = renderer
	}
	return &ExportService{
		storage:   store,
		signer:    signer,
		renderers: renderers,
		logger:    logger,
		cfg:       cfg,
		now:       time.Now,
	}
}

// ExportRecommendation renders the recommendation in the requested format and returns a signed link.
func (s *ExportService) ExportRecommendation(ctx context.Context, rec *dto.RecommendationResponse, format string) (*dto.ExportRecommendationResponse, error) {
	renderer, ok := s.renderers[strings.ToLower(format)]
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported export format %q", format))
	}
	payload, err := renderer.Render(recommendationDataset(rec))
	if err != nil {
		return nil, appErrors.Internal(err, "failed to render recommendation report")
	}

	key := path.Join("recommendations", fmt.Sprintf("%s_%s.%s", rec.ID, s.now().UTC().Format("20060102_150405"), renderer.Extension()))
	if err := s.storage.Save(ctx, key, payload, renderer.ContentType()); err != nil {
		return nil, appErrors.Internal(err, "failed to store recommendation report")
	}

	token, expiresAt, err := s.signer.Sign(rec.ID, key)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to sign download link")
	}
	prefix := strings.TrimRight(s.cfg.APIPrefix, "/")
	if prefix == "" {
		prefix = "/api/v1"
	}
	s.logger.Info("recommendation exported", zap.String("recommendation_id", rec.ID), zap.String("format", renderer.Extension()), zap.String("key", key))
	return &dto.ExportRecommendationResponse{
		Token:     token,
		URL:       fmt.Sprintf("%s/allocations/exports/%s", prefix, token),
		Format:    renderer.Extension(),
		ExpiresAt: expiresAt,
	}, nil
}

// Open validates the download token and opens the stored report.
func (s *ExportService) Open(ctx context.Context, token string) (*ExportFile, error) {
	grant, err := s.signer.Verify(token)
	switch {
	case errors.Is(err, storage.ErrTokenExpired):
		return nil, appErrors.Wrap(err, appErrors.ErrForbidden.Code, appErrors.ErrForbidden.Status, "download link expired")
	case err != nil:
		return nil, appErrors.Wrap(err, appErrors.ErrForbidden.Code, appErrors.ErrForbidden.Status, "invalid download token")
	}
	key := grant.Key
	body, err := s.storage.Open(ctx, key)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "export not found")
		}
		return nil, appErrors.Internal(err, "failed to open export")
	}
	filename := path.Base(key)
	contentType := "application/octet-stream"
	if renderer, ok := s.renderers[strings.TrimPrefix(path.Ext(filename), ".")]; ok {
		contentType = renderer.ContentType()
	}
	return &ExportFile{Body: body, Filename: filename, ContentType: contentType}, nil
}

func recommendationDataset(rec *dto.RecommendationResponse) export.Dataset {
	rows := make([]map[string]string, 0, len(rec.Items)+len(rec.Unallocated))
	for i, item := range rec.Items {
		priority := ""
		if item.Priority > 0 {
			priority = strconv.Itoa(item.Priority)
		}
		rows = append(rows, map[string]string{
			"no":       strconv.Itoa(i + 1),
			"student":  item.StudentID,
			"lecturer": item.LecturerID,
			"topic":    item.TopicTitle,
			"source":   item.Source,
			"priority": priority,
		})
	}
	for _, studentID := range rec.Unallocated {
		rows = append(rows, map[string]string{
			"no":      strconv.Itoa(len(rows) + 1),
			"student": studentID,
			"source":  "UNALLOCATED",
		})
	}
	return export.Dataset{
		Title: fmt.Sprintf("Allocation recommendation %s", rec.GeneratedAt.UTC().Format("2006-01-02 15:04")),
		Columns: []export.Column{
			{Key: "no", Label: "No", Width: 12},
			{Key: "student", Label: "Student"},
			{Key: "lecturer", Label: "Lecturer"},
			{Key: "topic", Label: "Topic"},
			{Key: "source", Label: "Source", Width: 30},
			{Key: "priority", Label: "Priority", Width: 20},
		},
		Rows: rows,
	}
}
