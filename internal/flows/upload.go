package flows

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"chemviz/internal/config"
	"chemviz/internal/metrics"
	"chemviz/internal/router"
	"chemviz/internal/staging"
	"chemviz/internal/types"
	"chemviz/internal/utils"
)

// SelectedFile is the user's file choice. The zero value means nothing
// was chosen.
type SelectedFile struct {
	Path string
	Name string
	Size int64
}

func (f SelectedFile) IsZero() bool {
	return f.Name == "" && f.Path == ""
}

// SelectFile describes the file at path. An empty path selects nothing.
func SelectFile(path string) (SelectedFile, error) {
	if strings.TrimSpace(path) == "" {
		return SelectedFile{}, nil
	}
	info, err := os.Stat(path)
	if err != nil {
		return SelectedFile{}, fmt.Errorf("select %s: %w", path, err)
	}
	if info.IsDir() {
		return SelectedFile{}, fmt.Errorf("select %s: is a directory", path)
	}
	return SelectedFile{Path: path, Name: filepath.Base(path), Size: info.Size()}, nil
}

// ValidateFile checks presence, then extension, then size. The extension
// check is case-sensitive.
func ValidateFile(f SelectedFile, maxBytes int64) error {
	if maxBytes <= 0 {
		maxBytes = config.DefaultMaxUploadBytes
	}
	switch {
	case f.IsZero():
		return &ValidationError{Reason: "missing_file", Message: "Please select a file"}
	case !strings.HasSuffix(f.Name, ".csv"):
		return &ValidationError{Reason: "extension", Message: "Please select a CSV file"}
	case f.Size > maxBytes:
		return &ValidationError{Reason: "size", Message: fmt.Sprintf("File size must be less than %s", sizeLabel(maxBytes))}
	}
	return nil
}

func sizeLabel(n int64) string {
	if n%(1024*1024) == 0 {
		return fmt.Sprintf("%dMB", n/(1024*1024))
	}
	return fmt.Sprintf("%d bytes", n)
}

type Uploader interface {
	Upload(ctx context.Context, filename string, content io.Reader) (types.UploadResponse, error)
}

// Upload sends a CSV, stages the full result and moves to the dashboard.
type Upload struct {
	api      Uploader
	staging  *staging.Store
	nav      *router.Navigator
	metrics  *metrics.Metrics
	logger   *utils.Logger
	maxBytes int64
}

func NewUpload(api Uploader, st *staging.Store, nav *router.Navigator, m *metrics.Metrics, logger *utils.Logger, maxBytes int64) *Upload {
	if logger == nil {
		logger = utils.NopLogger()
	}
	if m == nil {
		m = metrics.New()
	}
	return &Upload{api: api, staging: st, nav: nav, metrics: m, logger: logger, maxBytes: maxBytes}
}

// Validate runs the local checks only.
func (u *Upload) Validate(f SelectedFile) error {
	err := ValidateFile(f, u.maxBytes)
	var ve *ValidationError
	if errors.As(err, &ve) {
		u.metrics.LocalValidationFailures.WithLabelValues(ve.Reason).Inc()
	}
	return err
}

// Run validates f, uploads it and stages the response. Nothing is staged
// when any step fails.
func (u *Upload) Run(ctx context.Context, f SelectedFile) (types.StagedDataset, error) {
	if err := u.Validate(f); err != nil {
		return types.StagedDataset{}, err
	}

	file, err := os.Open(f.Path)
	if err != nil {
		return types.StagedDataset{}, &RequestError{Op: "upload", Message: UploadFailedMessage, Err: err}
	}
	defer file.Close()

	resp, err := u.api.Upload(ctx, f.Name, file)
	if err != nil {
		u.logger.Warnf("upload %s failed: %v", f.Name, err)
		return types.StagedDataset{}, requestError("upload", UploadFailedMessage, err)
	}

	dataset := types.StagedDataset{
		DatasetID: resp.DatasetID,
		Filename:  resp.Filename,
		Timestamp: resp.Timestamp,
		Summary:   *resp.Summary,
		Rows:      resp.Data,
		Source:    types.SourceUpload,
	}
	u.staging.Put(dataset)
	u.logger.Infof("staged upload %s (dataset %d, %d rows)", dataset.Filename, dataset.DatasetID, len(dataset.Rows))
	if u.nav != nil {
		u.nav.Navigate(router.Dashboard)
	}
	return dataset, nil
}
