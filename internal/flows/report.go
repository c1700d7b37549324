package flows

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"chemviz/internal/utils"
)

type Reports interface {
	Report(ctx context.Context, id int) ([]byte, error)
}

type Report struct {
	api    Reports
	logger *utils.Logger
}

func NewReport(api Reports, logger *utils.Logger) *Report {
	if logger == nil {
		logger = utils.NopLogger()
	}
	return &Report{api: api, logger: logger}
}

// ReportFilename is the name the PDF is saved under.
func ReportFilename(datasetFilename string) string {
	return fmt.Sprintf("report_%s.pdf", filepath.Base(datasetFilename))
}

// Download fetches the PDF for dataset id and writes it into dir. It
// returns the written path.
func (r *Report) Download(ctx context.Context, id int, filename, dir string) (string, error) {
	data, err := r.api.Report(ctx, id)
	if err != nil {
		r.logger.Warnf("download report %d failed: %v", id, err)
		return "", requestError("report", ReportFailedMessage, err)
	}
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", &RequestError{Op: "report", Message: ReportFailedMessage, Err: err}
	}
	path := filepath.Join(dir, ReportFilename(filename))
	if err := utils.WriteFileAtomic(path, data, 0o644); err != nil {
		return "", &RequestError{Op: "report", Message: ReportFailedMessage, Err: err}
	}
	r.logger.Infof("saved report for dataset %d to %s", id, path)
	return path, nil
}
