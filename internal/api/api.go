// Package api wraps each backend endpoint in a typed call over the shared
// transport. Response bodies are checked for the fields the client relies
// on before they are handed back.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/go-playground/validator/v10"

	"chemviz/internal/transport"
	"chemviz/internal/types"
	"chemviz/internal/utils"
)

const (
	PathLogin   = "/auth/login/"
	PathUpload  = "/upload/"
	PathHistory = "/history/"
)

// UploadField is the multipart field name the backend reads the CSV from.
const UploadField = "file"

type API struct {
	client   *transport.Client
	validate *validator.Validate
	logger   *utils.Logger
}

func New(client *transport.Client, logger *utils.Logger) *API {
	if logger == nil {
		logger = utils.NopLogger()
	}
	return &API{client: client, validate: validator.New(), logger: logger}
}

func (a *API) Client() *transport.Client {
	return a.client
}

func SummaryPath(id int) string {
	return fmt.Sprintf("/summary/%d/", id)
}

func ReportPath(id int) string {
	return fmt.Sprintf("/report/pdf/%d/", id)
}

// Login never presents the stored credential, so a refused login cannot be
// mistaken for the current session being revoked.
func (a *API) Login(ctx context.Context, req types.LoginRequest) (types.LoginResponse, error) {
	var out types.LoginResponse
	if err := a.client.JSON(transport.Anonymous(ctx), http.MethodPost, PathLogin, req, &out); err != nil {
		return types.LoginResponse{}, err
	}
	if err := a.validate.Struct(out); err != nil {
		return types.LoginResponse{}, fmt.Errorf("login response: %w", err)
	}
	return out, nil
}

// Upload sends the CSV as multipart form data under UploadField.
func (a *API) Upload(ctx context.Context, filename string, content io.Reader) (types.UploadResponse, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile(UploadField, filename)
	if err != nil {
		return types.UploadResponse{}, fmt.Errorf("build upload form: %w", err)
	}
	if _, err := io.Copy(part, content); err != nil {
		return types.UploadResponse{}, fmt.Errorf("read %s: %w", filename, err)
	}
	if err := mw.Close(); err != nil {
		return types.UploadResponse{}, fmt.Errorf("build upload form: %w", err)
	}

	resp, err := a.client.Do(ctx, http.MethodPost, PathUpload, &buf, mw.FormDataContentType())
	if err != nil {
		return types.UploadResponse{}, err
	}
	defer resp.Body.Close()

	var out types.UploadResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return types.UploadResponse{}, fmt.Errorf("decode upload response: %w", err)
	}
	if err := a.validate.Struct(out); err != nil {
		return types.UploadResponse{}, fmt.Errorf("upload response: %w", err)
	}
	if out.Filename == "" {
		out.Filename = filename
	}
	a.logger.Debugf("uploaded %s as dataset %d (%d rows)", out.Filename, out.DatasetID, len(out.Data))
	return out, nil
}

// History returns at most types.MaxHistory records, most recent first.
func (a *API) History(ctx context.Context) ([]types.HistoryRecord, error) {
	var out types.HistoryResponse
	if err := a.client.JSON(ctx, http.MethodGet, PathHistory, nil, &out); err != nil {
		return nil, err
	}
	if err := a.validate.Struct(out); err != nil {
		return nil, fmt.Errorf("history response: %w", err)
	}
	records := out.Datasets
	if records == nil {
		records = []types.HistoryRecord{}
	}
	if len(records) > types.MaxHistory {
		a.logger.Warnf("history returned %d datasets, keeping the first %d", len(records), types.MaxHistory)
		records = records[:types.MaxHistory]
	}
	return records, nil
}

func (a *API) Summary(ctx context.Context, id int) (types.SummaryResponse, error) {
	var out types.SummaryResponse
	if err := a.client.JSON(ctx, http.MethodGet, SummaryPath(id), nil, &out); err != nil {
		return types.SummaryResponse{}, err
	}
	if err := a.validate.Struct(out); err != nil {
		return types.SummaryResponse{}, fmt.Errorf("summary response: %w", err)
	}
	if out.ID == 0 {
		out.ID = id
	}
	return out, nil
}

// Report fetches the PDF report for a dataset.
func (a *API) Report(ctx context.Context, id int) ([]byte, error) {
	resp, err := a.client.Do(ctx, http.MethodGet, ReportPath(id), nil, "")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read report: %w", err)
	}
	return data, nil
}
