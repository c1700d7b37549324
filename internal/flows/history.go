package flows

import (
	"context"

	"chemviz/internal/router"
	"chemviz/internal/staging"
	"chemviz/internal/types"
	"chemviz/internal/utils"
)

type HistoryAPI interface {
	History(ctx context.Context) ([]types.HistoryRecord, error)
	Summary(ctx context.Context, id int) (types.SummaryResponse, error)
}

// History lists previous uploads and stages one of them, summary only.
type History struct {
	api     HistoryAPI
	staging *staging.Store
	nav     *router.Navigator
	logger  *utils.Logger
}

func NewHistory(api HistoryAPI, st *staging.Store, nav *router.Navigator, logger *utils.Logger) *History {
	if logger == nil {
		logger = utils.NopLogger()
	}
	return &History{api: api, staging: st, nav: nav, logger: logger}
}

func (h *History) Fetch(ctx context.Context) ([]types.HistoryRecord, error) {
	records, err := h.api.History(ctx)
	if err != nil {
		h.logger.Warnf("load history failed: %v", err)
		return nil, requestError("history", HistoryFailedMessage, err)
	}
	return records, nil
}

// Select stages rec with an empty row set and moves to the dashboard.
func (h *History) Select(rec types.HistoryRecord) types.StagedDataset {
	dataset := types.StagedDataset{
		DatasetID: rec.ID,
		Filename:  rec.Filename,
		Timestamp: rec.Timestamp,
		Summary:   rec.Summary,
		Rows:      []types.EquipmentRow{},
		Source:    types.SourceHistory,
	}
	h.staging.Put(dataset)
	h.logger.Debugf("staged history dataset %d (%s)", rec.ID, rec.Filename)
	if h.nav != nil {
		h.nav.Navigate(router.Dashboard)
	}
	return dataset
}

// Open fetches one dataset's summary by id and stages it like Select.
func (h *History) Open(ctx context.Context, id int) (types.StagedDataset, error) {
	resp, err := h.api.Summary(ctx, id)
	if err != nil {
		h.logger.Warnf("load summary %d failed: %v", id, err)
		return types.StagedDataset{}, requestError("summary", SummaryFailedMessage, err)
	}
	return h.Select(types.HistoryRecord{
		ID:        resp.ID,
		Filename:  resp.Filename,
		Timestamp: resp.Timestamp,
		Summary:   *resp.Summary,
	}), nil
}
