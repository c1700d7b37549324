package apitest

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
	"golang.org/x/crypto/bcrypt"

	"chemviz/internal/types"
)

var requiredColumns = []string{"Equipment Name", "Type", "Flowrate", "Pressure", "Temperature"}

func (s *Server) login(c echo.Context) error {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := c.Bind(&req); err != nil || req.Username == "" || req.Password == "" {
		return errorBody(c, http.StatusBadRequest, "Please provide both username and password")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[req.Username]
	if !ok || bcrypt.CompareHashAndPassword(u.hash, []byte(req.Password)) != nil {
		return errorBody(c, http.StatusUnauthorized, "Invalid credentials")
	}
	token := s.tokenLocked(req.Username)
	s.tokenOwners[token] = req.Username
	delete(s.revoked, token)
	return c.JSON(http.StatusOK, map[string]any{
		"token":    token,
		"user_id":  u.id,
		"username": req.Username,
	})
}

func (s *Server) upload(c echo.Context) error {
	fh, err := c.FormFile("file")
	if err != nil {
		return errorBody(c, http.StatusBadRequest, "No file provided")
	}
	if fh.Size > maxUploadBytes {
		return errorBody(c, http.StatusBadRequest, "File size exceeds 10MB limit")
	}
	if !strings.HasSuffix(fh.Filename, ".csv") {
		return errorBody(c, http.StatusBadRequest, "File must be a CSV")
	}
	f, err := fh.Open()
	if err != nil {
		return errorBody(c, http.StatusBadRequest, fmt.Sprintf("Error processing CSV: %v", err))
	}
	defer f.Close()

	rows, summary, err := parseEquipmentCSV(f)
	if err != nil {
		return errorBody(c, http.StatusBadRequest, err.Error())
	}

	owner := c.Get("username").(string)
	d := s.AddDataset(owner, Dataset{Filename: fh.Filename, Summary: summary, Rows: rows})
	s.prune(owner)

	return c.JSON(http.StatusCreated, map[string]any{
		"dataset_id": d.ID,
		"filename":   d.Filename,
		"timestamp":  d.Timestamp.Format(timestampFmt),
		"data":       d.Rows,
		"summary":    d.Summary,
	})
}

func (s *Server) prune(owner string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.datasets[:0]
	seen := 0
	for _, d := range s.datasets {
		if d.Owner == owner {
			seen++
			if seen > keepPerUser {
				continue
			}
		}
		kept = append(kept, d)
	}
	s.datasets = kept
}

func (s *Server) history(c echo.Context) error {
	owner := c.Get("username").(string)
	s.mu.Lock()
	limit := s.historyLimit
	s.mu.Unlock()

	out := []map[string]any{}
	for _, d := range s.Datasets(owner) {
		if len(out) == limit {
			break
		}
		out = append(out, map[string]any{
			"id":        d.ID,
			"filename":  d.Filename,
			"timestamp": d.Timestamp.Format(timestampFmt),
			"summary":   d.Summary,
		})
	}
	return c.JSON(http.StatusOK, map[string]any{"datasets": out})
}

func (s *Server) summary(c echo.Context) error {
	d, ok := s.lookup(c)
	if !ok {
		return errorBody(c, http.StatusNotFound, "Dataset not found")
	}
	return c.JSON(http.StatusOK, map[string]any{
		"id":        d.ID,
		"filename":  d.Filename,
		"timestamp": d.Timestamp.Format(timestampFmt),
		"summary":   d.Summary,
	})
}

func (s *Server) report(c echo.Context) error {
	d, ok := s.lookup(c)
	if !ok {
		return errorBody(c, http.StatusNotFound, "Dataset not found")
	}
	c.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf(`attachment; filename="report_%s.pdf"`, d.Filename))
	return c.Blob(http.StatusOK, "application/pdf", ReportBytes(d))
}

// ReportBytes is the body served for d's PDF report.
func ReportBytes(d Dataset) []byte {
	var b bytes.Buffer
	b.WriteString("%PDF-1.4\n")
	fmt.Fprintf(&b, "%% Chemical Equipment Parameter Visualizer\n%% %s total=%d\n", d.Filename, d.Summary.TotalCount)
	b.WriteString("%EOF\n")
	return b.Bytes()
}

func (s *Server) lookup(c echo.Context) (Dataset, bool) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		return Dataset{}, false
	}
	owner := c.Get("username").(string)
	for _, d := range s.Datasets(owner) {
		if d.ID == id {
			return d, true
		}
	}
	return Dataset{}, false
}

// parseEquipmentCSV validates the column set and computes the summary the
// way the backend does.
func parseEquipmentCSV(r io.Reader) ([]types.EquipmentRow, types.Summary, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, types.Summary{}, errors.New("CSV file is empty")
	}
	if err != nil {
		return nil, types.Summary{}, errors.New("Invalid CSV format")
	}

	index := map[string]int{}
	for i, name := range header {
		index[strings.TrimSpace(name)] = i
	}
	var missing []string
	for _, col := range requiredColumns {
		if _, ok := index[col]; !ok {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return nil, types.Summary{}, fmt.Errorf("Missing required columns: %s", strings.Join(missing, ", "))
	}

	rows := []types.EquipmentRow{}
	summary := types.Summary{TypeDistribution: map[string]int{}}
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, types.Summary{}, errors.New("Invalid CSV format")
		}
		row := types.EquipmentRow{
			Name: rec[index["Equipment Name"]],
			Type: rec[index["Type"]],
		}
		for _, col := range []struct {
			name string
			dst  *float64
		}{
			{"Flowrate", &row.Flowrate},
			{"Pressure", &row.Pressure},
			{"Temperature", &row.Temperature},
		} {
			v, err := strconv.ParseFloat(strings.TrimSpace(rec[index[col.name]]), 64)
			if err != nil {
				return nil, types.Summary{}, fmt.Errorf("Column '%s' must contain numeric values", col.name)
			}
			*col.dst = v
		}
		rows = append(rows, row)
		summary.AvgFlowrate += row.Flowrate
		summary.AvgPressure += row.Pressure
		summary.AvgTemperature += row.Temperature
		summary.TypeDistribution[row.Type]++
	}
	if len(rows) == 0 {
		return nil, types.Summary{}, errors.New("CSV file must contain at least one row of data")
	}
	n := float64(len(rows))
	summary.TotalCount = len(rows)
	summary.AvgFlowrate /= n
	summary.AvgPressure /= n
	summary.AvgTemperature /= n
	return rows, summary, nil
}
