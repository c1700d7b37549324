package apitest

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"testing"
)

func login(t *testing.T, s *Server, username, password string) (int, map[string]any) {
	t.Helper()
	body := strings.NewReader(`{"username":"` + username + `","password":"` + password + `"}`)
	resp, err := http.Post(s.URL+"/auth/login/", "application/json", body)
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	defer resp.Body.Close()
	var out map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp.StatusCode, out
}

func get(t *testing.T, url, auth string) *http.Response {
	t.Helper()
	req, _ := http.NewRequest(http.MethodGet, url, nil)
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("get %s: %v", url, err)
	}
	return resp
}

func TestLoginIssuesTokenForValidCredentials(t *testing.T) {
	s := New(t)
	s.AddUser("testuser", "testpass123")
	s.UseToken("testuser", "test-token")

	code, body := login(t, s, "testuser", "testpass123")
	if code != http.StatusOK || body["token"] != "test-token" || body["username"] != "testuser" {
		t.Fatalf("unexpected login result %d %+v", code, body)
	}

	code, body = login(t, s, "testuser", "wrong")
	if code != http.StatusUnauthorized || body["error"] != "Invalid credentials" {
		t.Fatalf("expected 401 Invalid credentials, got %d %+v", code, body)
	}
}

func TestProtectedRoutesRequireTokenScheme(t *testing.T) {
	s := New(t)
	s.AddUser("alice", "pw")
	token := s.Token("alice")

	resp := get(t, s.URL+"/history/", "")
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 without header, got %d", resp.StatusCode)
	}
	resp = get(t, s.URL+"/history/", "Bearer "+token)
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 for Bearer scheme, got %d", resp.StatusCode)
	}
	resp = get(t, s.URL+"/history/", "Token "+token)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 for Token scheme, got %d", resp.StatusCode)
	}

	s.Revoke(token)
	resp = get(t, s.URL+"/history/", "Token "+token)
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 after revoke, got %d", resp.StatusCode)
	}
}

func TestUploadComputesSummaryAndKeepsFive(t *testing.T) {
	s := New(t)
	s.AddUser("alice", "pw")
	token := s.Token("alice")

	for i := 0; i < 7; i++ {
		var buf bytes.Buffer
		mw := multipart.NewWriter(&buf)
		part, _ := mw.CreateFormFile("file", "equipment.csv")
		_, _ = io.WriteString(part, SampleCSV)
		_ = mw.Close()
		req, _ := http.NewRequest(http.MethodPost, s.URL+"/upload/", &buf)
		req.Header.Set("Content-Type", mw.FormDataContentType())
		req.Header.Set("Authorization", "Token "+token)
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatalf("upload: %v", err)
		}
		var out struct {
			Summary struct {
				TotalCount       int            `json:"total_count"`
				TypeDistribution map[string]int `json:"type_distribution"`
			} `json:"summary"`
			Data []map[string]any `json:"data"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&out)
		resp.Body.Close()
		if resp.StatusCode != http.StatusCreated {
			t.Fatalf("expected 201, got %d", resp.StatusCode)
		}
		if out.Summary.TotalCount != 4 || out.Summary.TypeDistribution["Pump"] != 2 || len(out.Data) != 4 {
			t.Fatalf("unexpected upload body %+v", out)
		}
	}
	if got := len(s.Datasets("alice")); got != 5 {
		t.Fatalf("expected 5 datasets kept, got %d", got)
	}
}

func TestParseEquipmentCSVErrors(t *testing.T) {
	cases := map[string]string{
		"":                                  "CSV file is empty",
		"Equipment Name,Type\nA,B\n":        "Missing required columns: Flowrate, Pressure, Temperature",
		strings.Split(SampleCSV, "\n")[0]:   "CSV file must contain at least one row of data",
		"Equipment Name,Type,Flowrate,Pressure,Temperature\nA,B,x,1,2\n": "Column 'Flowrate' must contain numeric values",
	}
	for in, want := range cases {
		_, _, err := parseEquipmentCSV(strings.NewReader(in))
		if err == nil || err.Error() != want {
			t.Fatalf("parse %q: expected %q, got %v", in, want, err)
		}
	}
}

func TestFailNextIsConsumedOnce(t *testing.T) {
	s := New(t)
	s.AddUser("alice", "pw")
	token := s.Token("alice")
	s.FailNext(http.MethodGet, "/history/", http.StatusInternalServerError, `{}`)

	resp := get(t, s.URL+"/history/", "Token "+token)
	resp.Body.Close()
	if resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("expected injected 500, got %d", resp.StatusCode)
	}
	resp = get(t, s.URL+"/history/", "Token "+token)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 after injected failure, got %d", resp.StatusCode)
	}
	if s.RequestCount("/history/") != 2 {
		t.Fatalf("expected 2 recorded requests")
	}
}
