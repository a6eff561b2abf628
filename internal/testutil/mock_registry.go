// Package testutil provides testing utilities for the mojavez harvester.
package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/irdatalab/mojavez-harvester/pkg/mojavez"
)

// PageSize is the mock registry's list page size, matching production.
const PageSize = 21

// SeedRecord is one license seeded into the mock registry.
type SeedRecord struct {
	RequestNumber string
	RespondedAt   time.Time
	ProvinceID    int
	TownshipID    int
	ProvinceTitle string
	TownshipTitle string
	LicenseTitle  string
}

// MockRegistry emulates the licensing registry for tests: the GraphQL
// endpoint with count/list/geography/detail operations computed from a
// seeded dataset, and the /track/ HTML fallback. Counters and failure
// toggles let tests script degraded behavior.
type MockRegistry struct {
	server *httptest.Server

	mu        sync.Mutex
	records   []SeedRecord
	provinces []mojavez.Place
	townships map[int][]mojavez.Place
	details   map[string]*mojavez.Detail

	// FailNextQueries makes the next n GraphQL requests return HTTP 500.
	FailNextQueries int

	// FailDetailQueries makes every detail operation return a GraphQL
	// errors list, forcing the track page fallback.
	FailDetailQueries bool

	// Request counters by operation.
	CountCalls  int
	ListCalls   int
	GeoCalls    int
	DetailCalls int
	TrackCalls  int
}

// NewMockRegistry starts a mock registry around the seeded dataset.
func NewMockRegistry() *MockRegistry {
	m := &MockRegistry{
		townships: make(map[int][]mojavez.Place),
		details:   make(map[string]*mojavez.Detail),
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/graphql", m.handleGraphQL)
	mux.HandleFunc("/track/", m.handleTrack)
	m.server = httptest.NewServer(mux)
	return m
}

// URL returns the mock server base URL.
func (m *MockRegistry) URL() string {
	return m.server.URL
}

// GraphQLURL returns the GraphQL endpoint URL.
func (m *MockRegistry) GraphQLURL() string {
	return m.server.URL + "/graphql"
}

// Close shuts down the mock server.
func (m *MockRegistry) Close() {
	m.server.Close()
}

// Seed adds records to the dataset.
func (m *MockRegistry) Seed(records ...SeedRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, records...)
}

// SeedGeography registers the province directory and each province's
// townships.
func (m *MockRegistry) SeedGeography(provinces []mojavez.Place, townships map[int][]mojavez.Place) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.provinces = provinces
	for id, towns := range townships {
		m.townships[id] = towns
	}
}

// SeedDetail registers a structured detail for a request number. Records
// without one answer the detail operation with null.
func (m *MockRegistry) SeedDetail(detail *mojavez.Detail) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.details[detail.RequestNumber] = detail
}

// QueryCalls is the total number of GraphQL requests served.
func (m *MockRegistry) QueryCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.CountCalls + m.ListCalls + m.GeoCalls + m.DetailCalls
}

type graphqlRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables"`
}

func (m *MockRegistry) handleGraphQL(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FailNextQueries > 0 {
		m.FailNextQueries--
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	var req graphqlRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	switch {
	case strings.Contains(req.Query, "countFilteredLicenses"):
		m.CountCalls++
		m.serveCount(w, req)
	case strings.Contains(req.Query, "filterLicenses"):
		m.ListCalls++
		m.serveList(w, req)
	case strings.Contains(req.Query, "provinceTownship"):
		m.GeoCalls++
		m.serveGeography(w, req)
	case strings.Contains(req.Query, "licenseDetail"):
		m.DetailCalls++
		m.serveDetail(w, req)
	default:
		writeErrors(w, "unknown operation")
	}
}

func (m *MockRegistry) serveCount(w http.ResponseWriter, req graphqlRequest) {
	matched, err := m.match(req)
	if err != nil {
		writeErrors(w, err.Error())
		return
	}
	writeData(w, map[string]any{
		"countFilteredLicenses": map[string]any{"total": len(matched)},
	})
}

func (m *MockRegistry) serveList(w http.ResponseWriter, req graphqlRequest) {
	matched, err := m.match(req)
	if err != nil {
		writeErrors(w, err.Error())
		return
	}

	page := 1
	if input, ok := req.Variables["input"].(map[string]any); ok {
		if p, ok := input["page"].(string); ok && p != "" {
			if n, err := strconv.Atoi(p); err == nil && n > 0 {
				page = n
			}
		}
	}

	start := (page - 1) * PageSize
	end := start + PageSize
	if start > len(matched) {
		start = len(matched)
	}
	if end > len(matched) {
		end = len(matched)
	}

	licenses := make([]map[string]any, 0, end-start)
	for _, rec := range matched[start:end] {
		licenses = append(licenses, map[string]any{
			"request_number":     rec.RequestNumber,
			"applicant_name":     "متقاضی " + rec.RequestNumber,
			"license_title":      rec.LicenseTitle,
			"organization_title": "مرجع صدور",
			"province_title":     rec.ProvinceTitle,
			"township_title":     rec.TownshipTitle,
			"responded_at":       rec.RespondedAt.Format("2006-01-02 15:04"),
			"status": map[string]any{
				"status_id":    "1",
				"status_title": "فعال",
				"status_slug":  "active",
			},
		})
	}

	writeData(w, map[string]any{
		"filterLicenses": map[string]any{
			"license": licenses,
			"pagination": map[string]any{
				"total":        len(matched),
				"per_page":     PageSize,
				"current_page": page,
			},
		},
	})
}

func (m *MockRegistry) serveGeography(w http.ResponseWriter, req graphqlRequest) {
	if strings.Contains(req.Query, "townships") {
		id := 0
		if v, ok := req.Variables["provinceId"].(float64); ok {
			id = int(v)
		}
		writeData(w, map[string]any{
			"provinceTownship": map[string]any{"townships": m.townships[id]},
		})
		return
	}
	writeData(w, map[string]any{
		"provinceTownship": map[string]any{"provinces": m.provinces},
	})
}

func (m *MockRegistry) serveDetail(w http.ResponseWriter, req graphqlRequest) {
	if m.FailDetailQueries {
		writeErrors(w, "detail service unavailable")
		return
	}
	rn, _ := req.Variables["requestNumber"].(string)
	detail, ok := m.details[rn]
	if !ok {
		writeData(w, map[string]any{"licenseDetail": nil})
		return
	}
	writeData(w, map[string]any{
		"licenseDetail": map[string]any{
			"request_number":     detail.RequestNumber,
			"license_title":      detail.LicenseTitle,
			"organization_title": detail.OrganizationTitle,
			"isic_code":          detail.ISICCode,
			"issue_type":         detail.IssueType,
			"issued_at":          detail.IssuedAt,
			"expires_at":         detail.ExpiresAt,
			"province_title":     detail.ProvinceTitle,
			"township_title":     detail.TownshipTitle,
			"postal_code":        detail.PostalCode,
			"business_address":   detail.BusinessAddress,
			"status_title":       detail.StatusTitle,
			"status_slug":        detail.StatusSlug,
		},
	})
}

// match filters the dataset by the request's filter input: last-operation
// date bounds and optional geography ids. Day-granularity end bounds are
// inclusive of the whole day; clocked bounds are exact instants with an
// exclusive end.
func (m *MockRegistry) match(req graphqlRequest) ([]SeedRecord, error) {
	input, ok := req.Variables["input"].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("missing filter input")
	}

	startStr, _ := input["last_op_start_date"].(string)
	endStr, _ := input["last_op_end_date"].(string)
	start, err := mojavez.ParseAPIDate(startStr)
	if err != nil {
		return nil, fmt.Errorf("bad start date: %v", err)
	}
	end, err := mojavez.ParseAPIDate(endStr)
	if err != nil {
		return nil, fmt.Errorf("bad end date: %v", err)
	}
	if !strings.Contains(endStr, ":") {
		end = end.AddDate(0, 0, 1)
	}

	provinceID, hasProvince := numericArg(input["province_id"])
	townshipID, hasTownship := numericArg(input["township_id"])

	var matched []SeedRecord
	for _, rec := range m.records {
		if rec.RespondedAt.Before(start) || !rec.RespondedAt.Before(end) {
			continue
		}
		if hasProvince && rec.ProvinceID != provinceID {
			continue
		}
		if hasTownship && rec.TownshipID != townshipID {
			continue
		}
		matched = append(matched, rec)
	}
	return matched, nil
}

func numericArg(v any) (int, bool) {
	f, ok := v.(float64)
	if !ok {
		return 0, false
	}
	return int(f), true
}

func (m *MockRegistry) handleTrack(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.TrackCalls++

	rn := strings.TrimPrefix(r.URL.Path, "/track/")
	detail, ok := m.details[rn]
	if !ok {
		http.NotFound(w, r)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprintf(w, `<!DOCTYPE html><html dir="rtl" lang="fa"><body><table>
<tr><th>شماره درخواست</th><td>%s</td></tr>
<tr><th>عنوان مجوز</th><td>%s</td></tr>
<tr><th>مرجع صدور</th><td>%s</td></tr>
<tr><th>کد آیسیک</th><td>%s</td></tr>
<tr><th>نوع صدور</th><td>%s</td></tr>
<tr><th>تاریخ صدور / تمدید</th><td>%s</td></tr>
<tr><th>تاریخ اعتبار</th><td>%s</td></tr>
<tr><th>کدپستی</th><td>%s</td></tr>
<tr><th>نشانی کسب و کار</th><td>%s</td></tr>
<tr><th>وضعیت مجوز</th><td>%s</td></tr>
</table></body></html>`,
		detail.RequestNumber, detail.LicenseTitle, detail.OrganizationTitle,
		detail.ISICCode, detail.IssueType, detail.IssuedAt, detail.ExpiresAt,
		detail.PostalCode, detail.BusinessAddress, detail.StatusTitle,
	)
}

func writeData(w http.ResponseWriter, data map[string]any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"data": data})
}

func writeErrors(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"errors": []map[string]any{{"message": msg}},
	})
}
