// Package mojavez is the typed surface over the licensing registry's GraphQL
// schema: record counting, filtered list pages, the geography directory, and
// per-record details.
package mojavez

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/irdatalab/mojavez-harvester/pkg/graphql"
)

// GraphQL documents for the registry schema.
const (
	countQuery = `
	query CountFilteredLicenses($input: filterLicensesInput!) {
	    countFilteredLicenses(input: $input) {
	        total
	    }
	}`

	listQuery = `
	query FilterLicenses($input: filterLicensesInput!) {
	    filterLicenses(input: $input) {
	        license {
	            request_number
	            applicant_name
	            user_image
	            license_title
	            organization_title
	            province_title
	            township_title
	            responded_at
	            status {
	                status_id
	                status_title
	                status_slug
	            }
	        }
	        pagination {
	            total
	            per_page
	            current_page
	        }
	    }
	}`

	provincesQuery = `
	query GetProvinces {
	    provinceTownship {
	        provinces {
	            id
	            name
	        }
	    }
	}`

	townshipsQuery = `
	query GetTownships($provinceId: Int!) {
	    provinceTownship {
	        townships(provinceId: $provinceId) {
	            id
	            name
	        }
	    }
	}`

	detailQuery = `
	query LicenseDetail($requestNumber: String!) {
	    licenseDetail(request_number: $requestNumber) {
	        request_number
	        license_title
	        organization_title
	        isic_code
	        issue_type
	        issued_at
	        expires_at
	        province_title
	        township_title
	        postal_code
	        business_address
	        status_title
	        status_slug
	    }
	}`
)

// Executor runs a single GraphQL query. Satisfied by graphql.Client.
type Executor interface {
	Execute(ctx context.Context, query string, variables map[string]any) (*graphql.Response, error)
}

// Client exposes the registry operations.
type Client struct {
	exec   Executor
	logger zerolog.Logger
}

// NewClient wraps a query executor.
func NewClient(exec Executor) *Client {
	return &Client{
		exec:   exec,
		logger: log.With().Str("component", "registry-api").Logger(),
	}
}

// CountLicenses reports how many records match the filter. It never fails
// outward: any executor or application error is logged and reported as zero.
// Callers must treat zero as ambiguous (truly empty or unknown); the direct
// fetch path's own termination signals make that safe.
func (c *Client) CountLicenses(ctx context.Context, f Filter) int {
	total, err := c.countLicenses(ctx, f)
	if err != nil {
		c.logger.Error().Err(err).Msg("Count query failed, reporting zero")
		return 0
	}
	return total
}

func (c *Client) countLicenses(ctx context.Context, f Filter) (int, error) {
	f.Page = ""
	resp, err := c.exec.Execute(ctx, countQuery, map[string]any{"input": f})
	if err != nil {
		return 0, err
	}
	if resp.HasErrors() {
		return 0, fmt.Errorf("count query errors: %s", resp.ErrorMessages())
	}

	var payload struct {
		CountFilteredLicenses struct {
			Total int `json:"total"`
		} `json:"countFilteredLicenses"`
	}
	if err := json.Unmarshal(resp.Data, &payload); err != nil {
		return 0, fmt.Errorf("decode count payload: %w", err)
	}
	return payload.CountFilteredLicenses.Total, nil
}

// FetchPage fetches one page of the filtered list. Page numbers start at 1
// and are string-typed on the wire. Application-level query errors are
// logged and yield an empty page; only transport exhaustion is an error.
func (c *Client) FetchPage(ctx context.Context, f Filter, page int) (*Page, error) {
	f.Page = fmt.Sprintf("%d", page)
	resp, err := c.exec.Execute(ctx, listQuery, map[string]any{"input": f})
	if err != nil {
		return nil, err
	}
	if resp.HasErrors() {
		c.logger.Error().
			Str("errors", resp.ErrorMessages()).
			Int("page", page).
			Msg("List query returned errors, treating as empty page")
		return &Page{}, nil
	}

	var payload struct {
		FilterLicenses struct {
			License    []json.RawMessage `json:"license"`
			Pagination *Pagination       `json:"pagination"`
		} `json:"filterLicenses"`
	}
	if err := json.Unmarshal(resp.Data, &payload); err != nil {
		return nil, fmt.Errorf("decode list payload: %w", err)
	}

	records := make([]Record, 0, len(payload.FilterLicenses.License))
	for _, raw := range payload.FilterLicenses.License {
		var rec Record
		if err := json.Unmarshal(raw, &rec); err != nil {
			c.logger.Warn().Err(err).Int("page", page).Msg("Skipping undecodable record")
			continue
		}
		rec.Raw = raw
		records = append(records, rec)
	}

	if payload.FilterLicenses.Pagination == nil {
		c.logger.Warn().Int("page", page).Msg("No pagination info in response")
	}

	return &Page{
		Records:    records,
		Pagination: payload.FilterLicenses.Pagination,
	}, nil
}

// Provinces lists the provinces in directory order.
func (c *Client) Provinces(ctx context.Context) ([]Place, error) {
	resp, err := c.exec.Execute(ctx, provincesQuery, nil)
	if err != nil {
		return nil, err
	}
	if resp.HasErrors() {
		return nil, fmt.Errorf("provinces query errors: %s", resp.ErrorMessages())
	}

	var payload struct {
		ProvinceTownship struct {
			Provinces []Place `json:"provinces"`
		} `json:"provinceTownship"`
	}
	if err := json.Unmarshal(resp.Data, &payload); err != nil {
		return nil, fmt.Errorf("decode provinces payload: %w", err)
	}
	return payload.ProvinceTownship.Provinces, nil
}

// Townships lists the townships of a province in directory order.
func (c *Client) Townships(ctx context.Context, provinceID int) ([]Place, error) {
	resp, err := c.exec.Execute(ctx, townshipsQuery, map[string]any{"provinceId": provinceID})
	if err != nil {
		return nil, err
	}
	if resp.HasErrors() {
		return nil, fmt.Errorf("townships query errors: %s", resp.ErrorMessages())
	}

	var payload struct {
		ProvinceTownship struct {
			Townships []Place `json:"townships"`
		} `json:"provinceTownship"`
	}
	if err := json.Unmarshal(resp.Data, &payload); err != nil {
		return nil, fmt.Errorf("decode townships payload: %w", err)
	}
	return payload.ProvinceTownship.Townships, nil
}

// Detail fetches the structured per-record detail. Returns nil when the
// registry has no detail for the key or rejects the query; the caller falls
// back to the track document in that case.
func (c *Client) Detail(ctx context.Context, requestNumber string) (*Detail, error) {
	resp, err := c.exec.Execute(ctx, detailQuery, map[string]any{"requestNumber": requestNumber})
	if err != nil {
		return nil, err
	}
	if resp.HasErrors() {
		return nil, fmt.Errorf("detail query errors: %s", resp.ErrorMessages())
	}

	var payload struct {
		LicenseDetail json.RawMessage `json:"licenseDetail"`
	}
	if err := json.Unmarshal(resp.Data, &payload); err != nil {
		return nil, fmt.Errorf("decode detail payload: %w", err)
	}
	if len(payload.LicenseDetail) == 0 || string(payload.LicenseDetail) == "null" {
		return nil, nil
	}

	var detail Detail
	if err := json.Unmarshal(payload.LicenseDetail, &detail); err != nil {
		return nil, fmt.Errorf("decode detail fields: %w", err)
	}
	detail.Source = SourceGraphQL
	detail.Raw = payload.LicenseDetail
	if detail.RequestNumber == "" {
		detail.RequestNumber = requestNumber
	}
	return &detail, nil
}
