package mojavez

import "encoding/json"

// Filter is the filterLicensesInput wire object. The registry requires every
// field to be present even when empty; optional geography filters and the
// page number are omitted when unset. Page is string-typed on the wire.
type Filter struct {
	Title           string  `json:"title"`
	Name            string  `json:"name"`
	IssueStartDate  string  `json:"issue_start_date"`
	IssueEndDate    string  `json:"issue_end_date"`
	LastOpStartDate string  `json:"last_op_start_date"`
	LastOpEndDate   string  `json:"last_op_end_date"`
	MainOrgCode     *string `json:"main_org_code"`
	SubOrgCode      *string `json:"sub_org_code"`
	ProvinceID      *int    `json:"province_id,omitempty"`
	TownshipID      *int    `json:"township_id,omitempty"`
	Page            string  `json:"page,omitempty"`
}

// NewFilter builds a filter for a time range in API date format and optional
// geography ids.
func NewFilter(startDate, endDate string, provinceID, townshipID *int) Filter {
	return Filter{
		LastOpStartDate: startDate,
		LastOpEndDate:   endDate,
		ProvinceID:      provinceID,
		TownshipID:      townshipID,
	}
}

// Status is the nested status object of a list record.
type Status struct {
	StatusID    string `json:"status_id"`
	StatusTitle string `json:"status_title"`
	StatusSlug  string `json:"status_slug"`
}

// Record is one harvested license from the list view. RequestNumber is the
// record identity; Raw preserves the wire payload verbatim for forward
// compatibility.
type Record struct {
	RequestNumber     string  `json:"request_number"`
	ApplicantName     string  `json:"applicant_name"`
	UserImage         string  `json:"user_image"`
	LicenseTitle      string  `json:"license_title"`
	OrganizationTitle string  `json:"organization_title"`
	ProvinceTitle     string  `json:"province_title"`
	TownshipTitle     string  `json:"township_title"`
	RespondedAt       string  `json:"responded_at"`
	Status            *Status `json:"status"`

	Raw json.RawMessage `json:"-"`
}

// Pagination is the list operation's pagination metadata.
type Pagination struct {
	Total       int `json:"total"`
	PerPage     int `json:"per_page"`
	CurrentPage int `json:"current_page"`
}

// TotalPages derives the page count; zero when per-page is unknown.
func (p *Pagination) TotalPages() int {
	if p == nil || p.PerPage <= 0 {
		return 0
	}
	return (p.Total + p.PerPage - 1) / p.PerPage
}

// Page is one page of list results. Pagination is nil when the response
// carried no metadata.
type Page struct {
	Records    []Record
	Pagination *Pagination
}

// Place is a geography directory entry: a province or a township.
type Place struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// Detail source tags recording which path produced a detail.
const (
	SourceGraphQL = "graphql"
	SourceHTML    = "html"
)

// Detail is the per-record enrichment unavailable in the list view. Source
// records provenance: the structured detail query or the track document.
type Detail struct {
	RequestNumber     string `json:"request_number"`
	LicenseTitle      string `json:"license_title"`
	OrganizationTitle string `json:"organization_title"`
	ISICCode          string `json:"isic_code"`
	IssueType         string `json:"issue_type"`
	IssuedAt          string `json:"issued_at"`
	ExpiresAt         string `json:"expires_at"`
	ProvinceTitle     string `json:"province_title"`
	TownshipTitle     string `json:"township_title"`
	PostalCode        string `json:"postal_code"`
	BusinessAddress   string `json:"business_address"`
	StatusTitle       string `json:"status_title"`
	StatusSlug        string `json:"status_slug"`

	Source string          `json:"-"`
	Raw    json.RawMessage `json:"-"`
}

// Empty reports whether the detail carries no extracted fields at all.
func (d *Detail) Empty() bool {
	return d == nil || (d.LicenseTitle == "" && d.OrganizationTitle == "" &&
		d.IssuedAt == "" && d.ExpiresAt == "" && d.PostalCode == "" &&
		d.BusinessAddress == "" && d.StatusTitle == "" && d.ISICCode == "" &&
		d.IssueType == "")
}
