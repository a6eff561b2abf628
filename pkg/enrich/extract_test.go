package enrich

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/irdatalab/mojavez-harvester/pkg/mojavez"
)

const trackPageHTML = `<!DOCTYPE html>
<html dir="rtl" lang="fa">
<body>
  <div class="license-card">
    <table>
      <tr><th>شماره درخواست</th><td>140212345678</td></tr>
      <tr><th>عنوان مجوز</th><td>پروانه کسب خرده‌فروشی</td></tr>
      <tr><th>مرجع صدور</th><td>اتاق اصناف ایران</td></tr>
      <tr><th>کد آیسیک</th><td>472101</td></tr>
      <tr><th>نوع صدور</th><td>صدور</td></tr>
      <tr><th>تاریخ صدور / تمدید</th><td>1402/08/15</td></tr>
      <tr><th>تاریخ اعتبار</th><td>1407/08/15</td></tr>
      <tr><th>استان</th><td>تهران</td></tr>
      <tr><th>شهرستان</th><td>تهران</td></tr>
      <tr><th>کدپستی</th><td>1234567890</td></tr>
      <tr><th>نشانی کسب و کار</th><td>تهران، خیابان ولیعصر، پلاک ۱۰</td></tr>
      <tr><th>وضعیت مجوز</th><td>فعال</td></tr>
    </table>
  </div>
</body>
</html>`

func TestExtractDetailTablePairs(t *testing.T) {
	detail, err := ExtractDetail(strings.NewReader(trackPageHTML), "140212345678")
	if err != nil {
		t.Fatalf("ExtractDetail: %v", err)
	}

	tests := []struct {
		field string
		got   string
		want  string
	}{
		{"request_number", detail.RequestNumber, "140212345678"},
		{"license_title", detail.LicenseTitle, "پروانه کسب خرده‌فروشی"},
		{"organization_title", detail.OrganizationTitle, "اتاق اصناف ایران"},
		{"isic_code", detail.ISICCode, "472101"},
		{"issue_type", detail.IssueType, "صدور"},
		{"issued_at", detail.IssuedAt, "1402/08/15"},
		{"expires_at", detail.ExpiresAt, "1407/08/15"},
		{"province_title", detail.ProvinceTitle, "تهران"},
		{"township_title", detail.TownshipTitle, "تهران"},
		{"postal_code", detail.PostalCode, "1234567890"},
		{"business_address", detail.BusinessAddress, "تهران، خیابان ولیعصر، پلاک ۱۰"},
		{"status_title", detail.StatusTitle, "فعال"},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("%s = %q, want %q", tt.field, tt.got, tt.want)
		}
	}
	if detail.Source != mojavez.SourceHTML {
		t.Errorf("source = %q, want html", detail.Source)
	}
}

func TestExtractDetailLabelsWithColons(t *testing.T) {
	html := `<div><span>عنوان مجوز:</span><span>پروانه کسب</span></div>`
	detail, err := ExtractDetail(strings.NewReader(html), "r1")
	if err != nil {
		t.Fatalf("ExtractDetail: %v", err)
	}
	if detail.LicenseTitle != "پروانه کسب" {
		t.Errorf("license_title = %q", detail.LicenseTitle)
	}
}

func TestExtractDetailRecordKeyWins(t *testing.T) {
	// The page echoes its own request number; the stored record's key is
	// authoritative.
	detail, err := ExtractDetail(strings.NewReader(trackPageHTML), "other-key")
	if err != nil {
		t.Fatalf("ExtractDetail: %v", err)
	}
	if detail.RequestNumber != "other-key" {
		t.Errorf("request_number = %q, want other-key", detail.RequestNumber)
	}
}

func TestExtractDetailNothingExtracted(t *testing.T) {
	_, err := ExtractDetail(strings.NewReader("<html><body><p>not found</p></body></html>"), "r1")
	if !errors.Is(err, ErrNoDetail) {
		t.Fatalf("err = %v, want ErrNoDetail", err)
	}
}

func TestTrackClientFetch(t *testing.T) {
	var gotPath, gotUA string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotUA = r.Header.Get("User-Agent")
		fmt.Fprint(w, trackPageHTML)
	}))
	defer server.Close()

	client := NewTrackClient(TrackConfig{BaseURL: server.URL, UserAgent: "harvester-test"})
	detail, err := client.Fetch(context.Background(), "140212345678")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}

	if gotPath != "/track/140212345678" {
		t.Errorf("path = %q, want /track/140212345678", gotPath)
	}
	if gotUA != "harvester-test" {
		t.Errorf("user agent = %q", gotUA)
	}
	if detail.LicenseTitle == "" || detail.Source != mojavez.SourceHTML {
		t.Errorf("detail = %+v", detail)
	}
}

func TestTrackClientFetchErrors(t *testing.T) {
	t.Run("non-200 status", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		}))
		defer server.Close()

		client := NewTrackClient(TrackConfig{BaseURL: server.URL})
		if _, err := client.Fetch(context.Background(), "missing"); err == nil {
			t.Fatal("expected error for 404")
		}
	})

	t.Run("empty document", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			fmt.Fprint(w, "<html><body></body></html>")
		}))
		defer server.Close()

		client := NewTrackClient(TrackConfig{BaseURL: server.URL})
		_, err := client.Fetch(context.Background(), "r1")
		if !errors.Is(err, ErrNoDetail) {
			t.Fatalf("err = %v, want ErrNoDetail", err)
		}
	})
}
