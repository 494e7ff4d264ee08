package jobs

import (
	"context"
	"encoding/json"
	"net/http"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/naotama2002/odesk-go/auth"
	"github.com/naotama2002/odesk-go/client"
	"github.com/naotama2002/odesk-go/internal/odesktest"
	"github.com/naotama2002/odesk-go/signature"
)

type fakeAPI struct {
	url    string
	params signature.Params
	body   string
}

func (f *fakeAPI) GetJSON(_ context.Context, baseURL string, params signature.Params, v any) error {
	f.url = baseURL
	f.params = params
	return json.Unmarshal([]byte(f.body), v)
}

const listing = `{
	"jobs": {
		"lister": {"total_items": "2", "offset": 0, "count": "20", "query": "web"},
		"job": [
			{"op_recno": 101, "ciphertext": "~~abc", "op_title": "Build a site", "job_type": "Fixed", "amount": 1500},
			{"op_recno": "102", "op_title": "Fix CSS", "job_type": "Fixed", "amount": "1000.00"}
		]
	}
}`

func TestWebJobsParams(t *testing.T) {
	expected := signature.Params{"q": "web", "min": "1000", "t": "Fixed", "dp": "0"}
	if got := WebJobs().Params(); !reflect.DeepEqual(got, expected) {
		t.Errorf("Expected %v, got %v", expected, got)
	}
}

func TestQueryParams(t *testing.T) {
	q := Query{
		Keywords:   "golang",
		Type:       TypeHourly,
		MaxBudget:  50,
		DaysPosted: 3,
		Skills:     []string{"go", "sql"},
		Page:       "0;10",
		Sort:       "date_posted",
		Extra:      signature.Params{"c1": "Web Development"},
	}

	expected := signature.Params{
		"q":    "golang",
		"t":    "Hourly",
		"max":  "50",
		"dp":   "3",
		"qs":   "go;sql",
		"page": "0;10",
		"sort": "date_posted",
		"c1":   "Web Development",
	}
	if got := q.Params(); !reflect.DeepEqual(got, expected) {
		t.Errorf("Expected %v, got %v", expected, got)
	}
	if len(q.Extra) != 1 {
		t.Error("Params must not modify Extra")
	}
}

func TestQueryValidate(t *testing.T) {
	tests := []struct {
		name    string
		query   Query
		wantErr bool
	}{
		{name: "stock query", query: WebJobs()},
		{name: "empty", query: Query{}},
		{name: "unknown type", query: Query{Type: "Salary"}, wantErr: true},
		{name: "negative budget", query: Query{MinBudget: -1}, wantErr: true},
		{name: "min above max", query: Query{MinBudget: 100, MaxBudget: 50}, wantErr: true},
		{name: "negative days", query: Query{DaysPosted: -1}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.query.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestSearch(t *testing.T) {
	api := &fakeAPI{body: listing}

	result, err := NewService(api).Web(context.Background())
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}

	if api.url != SearchURL {
		t.Errorf("Expected %s, got %s", SearchURL, api.url)
	}
	if api.params["q"] != "web" {
		t.Errorf("Expected q=web, got %v", api.params["q"])
	}

	if result.Jobs.Lister.TotalItems.Int() != 2 {
		t.Errorf("Expected 2 total items, got %s", result.Jobs.Lister.TotalItems)
	}
	if len(result.Jobs.Job) != 2 {
		t.Fatalf("Expected 2 jobs, got %d", len(result.Jobs.Job))
	}

	first := result.Jobs.Job[0]
	if first.Reference != "101" || first.Amount != "1500" {
		t.Errorf("Numbers should decode as text, got %q and %q", first.Reference, first.Amount)
	}
	if first.URL() != "https://www.odesk.com/jobs/~~abc" {
		t.Errorf("Unexpected job URL %s", first.URL())
	}
	if result.Jobs.Job[1].URL() != "" {
		t.Error("A job without ciphertext has no URL")
	}
}

func TestSearchRejectsInvalidQuery(t *testing.T) {
	api := &fakeAPI{body: listing}
	if _, err := NewService(api).Search(context.Background(), Query{Type: "Salary"}); err == nil {
		t.Fatal("Expected validation error")
	}
	if api.url != "" {
		t.Error("Invalid queries must not be sent")
	}
}

func TestListShapes(t *testing.T) {
	tests := []struct {
		name  string
		body  string
		count int
	}{
		{name: "array", body: `{"jobs":{"job":[{"op_title":"a"},{"op_title":"b"}]}}`, count: 2},
		{name: "single object", body: `{"jobs":{"job":{"op_title":"a"}}}`, count: 1},
		{name: "empty string", body: `{"jobs":{"job":""}}`, count: 0},
		{name: "null", body: `{"jobs":{"job":null}}`, count: 0},
		{name: "missing", body: `{"jobs":{}}`, count: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var result Result
			if err := json.Unmarshal([]byte(tt.body), &result); err != nil {
				t.Fatalf("Unmarshal failed: %v", err)
			}
			if len(result.Jobs.Job) != tt.count {
				t.Errorf("Expected %d jobs, got %d", tt.count, len(result.Jobs.Job))
			}
		})
	}
}

func TestTextRejectsObjects(t *testing.T) {
	var text Text
	if err := json.Unmarshal([]byte(`{"a":1}`), &text); err == nil {
		t.Error("Expected error for an object")
	}
}

func TestSearchThroughClient(t *testing.T) {
	server := odesktest.New("app-key", "app-secret")
	defer server.Close()
	server.Resource = func(w http.ResponseWriter, _ *odesktest.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(listing))
	}

	c, err := client.New(client.Config{
		AppKey:     "app-key",
		Secret:     "app-secret",
		Username:   server.Username,
		Password:   server.Password,
		CookieFile: filepath.Join(t.TempDir(), "cookie.txt"),
		Endpoints: auth.Endpoints{
			Login:  server.LoginURL(),
			Auth:   server.AuthURL(),
			Frobs:  server.FrobsURL(),
			Tokens: server.TokensURL(),
		},
	})
	if err != nil {
		t.Fatalf("client.New failed: %v", err)
	}

	result, err := NewService(c).WithURL(server.ResourceURL("profiles/v1/search/jobs.json")).Web(context.Background())
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(result.Jobs.Job) != 2 {
		t.Errorf("Expected 2 jobs, got %d", len(result.Jobs.Job))
	}

	requests := server.Requests()
	if len(requests) != 1 {
		t.Fatalf("Expected 1 resource call, got %d", len(requests))
	}
	for key, expected := range map[string]string{"q": "web", "min": "1000", "t": "Fixed", "dp": "0"} {
		if got := requests[0].Params.Get(key); got != expected {
			t.Errorf("Expected %s=%s, got %s", key, expected, got)
		}
	}
}
