// Package jobs wraps the oDesk job search endpoint.
package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strconv"
	"strings"

	"github.com/naotama2002/odesk-go/signature"
)

// SearchURL is the job search resource
const SearchURL = "https://www.odesk.com/api/profiles/v1/search/jobs.json"

// Job types accepted by the t filter
const (
	TypeFixed  = "Fixed"
	TypeHourly = "Hourly"
)

// API is the part of client.Client the search needs
type API interface {
	GetJSON(ctx context.Context, baseURL string, params signature.Params, v any) error
}

// Query filters a job search. Empty fields are not sent, except
// DaysPosted which is always sent and 0 means any age.
type Query struct {
	Keywords   string
	Type       string
	MinBudget  int
	MaxBudget  int
	DaysPosted int
	Skills     []string
	// Page is "offset;count" as the service expects.
	Page string
	Sort string
	// Extra carries filters this struct does not name.
	Extra signature.Params
}

// WebJobs is the stock query: fixed price web jobs from 1000 up.
func WebJobs() Query {
	return Query{
		Keywords:   "web",
		Type:       TypeFixed,
		MinBudget:  1000,
		DaysPosted: 0,
	}
}

// Params encodes q with the service's short parameter names
func (q Query) Params() signature.Params {
	p := q.Extra.Clone()
	if q.Keywords != "" {
		p["q"] = q.Keywords
	}
	if q.Type != "" {
		p["t"] = q.Type
	}
	if q.MinBudget > 0 {
		p["min"] = strconv.Itoa(q.MinBudget)
	}
	if q.MaxBudget > 0 {
		p["max"] = strconv.Itoa(q.MaxBudget)
	}
	if len(q.Skills) > 0 {
		p["qs"] = strings.Join(q.Skills, ";")
	}
	if q.Page != "" {
		p["page"] = q.Page
	}
	if q.Sort != "" {
		p["sort"] = q.Sort
	}
	p["dp"] = strconv.Itoa(q.DaysPosted)
	return p
}

// Validate rejects filters the service would refuse
func (q Query) Validate() error {
	switch q.Type {
	case "", TypeFixed, TypeHourly:
	default:
		return fmt.Errorf("unknown job type %q", q.Type)
	}
	if q.MinBudget < 0 || q.MaxBudget < 0 {
		return fmt.Errorf("budget can not be negative")
	}
	if q.MaxBudget > 0 && q.MinBudget > q.MaxBudget {
		return fmt.Errorf("min budget %d is above max budget %d", q.MinBudget, q.MaxBudget)
	}
	if q.DaysPosted < 0 {
		return fmt.Errorf("days posted can not be negative")
	}
	return nil
}

// Service runs searches through an authorized client
type Service struct {
	api API
	url string
}

// NewService returns a Service calling SearchURL
func NewService(api API) *Service {
	return &Service{api: api, url: SearchURL}
}

// WithURL points the service at another search endpoint
func (s *Service) WithURL(url string) *Service {
	return &Service{api: s.api, url: url}
}

// Search runs q and decodes the listing
func (s *Service) Search(ctx context.Context, q Query) (*Result, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	var result Result
	if err := s.api.GetJSON(ctx, s.url, q.Params(), &result); err != nil {
		return nil, err
	}
	log.Printf("Job search returned %d of %s jobs", len(result.Jobs.Job), result.Jobs.Lister.TotalItems)
	return &result, nil
}

// Web runs the stock WebJobs query
func (s *Service) Web(ctx context.Context) (*Result, error) {
	return s.Search(ctx, WebJobs())
}

// Result is the decoded jobs.json answer
type Result struct {
	Jobs struct {
		Lister Lister `json:"lister"`
		Job    List   `json:"job"`
	} `json:"jobs"`
}

// Lister describes the page returned
type Lister struct {
	TotalItems Text `json:"total_items"`
	Offset     Text `json:"offset"`
	Count      Text `json:"count"`
	Query      Text `json:"query"`
}

// Job is one listing
type Job struct {
	Reference   Text `json:"op_recno"`
	Ciphertext  Text `json:"ciphertext"`
	Title       Text `json:"op_title"`
	Description Text `json:"op_description"`
	JobType     Text `json:"job_type"`
	Amount      Text `json:"amount"`
	DatePosted  Text `json:"date_posted"`
	Country     Text `json:"op_country"`
	Skills      Text `json:"op_required_skills"`
}

// URL is the public page of the job, if the listing carries a ciphertext
func (j Job) URL() string {
	if j.Ciphertext == "" {
		return ""
	}
	return "https://www.odesk.com/jobs/" + string(j.Ciphertext)
}

// List decodes a job array. The service sends a lone object instead of a
// one-element array and an empty string for no results.
type List []Job

// UnmarshalJSON accepts an array, a single object, "" or null
func (l *List) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	switch {
	case trimmed == "null" || trimmed == `""`:
		*l = nil
		return nil
	case strings.HasPrefix(trimmed, "{"):
		var job Job
		if err := json.Unmarshal(data, &job); err != nil {
			return err
		}
		*l = List{job}
		return nil
	default:
		var jobs []Job
		if err := json.Unmarshal(data, &jobs); err != nil {
			return err
		}
		*l = jobs
		return nil
	}
}

// Text is a scalar the service sends as either a string or a number
type Text string

// UnmarshalJSON accepts strings, numbers, booleans and null
func (t *Text) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*t = Text(s)
		return nil
	}
	if string(data) == "null" {
		*t = ""
		return nil
	}
	var raw json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if len(raw) > 0 && (raw[0] == '{' || raw[0] == '[') {
		return fmt.Errorf("expected a scalar, got %s", raw)
	}
	*t = Text(raw)
	return nil
}

// Int parses t as an integer, 0 when it is not one
func (t Text) Int() int {
	n, _ := strconv.Atoi(strings.TrimSpace(string(t)))
	return n
}
