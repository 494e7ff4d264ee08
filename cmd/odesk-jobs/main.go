package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/naotama2002/odesk-go/auth"
	"github.com/naotama2002/odesk-go/client"
	"github.com/naotama2002/odesk-go/internal/config"
	"github.com/naotama2002/odesk-go/jobs"
	"github.com/naotama2002/odesk-go/signature"
)

type options struct {
	configPath   string
	mode         string
	user         string
	insecure     bool
	forget       bool
	callbackAddr string

	query   jobs.Query
	skills  string
	rawURL  string
	params  flagList
	verbose bool
}

func main() {
	opts := parseFlags(os.Args[1:])

	log.SetOutput(logOutput(opts, os.Stderr))

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, opts, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// logOutput keeps stderr logging on with -insecure so the TLS warning
// is always seen.
func logOutput(opts *options, stderr io.Writer) io.Writer {
	if opts.verbose || opts.insecure {
		return stderr
	}
	return io.Discard
}

func parseFlags(args []string) *options {
	opts := &options{}
	fs := flag.NewFlagSet("odesk-jobs", flag.ExitOnError)

	fs.StringVar(&opts.configPath, "config", "", "Config file (default "+config.DefaultPath()+")")
	fs.StringVar(&opts.mode, "mode", "", "Authorization mode: nonweb or web")
	fs.StringVar(&opts.user, "user", "", "oDesk username for nonweb mode (password from "+config.EnvPass+")")
	fs.BoolVar(&opts.insecure, "insecure", false, "Skip TLS certificate verification (insecure)")
	fs.BoolVar(&opts.forget, "forget", false, "Drop the stored token and authorize again")
	fs.StringVar(&opts.callbackAddr, "callback", "", "Callback listen address for web mode")

	fs.StringVar(&opts.query.Keywords, "q", "web", "Search keywords")
	fs.StringVar(&opts.query.Type, "type", jobs.TypeFixed, "Job type: Fixed or Hourly")
	fs.IntVar(&opts.query.MinBudget, "min", 1000, "Lowest budget")
	fs.IntVar(&opts.query.MaxBudget, "max", 0, "Highest budget")
	fs.IntVar(&opts.query.DaysPosted, "days", 0, "Only jobs posted in the last N days, 0 for any")
	fs.StringVar(&opts.query.Page, "page", "", `Page as "offset;count"`)
	fs.StringVar(&opts.skills, "skills", "", "Comma separated required skills")

	fs.StringVar(&opts.rawURL, "get", "", "Perform a signed GET on this resource URL instead of a job search")
	fs.Var(&opts.params, "param", "Parameter for -get (format: 'key=value'), repeatable")
	fs.BoolVar(&opts.verbose, "v", false, "Log requests and authorization steps to stderr")

	_ = fs.Parse(args)

	if opts.skills != "" {
		opts.query.Skills = splitList(opts.skills)
	}
	return opts
}

func run(ctx context.Context, opts *options, out io.Writer) error {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return err
	}
	applyFlags(cfg, opts)

	api, err := client.New(cfg.ClientConfig())
	if err != nil {
		return err
	}

	if opts.forget {
		if err := api.Session().ForceReauth(); err != nil {
			return err
		}
	}

	if api.Session().Mode() == auth.ModeWeb {
		callback := cfg.CallbackOptions()
		if _, err := auth.BrowserAuthorize(ctx, api.Session(), callback); err != nil {
			return err
		}
	}

	if opts.rawURL != "" {
		params, err := opts.params.Params()
		if err != nil {
			return err
		}
		body, err := api.Get(ctx, opts.rawURL, params)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(out, string(body))
		return err
	}

	result, err := jobs.NewService(api).Search(ctx, opts.query)
	if err != nil {
		return err
	}
	return printJobs(out, result)
}

// applyFlags lets flags win over the file and environment
func applyFlags(cfg *config.Config, opts *options) {
	if opts.mode != "" {
		cfg.Mode = opts.mode
	}
	if opts.user != "" {
		cfg.Username = opts.user
	}
	if opts.insecure {
		cfg.InsecureSkipVerify = true
	}
	if opts.callbackAddr != "" {
		cfg.Callback.Addr = opts.callbackAddr
	}
}

func printJobs(out io.Writer, result *jobs.Result) error {
	if len(result.Jobs.Job) == 0 {
		_, err := fmt.Fprintln(out, "No jobs found")
		return err
	}

	for _, job := range result.Jobs.Job {
		line := fmt.Sprintf("%-10s %10s  %s", job.JobType, job.Amount, job.Title)
		if u := job.URL(); u != "" {
			line += "  " + u
		}
		if _, err := fmt.Fprintln(out, line); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintf(out, "%d of %s jobs\n", len(result.Jobs.Job), result.Jobs.Lister.TotalItems)
	return err
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// flagList is a custom flag type to handle repeated key=value entries
type flagList []string

func (f *flagList) String() string {
	return fmt.Sprint(*f)
}

func (f *flagList) Set(value string) error {
	*f = append(*f, value)
	return nil
}

// Params parses the entries; a value starting with { is decoded as a
// JSON object so nested parameters can be passed.
func (f flagList) Params() (signature.Params, error) {
	params := signature.Params{}
	for _, entry := range f {
		key, value, ok := strings.Cut(entry, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid parameter %q: expected key=value", entry)
		}
		if strings.HasPrefix(strings.TrimSpace(value), "{") {
			var nested map[string]any
			if err := json.Unmarshal([]byte(value), &nested); err != nil {
				return nil, fmt.Errorf("invalid JSON for parameter %q: %w", key, err)
			}
			params[key] = nested
			continue
		}
		params[key] = value
	}
	return params, nil
}
