// Package sqlpromptctl is the operator CLI for a running sqlprompt API.
package sqlpromptctl

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/sqlprompt/sqlprompt/internal/target"
)

// DefaultTimeout outlasts the API's own worst case: connect, two LLM calls, schema
// and execution each run to their limits, all inside the server's 2m write timeout.
// A shorter client timeout can give up on a write the server still commits.
const DefaultTimeout = 2*time.Minute + 10*time.Second

type Options struct {
	BaseURL    string
	Timeout    time.Duration
	Password   string
	HTTPClient *http.Client
	Stdout     io.Writer
	Stderr     io.Writer
}

// exitError carries the exit code of a command that ran and failed.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	return e.err.Error()
}

// Run executes one command and returns the process exit code: 0 on success, 1 when the
// request failed or the API answered with an error, 2 on usage errors.
func Run(ctx context.Context, args []string, defaults Options) int {
	stdout := defaults.Stdout
	if stdout == nil {
		stdout = io.Discard
	}
	stderr := defaults.Stderr
	if stderr == nil {
		stderr = io.Discard
	}

	root := newRootCmd(defaults)
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := root.ExecuteContext(ctx)
	if err == nil {
		return 0
	}
	var exit *exitError
	if errors.As(err, &exit) {
		_, _ = fmt.Fprintln(stderr, exit.err)
		return exit.code
	}
	_, _ = fmt.Fprintf(stderr, "%v\n\n", err)
	_, _ = fmt.Fprint(stderr, root.UsageString())
	return 2
}

type client struct {
	baseURL string
	timeout time.Duration
	http    *http.Client
}

func newRootCmd(defaults Options) *cobra.Command {
	c := &client{http: defaults.HTTPClient}

	root := &cobra.Command{
		Use:           "sqlpromptctl",
		Short:         "Talk to a running sqlprompt API",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(_ *cobra.Command, _ []string) {
			if c.http == nil {
				c.http = &http.Client{Timeout: c.timeout}
			}
		},
	}
	root.PersistentFlags().StringVar(&c.baseURL, "base-url", firstNonEmpty(defaults.BaseURL, "http://localhost:8000"), "sqlprompt API base URL")
	root.PersistentFlags().DurationVar(&c.timeout, "timeout", durationOr(defaults.Timeout, DefaultTimeout), "HTTP timeout (e.g. 30s)")

	root.AddCommand(
		newGetCommand(c, "health", "Check that the API process is up", "/health"),
		newGetCommand(c, "ready", "Check that the API can serve queries", "/ready"),
		newQueryCommand(c, defaults.Password),
	)
	return root
}

func newGetCommand(c *client, name, short, path string) *cobra.Command {
	return &cobra.Command{
		Use:   name,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.call(cmd, http.MethodGet, path, nil)
		},
	}
}

func newQueryCommand(c *client, defaultPassword string) *cobra.Command {
	var prompt string
	var spec target.ConnectionSpec
	var port int

	cmd := &cobra.Command{
		Use:   "query",
		Short: "Ask a question in plain language against a database",
		Long: `Send a prompt and connection details to POST /query and print the generated SQL
with its result. The password is read from --password or SQLPROMPT_DB_PASSWORD.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !cmd.Flags().Changed("password") {
				spec.Password = defaultPassword
			}
			spec.Port = target.Port(port)
			body, err := json.Marshal(map[string]any{"prompt": prompt, "connection": spec})
			if err != nil {
				return &exitError{code: 1, err: fmt.Errorf("encode request: %w", err)}
			}
			return c.call(cmd, http.MethodPost, "/query", body)
		},
	}
	flags := cmd.Flags()
	flags.StringVarP(&prompt, "prompt", "p", "", "question to answer")
	flags.StringVar(&spec.Driver, "driver", "", "database driver: mysql, postgres or duckdb")
	flags.StringVar(&spec.Host, "host", "", "database host")
	flags.IntVar(&port, "port", 0, "database port (driver default when omitted)")
	flags.StringVarP(&spec.User, "user", "u", "", "database user")
	flags.StringVar(&spec.Password, "password", "", "database password")
	flags.StringVarP(&spec.Database, "database", "d", "", "database name, or file path for duckdb")
	_ = cmd.MarkFlagRequired("prompt")
	return cmd
}

func (c *client) call(cmd *cobra.Command, method, path string, body []byte) error {
	endpoint := strings.TrimRight(c.baseURL, "/") + path
	code, responseBody, err := doRequest(cmd.Context(), c.http, method, endpoint, body)
	if err != nil {
		return &exitError{code: 1, err: fmt.Errorf("request failed: %w", err)}
	}
	if code >= 400 {
		return &exitError{code: 1, err: fmt.Errorf("http %d: %s", code, strings.TrimSpace(string(responseBody)))}
	}

	out := cmd.OutOrStdout()
	if pretty, ok := prettyJSON(responseBody); ok {
		_, _ = fmt.Fprintln(out, pretty)
	} else if len(responseBody) > 0 {
		_, _ = fmt.Fprintln(out, string(responseBody))
	}

	if message, failed := errorField(responseBody); failed {
		return &exitError{code: 1, err: errors.New(message)}
	}
	return nil
}

func doRequest(ctx context.Context, client *http.Client, method, url string, body []byte) (int, []byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	responseBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, err
	}
	return resp.StatusCode, responseBody, nil
}

// errorField reports the "error" message of an error-shaped body.
func errorField(raw []byte) (string, bool) {
	var payload struct {
		Error *string `json:"error"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil || payload.Error == nil {
		return "", false
	}
	return *payload.Error, true
}

func prettyJSON(raw []byte) (string, bool) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return "", false
	}
	var anyValue any
	if err := json.Unmarshal(raw, &anyValue); err != nil {
		return "", false
	}
	formatted, err := json.MarshalIndent(anyValue, "", "  ")
	if err != nil {
		return "", false
	}
	return string(formatted), true
}

func firstNonEmpty(a, b string) string {
	if strings.TrimSpace(a) != "" {
		return strings.TrimSpace(a)
	}
	return b
}

func durationOr(v, fallback time.Duration) time.Duration {
	if v > 0 {
		return v
	}
	return fallback
}
