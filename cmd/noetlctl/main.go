// Command noetlctl is the operator CLI for a running orchestrator:
// catalog registration, playbook runs, execution inspection, and
// credential management, grounded on cmd/slctl/main.go's flag-set-per-
// subcommand dispatch and apiClient request/response idiom.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/noetl/noetl/internal/httpapi"
	"github.com/noetl/noetl/internal/tool"
	"github.com/noetl/noetl/internal/worker"
)

func main() {
	err := run(context.Background(), os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}
	os.Exit(exitCode(err))
}

// exitCode maps a run error onto the CLI's documented exit codes (§6):
// 0 success, 1 user/validation error, 2 transient server error, 3
// unauthenticated. Errors that never reached the control plane (bad
// flags, missing files) fall through to 1.
func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var ae *apiError
	if errors.As(err, &ae) {
		switch {
		case ae.status == http.StatusUnauthorized:
			return 3
		case ae.status == 0 || ae.status >= 500:
			return 2
		default:
			return 1
		}
	}
	return 1
}

func run(ctx context.Context, args []string) error {
	defaultAddr := getenv("NOETL_ADDR", "http://localhost:8080")
	defaultToken := os.Getenv("NOETL_TOKEN")

	root := flag.NewFlagSet("noetlctl", flag.ContinueOnError)
	root.SetOutput(io.Discard)
	addrFlag := root.String("addr", defaultAddr, "orchestrator base URL (env NOETL_ADDR)")
	tokenFlag := root.String("token", defaultToken, "bearer token for authentication (env NOETL_TOKEN)")
	timeoutFlag := root.Duration("timeout", 15*time.Second, "HTTP request timeout")
	if err := root.Parse(args); err != nil {
		return usageError(err)
	}

	remaining := root.Args()
	if len(remaining) == 0 {
		return usageError(errors.New("no command specified"))
	}

	client := &apiClient{
		baseURL: strings.TrimRight(*addrFlag, "/"),
		token:   strings.TrimSpace(*tokenFlag),
		http:    &http.Client{Timeout: *timeoutFlag},
	}

	switch remaining[0] {
	case "auth":
		return handleAuth(ctx, client, remaining[1:])
	case "catalog":
		return handleCatalog(ctx, client, remaining[1:])
	case "run":
		return handleRun(ctx, client, remaining[1:])
	case "executions":
		return handleExecutions(ctx, client, remaining[1:])
	case "credentials":
		return handleCredentials(ctx, client, remaining[1:])
	case "worker":
		return handleWorker(ctx, client, remaining[1:])
	case "health":
		return handleHealth(ctx, client)
	case "help", "-h", "--help":
		printRootUsage()
		return nil
	default:
		return usageError(fmt.Errorf("unknown command %q", remaining[0]))
	}
}

func usageError(err error) error {
	printRootUsage()
	return err
}

func printRootUsage() {
	fmt.Println(`noetlctl: NoETL orchestrator CLI

Usage:
  noetlctl [global flags] <command> [subcommand] [flags]

Global Flags:
  --addr       orchestrator base URL (env NOETL_ADDR, default http://localhost:8080)
  --token      API bearer token (env NOETL_TOKEN)
  --timeout    HTTP timeout (default 15s)

Commands:
  auth         Log in and obtain a bearer token
  catalog      Register and inspect playbooks
  run          Run a playbook by path
  executions   List, inspect, cancel and finalize executions
  credentials  Manage the credential store
  worker       Inspect registered worker pools, or run one (serve)
  health       Show orchestrator health`)
}

type apiClient struct {
	baseURL string
	token   string
	http    *http.Client
}

// apiError records the HTTP status a failed request got back, the
// signal exitCode uses to pick between exit 1 (rejected), 2
// (transient/server) and 3 (unauthenticated). status 0 means the
// request never got a response at all (connection refused, timeout),
// treated the same as a transient server error.
type apiError struct {
	status int
	msg    string
}

func (e *apiError) Error() string { return e.msg }

func (c *apiClient) request(ctx context.Context, method, path string, payload any) ([]byte, error) {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode payload: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &apiError{status: 0, msg: fmt.Sprintf("%s %s: %v", method, path, err)}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &apiError{status: 0, msg: fmt.Sprintf("%s %s: %v", method, path, err)}
	}

	if resp.StatusCode >= 300 {
		msg := strings.TrimSpace(string(data))
		var parsed map[string]any
		if err := json.Unmarshal(data, &parsed); err == nil {
			if errStr, ok := parsed["error"].(string); ok && errStr != "" {
				msg = errStr
			}
			if code, ok := parsed["code"].(string); ok && code != "" {
				msg = fmt.Sprintf("%s (%s)", msg, code)
			}
		}
		return nil, &apiError{
			status: resp.StatusCode,
			msg:    fmt.Sprintf("%s %s: %s (status %d)", method, path, msg, resp.StatusCode),
		}
	}
	return data, nil
}

func prettyPrint(data []byte) {
	if len(data) == 0 {
		fmt.Println("(empty)")
		return
	}
	var dst bytes.Buffer
	if err := json.Indent(&dst, data, "", "  "); err != nil {
		fmt.Println(string(data))
		return
	}
	fmt.Println(dst.String())
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func parseArgsMap(pairs []string) (map[string]any, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	out := make(map[string]any, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		if !ok {
			return nil, fmt.Errorf("invalid arg %q, expected key=value", p)
		}
		out[k] = v
	}
	return out, nil
}

// handleAuth implements `noetlctl auth login [--password]`: it trades
// the orchestrator's shared password for a bearer token and prints it,
// for the caller to export as NOETL_TOKEN (or pass via --token) on
// subsequent invocations.
func handleAuth(ctx context.Context, client *apiClient, args []string) error {
	if len(args) == 0 || args[0] != "login" {
		return usageError(errors.New("auth requires a subcommand: login"))
	}
	fs := flag.NewFlagSet("auth login", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	password := fs.String("password", getenv("NOETL_PASSWORD", ""), "orchestrator auth password (env NOETL_PASSWORD)")
	subject := fs.String("subject", "", "subject name embedded in the issued token")
	if err := fs.Parse(args[1:]); err != nil {
		return usageError(err)
	}
	if strings.TrimSpace(*password) == "" {
		return usageError(errors.New("--password is required (or set NOETL_PASSWORD)"))
	}

	data, err := client.request(ctx, http.MethodPost, "/api/auth/login", map[string]any{
		"password": *password, "subject": *subject,
	})
	if err != nil {
		return err
	}
	var resp struct {
		Token     string `json:"token"`
		ExpiresIn int    `json:"expires_in"`
	}
	if err := json.Unmarshal(data, &resp); err != nil {
		return fmt.Errorf("decode login response: %w", err)
	}
	fmt.Println(resp.Token)
	return nil
}

// handleCatalog implements `noetlctl catalog register <file>` and
// `noetlctl catalog list [--type kind]`.
func handleCatalog(ctx context.Context, client *apiClient, args []string) error {
	if len(args) == 0 {
		return usageError(errors.New("catalog requires a subcommand: register, list, get"))
	}
	switch args[0] {
	case "register":
		fs := flag.NewFlagSet("catalog register", flag.ContinueOnError)
		fs.SetOutput(io.Discard)
		resourceType := fs.String("type", "", "resource type override")
		if err := fs.Parse(args[1:]); err != nil {
			return usageError(err)
		}
		rest := fs.Args()
		if len(rest) != 1 {
			return usageError(errors.New("catalog register requires exactly one file path"))
		}
		content, err := os.ReadFile(rest[0])
		if err != nil {
			return err
		}
		data, err := client.request(ctx, http.MethodPost, "/api/catalog/register", map[string]any{
			"content": string(content), "resource_type": *resourceType,
		})
		if err != nil {
			return err
		}
		prettyPrint(data)
		return nil

	case "list":
		fs := flag.NewFlagSet("catalog list", flag.ContinueOnError)
		fs.SetOutput(io.Discard)
		resourceType := fs.String("type", "", "filter by resource type")
		if err := fs.Parse(args[1:]); err != nil {
			return usageError(err)
		}
		data, err := client.request(ctx, http.MethodPost, "/api/catalog/list", map[string]any{"resource_type": *resourceType})
		if err != nil {
			return err
		}
		prettyPrint(data)
		return nil

	case "get":
		fs := flag.NewFlagSet("catalog get", flag.ContinueOnError)
		fs.SetOutput(io.Discard)
		path := fs.String("path", "", "catalog path")
		version := fs.String("version", "", "version (defaults to latest)")
		catalogID := fs.Int64("id", 0, "catalog id (overrides --path)")
		if err := fs.Parse(args[1:]); err != nil {
			return usageError(err)
		}
		data, err := client.request(ctx, http.MethodPost, "/api/catalog/resource", map[string]any{
			"catalog_id": *catalogID, "path": *path, "version": *version,
		})
		if err != nil {
			return err
		}
		prettyPrint(data)
		return nil

	default:
		return usageError(fmt.Errorf("unknown catalog subcommand %q", args[0]))
	}
}

// handleRun implements `noetlctl run <path> [--arg k=v]...`.
func handleRun(ctx context.Context, client *apiClient, args []string) error {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	var argPairs stringSlice
	fs.Var(&argPairs, "arg", "playbook argument key=value, may be repeated")
	version := fs.String("version", "", "version (defaults to latest)")
	if err := fs.Parse(args); err != nil {
		return usageError(err)
	}
	rest := fs.Args()
	if len(rest) != 1 {
		return usageError(errors.New("run requires exactly one playbook path"))
	}

	playbookArgs, err := parseArgsMap(argPairs)
	if err != nil {
		return err
	}

	data, err := client.request(ctx, http.MethodPost, "/api/run/playbook", map[string]any{
		"path": rest[0], "version": *version, "args": playbookArgs,
	})
	if err != nil {
		return err
	}
	prettyPrint(data)
	return nil
}

// handleExecutions implements `noetlctl executions [ls|get|status|cancel|finalize]`.
func handleExecutions(ctx context.Context, client *apiClient, args []string) error {
	if len(args) == 0 {
		return usageError(errors.New("executions requires a subcommand: ls, get, status, cancel, finalize"))
	}
	switch args[0] {
	case "ls":
		fs := flag.NewFlagSet("executions ls", flag.ContinueOnError)
		fs.SetOutput(io.Discard)
		path := fs.String("path", "", "filter by catalog path")
		status := fs.String("status", "", "filter by status")
		limit := fs.Int("limit", 100, "max rows")
		if err := fs.Parse(args[1:]); err != nil {
			return usageError(err)
		}
		q := fmt.Sprintf("/api/executions?path=%s&status=%s&limit=%d", *path, *status, *limit)
		data, err := client.request(ctx, http.MethodGet, q, nil)
		if err != nil {
			return err
		}
		prettyPrint(data)
		return nil

	case "get", "status", "cancel", "finalize":
		id, rest, err := requireExecutionID(args[1:])
		if err != nil {
			return usageError(err)
		}
		_ = rest
		path := "/api/executions/" + id
		method := http.MethodGet
		switch args[0] {
		case "status":
			path += "/status"
		case "cancel":
			path += "/cancel"
			method = http.MethodPost
		case "finalize":
			path += "/finalize"
			method = http.MethodPost
		}
		data, err := client.request(ctx, method, path, nil)
		if err != nil {
			return err
		}
		prettyPrint(data)
		return nil

	default:
		return usageError(fmt.Errorf("unknown executions subcommand %q", args[0]))
	}
}

func requireExecutionID(args []string) (string, []string, error) {
	if len(args) < 1 {
		return "", nil, errors.New("an execution id is required")
	}
	if _, err := strconv.ParseInt(args[0], 10, 64); err != nil {
		return "", nil, fmt.Errorf("invalid execution id %q", args[0])
	}
	return args[0], args[1:], nil
}

// handleCredentials implements `noetlctl credentials [ls|get|set|rm]`.
func handleCredentials(ctx context.Context, client *apiClient, args []string) error {
	if len(args) == 0 {
		return usageError(errors.New("credentials requires a subcommand: ls, get, set, rm"))
	}
	switch args[0] {
	case "ls":
		fs := flag.NewFlagSet("credentials ls", flag.ContinueOnError)
		fs.SetOutput(io.Discard)
		credType := fs.String("type", "", "filter by type")
		if err := fs.Parse(args[1:]); err != nil {
			return usageError(err)
		}
		data, err := client.request(ctx, http.MethodGet, "/api/credentials?type="+*credType, nil)
		if err != nil {
			return err
		}
		prettyPrint(data)
		return nil

	case "get":
		if len(args) < 2 {
			return usageError(errors.New("credentials get requires a name"))
		}
		data, err := client.request(ctx, http.MethodGet, "/api/credentials/"+args[1], nil)
		if err != nil {
			return err
		}
		prettyPrint(data)
		return nil

	case "set":
		fs := flag.NewFlagSet("credentials set", flag.ContinueOnError)
		fs.SetOutput(io.Discard)
		credType := fs.String("type", "", "credential type (required)")
		description := fs.String("description", "", "human-readable description")
		var dataPairs stringSlice
		fs.Var(&dataPairs, "data", "credential field key=value, may be repeated")
		if err := fs.Parse(args[1:]); err != nil {
			return usageError(err)
		}
		rest := fs.Args()
		if len(rest) != 1 {
			return usageError(errors.New("credentials set requires exactly one name"))
		}
		if *credType == "" {
			return usageError(errors.New("--type is required"))
		}
		fields, err := parseArgsMap(dataPairs)
		if err != nil {
			return err
		}
		data, err := client.request(ctx, http.MethodPost, "/api/credentials", map[string]any{
			"name": rest[0], "type": *credType, "data": fields, "description": *description,
		})
		if err != nil {
			return err
		}
		prettyPrint(data)
		return nil

	case "rm":
		if len(args) < 2 {
			return usageError(errors.New("credentials rm requires a name"))
		}
		_, err := client.request(ctx, http.MethodDelete, "/api/credentials/"+args[1], nil)
		if err != nil {
			return err
		}
		fmt.Println("removed")
		return nil

	default:
		return usageError(fmt.Errorf("unknown credentials subcommand %q", args[0]))
	}
}

// handleWorker implements `noetlctl worker [pools|serve]`.
func handleWorker(ctx context.Context, client *apiClient, args []string) error {
	if len(args) == 0 {
		return usageError(errors.New("worker requires a subcommand: pools, serve"))
	}
	switch args[0] {
	case "pools":
		data, err := client.request(ctx, http.MethodGet, "/api/worker/pools", nil)
		if err != nil {
			return err
		}
		prettyPrint(data)
		return nil

	case "serve":
		return handleWorkerServe(ctx, client, args[1:])

	default:
		return usageError(fmt.Errorf("unknown worker subcommand %q", args[0]))
	}
}

// handleWorkerServe implements `noetlctl worker serve`: it runs a
// worker process against the orchestrator named by the global --addr/
// --token flags, the same claim-execute-emit loop cmd/worker runs, so
// a single noetl binary covers both operator CLI and worker roles
// (§4.9).
func handleWorkerServe(ctx context.Context, client *apiClient, args []string) error {
	fs := flag.NewFlagSet("worker serve", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	pool := fs.String("pool", getenv("NOETL_WORKER_POOL_NAME", "default"), "worker pool name")
	workerID := fs.String("id", "", "worker id (defaults to a fresh UUID)")
	concurrency := fs.Int("concurrency", 4, "max concurrent tasks")
	heartbeat := fs.Duration("heartbeat", 10*time.Second, "heartbeat interval")
	subject := fs.String("subject", getenv("NOETL_BUS_SUBJECT", "noetl.commands"), "bus subject (ignored, polling always runs)")
	if err := fs.Parse(args); err != nil {
		return usageError(err)
	}

	id := strings.TrimSpace(*workerID)
	if id == "" {
		id = uuid.NewString()
	}

	controlPlane := httpapi.NewClient(client.baseURL, client.token)
	registry := tool.NewDefaultRegistry()
	executor := worker.NewExecutor(registry, controlPlane, id)

	w := worker.New(worker.Config{
		WorkerID:           id,
		PoolName:           *pool,
		ServerURL:          client.baseURL,
		Subject:            *subject,
		MaxConcurrentTasks: *concurrency,
		HeartbeatInterval:  *heartbeat,
	}, controlPlane, nil, executor)

	runCtx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	fmt.Fprintf(os.Stderr, "worker %s polling %s for pool %q\n", id, client.baseURL, *pool)
	return w.Run(runCtx)
}

func handleHealth(ctx context.Context, client *apiClient) error {
	data, err := client.request(ctx, http.MethodGet, "/healthz", nil)
	if err != nil {
		return err
	}
	prettyPrint(data)
	return nil
}

// stringSlice accumulates repeated -flag values into a slice.
type stringSlice []string

func (s *stringSlice) String() string { return strings.Join(*s, ",") }
func (s *stringSlice) Set(v string) error {
	*s = append(*s, v)
	return nil
}
