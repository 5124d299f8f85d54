package cluster

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/giantswarm/version-matrix/internal/session"
)

// Remote is an application instance reached over the capability protocol:
//
//	GET  /version             {"version": "2.1.0"}
//	GET  /actions             {"actions": ["open_file", ...]}
//	POST /actions/{name}      body: args object; {"result": ...}
//	GET  /state?path={path}   {"value": ...}
//
// Failures are reported with a non-2xx status and {"error": "..."}.
type Remote struct {
	baseURL string
	client  *http.Client
	version string
	actions []string
	onClose func() error
}

type protocolResponse struct {
	Version string   `json:"version,omitempty"`
	Actions []string `json:"actions,omitempty"`
	Result  any      `json:"result,omitempty"`
	Value   any      `json:"value,omitempty"`
	Error   string   `json:"error,omitempty"`
}

// Dial connects to an instance and reads its version and action table.
// onClose, if set, runs when the instance is closed.
func Dial(ctx context.Context, baseURL string, client *http.Client, onClose func() error) (*Remote, error) {
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}
	r := &Remote{baseURL: strings.TrimRight(baseURL, "/"), client: client, onClose: onClose}

	var v protocolResponse
	if err := r.do(ctx, http.MethodGet, "/version", nil, &v); err != nil {
		return nil, fmt.Errorf("failed to read version: %w", err)
	}
	r.version = v.Version

	var a protocolResponse
	if err := r.do(ctx, http.MethodGet, "/actions", nil, &a); err != nil {
		return nil, fmt.Errorf("failed to read actions: %w", err)
	}
	r.actions = a.Actions
	sort.Strings(r.actions)
	return r, nil
}

func (r *Remote) Version() string { return r.version }

func (r *Remote) Capabilities() session.Capabilities {
	actions := make(map[string]session.ActionFunc, len(r.actions))
	for _, name := range r.actions {
		actions[name] = func(ctx context.Context, args session.Args) (any, error) {
			var out protocolResponse
			if err := r.do(ctx, http.MethodPost, "/actions/"+url.PathEscape(name), args, &out); err != nil {
				return nil, err
			}
			return out.Result, nil
		}
	}
	return session.Capabilities{
		Actions: actions,
		State: func(ctx context.Context, path string) (any, error) {
			var out protocolResponse
			if err := r.do(ctx, http.MethodGet, "/state?path="+url.QueryEscape(path), nil, &out); err != nil {
				return nil, err
			}
			return out.Value, nil
		},
	}
}

// Close runs the close hook once.
func (r *Remote) Close() error {
	if r.onClose == nil {
		return nil
	}
	fn := r.onClose
	r.onClose = nil
	return fn()
}

func (r *Remote) do(ctx context.Context, method, path string, body any, out *protocolResponse) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, r.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if len(data) > 0 {
		if err := json.Unmarshal(data, out); err != nil && resp.StatusCode < 300 {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	if resp.StatusCode >= 300 {
		if out.Error != "" {
			return errors.New(out.Error)
		}
		return fmt.Errorf("%s %s: %s", method, path, resp.Status)
	}
	return nil
}

var _ session.Instance = (*Remote)(nil)
