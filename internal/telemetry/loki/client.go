// Package loki pushes workflow events to Grafana Loki's push API.
package loki

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
)

// DefaultJob is the job label attached to every stream.
const DefaultJob = "acc"

// PushRequest is the Loki push API request body (v1).
type PushRequest struct {
	Streams []Stream `json:"streams"`
}

// Stream is a single stream with labels and log entries.
type Stream struct {
	Stream map[string]string `json:"stream"`
	Values [][]string        `json:"values"` // each entry is [timestamp_ns, log_line]
}

// Entry is one log line with its stream labels.
type Entry struct {
	Time   time.Time
	Line   string
	Labels map[string]string
}

// labelSanitize replaces characters Loki rejects or that make label values awkward to query.
var labelSanitize = regexp.MustCompile(`[^a-zA-Z0-9_\-:]`)

// eventFields holds the workflow event fields promoted to stream labels. Request and subject IDs stay
// in the line; as labels they would explode stream cardinality.
type eventFields struct {
	EventType string `json:"event_type"`
	ToStatus  string `json:"to_status"`
	CreatedAt string `json:"created_at"`
}

// Client pushes entries to one Loki instance.
type Client struct {
	baseURL string
	job     string
	http    *http.Client
}

// NewClient returns a client for baseURL (e.g. http://localhost:3100). A nil httpClient gets a 10s timeout.
func NewClient(baseURL string, httpClient *http.Client) (*Client, error) {
	baseURL = strings.TrimSuffix(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, errors.New("loki: base URL is empty")
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{baseURL: baseURL, job: DefaultJob, http: httpClient}, nil
}

// EntryFromEvent turns a workflow event JSON (a Kafka message value) into an entry labeled by event
// type and target status and stamped with the event time. Unparseable input is kept verbatim with
// the current time and no extra labels.
func EntryFromEvent(raw []byte) Entry {
	e := Entry{Time: time.Now().UTC(), Line: string(raw), Labels: map[string]string{}}
	var fields eventFields
	if err := json.Unmarshal(raw, &fields); err != nil {
		return e
	}
	if fields.EventType != "" {
		e.Labels["event_type"] = fields.EventType
	}
	if fields.ToStatus != "" {
		e.Labels["to_status"] = fields.ToStatus
	}
	if fields.CreatedAt != "" {
		if t, err := time.Parse(time.RFC3339Nano, fields.CreatedAt); err == nil {
			e.Time = t
		}
	}
	return e
}

// PushEvents pushes the raw workflow events in one request.
func (c *Client) PushEvents(ctx context.Context, raws ...[]byte) error {
	entries := make([]Entry, 0, len(raws))
	for _, raw := range raws {
		entries = append(entries, EntryFromEvent(raw))
	}
	return c.Push(ctx, entries...)
}

// Push groups entries into streams by label set and sends them. Returns an error if the request fails
// or Loki answers non-2xx.
func (c *Client) Push(ctx context.Context, entries ...Entry) error {
	if len(entries) == 0 {
		return nil
	}
	payload, err := json.Marshal(c.buildRequest(entries))
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/loki/api/v1/push", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("loki: push returned %s", resp.Status)
	}
	return nil
}

func (c *Client) buildRequest(entries []Entry) PushRequest {
	byKey := map[string]*Stream{}
	var order []string
	for _, e := range entries {
		labels := c.streamLabels(e.Labels)
		key := labelKey(labels)
		s, ok := byKey[key]
		if !ok {
			s = &Stream{Stream: labels}
			byKey[key] = s
			order = append(order, key)
		}
		s.Values = append(s.Values, []string{strconv.FormatInt(e.Time.UnixNano(), 10), e.Line})
	}
	out := PushRequest{Streams: make([]Stream, 0, len(order))}
	for _, k := range order {
		out.Streams = append(out.Streams, *byKey[k])
	}
	return out
}

func (c *Client) streamLabels(extra map[string]string) map[string]string {
	labels := make(map[string]string, len(extra)+1)
	labels["job"] = c.job
	for k, v := range extra {
		if s := labelSanitize.ReplaceAllString(strings.TrimSpace(v), "_"); s != "" {
			labels[k] = s
		}
	}
	return labels
}

func labelKey(labels map[string]string) string {
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	for _, k := range keys {
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(labels[k])
		b.WriteByte(',')
	}
	return b.String()
}
