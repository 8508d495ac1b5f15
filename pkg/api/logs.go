package api

import (
	"context"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/DeBrosOfficial/logwatch/pkg/errors"
	"github.com/DeBrosOfficial/logwatch/pkg/logs"
)

// DefaultRecentLimit is used when a query names no limit.
const DefaultRecentLimit = 100

// LogQuery selects historical entries for the initial load.
type LogQuery struct {
	ResourceIDs []string
	Limit       int
	Level       logs.Level
	Start       time.Time
	End         time.Time
}

func (q LogQuery) values() url.Values {
	v := url.Values{}
	v.Set("resourceIds", strings.Join(q.ResourceIDs, ","))
	limit := q.Limit
	if limit <= 0 {
		limit = DefaultRecentLimit
	}
	v.Set("limit", strconv.Itoa(limit))
	if q.Level != "" {
		v.Set("level", q.Level.String())
	}
	if !q.Start.IsZero() {
		v.Set("startTime", q.Start.UTC().Format(time.RFC3339Nano))
	}
	if !q.End.IsZero() {
		v.Set("endTime", q.End.UTC().Format(time.RFC3339Nano))
	}
	return v
}

// RecentLogs fetches the most recent entries for q, oldest first.
func (c *Client) RecentLogs(ctx context.Context, q LogQuery) ([]logs.LogEntry, error) {
	if len(q.ResourceIDs) == 0 {
		return nil, errors.NewValidationError("resourceIds", "at least one resource id is required", nil)
	}
	data, err := c.raw(ctx, http.MethodGet, "/logs?"+q.values().Encode(), nil, target{resource: "resource", id: strings.Join(q.ResourceIDs, ",")})
	if err != nil {
		return nil, err
	}
	entries, _, err := c.decoder.DecodeEntries(data)
	if err != nil {
		return nil, err
	}
	sortOldestFirst(entries)
	return entries, nil
}

// LabelValues lists the distinct values of label key across resourceIDs.
func (c *Client) LabelValues(ctx context.Context, resourceIDs []string, key string) ([]string, error) {
	if key == "" {
		return nil, errors.NewValidationError("labelKey", "label key is required", nil)
	}
	v := url.Values{}
	v.Set("resourceIds", strings.Join(resourceIDs, ","))
	v.Set("labelKey", key)

	var out struct {
		Values []string `json:"values"`
	}
	if err := c.do(ctx, http.MethodGet, "/logs/labels/values?"+v.Encode(), nil, &out, target{}); err != nil {
		return nil, err
	}
	return out.Values, nil
}

// sortOldestFirst orders entries by timestamp, keeping arrival order for
// ties. The remote may list newest first.
func sortOldestFirst(entries []logs.LogEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Timestamp.Before(entries[j].Timestamp)
	})
}
