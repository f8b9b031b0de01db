// Package monitoring - record.go builds AccessRecords from exchange state.
package monitoring

import (
	"time"

	"github.com/tschaume/httptrail/internal/accesslog"
	"github.com/tschaume/httptrail/internal/netinfo"
)

// NewAccessRecord snapshots a completed (or aborted) exchange into an
// AccessRecord. Timing marks that were never recorded contribute zero
// latency; a missing status stays 0.
func NewAccessRecord(requestID string, fields *accesslog.Fields, timing *accesslog.Timing) AccessRecord {
	meta := fields.Metadata()
	reqHeaders := fields.RequestHeaderMap()

	rec := AccessRecord{
		RequestID:       requestID,
		Timestamp:       time.Now(),
		Method:          meta.Method,
		Path:            meta.RawPath,
		Query:           meta.Query,
		Proto:           "HTTP/" + meta.Version,
		RequestLine:     meta.Method + " " + netinfo.PathWithQuery(meta.RawPath, meta.Query) + " HTTP/" + meta.Version,
		BodyBytes:       fields.ResponseLength(),
		Referer:         reqHeaders["referer"],
		UserAgent:       reqHeaders["user-agent"],
		RequestHeaders:  reqHeaders,
		ResponseHeaders: fields.ResponseHeaderMap(),
	}

	if start, err := timing.RequestStartTime(); err == nil {
		rec.Timestamp = start
	}
	if meta.Client != nil {
		rec.ClientAddr = meta.Client.String()
	}
	if code, ok := fields.StatusCode(); ok {
		rec.StatusCode = code
	}

	rec.RequestLatencyMs = millis(timing.RequestDuration())
	rec.ResponseLatencyMs = millis(timing.ResponseDuration())
	rec.TotalLatencyMs = millis(timing.TotalDuration())
	return rec
}

func millis(d time.Duration, err error) int64 {
	if err != nil {
		return 0
	}
	return d.Milliseconds()
}
