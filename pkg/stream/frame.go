package stream

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/valyala/fastjson"

	"github.com/DeBrosOfficial/logwatch/pkg/errors"
	"github.com/DeBrosOfficial/logwatch/pkg/logs"
)

// FrameKind classifies a decoded inbound frame.
type FrameKind int

const (
	FrameLogs FrameKind = iota
	FrameHeartbeat
	FrameAck
	FrameError
)

// Frame is a decoded inbound frame.
type Frame struct {
	Kind    FrameKind
	Entries []logs.LogEntry
	Code    string // FrameError only
	Message string // FrameError only
}

// SubscribeFrame is sent after every (re)connect.
type SubscribeFrame struct {
	Type        string   `json:"type"`
	ID          string   `json:"id"`
	ResourceIDs []string `json:"resourceIds"`
}

// NewSubscribeFrame builds the subscription message for ids.
func NewSubscribeFrame(ids []string) ([]byte, error) {
	return json.Marshal(SubscribeFrame{
		Type:        "subscribe",
		ID:          uuid.New().String(),
		ResourceIDs: ids,
	})
}

// Decoder parses inbound frames. It is safe for concurrent use.
type Decoder struct {
	parsers fastjson.ParserPool

	// DefaultResource fills ResourceID on records that carry none.
	DefaultResource string
	// Now stamps records without a timestamp.
	Now func() time.Time
}

// Decode parses one frame. Any frame that is not valid JSON, is not an
// object or array, or carries a record without a message is rejected with a
// ProtocolError.
func (d *Decoder) Decode(data []byte) (Frame, error) {
	p := d.parsers.Get()
	defer d.parsers.Put(p)

	v, err := p.ParseBytes(data)
	if err != nil {
		return Frame{}, errors.NewProtocolError("invalid JSON frame", data, err)
	}

	switch v.Type() {
	case fastjson.TypeArray:
		entries, err := d.records(v.GetArray(), data)
		if err != nil {
			return Frame{}, err
		}
		return Frame{Kind: FrameLogs, Entries: entries}, nil
	case fastjson.TypeObject:
	default:
		return Frame{}, errors.NewProtocolError("frame is neither object nor array", data, nil)
	}

	switch typ := string(v.GetStringBytes("type")); typ {
	case "heartbeat", "ping", "keepalive":
		return Frame{Kind: FrameHeartbeat}, nil
	case "ack", "subscribed", "connection":
		return Frame{Kind: FrameAck}, nil
	case "error":
		return Frame{
			Kind:    FrameError,
			Code:    string(v.GetStringBytes("code")),
			Message: string(v.GetStringBytes("message")),
		}, nil
	case "logs":
		arr := v.Get("logs")
		if arr == nil || arr.Type() != fastjson.TypeArray {
			return Frame{}, errors.NewProtocolError("logs frame without logs array", data, nil)
		}
		entries, err := d.records(arr.GetArray(), data)
		if err != nil {
			return Frame{}, err
		}
		return Frame{Kind: FrameLogs, Entries: entries}, nil
	case "log", "":
		e, err := d.record(v, data)
		if err != nil {
			return Frame{}, err
		}
		return Frame{Kind: FrameLogs, Entries: []logs.LogEntry{e}}, nil
	default:
		return Frame{}, errors.NewProtocolError(fmt.Sprintf("unknown frame type %q", typ), data, nil)
	}
}

// DecodeEntries parses a REST log listing: a bare array of records or an
// object carrying them under "logs". hasMore reports the listing's
// pagination flag.
func (d *Decoder) DecodeEntries(data []byte) (entries []logs.LogEntry, hasMore bool, err error) {
	p := d.parsers.Get()
	defer d.parsers.Put(p)

	v, err := p.ParseBytes(data)
	if err != nil {
		return nil, false, errors.NewProtocolError("invalid JSON listing", data, err)
	}
	switch v.Type() {
	case fastjson.TypeArray:
		entries, err = d.records(v.GetArray(), data)
		return entries, false, err
	case fastjson.TypeObject:
		arr := v.Get("logs")
		if arr == nil || arr.Type() != fastjson.TypeArray {
			return nil, false, errors.NewProtocolError("listing without logs array", data, nil)
		}
		entries, err = d.records(arr.GetArray(), data)
		return entries, v.GetBool("hasMore"), err
	default:
		return nil, false, errors.NewProtocolError("listing is neither object nor array", data, nil)
	}
}

func (d *Decoder) records(vals []*fastjson.Value, raw []byte) ([]logs.LogEntry, error) {
	out := make([]logs.LogEntry, 0, len(vals))
	for _, val := range vals {
		e, err := d.record(val, raw)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

// record converts one wire record into a LogEntry.
func (d *Decoder) record(v *fastjson.Value, raw []byte) (logs.LogEntry, error) {
	if v.Type() != fastjson.TypeObject {
		return logs.LogEntry{}, errors.NewProtocolError("log record is not an object", raw, nil)
	}
	msgVal := v.Get("message")
	if msgVal == nil {
		msgVal = v.Get("msg")
	}
	if msgVal == nil || msgVal.Type() != fastjson.TypeString {
		return logs.LogEntry{}, errors.NewProtocolError("log record without message", raw, nil)
	}

	labels := parseLabels(v.Get("labels"))

	level := string(v.GetStringBytes("level"))
	if level == "" {
		level = labels["level"]
	}

	source := string(v.GetStringBytes("source"))
	if source == "" {
		source = labels["type"]
	}

	resource := string(v.GetStringBytes("resourceId"))
	if resource == "" {
		resource = string(v.GetStringBytes("serviceId"))
	}
	if resource == "" {
		resource = labels["resource"]
	}
	if resource == "" {
		resource = d.DefaultResource
	}

	ts, ok := parseTimestamp(v.Get("timestamp"))
	if !ok {
		ts = d.now()
	}

	return logs.LogEntry{
		Timestamp:  ts,
		Level:      logs.ParseLevel(level),
		Message:    logs.SanitizeMessage(string(msgVal.GetStringBytes())),
		Source:     source,
		ResourceID: resource,
		Labels:     labels,
	}, nil
}

func (d *Decoder) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}

// parseLabels accepts {"k":"v"} or [{"name":"k","value":"v"}].
func parseLabels(v *fastjson.Value) map[string]string {
	if v == nil {
		return nil
	}
	labels := make(map[string]string)
	switch v.Type() {
	case fastjson.TypeObject:
		obj, _ := v.Object()
		obj.Visit(func(key []byte, val *fastjson.Value) {
			labels[string(key)] = scalarString(val)
		})
	case fastjson.TypeArray:
		for _, item := range v.GetArray() {
			name := string(item.GetStringBytes("name"))
			if name == "" {
				continue
			}
			labels[name] = scalarString(item.Get("value"))
		}
	}
	if len(labels) == 0 {
		return nil
	}
	return labels
}

func scalarString(v *fastjson.Value) string {
	if v == nil {
		return ""
	}
	switch v.Type() {
	case fastjson.TypeString:
		return string(v.GetStringBytes())
	case fastjson.TypeNull:
		return ""
	default:
		return v.String()
	}
}

func parseTimestamp(v *fastjson.Value) (time.Time, bool) {
	if v == nil {
		return time.Time{}, false
	}
	switch v.Type() {
	case fastjson.TypeString:
		return logs.ParseTimestamp(string(v.GetStringBytes()))
	case fastjson.TypeNumber:
		if n, err := v.Int64(); err == nil {
			return logs.FromUnix(n), true
		}
		f, err := v.Float64()
		if err != nil {
			return time.Time{}, false
		}
		return logs.ParseTimestamp(strconv.FormatFloat(f, 'f', -1, 64))
	}
	return time.Time{}, false
}
