package stream

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/DeBrosOfficial/logwatch/pkg/errors"
	"github.com/DeBrosOfficial/logwatch/pkg/logs"
)

var recvTime = time.Date(2026, 3, 1, 12, 30, 0, 0, time.UTC)

func testDecoder() *Decoder {
	return &Decoder{DefaultResource: "srv-default", Now: func() time.Time { return recvTime }}
}

func TestDecodeShapes(t *testing.T) {
	tests := []struct {
		name     string
		frame    string
		kind     FrameKind
		messages []string
	}{
		{"single record", `{"timestamp":"2026-03-01T12:00:00Z","level":"info","message":"hi","resourceId":"srv-1"}`, FrameLogs, []string{"hi"}},
		{"array", `[{"message":"a"},{"message":"b"}]`, FrameLogs, []string{"a", "b"}},
		{"envelope", `{"type":"logs","logs":[{"message":"x"},{"message":"y"},{"message":"z"}]}`, FrameLogs, []string{"x", "y", "z"}},
		{"typed log", `{"type":"log","message":"one"}`, FrameLogs, []string{"one"}},
		{"msg alias", `{"msg":"alias"}`, FrameLogs, []string{"alias"}},
		{"heartbeat", `{"type":"heartbeat"}`, FrameHeartbeat, nil},
		{"ack", `{"type":"ack","id":"123"}`, FrameAck, nil},
		{"empty batch", `[]`, FrameLogs, []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := testDecoder().Decode([]byte(tt.frame))
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			if f.Kind != tt.kind {
				t.Fatalf("kind = %v; want %v", f.Kind, tt.kind)
			}
			if len(f.Entries) != len(tt.messages) {
				t.Fatalf("entries = %d; want %d", len(f.Entries), len(tt.messages))
			}
			for i, m := range tt.messages {
				if f.Entries[i].Message != m {
					t.Errorf("entry %d = %q; want %q", i, f.Entries[i].Message, m)
				}
			}
		})
	}
}

func TestDecodeMalformed(t *testing.T) {
	frames := []string{
		`not json`,
		`{"type":"logs"}`,
		`"just a string"`,
		`42`,
		`{"level":"info"}`,
		`[{"message":"ok"}, 7]`,
		`{"type":"mystery"}`,
		`{"message":17}`,
	}
	for _, f := range frames {
		_, err := testDecoder().Decode([]byte(f))
		if !errors.IsProtocol(err) {
			t.Errorf("Decode(%s) err = %v; want ProtocolError", f, err)
		}
	}
}

func TestDecodeErrorFrame(t *testing.T) {
	f, err := testDecoder().Decode([]byte(`{"type":"error","code":"unauthorized","message":"invalid token"}`))
	if err != nil {
		t.Fatal(err)
	}
	if f.Kind != FrameError || f.Code != "unauthorized" || f.Message != "invalid token" {
		t.Errorf("frame = %+v", f)
	}
}

func TestDecodeRecordFields(t *testing.T) {
	tests := []struct {
		name  string
		frame string
		want  logs.LogEntry
	}{
		{
			name:  "label list with level and type",
			frame: `{"timestamp":"2026-03-01T12:00:00Z","message":"\u001b[31mboom\u001b[0m","labels":[{"name":"level","value":"WARNING"},{"name":"type","value":"app"}]}`,
			want: logs.LogEntry{
				Timestamp: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC), Level: logs.LevelWarn,
				Message: "boom", Source: "app", ResourceID: "srv-default",
				Labels: map[string]string{"level": "WARNING", "type": "app"},
			},
		},
		{
			name:  "label object, unix millis, service id",
			frame: `{"timestamp":1772366400000,"level":"error","message":"x","serviceId":"srv-9","source":"web","labels":{"region":"oregon","n":3}}`,
			want: logs.LogEntry{
				Timestamp: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC), Level: logs.LevelError,
				Message: "x", Source: "web", ResourceID: "srv-9",
				Labels: map[string]string{"region": "oregon", "n": "3"},
			},
		},
		{
			name:  "missing timestamp and unknown level",
			frame: `{"message":"y","level":"notice","resourceId":"srv-2"}`,
			want: logs.LogEntry{
				Timestamp: recvTime, Level: logs.LevelInfo, Message: "y", ResourceID: "srv-2",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := testDecoder().Decode([]byte(tt.frame))
			if err != nil {
				t.Fatal(err)
			}
			got := f.Entries[0]
			if !got.Timestamp.Equal(tt.want.Timestamp) {
				t.Errorf("timestamp = %v; want %v", got.Timestamp, tt.want.Timestamp)
			}
			if got.Level != tt.want.Level || got.Message != tt.want.Message ||
				got.Source != tt.want.Source || got.ResourceID != tt.want.ResourceID {
				t.Errorf("entry = %+v; want %+v", got, tt.want)
			}
			if len(got.Labels) != len(tt.want.Labels) {
				t.Fatalf("labels = %v; want %v", got.Labels, tt.want.Labels)
			}
			for k, v := range tt.want.Labels {
				if got.Labels[k] != v {
					t.Errorf("label %s = %q; want %q", k, got.Labels[k], v)
				}
			}
		})
	}
}

func TestSubscribeFrame(t *testing.T) {
	data, err := NewSubscribeFrame([]string{"a", "b"})
	if err != nil {
		t.Fatal(err)
	}
	var f SubscribeFrame
	if err := json.Unmarshal(data, &f); err != nil {
		t.Fatal(err)
	}
	if f.Type != "subscribe" || len(f.ResourceIDs) != 2 || f.ID == "" {
		t.Errorf("subscribe frame = %+v", f)
	}
}

func TestDecodeEntries(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		count   int
		hasMore bool
		wantErr bool
	}{
		{"envelope", `{"logs":[{"message":"a"},{"message":"b"}],"hasMore":true}`, 2, true, false},
		{"bare array", `[{"message":"a"}]`, 1, false, false},
		{"empty", `{"logs":[]}`, 0, false, false},
		{"missing logs", `{"items":[]}`, 0, false, true},
		{"bad record", `{"logs":[{"level":"info"}]}`, 0, false, true},
		{"scalar", `42`, 0, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entries, more, err := testDecoder().DecodeEntries([]byte(tt.body))
			if tt.wantErr {
				if !errors.IsProtocol(err) {
					t.Fatalf("expected protocol error, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("DecodeEntries: %v", err)
			}
			if len(entries) != tt.count || more != tt.hasMore {
				t.Errorf("got %d entries hasMore=%v; want %d, %v", len(entries), more, tt.count, tt.hasMore)
			}
		})
	}
}
