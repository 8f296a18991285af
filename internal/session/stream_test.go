package session

import (
	"testing"
	"time"

	"github.com/netobserv-lab/gnmi-exporter/internal/gnmipath"
	"github.com/netobserv-lab/gnmi-exporter/internal/model"
	"github.com/netobserv-lab/gnmi-exporter/internal/plugin"
	gpb "github.com/openconfig/gnmi/proto/gnmi"
)

func TestPickEncoding(t *testing.T) {
	tests := []struct {
		name      string
		forced    string
		supported []gpb.Encoding
		want      gpb.Encoding
		wantErr   bool
	}{
		{
			name:      "prefers proto",
			supported: []gpb.Encoding{gpb.Encoding_ASCII, gpb.Encoding_JSON, gpb.Encoding_PROTO},
			want:      gpb.Encoding_PROTO,
		},
		{
			name:      "falls through preference order",
			supported: []gpb.Encoding{gpb.Encoding_ASCII, gpb.Encoding_JSON_IETF},
			want:      gpb.Encoding_JSON_IETF,
		},
		{
			name: "empty support defaults to json",
			want: gpb.Encoding_JSON,
		},
		{
			name:      "forced overrides supported",
			forced:    "ascii",
			supported: []gpb.Encoding{gpb.Encoding_PROTO},
			want:      gpb.Encoding_ASCII,
		},
		{
			name:    "unknown forced encoding",
			forced:  "xml",
			wantErr: true,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := pickEncoding(tc.forced, tc.supported)
			if tc.wantErr {
				if err == nil {
					t.Fatal("want error")
				}
				return
			}
			if err != nil {
				t.Fatalf("pickEncoding: %v", err)
			}
			if got != tc.want {
				t.Errorf("encoding = %v, want %v", got, tc.want)
			}
		})
	}
}

type prefixPlugin struct {
	prefixes []gnmipath.Prefix
	origin   string
}

func (p prefixPlugin) Name() string                              { return "test" }
func (p prefixPlugin) Prefixes() []gnmipath.Prefix               { return p.prefixes }
func (p prefixPlugin) Origin() string                            { return p.origin }
func (p prefixPlugin) DataModels() []string                      { return nil }
func (p prefixPlugin) Process(model.Notification) []model.Sample { return nil }
func (p prefixPlugin) SyncChanged(bool)                          {}

func TestBuildSubscribeRequest(t *testing.T) {
	cfg := model.TargetConfig{
		Name:           "dev1",
		Mode:           model.ModeSample,
		SampleInterval: 30 * time.Second,
	}
	plugins := []plugin.Plugin{
		prefixPlugin{
			origin: "openconfig",
			prefixes: []gnmipath.Prefix{
				gnmipath.MustPrefix("/interfaces/interface/state"),
				gnmipath.MustPrefix("/interfaces/interface/subinterfaces/subinterface/state"),
			},
		},
		prefixPlugin{
			origin:   "openconfig",
			prefixes: []gnmipath.Prefix{gnmipath.MustPrefix("/system/state")},
		},
	}

	req := buildSubscribeRequest(cfg, plugins, gpb.Encoding_PROTO, 2)
	sub := req.GetSubscribe()
	if sub == nil {
		t.Fatal("no subscribe payload")
	}
	if sub.Mode != gpb.SubscriptionList_STREAM {
		t.Errorf("mode = %v", sub.Mode)
	}
	if sub.Encoding != gpb.Encoding_PROTO {
		t.Errorf("encoding = %v", sub.Encoding)
	}
	if len(sub.Subscription) != 3 {
		t.Fatalf("subscriptions = %d, want 3", len(sub.Subscription))
	}
	// Oversampling 2 halves the configured interval.
	wantInterval := uint64((15 * time.Second).Nanoseconds())
	for _, s := range sub.Subscription {
		if s.Mode != gpb.SubscriptionMode_SAMPLE {
			t.Errorf("subscription mode = %v", s.Mode)
		}
		if s.SampleInterval != wantInterval {
			t.Errorf("sample interval = %d, want %d", s.SampleInterval, wantInterval)
		}
		if s.Path.Origin != "openconfig" {
			t.Errorf("origin = %q", s.Path.Origin)
		}
	}
}

func TestBuildSubscribeRequestOnChange(t *testing.T) {
	cfg := model.TargetConfig{
		Name:           "dev1",
		Mode:           model.ModeOnChange,
		SampleInterval: 30 * time.Second,
	}
	plugins := []plugin.Plugin{prefixPlugin{
		origin:   "openconfig",
		prefixes: []gnmipath.Prefix{gnmipath.MustPrefix("/system/alarms")},
	}}

	req := buildSubscribeRequest(cfg, plugins, gpb.Encoding_JSON, 2)
	for _, s := range req.GetSubscribe().Subscription {
		if s.Mode != gpb.SubscriptionMode_ON_CHANGE {
			t.Errorf("mode = %v, want ON_CHANGE", s.Mode)
		}
		if s.SampleInterval != 0 {
			t.Errorf("on-change carries sample interval %d", s.SampleInterval)
		}
	}
}

func protoPath(t *testing.T, xpath string) *gpb.Path {
	t.Helper()
	return gnmipath.MustParse(xpath).ToProto("", "")
}

func TestDecodeNotification(t *testing.T) {
	received := time.Unix(1700000000, 0)
	deviceTS := int64(1700000123_000000000)

	n := &gpb.Notification{
		Timestamp: deviceTS,
		Prefix:    protoPath(t, "/interfaces/interface[name=eth0]/state"),
		Update: []*gpb.Update{
			{
				Path: protoPath(t, "/counters/in-octets"),
				Val:  &gpb.TypedValue{Value: &gpb.TypedValue_UintVal{UintVal: 1000}},
			},
			{
				Path: protoPath(t, "/oper-status"),
				Val:  &gpb.TypedValue{Value: &gpb.TypedValue_StringVal{StringVal: "UP"}},
			},
			{
				// Missing value: malformed, skipped.
				Path: protoPath(t, "/counters/out-octets"),
			},
		},
		Delete: []*gpb.Path{protoPath(t, "/counters/last-clear")},
	}

	notifs, malformed := decodeNotification("dev1", n, received)
	if malformed != 1 {
		t.Errorf("malformed = %d, want 1", malformed)
	}
	if len(notifs) != 3 {
		t.Fatalf("notifications = %d, want 3", len(notifs))
	}

	first := notifs[0]
	if got := first.Path.String(); got != "/interfaces/interface[name=eth0]/state/counters/in-octets" {
		t.Errorf("joined path = %q", got)
	}
	if v, ok := first.Value.Float(); !ok || v != 1000 {
		t.Errorf("value = %v (%v)", v, ok)
	}
	if !first.Timestamp.Equal(time.Unix(0, deviceTS)) {
		t.Errorf("timestamp = %v, want device time", first.Timestamp)
	}

	del := notifs[2]
	if !del.Delete {
		t.Error("delete notification not flagged")
	}
}

func TestDecodeNotificationSynthesizesTimestamp(t *testing.T) {
	received := time.Unix(1700000000, 0)
	n := &gpb.Notification{
		Update: []*gpb.Update{{
			Path: protoPath(t, "/system/state/boot-time"),
			Val:  &gpb.TypedValue{Value: &gpb.TypedValue_IntVal{IntVal: 5}},
		}},
	}
	notifs, _ := decodeNotification("dev1", n, received)
	if len(notifs) != 1 {
		t.Fatal("no notification")
	}
	if !notifs[0].Timestamp.Equal(received) {
		t.Errorf("timestamp = %v, want receipt time", notifs[0].Timestamp)
	}
}

func TestDecodeTypedValue(t *testing.T) {
	tests := []struct {
		name    string
		tv      *gpb.TypedValue
		want    model.Value
		wantErr bool
	}{
		{
			name: "uint",
			tv:   &gpb.TypedValue{Value: &gpb.TypedValue_UintVal{UintVal: 7}},
			want: model.UintValue(7),
		},
		{
			name: "int",
			tv:   &gpb.TypedValue{Value: &gpb.TypedValue_IntVal{IntVal: -3}},
			want: model.IntValue(-3),
		},
		{
			name: "double",
			tv:   &gpb.TypedValue{Value: &gpb.TypedValue_DoubleVal{DoubleVal: 2.5}},
			want: model.FloatValue(2.5),
		},
		{
			name: "bool",
			tv:   &gpb.TypedValue{Value: &gpb.TypedValue_BoolVal{BoolVal: true}},
			want: model.BoolValue(true),
		},
		{
			name: "json number",
			tv:   &gpb.TypedValue{Value: &gpb.TypedValue_JsonVal{JsonVal: []byte(`42`)}},
			want: model.FloatValue(42),
		},
		{
			name: "json ietf stringified uint64",
			tv:   &gpb.TypedValue{Value: &gpb.TypedValue_JsonIetfVal{JsonIetfVal: []byte(`"18000000000"`)}},
			want: model.FloatValue(18000000000),
		},
		{
			name: "json string",
			tv:   &gpb.TypedValue{Value: &gpb.TypedValue_JsonVal{JsonVal: []byte(`"UP"`)}},
			want: model.StringValue("UP"),
		},
		{
			name:    "nil",
			wantErr: true,
		},
		{
			name:    "json object",
			tv:      &gpb.TypedValue{Value: &gpb.TypedValue_JsonVal{JsonVal: []byte(`{"a":1}`)}},
			wantErr: true,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := decodeTypedValue(tc.tv)
			if tc.wantErr {
				if err == nil {
					t.Fatal("want error")
				}
				return
			}
			if err != nil {
				t.Fatalf("decodeTypedValue: %v", err)
			}
			if got != tc.want {
				t.Errorf("value = %+v, want %+v", got, tc.want)
			}
		})
	}
}
