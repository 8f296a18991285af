package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/netobserv-lab/gnmi-exporter/internal/gnmipath"
	"github.com/netobserv-lab/gnmi-exporter/internal/model"
	"github.com/netobserv-lab/gnmi-exporter/internal/plugin"
	gpb "github.com/openconfig/gnmi/proto/gnmi"
)

// preferredEncodings is the negotiation order when the target does not
// force one.
var preferredEncodings = []gpb.Encoding{
	gpb.Encoding_PROTO,
	gpb.Encoding_JSON,
	gpb.Encoding_JSON_IETF,
	gpb.Encoding_ASCII,
}

var errMalformedUpdate = errors.New("session: malformed update")

// pickEncoding selects the stream encoding from the device's supported
// set, honoring a forced encoding from target config.
func pickEncoding(forced string, supported []gpb.Encoding) (gpb.Encoding, error) {
	if forced != "" {
		v, ok := gpb.Encoding_value[strings.ToUpper(forced)]
		if !ok {
			return 0, fmt.Errorf("session: unknown forced encoding %q", forced)
		}
		return gpb.Encoding(v), nil
	}
	have := make(map[gpb.Encoding]bool, len(supported))
	for _, e := range supported {
		have[e] = true
	}
	for _, e := range preferredEncodings {
		if have[e] {
			return e, nil
		}
	}
	// Devices that advertise nothing usually still speak JSON.
	return gpb.Encoding_JSON, nil
}

// buildSubscribeRequest merges the path prefixes of every plugin bound
// to the target into one STREAM subscription list. Dispatch routing is
// prefix-based on the receive side, so device-side path targets are not
// relied upon.
func buildSubscribeRequest(cfg model.TargetConfig, plugins []plugin.Plugin, encoding gpb.Encoding, oversampling int) *gpb.SubscribeRequest {
	if oversampling <= 0 {
		oversampling = model.DefaultOversampling
	}
	sampleInterval := uint64(cfg.SampleInterval.Nanoseconds() / int64(oversampling))

	mode := gpb.SubscriptionMode_SAMPLE
	if cfg.Mode == model.ModeOnChange {
		mode = gpb.SubscriptionMode_ON_CHANGE
	}

	var subs []*gpb.Subscription
	for _, p := range plugins {
		for _, prefix := range p.Prefixes() {
			sub := &gpb.Subscription{
				Path: prefix.Path().ToProto(p.Origin(), ""),
				Mode: mode,
			}
			if mode == gpb.SubscriptionMode_SAMPLE {
				sub.SampleInterval = sampleInterval
			}
			subs = append(subs, sub)
		}
	}

	return &gpb.SubscribeRequest{
		Request: &gpb.SubscribeRequest_Subscribe{
			Subscribe: &gpb.SubscriptionList{
				Mode:         gpb.SubscriptionList_STREAM,
				Encoding:     encoding,
				Subscription: subs,
			},
		},
	}
}

// decodeNotification unpacks one gNMI Notification into immutable
// model notifications, joining the prefix onto every update path.
// Malformed updates are skipped and counted by the caller.
func decodeNotification(target string, n *gpb.Notification, received time.Time) ([]model.Notification, int) {
	if n == nil {
		return nil, 1
	}
	ts := received
	if n.Timestamp > 0 {
		ts = time.Unix(0, n.Timestamp)
	}
	prefix := gnmipath.FromProto(n.Prefix)

	out := make([]model.Notification, 0, len(n.Update)+len(n.Delete))
	malformed := 0

	for _, upd := range n.Update {
		path := gnmipath.Join(prefix, gnmipath.FromProto(upd.Path))
		value, err := decodeTypedValue(upd.Val)
		if err != nil || len(path) == 0 {
			malformed++
			continue
		}
		out = append(out, model.Notification{
			Target:     target,
			Path:       path,
			Value:      value,
			Timestamp:  ts,
			Duplicates: upd.Duplicates,
		})
	}

	for _, del := range n.Delete {
		path := gnmipath.Join(prefix, gnmipath.FromProto(del))
		if len(path) == 0 {
			malformed++
			continue
		}
		out = append(out, model.Notification{
			Target:    target,
			Path:      path,
			Timestamp: ts,
			Delete:    true,
		})
	}
	return out, malformed
}

// decodeTypedValue maps a gNMI TypedValue onto the model scalar. JSON
// payloads are accepted when they hold a single scalar.
func decodeTypedValue(tv *gpb.TypedValue) (model.Value, error) {
	if tv == nil {
		return model.Value{}, errMalformedUpdate
	}
	switch v := tv.Value.(type) {
	case *gpb.TypedValue_UintVal:
		return model.UintValue(v.UintVal), nil
	case *gpb.TypedValue_IntVal:
		return model.IntValue(v.IntVal), nil
	case *gpb.TypedValue_DoubleVal:
		return model.FloatValue(v.DoubleVal), nil
	case *gpb.TypedValue_StringVal:
		return model.StringValue(v.StringVal), nil
	case *gpb.TypedValue_BoolVal:
		return model.BoolValue(v.BoolVal), nil
	case *gpb.TypedValue_AsciiVal:
		return model.StringValue(v.AsciiVal), nil
	case *gpb.TypedValue_JsonVal:
		return decodeJSONScalar(v.JsonVal)
	case *gpb.TypedValue_JsonIetfVal:
		return decodeJSONScalar(v.JsonIetfVal)
	default:
		return model.Value{}, errMalformedUpdate
	}
}

func decodeJSONScalar(raw []byte) (model.Value, error) {
	var any interface{}
	if err := json.Unmarshal(raw, &any); err != nil {
		return model.Value{}, fmt.Errorf("%w: %v", errMalformedUpdate, err)
	}
	switch v := any.(type) {
	case float64:
		return model.FloatValue(v), nil
	case string:
		// YANG uint64 leaves arrive as JSON strings in IETF encoding.
		if f, err := parseNumeric(v); err == nil {
			return model.FloatValue(f), nil
		}
		return model.StringValue(v), nil
	case bool:
		return model.BoolValue(v), nil
	default:
		return model.Value{}, errMalformedUpdate
	}
}

func parseNumeric(s string) (float64, error) {
	var f float64
	if err := json.Unmarshal([]byte(s), &f); err != nil {
		return 0, err
	}
	return f, nil
}
