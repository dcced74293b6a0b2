package tvio

import (
	"log/slog"

	"github.com/hashicorp/go-metrics"
)

var (
	MetricTvioHandleCount       = []string{"tvio", "handle", "count"}
	MetricTvioMessageInCount    = []string{"tvio", "message", "in", "count"}
	MetricTvioMessageOutCount   = []string{"tvio", "message", "out", "count"}
	MetricTvioMessageOutBytes   = []string{"tvio", "message", "out", "bytes"}
	MetricTvioMessageDropCount  = []string{"tvio", "message", "drop", "count"}
	MetricTvioPublishErrorCount = []string{"tvio", "publish", "error", "count"}
	MetricTvioRequestCount      = []string{"tvio", "request", "count"}
	MetricTvioReplyCount        = []string{"tvio", "reply", "count"}
	MetricTvioPeerJoinCount     = []string{"tvio", "peer", "join", "count"}
	MetricTvioPeerLeaveCount    = []string{"tvio", "peer", "leave", "count"}
)

type TelemetryLabel string

var (
	LabelError    TelemetryLabel = "error"
	LabelHandle   TelemetryLabel = "handle"
	LabelUUID     TelemetryLabel = "uuid"
	LabelRole     TelemetryLabel = "role"
	LabelPeer     TelemetryLabel = "peer"
	LabelTopic    TelemetryLabel = "topic"
	LabelKind     TelemetryLabel = "kind"
	LabelFunction TelemetryLabel = "function"
	LabelProperty TelemetryLabel = "property"
	LabelCallType TelemetryLabel = "call_type"
	LabelRequest  TelemetryLabel = "request_id"
	LabelDuration TelemetryLabel = "duration"
)

func (lab TelemetryLabel) M(val string) metrics.Label {
	return metrics.Label{Name: string(lab), Value: val}
}

func (lab TelemetryLabel) L(val any) slog.Attr {
	return slog.Attr{
		Key:   string(lab),
		Value: slog.AnyValue(val),
	}
}
