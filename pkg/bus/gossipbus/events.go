package gossipbus

import (
	"fmt"
	"log/slog"

	"github.com/hashicorp/serf/serf"
)

type TelemetryLabel string

var (
	LabelError    TelemetryLabel = "error"
	LabelNodeName TelemetryLabel = "node_name"
	LabelNodeAddr TelemetryLabel = "node_addr"
	LabelTopic    TelemetryLabel = "topic"
	LabelDuration TelemetryLabel = "duration"
)

func (lab TelemetryLabel) L(val any) slog.Attr {
	return slog.Attr{
		Key:   string(lab),
		Value: slog.AnyValue(val),
	}
}

func withLogMember(logger *slog.Logger, m serf.Member) *slog.Logger {
	return logger.With(
		LabelNodeName.L(m.Name),
		LabelNodeAddr.L(fmt.Sprintf("%s:%d", m.Addr, m.Port)),
	)
}

func logMemberEvent(logger *slog.Logger, event serf.MemberEvent) {
	for _, m := range event.Members {
		switch event.Type {
		case serf.EventMemberJoin:
			withLogMember(logger, m).Info("peer joined cluster")
		case serf.EventMemberLeave:
			withLogMember(logger, m).Info("peer left cluster")
		case serf.EventMemberFailed:
			withLogMember(logger, m).Warn("peer failed")
		case serf.EventMemberUpdate:
			withLogMember(logger, m).Info("peer updated")
		case serf.EventMemberReap:
			withLogMember(logger, m).Debug("peer reaped")
		}
	}
}
