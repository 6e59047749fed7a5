package message

import "go.uber.org/zap"

// DropNotice and FlattenNotice record a single lossy decision made while
// down-converting a canonical Message to a vendor payload, so callers can
// log them at debug level per spec.md §4.7 ("lossy conversions MUST be
// logged at debug level"). Conversion itself never invents content; it
// only drops or flattens Parts a given vendor cannot represent.
type DropNotice struct {
	Reason string
	Part   PartKind
}

// LogLossy emits one debug log line per recorded notice. Adapters call
// this after building a vendor payload; it is a no-op with a nil logger,
// matching otui's config.DebugLog gated-logging idiom but routed through a
// real structured logger instead of an env-var-gated package global.
func LogLossy(log *zap.SugaredLogger, provider string, notices []DropNotice) {
	if log == nil {
		return
	}
	for _, n := range notices {
		log.Debugw("lossy message conversion", "provider", provider, "part_kind", n.Part, "reason", n.Reason)
	}
}

// CanonicalAuthoritative documents the resolution to spec.md §9 open
// question 1: when both a canonical ToolResult Part and a provider-shaped
// "reinterpreted as user message" form could describe the same exchange,
// the canonical form in Message.Parts is authoritative. Down-conversion —
// turning a tool-role Message into a user-role message naming the
// tool_call_id, for providers with no dedicated tool role — happens only
// inside a Provider Adapter's ToProviderPayload-equivalent, immediately
// before the wire call, and never mutates the stored canonical history.
const CanonicalAuthoritative = true
