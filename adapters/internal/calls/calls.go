// Package calls holds the argument and call ID normalization shared by provider adapters.
package calls

import (
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/kaptinlin/jsonrepair"

	"github.com/skosovsky/toolpipe"
)

// CallIDPrefix prefixes generated call IDs.
const CallIDPrefix = "call_"

// Options is the configuration every adapter shares.
type Options struct {
	ProviderID string
	Repair     bool
	Logger     toolpipe.Logger
}

// EnsureID returns id, or a fresh call_<uuid> when the provider sent none.
func EnsureID(id string) string {
	if strings.TrimSpace(id) != "" {
		return id
	}
	return CallIDPrefix + uuid.NewString()
}

// Arguments returns raw unchanged when it is valid JSON or blank. With repair
// enabled, malformed text is passed through jsonrepair; if repair fails the
// original text is kept so the executor reports invalid_arguments.
func (o Options) Arguments(name, callID, raw string) string {
	if !o.Repair || strings.TrimSpace(raw) == "" || json.Valid([]byte(raw)) {
		return raw
	}
	fixed, err := jsonrepair.JSONRepair(raw)
	if err != nil || !json.Valid([]byte(fixed)) {
		o.logger().Warn("tool arguments could not be repaired", "tool", name, "call_id", callID, "error", err)
		return raw
	}
	o.logger().Debug("tool arguments repaired", "tool", name, "call_id", callID)
	return fixed
}

// Request builds a ToolCallRequest with a guaranteed ID and normalized arguments.
func (o Options) Request(id, name, raw string) toolpipe.ToolCallRequest {
	id = EnsureID(id)
	return toolpipe.ToolCallRequest{CallID: id, Name: name, Arguments: o.Arguments(name, id, raw)}
}

// Validate runs provider validation over every registered tool and returns
// the definitions when they all pass.
func (o Options) Validate(reg *toolpipe.Registry) ([]toolpipe.ToolDefinition, error) {
	report := reg.ValidateToolsForProvider(o.ProviderID)
	if err := report.Err(); err != nil {
		o.logger().Error("tool definitions rejected", "provider", o.ProviderID, "invalid", report.InvalidTools)
		return nil, err
	}
	return reg.GetAllTools(), nil
}

func (o Options) logger() toolpipe.Logger {
	if o.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return o.Logger
}
