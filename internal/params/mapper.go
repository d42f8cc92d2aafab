// Package params translates unified generation parameters into the field set
// a specific model accepts on the wire.
package params

import (
	"log/slog"
	"maps"

	"github.com/vnmchuo/inference-gateway/internal/provider"
)

// Map builds the wire parameters for model in four steps:
//
//  1. each set unified parameter is renamed through the model's mapping, or
//     dropped when the mapping marks it unsupported;
//  2. the model's custom params are merged in and win over step 1;
//  3. caller extras are merged in and win over both;
//  4. the result is intersected with the model's supported parameters.
//
// Steps 1 and 4 are separate filters: a registry entry with an incomplete
// mapping still never produces a field the model does not accept.
func Map(p provider.GenerationParams, extras map[string]any, model provider.ModelConfig) map[string]any {
	values := p.Values()
	out := make(map[string]any, len(values)+len(model.Mapping.CustomParams)+len(extras))

	for _, name := range provider.UnifiedParams {
		v, ok := values[name]
		if !ok {
			continue
		}
		target, send := model.Mapping.Target(name)
		if !send {
			slog.Debug("dropping unsupported parameter", "model", model.ID, "param", name)
			continue
		}
		out[target] = v
	}

	maps.Copy(out, model.Mapping.CustomParams)
	maps.Copy(out, extras)

	for key := range out {
		if !model.Supports(key) {
			slog.Debug("dropping parameter outside supported set", "model", model.ID, "param", key)
			delete(out, key)
		}
	}
	return out
}
