package proxy

import (
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
	"go.uber.org/zap"

	"github.com/papercomputeco/dials/pkg/sampling"
	"github.com/papercomputeco/dials/pkg/utils"
)

// maxLogValueLen bounds logged request field values; message arrays and
// system prompts routinely run to kilobytes.
const maxLogValueLen = 200

// injectSamplingParams forces the configured sampling parameters into a JSON
// request body, returning the mutated body and the names of the fields that
// were written.
//
// The mutation is fail-open: a body that is not valid JSON, or whose top
// level is not an object, is returned untouched. The proxy's job is additive
// convenience, so pass-through traffic is never rewritten into an error.
//
// sjson edits the body in place, so every key the proxy has no opinion on
// passes through byte-for-byte, nested values included.
func injectSamplingParams(log *zap.Logger, body []byte, overrides sampling.Overrides) ([]byte, []string) {
	if !gjson.ValidBytes(body) {
		log.Debug("request body is not valid JSON, forwarding verbatim")
		return body, nil
	}

	parsed := gjson.ParseBytes(body)
	if !parsed.IsObject() {
		log.Debug("request body is not a JSON object, forwarding verbatim")
		return body, nil
	}

	logRequestFields(log, parsed)

	var injected []string

	set := func(key string, value any) {
		old := gjson.GetBytes(body, key)

		mutated, err := sjson.SetBytes(body, key, value)
		if err != nil {
			// Top-level sets on a valid object do not fail in practice;
			// forward the body as-is rather than dropping the request.
			log.Warn("failed to set sampling parameter",
				zap.String("field", key),
				zap.Error(err),
			)
			return
		}
		body = mutated
		injected = append(injected, key)

		if old.Exists() {
			log.Debug("overrode sampling parameter",
				zap.String("field", key),
				zap.String("old", old.String()),
				zap.Any("new", value),
			)
		} else {
			log.Debug("injected sampling parameter",
				zap.String("field", key),
				zap.Any("value", value),
			)
		}
	}

	if t, ok := overrides.Temperature.Get(); ok {
		set("temperature", t)
	}
	if p, ok := overrides.TopP.Get(); ok {
		set("top_p", p)
	}
	if k, ok := overrides.TopK.Get(); ok {
		set("top_k", k)
	}

	return body, injected
}

// logRequestFields debug-logs the top-level request fields with long values
// truncated.
func logRequestFields(log *zap.Logger, parsed gjson.Result) {
	if !log.Core().Enabled(zap.DebugLevel) {
		return
	}

	parsed.ForEach(func(key, value gjson.Result) bool {
		log.Debug("request field",
			zap.String("key", key.String()),
			zap.String("value", utils.Truncate(value.String(), maxLogValueLen)),
		)
		return true
	})
}
