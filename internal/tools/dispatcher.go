package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"

	"github.com/kalambet/rys/internal/metrics"
)

// Dispatcher executes registered tools. Invoke never panics and always
// returns a string; every failure is reported in-band so the model can read
// it and recover.
type Dispatcher struct {
	registry *Registry
	logger   *slog.Logger
}

func NewDispatcher(r *Registry) *Dispatcher {
	return &Dispatcher{registry: r, logger: slog.Default()}
}

func (d *Dispatcher) Invoke(ctx context.Context, name string, raw map[string]any, c Caller) (out string) {
	outcome := "ok"
	defer func() {
		if v := recover(); v != nil {
			d.logger.Error("tool panicked", "tool", name, "panic", v)
			out = fmt.Sprintf("tool error: panic: %v", v)
			outcome = "error"
		}
		metrics.ToolCalls.WithLabelValues(metricName(d.registry, name), outcome).Inc()
	}()

	t, ok := d.registry.Lookup(name)
	if !ok {
		outcome = "unknown"
		return "unknown tool: " + name
	}

	args, missing := coerce(t.Params, raw)
	if missing != "" {
		outcome = "invalid"
		return fmt.Sprintf("tool error: missing required argument %q", missing)
	}

	res, err := t.Handler(ctx, c, args)
	if err != nil {
		outcome = "error"
		d.logger.Debug("tool returned error", "tool", name, "user_id", c.UserID, "error", err)
		return "tool error: " + err.Error()
	}
	return res
}

// metricName keeps label cardinality bounded to registered tool names.
func metricName(r *Registry, name string) string {
	if _, ok := r.Lookup(name); ok {
		return name
	}
	return "unknown"
}

// coerce converts raw values to each declared param's type. Undeclared keys
// are dropped; values that cannot be converted are treated as absent. It
// returns the first required param left absent.
func coerce(params []Param, raw map[string]any) (Args, string) {
	values := make(map[string]any, len(params))
	for _, p := range params {
		v, ok := raw[p.Name]
		if ok && v != nil {
			if cv, ok := coerceValue(p.Type, v); ok {
				values[p.Name] = cv
			}
		}
		if _, present := values[p.Name]; !present && p.Required {
			return Args{}, p.Name
		}
	}
	return Args{values: values}, ""
}

func coerceValue(t ParamType, v any) (any, bool) {
	switch t {
	case String:
		return toString(v)
	case Integer:
		return toInt(v)
	case Boolean:
		switch b := v.(type) {
		case bool:
			return b, true
		case string:
			return strings.EqualFold(strings.TrimSpace(b), "true"), true
		default:
			return false, true
		}
	}
	return nil, false
}

func toString(v any) (string, bool) {
	switch s := v.(type) {
	case string:
		return s, true
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64), true
	case json.Number:
		return s.String(), true
	case int:
		return strconv.Itoa(s), true
	case int64:
		return strconv.FormatInt(s, 10), true
	case bool:
		return strconv.FormatBool(s), true
	default:
		return "", false
	}
}

func toInt(v any) (int, bool) {
	var f float64
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		f = n
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return int(i), true
		}
		parsed, err := n.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	case string:
		s := strings.TrimSpace(n)
		if i, err := strconv.Atoi(s); err == nil {
			return i, true
		}
		parsed, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) || f > math.MaxInt32 || f < math.MinInt32 {
		return 0, false
	}
	return int(f), true
}
