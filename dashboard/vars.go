package dashboard

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// MacroVars derives the Grafana interval and range macros for a query window.
func MacroVars(startMs, endMs, stepMs int64) map[string]string {
	rangeMs := max(0, endMs-startMs)
	rangeS := rangeMs / 1000
	intervalS := max(1, stepMs/1000)
	rangeLabel := rangeS
	if rangeLabel <= 0 {
		rangeLabel = 1
	}
	return map[string]string{
		"__interval":    FormatDuration(intervalS),
		"__interval_ms": strconv.FormatInt(intervalS*1000, 10),
		"__range":       FormatDuration(rangeLabel),
		"__range_s":     strconv.FormatInt(rangeS, 10),
		"__range_ms":    strconv.FormatInt(rangeMs, 10),
	}
}

// FormatDuration renders seconds in the largest whole unit of h, m or s.
func FormatDuration(seconds int64) string {
	seconds = max(1, seconds)
	switch {
	case seconds%3600 == 0:
		return fmt.Sprintf("%dh", seconds/3600)
	case seconds%60 == 0:
		return fmt.Sprintf("%dm", seconds/60)
	}
	return fmt.Sprintf("%ds", seconds)
}

// ApplyVars substitutes $name and ${name} references. Longer names are applied
// first so that $__interval_ms is not clobbered by $__interval.
func ApplyVars(expr string, vars map[string]string) string {
	names := make([]string, 0, len(vars))
	for name := range vars {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		if len(names[i]) != len(names[j]) {
			return len(names[i]) > len(names[j])
		}
		return names[i] < names[j]
	})
	for _, name := range names {
		value := vars[name]
		expr = strings.ReplaceAll(expr, "${"+name+"}", value)
		expr = strings.ReplaceAll(expr, "$"+name, value)
	}
	return expr
}
