package parsers

import "sort"

// ParseFunc turns a command's stdout into a Metric.
type ParseFunc func(output string) (Metric, error)

var registry = map[string]ParseFunc{
	"top":      ParseTop,
	"procstat": ParseProcStat,
	"free":     ParseFree,
	"meminfo":  ParseMeminfo,
	"df":       ParseDF,
	"ifconfig": ParseIfconfig,
	"netdev":   ParseNetDev,
}

// Lookup returns the parser registered under selector.
func Lookup(selector string) (ParseFunc, bool) {
	fn, ok := registry[selector]
	return fn, ok
}

// Selectors returns every registered selector, sorted.
func Selectors() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
