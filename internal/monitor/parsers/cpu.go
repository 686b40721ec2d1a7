package parsers

import (
	"bufio"
	"regexp"
	"strconv"
	"strings"
)

// topFieldRe matches one "<value><unit>" pair of a top CPU summary, in both
// the procps-ng 3.3+ layout ("93.0 id") and the older one ("93.0%id").
// The number has to start a token so "93,0 id" never reads as 0.
var topFieldRe = regexp.MustCompile(`(?:^|[\s,:])(\d+(?:\.\d+)?)\s*%?\s*(us|sy|ni|id|wa|hi|si|st)\b`)

// darwinFieldRe matches macOS `top -l 1` pairs like "84.21% idle".
var darwinFieldRe = regexp.MustCompile(`(?:^|[\s,:])(\d+(?:\.\d+)?)%\s*(user|sys|idle)\b`)

// decimalCommaRe spots locales that print "93,0" for 93.0.
var decimalCommaRe = regexp.MustCompile(`\d,\d`)

// ParseTop parses the aggregate CPU line of `top -bn1` (procps) or of
// macOS `top -l 1`. Busy is 100 minus idle.
//
//	%Cpu(s):  5.0 us,  2.0 sy,  0.0 ni, 93.0 id,  0.0 wa,  0.0 hi,  0.0 si,  0.0 st
//	Cpu(s):  5.0%us,  2.0%sy,  0.0%ni, 93.0%id,  0.0%wa,  0.0%hi,  0.0%si,  0.0%st
//	CPU usage: 5.26% user, 10.52% sys, 84.21% idle
func ParseTop(output string) (Metric, error) {
	const name = "top"

	scanner := bufio.NewScanner(strings.NewReader(output))
	for scanner.Scan() {
		line := scanner.Text()
		isSummary := strings.Contains(line, "Cpu(s)") || strings.HasPrefix(strings.TrimSpace(line), "CPU usage:")
		if isSummary && decimalCommaRe.MatchString(line) {
			return nil, parseErr(name, "decimal commas in cpu line (set LC_ALL=C)")
		}

		switch {
		case strings.Contains(line, "Cpu(s)"):
			values := make(map[string]float64)
			for _, m := range topFieldRe.FindAllStringSubmatch(line, -1) {
				v, err := strconv.ParseFloat(m[1], 64)
				if err != nil {
					return nil, parseErr(name, "invalid value %q", m[1])
				}
				values[m[2]] = v
			}
			return cpuFromIdle(name, values, "id", "us", "sy")

		case strings.HasPrefix(strings.TrimSpace(line), "CPU usage:"):
			values := make(map[string]float64)
			for _, m := range darwinFieldRe.FindAllStringSubmatch(line, -1) {
				v, err := strconv.ParseFloat(m[1], 64)
				if err != nil {
					return nil, parseErr(name, "invalid value %q", m[1])
				}
				values[m[2]] = v
			}
			return cpuFromIdle(name, values, "idle", "user", "sys")
		}
	}

	return nil, parseErr(name, "no cpu summary line found")
}

func cpuFromIdle(name string, values map[string]float64, idleKey, userKey, sysKey string) (Metric, error) {
	idle, ok := values[idleKey]
	if !ok {
		return nil, parseErr(name, "no idle value in cpu line")
	}
	if idle < 0 || idle > 100 {
		return nil, parseErr(name, "idle value %.1f out of range", idle)
	}
	return CPU{
		BusyPercent:   100 - idle,
		IdlePercent:   idle,
		UserPercent:   values[userKey],
		SystemPercent: values[sysKey],
	}, nil
}

// ParseProcStat parses `cat /proc/stat`. The aggregate "cpu" line holds
// jiffies since boot, so the result is the average since boot.
//
//	cpu  user nice system idle iowait irq softirq steal guest guest_nice
func ParseProcStat(output string) (Metric, error) {
	const name = "procstat"

	scanner := bufio.NewScanner(strings.NewReader(output))
	cores := 0
	var fields []string

	for scanner.Scan() {
		line := scanner.Text()

		if strings.HasPrefix(line, "cpu") && len(line) > 3 && line[3] >= '0' && line[3] <= '9' {
			cores++
			continue
		}
		if strings.HasPrefix(line, "cpu ") && fields == nil {
			fields = strings.Fields(line)
		}
	}

	if fields == nil {
		return nil, parseErr(name, "no aggregate cpu line found")
	}
	if len(fields) < 5 {
		return nil, parseErr(name, "too few columns in cpu line")
	}

	var total, idle, user, system int64
	for i := 1; i < len(fields); i++ {
		val, err := strconv.ParseInt(fields[i], 10, 64)
		if err != nil || val < 0 {
			return nil, parseErr(name, "invalid value %q", fields[i])
		}
		total += val

		switch i {
		case 1, 2:
			user += val
		case 3:
			system += val
		case 4, 5:
			// idle and iowait
			idle += val
		}
	}

	if total == 0 {
		return nil, parseErr(name, "cpu counters are all zero")
	}

	pct := func(v int64) float64 { return float64(v) / float64(total) * 100 }
	return CPU{
		BusyPercent:   pct(total - idle),
		IdlePercent:   pct(idle),
		UserPercent:   pct(user),
		SystemPercent: pct(system),
		Cores:         cores,
	}, nil
}
