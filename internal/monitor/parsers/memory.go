package parsers

import (
	"bufio"
	"strconv"
	"strings"
)

const mebibyte = 1024 * 1024

// ParseFree parses `free -m`. Only the "Mem:" row is read; its columns are
// matched to the header so both procps layouts work:
//
//	              total        used        free      shared  buff/cache   available
//	Mem:           7977        2345        1234         123        4398        5321
//
//	             total       used       free     shared    buffers     cached
//	Mem:          7977       6743       1234        123        321       4077
func ParseFree(output string) (Metric, error) {
	const name = "free"

	var header []string
	scanner := bufio.NewScanner(strings.NewReader(output))
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		if header == nil && fields[0] == "total" {
			header = fields
			continue
		}
		if fields[0] != "Mem:" {
			continue
		}

		values := fields[1:]
		if len(values) < 3 {
			return nil, parseErr(name, "too few columns in Mem: row")
		}

		nums := make([]int64, len(values))
		for i, v := range values {
			n, err := strconv.ParseInt(v, 10, 64)
			if err != nil || n < 0 {
				return nil, parseErr(name, "invalid value %q in Mem: row", v)
			}
			nums[i] = n * mebibyte
		}

		mem := Memory{
			TotalBytes: nums[0],
			UsedBytes:  nums[1],
			FreeBytes:  nums[2],
		}
		for i, col := range header {
			if col == "available" && i < len(nums) {
				mem.AvailableBytes = nums[i]
			}
		}
		if mem.UsedBytes > mem.TotalBytes {
			return nil, parseErr(name, "used exceeds total in Mem: row")
		}
		return mem, nil
	}

	return nil, parseErr(name, "no Mem: row found")
}

// ParseMeminfo parses `cat /proc/meminfo`, where values are in kB.
// Used is MemTotal minus MemAvailable when the kernel reports it, otherwise
// MemTotal minus free, buffers and page cache.
func ParseMeminfo(output string) (Metric, error) {
	const name = "meminfo"

	var memTotal, memFree, memAvailable, buffers, cached int64
	var haveTotal, haveFree, haveAvailable bool

	scanner := bufio.NewScanner(strings.NewReader(output))
	for scanner.Scan() {
		parts := strings.Fields(scanner.Text())
		if len(parts) < 2 {
			continue
		}

		key := strings.TrimSuffix(parts[0], ":")
		val, err := strconv.ParseInt(parts[1], 10, 64)
		if err != nil {
			continue
		}
		val *= 1024

		switch key {
		case "MemTotal":
			memTotal, haveTotal = val, true
		case "MemFree":
			memFree, haveFree = val, true
		case "MemAvailable":
			memAvailable, haveAvailable = val, true
		case "Buffers":
			buffers = val
		case "Cached":
			cached = val
		}
	}

	if !haveTotal || !haveFree {
		return nil, parseErr(name, "MemTotal or MemFree missing")
	}

	mem := Memory{
		TotalBytes:     memTotal,
		FreeBytes:      memFree,
		AvailableBytes: memAvailable,
	}
	if haveAvailable {
		mem.UsedBytes = memTotal - memAvailable
	} else {
		mem.UsedBytes = memTotal - memFree - buffers - cached
	}
	if mem.UsedBytes < 0 {
		mem.UsedBytes = 0
	}
	return mem, nil
}
