package parsers

import (
	"bufio"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
)

const rootMount = "/"

// blockSizes maps the POSIX df size header to the multiplier for its column.
var blockSizes = map[string]int64{
	"1024-blocks": 1024,
	"1K-blocks":   1024,
	"512-blocks":  512,
	"1B-blocks":   1,
}

// ParseDF parses POSIX `df -P` output and reports the filesystem mounted
// at "/". Sizes are block counts named by the header, or with -h the
// power-of-1024 suffixed forms:
//
//	Filesystem     1024-blocks     Used Available Capacity Mounted on
//	/dev/sda1         20509264  9414392  10030272      49% /
//
//	Filesystem      Size  Used Avail Use% Mounted on
//	/dev/sda1        20G  9.0G  9.6G  49% /
func ParseDF(output string) (Metric, error) {
	const name = "df"

	scanner := bufio.NewScanner(strings.NewReader(output))
	var sizeOf func(string) (int64, bool)

	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}

		if sizeOf == nil {
			if fields[0] != "Filesystem" || len(fields) < 6 {
				return nil, parseErr(name, "unrecognized df header")
			}
			var ok bool
			if sizeOf, ok = sizeParser(fields[1]); !ok {
				return nil, parseErr(name, "unrecognized size column %q", fields[1])
			}
			continue
		}

		if len(fields) < 6 {
			return nil, parseErr(name, "too few columns in df row")
		}
		// Mount points may contain spaces; everything from column 6 on is the path.
		if strings.Join(fields[5:], " ") != rootMount {
			continue
		}

		total, ok1 := sizeOf(fields[1])
		used, ok2 := sizeOf(fields[2])
		avail, ok3 := sizeOf(fields[3])
		if !ok1 || !ok2 || !ok3 {
			return nil, parseErr(name, "invalid size in row for %s", rootMount)
		}

		disk := Disk{
			Filesystem:     fields[0],
			MountPoint:     rootMount,
			TotalBytes:     total,
			UsedBytes:      used,
			AvailableBytes: avail,
		}

		capacity := strings.TrimSuffix(fields[4], "%")
		if pct, err := strconv.ParseFloat(capacity, 64); err == nil && pct >= 0 {
			disk.UsePercent = pct
		} else if capacity == "-" {
			if used+avail > 0 {
				disk.UsePercent = float64(used) / float64(used+avail) * 100
			}
		} else {
			return nil, parseErr(name, "invalid capacity %q", fields[4])
		}
		return disk, nil
	}

	if sizeOf == nil {
		return nil, parseErr(name, "empty df output")
	}
	return nil, parseErr(name, "no root filesystem found")
}

func sizeParser(header string) (func(string) (int64, bool), bool) {
	if mult, ok := blockSizes[header]; ok {
		return func(s string) (int64, bool) {
			n, err := strconv.ParseInt(s, 10, 64)
			if err != nil || n < 0 {
				return 0, false
			}
			return n * mult, true
		}, true
	}
	if header == "Size" {
		return parseHumanSize, true
	}
	return nil, false
}

// parseHumanSize reads df -h sizes. df uses powers of 1024 with a bare
// suffix ("9.6G"), which humanize reads as decimal unless it carries the
// "i" ("9.6Gi").
func parseHumanSize(s string) (int64, bool) {
	if s == "" {
		return 0, false
	}
	last := s[len(s)-1]
	if last >= 'A' && last <= 'Z' || last >= 'a' && last <= 'z' {
		s += "i"
	}
	n, err := humanize.ParseBytes(s)
	if err != nil {
		return 0, false
	}
	return int64(n), true
}
