package parsers

import (
	"bufio"
	"regexp"
	"strconv"
	"strings"
)

var (
	// net-tools 2.x: "RX packets 1234  bytes 567890 (567.8 KB)"
	rxModernRe = regexp.MustCompile(`RX packets \d+\s+bytes (\d+)`)
	txModernRe = regexp.MustCompile(`TX packets \d+\s+bytes (\d+)`)
	// net-tools 1.x: "RX bytes:567890 (554.5 KiB)  TX bytes:1234 (1.2 KiB)"
	rxLegacyRe = regexp.MustCompile(`RX bytes:(\d+)`)
	txLegacyRe = regexp.MustCompile(`TX bytes:(\d+)`)
)

// ParseIfconfig parses Linux net-tools `ifconfig` output. Each
// unindented line starts an interface block; counters are read from the
// indented lines below it. An interface that reports no counters has zero
// traffic.
func ParseIfconfig(output string) (Metric, error) {
	const name = "ifconfig"

	net := Network{Interfaces: []Interface{}}
	var current *Interface

	scanner := bufio.NewScanner(strings.NewReader(output))
	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}

		if line[0] != ' ' && line[0] != '\t' {
			ifname := strings.TrimSuffix(strings.Fields(line)[0], ":")
			net.Interfaces = append(net.Interfaces, Interface{Name: ifname})
			current = &net.Interfaces[len(net.Interfaces)-1]
			continue
		}

		if current == nil {
			return nil, parseErr(name, "counters before any interface")
		}

		for _, c := range []struct {
			re  *regexp.Regexp
			dst *int64
		}{
			{rxModernRe, &current.RxBytes},
			{txModernRe, &current.TxBytes},
			{rxLegacyRe, &current.RxBytes},
			{txLegacyRe, &current.TxBytes},
		} {
			m := c.re.FindStringSubmatch(line)
			if m == nil {
				continue
			}
			v, err := strconv.ParseInt(m[1], 10, 64)
			if err != nil {
				return nil, parseErr(name, "invalid byte counter %q for %s", m[1], current.Name)
			}
			*c.dst = v
		}
	}

	return net, nil
}

// ParseNetDev parses `cat /proc/net/dev`.
//
//	Inter-|   Receive                                                |  Transmit
//	 face |bytes    packets errs drop fifo frame compressed multicast|bytes    packets ...
//	  eth0: 1234567    1234    0    0    0     0          0         0  7654321    4321 ...
func ParseNetDev(output string) (Metric, error) {
	const name = "netdev"

	net := Network{Interfaces: []Interface{}}

	scanner := bufio.NewScanner(strings.NewReader(output))
	for scanner.Scan() {
		line := scanner.Text()
		if strings.Contains(line, "|") {
			continue
		}

		parts := strings.SplitN(line, ":", 2)
		if len(parts) != 2 {
			continue
		}

		ifname := strings.TrimSpace(parts[0])
		fields := strings.Fields(parts[1])

		// 8 receive columns then 8 transmit columns
		if len(fields) < 16 {
			return nil, parseErr(name, "too few columns for %s", ifname)
		}

		rx, err := strconv.ParseInt(fields[0], 10, 64)
		if err != nil {
			return nil, parseErr(name, "invalid rx bytes %q for %s", fields[0], ifname)
		}
		tx, err := strconv.ParseInt(fields[8], 10, 64)
		if err != nil {
			return nil, parseErr(name, "invalid tx bytes %q for %s", fields[8], ifname)
		}

		net.Interfaces = append(net.Interfaces, Interface{Name: ifname, RxBytes: rx, TxBytes: tx})
	}

	return net, nil
}
