// Package diag gathers system and network snapshots for troubleshooting
// context around a run. The core test logic never depends on it; the
// presentation layer requests snapshots before and after a run.
package diag

import (
	"context"
	"fmt"
	"strings"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/host"
	"github.com/shirou/gopsutil/v4/mem"
	gnet "github.com/shirou/gopsutil/v4/net"
)

// SystemInfo is a point-in-time view of the local machine.
type SystemInfo struct {
	OS            string      `json:"os"`
	Hostname      string      `json:"hostname"`
	CPUPercent    float64     `json:"cpu_percent"`
	MemoryPercent float64     `json:"memory_percent"`
	Interfaces    []Interface `json:"interfaces"`
}

type Interface struct {
	Name  string   `json:"name"`
	Addrs []string `json:"addrs"`
}

// CollectSystem gathers host, CPU, memory and interface information. Partial
// data is returned with the first error encountered; callers treat the
// snapshot as best-effort.
func CollectSystem(ctx context.Context) (SystemInfo, error) {
	var info SystemInfo
	var firstErr error

	keep := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	if hi, err := host.InfoWithContext(ctx); err == nil {
		info.OS = fmt.Sprintf("%s %s", hi.Platform, hi.PlatformVersion)
		info.Hostname = hi.Hostname
	} else {
		keep(err)
	}

	if pct, err := cpu.PercentWithContext(ctx, 0, false); err == nil && len(pct) > 0 {
		info.CPUPercent = pct[0]
	} else {
		keep(err)
	}

	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		info.MemoryPercent = vm.UsedPercent
	} else {
		keep(err)
	}

	if ifaces, err := gnet.InterfacesWithContext(ctx); err == nil {
		for _, iface := range ifaces {
			var addrs []string
			for _, a := range iface.Addrs {
				addrs = append(addrs, a.Addr)
			}
			if len(addrs) > 0 {
				info.Interfaces = append(info.Interfaces, Interface{
					Name:  iface.Name,
					Addrs: addrs,
				})
			}
		}
	} else {
		keep(err)
	}

	return info, firstErr
}

// NetCounters is a snapshot of the machine-wide network I/O counters.
type NetCounters struct {
	BytesSent   uint64 `json:"bytes_sent"`
	BytesRecv   uint64 `json:"bytes_recv"`
	PacketsSent uint64 `json:"packets_sent"`
	PacketsRecv uint64 `json:"packets_recv"`
	Errors      uint64 `json:"errors"`
}

// CollectNet reads the aggregated network I/O counters.
func CollectNet(ctx context.Context) (NetCounters, error) {
	counters, err := gnet.IOCountersWithContext(ctx, false)
	if err != nil {
		return NetCounters{}, err
	}
	if len(counters) == 0 {
		return NetCounters{}, fmt.Errorf("no network counters available")
	}
	c := counters[0]
	return NetCounters{
		BytesSent:   c.BytesSent,
		BytesRecv:   c.BytesRecv,
		PacketsSent: c.PacketsSent,
		PacketsRecv: c.PacketsRecv,
		Errors:      c.Errin + c.Errout,
	}, nil
}

func (n NetCounters) String() string {
	return fmt.Sprintf("sent %.2f MB / recv %.2f MB | packets %d/%d | errors %d",
		float64(n.BytesSent)/1024/1024,
		float64(n.BytesRecv)/1024/1024,
		n.PacketsSent, n.PacketsRecv, n.Errors)
}

func (s SystemInfo) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s on %s | cpu %.1f%% | mem %.1f%%",
		s.OS, s.Hostname, s.CPUPercent, s.MemoryPercent)
	for _, iface := range s.Interfaces {
		fmt.Fprintf(&b, "\n  %s: %s", iface.Name, strings.Join(iface.Addrs, ", "))
	}
	return b.String()
}
