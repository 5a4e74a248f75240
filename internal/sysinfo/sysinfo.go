// Package sysinfo 采集本机资源占用，供仪表盘展示。
package sysinfo

import (
	"context"
	"fmt"
	"math"
	"net"
	"strings"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/host"
	"github.com/shirou/gopsutil/v4/load"
	"github.com/shirou/gopsutil/v4/mem"
	gnet "github.com/shirou/gopsutil/v4/net"
)

// Resources CPU、内存、磁盘使用率（百分比，取整）。
type Resources struct {
	CPU    int `json:"cpu"`
	Memory int `json:"memory"`
	Disk   int `json:"disk"`
}

// Node 节点状态。
type Node struct {
	IP       string `json:"ip"`
	Hostname string `json:"hostname"`
	Status   string `json:"status"`
	Load     string `json:"load"`
}

// Sampler 资源采集接口，测试中可替换。
type Sampler interface {
	Resources(ctx context.Context) (Resources, error)
	Nodes(ctx context.Context) ([]Node, error)
}

// HostSampler 基于 gopsutil 读取当前主机。
type HostSampler struct {
	diskPath string
}

func NewHostSampler(diskPath string) *HostSampler {
	if diskPath == "" {
		diskPath = "/"
	}
	return &HostSampler{diskPath: diskPath}
}

func (s *HostSampler) Resources(ctx context.Context) (Resources, error) {
	cpuPercent, err := cpu.PercentWithContext(ctx, 0, false)
	if err != nil {
		return Resources{}, fmt.Errorf("cpu percent: %w", err)
	}
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return Resources{}, fmt.Errorf("virtual memory: %w", err)
	}
	du, err := disk.UsageWithContext(ctx, s.diskPath)
	if err != nil {
		return Resources{}, fmt.Errorf("disk usage: %w", err)
	}

	var cpuTotal float64
	if len(cpuPercent) > 0 {
		cpuTotal = cpuPercent[0]
	}
	return Resources{
		CPU:    percent(cpuTotal),
		Memory: percent(vm.UsedPercent),
		Disk:   percent(du.UsedPercent),
	}, nil
}

// Nodes 单机部署时只有本机一个节点；load 为 1 分钟负载占核数的比例。
func (s *HostSampler) Nodes(ctx context.Context) ([]Node, error) {
	info, err := host.InfoWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("host info: %w", err)
	}
	avg, err := load.AvgWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("load avg: %w", err)
	}
	cores, err := cpu.CountsWithContext(ctx, true)
	if err != nil || cores <= 0 {
		cores = 1
	}

	ip, err := primaryIP(ctx)
	if err != nil {
		return nil, err
	}

	return []Node{{
		IP:       ip,
		Hostname: info.Hostname,
		Status:   "active",
		Load:     fmt.Sprintf("%d%%", percent(avg.Load1/float64(cores)*100)),
	}}, nil
}

func primaryIP(ctx context.Context) (string, error) {
	ifaces, err := gnet.InterfacesWithContext(ctx)
	if err != nil {
		return "", fmt.Errorf("list interfaces: %w", err)
	}
	for _, iface := range ifaces {
		if isLoopback(iface.Flags) {
			continue
		}
		for _, addr := range iface.Addrs {
			ip, _, err := net.ParseCIDR(addr.Addr)
			if err != nil || ip.To4() == nil || ip.IsLoopback() {
				continue
			}
			return ip.String(), nil
		}
	}
	return "127.0.0.1", nil
}

func isLoopback(flags []string) bool {
	for _, f := range flags {
		if strings.EqualFold(f, "loopback") {
			return true
		}
	}
	return false
}

func percent(v float64) int {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return int(math.Round(v))
}
