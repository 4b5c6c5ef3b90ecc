package hostinfo

import (
	"context"
	"fmt"

	"github.com/shirou/gopsutil/v3/host"

	"github.com/bryanwahyu/compliance-pulse/internal/domain/scans"
)

// Prober reads host facts from the operating system.
type Prober struct{}

func (Prober) Facts(ctx context.Context) (scans.HostFacts, error) {
	info, err := host.InfoWithContext(ctx)
	if err != nil {
		return scans.HostFacts{}, fmt.Errorf("get host info: %w", err)
	}
	return scans.HostFacts{
		Hostname:        info.Hostname,
		OS:              info.OS,
		Platform:        info.Platform,
		PlatformFamily:  info.PlatformFamily,
		PlatformVersion: info.PlatformVersion,
		KernelVersion:   info.KernelVersion,
	}, nil
}
