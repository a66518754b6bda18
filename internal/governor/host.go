package governor

import (
	"errors"
	"fmt"

	"github.com/distatus/battery"
	"github.com/shirou/gopsutil/v4/mem"
)

// DefaultPressurePercent is the used-memory share treated as pressure.
const DefaultPressurePercent = 90.0

// DefaultPowerSource returns the power source reader for the running OS.
func DefaultPowerSource() PowerSource {
	return &BatteryPower{}
}

// MainsPower always reports mains power.
type MainsPower struct{}

// OnBattery implements PowerSource.
func (MainsPower) OnBattery() (bool, error) { return false, nil }

// BatteryPower reads the host batteries through the platform's battery
// interface. The host runs on battery when any battery is discharging;
// hosts without a battery report mains power.
type BatteryPower struct {
	// batteries overrides the battery reader (used by tests).
	batteries func() ([]*battery.Battery, error)
}

// OnBattery implements PowerSource.
func (p *BatteryPower) OnBattery() (bool, error) {
	getAll := p.batteries
	if getAll == nil {
		getAll = battery.GetAll
	}

	batteries, err := getAll()
	var partial battery.Errors
	if err != nil && !errors.As(err, &partial) {
		return false, fmt.Errorf("read batteries: %w", err)
	}
	for _, b := range batteries {
		if b != nil && b.State == battery.Discharging {
			return true, nil
		}
	}
	return false, nil
}

// VirtualMemoryMonitor reports pressure when used memory crosses a percentage.
type VirtualMemoryMonitor struct {
	Threshold float64
}

// UnderPressure implements MemoryMonitor.
func (p VirtualMemoryMonitor) UnderPressure() (bool, error) {
	threshold := p.Threshold
	if threshold <= 0 {
		threshold = DefaultPressurePercent
	}
	vm, err := mem.VirtualMemory()
	if err != nil {
		return false, fmt.Errorf("virtual memory: %w", err)
	}
	return vm.UsedPercent >= threshold, nil
}
