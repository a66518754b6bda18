package governor

import (
	"errors"
	"testing"
	"time"

	"github.com/distatus/battery"
)

type fakePower struct {
	battery bool
	err     error
	calls   int
}

func (f *fakePower) OnBattery() (bool, error) {
	f.calls++
	return f.battery, f.err
}

type fakeMemory struct {
	pressured bool
}

func (f *fakeMemory) UnderPressure() (bool, error) { return f.pressured, nil }

func TestGovernor_DefaultProfile(t *testing.T) {
	g := New(DefaultConfig(), nil, nil)
	p := g.Profile()

	if p.FrameSkip != 1 {
		t.Errorf("FrameSkip = %d, want 1", p.FrameSkip)
	}
	if p.CacheTTL != 500*time.Millisecond {
		t.Errorf("CacheTTL = %s, want 500ms", p.CacheTTL)
	}
	if p.PoolCapacity != 3 {
		t.Errorf("PoolCapacity = %d, want 3", p.PoolCapacity)
	}
}

func TestGovernor_BatteryMinimumSkip(t *testing.T) {
	power := &fakePower{battery: true}
	g := New(DefaultConfig(), power, nil)

	p, changed := g.Sample()
	if !changed {
		t.Error("switching to battery should change the profile")
	}
	if p.FrameSkip != 3 {
		t.Errorf("FrameSkip on battery = %d, want 3", p.FrameSkip)
	}
	if p.CacheTTL != time.Second {
		t.Errorf("CacheTTL on battery = %s, want 1s", p.CacheTTL)
	}
	if !p.OnBattery {
		t.Error("OnBattery should be true")
	}
}

func TestGovernor_SamplesEveryN(t *testing.T) {
	power := &fakePower{}
	cfg := DefaultConfig()
	cfg.SampleEvery = 4
	g := New(cfg, power, nil)

	for i := 0; i < 12; i++ {
		g.Observe()
	}
	if power.calls != 3 {
		t.Errorf("power sampled %d times over 12 frames, want 3", power.calls)
	}
}

func TestGovernor_PressureDoublesAndReverts(t *testing.T) {
	power := &fakePower{battery: true}
	memory := &fakeMemory{pressured: true}
	g := New(DefaultConfig(), power, memory)

	now := time.Unix(1000, 0)
	g.now = func() time.Time { return now }

	p, _ := g.Sample()
	if p.FrameSkip != 6 {
		t.Errorf("FrameSkip under pressure on battery = %d, want 6", p.FrameSkip)
	}
	if p.PoolCapacity != 2 {
		t.Errorf("PoolCapacity under pressure = %d, want 2", p.PoolCapacity)
	}

	// Pressure gone but still inside the cool-down.
	memory.pressured = false
	now = now.Add(10 * time.Second)
	p, _ = g.Sample()
	if !p.UnderPressure || p.FrameSkip != 6 {
		t.Errorf("profile inside cool-down = %+v, want pressure adjustments kept", p)
	}

	now = now.Add(25 * time.Second)
	p, changed := g.Sample()
	if !changed {
		t.Error("leaving the cool-down should change the profile")
	}
	if p.UnderPressure || p.FrameSkip != 3 || p.PoolCapacity != 3 {
		t.Errorf("profile after cool-down = %+v, want battery profile", p)
	}
}

func TestGovernor_SkipIsBounded(t *testing.T) {
	cfg := DefaultConfig()
	cfg.BaseFrameSkip = 5
	cfg.BatteryMinFrameSkip = 7
	g := New(cfg, &fakePower{battery: true}, &fakeMemory{pressured: true})

	p, _ := g.Sample()
	if p.FrameSkip != 8 {
		t.Errorf("FrameSkip = %d, want ceiling 8", p.FrameSkip)
	}

	cfg = DefaultConfig()
	cfg.BaseFrameSkip = -3
	g = New(cfg, nil, nil)
	if got := g.Profile().FrameSkip; got != 1 {
		t.Errorf("FrameSkip = %d, want floor 1", got)
	}
}

func TestGovernor_HostErrorKeepsReading(t *testing.T) {
	power := &fakePower{battery: true}
	g := New(DefaultConfig(), power, nil)
	g.Sample()

	power.battery = false
	power.err = errors.New("boom")
	p, changed := g.Sample()
	if changed {
		t.Error("a failing check should not change the profile")
	}
	if !p.OnBattery {
		t.Error("a failing check should keep the previous battery reading")
	}
}

func TestGovernor_Reset(t *testing.T) {
	g := New(DefaultConfig(), nil, &fakeMemory{pressured: true})
	g.Sample()
	g.Reset()

	if g.Profile().UnderPressure {
		t.Error("Reset should clear pressure state")
	}
}

func TestBatteryPower(t *testing.T) {
	tests := []struct {
		name      string
		batteries []*battery.Battery
		err       error
		want      bool
		wantErr   bool
	}{
		{name: "no batteries", want: false},
		{
			name:      "charging",
			batteries: []*battery.Battery{{State: battery.Charging}},
			want:      false,
		},
		{
			name:      "full on the adapter",
			batteries: []*battery.Battery{{State: battery.Full}},
			want:      false,
		},
		{
			name:      "discharging",
			batteries: []*battery.Battery{{State: battery.Discharging}},
			want:      true,
		},
		{
			name:      "one of two discharging",
			batteries: []*battery.Battery{{State: battery.Full}, {State: battery.Discharging}},
			want:      true,
		},
		{
			name:      "partial read still counts",
			batteries: []*battery.Battery{nil, {State: battery.Discharging}},
			err:       battery.Errors{battery.ErrFatal{Err: errors.New("unreadable")}, nil},
			want:      true,
		},
		{
			name:    "fatal error",
			err:     battery.ErrFatal{Err: errors.New("no power supply class")},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &BatteryPower{batteries: func() ([]*battery.Battery, error) {
				return tt.batteries, tt.err
			}}

			got, err := p.OnBattery()
			if (err != nil) != tt.wantErr {
				t.Fatalf("OnBattery() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("OnBattery() = %v, want %v", got, tt.want)
			}
		})
	}
}
