//go:build windows

package pktdelay

//
// Windows timing backend: QueryPerformanceCounter/Frequency for Now,
// and the winmm.dll multimedia timer for 1 ms resolution raise/lower.
//

import (
	"fmt"
	"sync"

	"golang.org/x/sys/windows"
)

var (
	qpcFrequency     int64
	qpcFrequencyOnce sync.Once
)

// platformFrequency returns QueryPerformanceFrequency's ticks-per-second,
// cached for the lifetime of the process since it never changes.
func platformFrequency() int64 {
	qpcFrequencyOnce.Do(func() {
		var freq int64
		if err := windows.QueryPerformanceFrequency(&freq); err != nil || freq <= 0 {
			// QueryPerformanceFrequency failing is extremely rare on
			// any Windows version still supported; fall back to the
			// 100ns tick rate used by FILETIME so conversions stay
			// sane rather than dividing by zero.
			freq = 10_000_000
		}
		qpcFrequency = freq
	})
	return qpcFrequency
}

func platformNow() Tick {
	var counter int64
	_ = windows.QueryPerformanceCounter(&counter)
	return Tick(counter)
}

// winmm is the multimedia timer DLL, loaded lazily the same way the
// diversion driver's own DLL is bound in divert_windows.go.
var winmm = windows.NewLazySystemDLL("winmm.dll")

var (
	procTimeBeginPeriod = winmm.NewProc("timeBeginPeriod")
	procTimeEndPeriod   = winmm.NewProc("timeEndPeriod")
)

// timerGranularityMs is the OS timer period requested while the
// engine is running. 1 ms is the finest granularity winmm exposes.
const timerGranularityMs = 1

func platformRaiseResolution() error {
	if r1, _, _ := procTimeBeginPeriod.Call(uintptr(timerGranularityMs)); r1 != 0 {
		return fmt.Errorf("pktdelay: timeBeginPeriod failed with code %d", r1)
	}
	return nil
}

func platformLowerResolution() error {
	if r1, _, _ := procTimeEndPeriod.Call(uintptr(timerGranularityMs)); r1 != 0 {
		return fmt.Errorf("pktdelay: timeEndPeriod failed with code %d", r1)
	}
	return nil
}
