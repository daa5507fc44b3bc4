package dataplane

import (
	"sync"
	"time"
)

const (
	MAX_SLOW_START_ITERATIONS = 3
)

// RateControl paces outgoing packets so that no more than MaxSpeed bits/s
// leave the socket. The first MAX_SLOW_START_ITERATIONS intervals run at a
// fraction of MaxSpeed. A nil RateControl or MaxSpeed <= 0 never waits.
type RateControl struct {
	sync.Mutex
	TimeInterval   time.Duration
	MaxSpeed       int64 // Always bits/s
	SlowStartCount int
	intervalStart  time.Time
	intervalBytes  int64
	waited         time.Duration
}

func NewRateControl(timeInterval time.Duration, maxSpeed int64) *RateControl {
	return &RateControl{
		TimeInterval: timeInterval,
		MaxSpeed:     maxSpeed,
	}
}

// Add accounts numBytes that are about to be sent and sleeps until
// sending them keeps the current rate below the limit.
func (rc *RateControl) Add(numBytes int) {
	if rc == nil || rc.MaxSpeed <= 0 {
		return
	}
	rc.Lock()
	now := time.Now()
	if rc.intervalStart.IsZero() || now.Sub(rc.intervalStart) >= rc.TimeInterval {
		if !rc.intervalStart.IsZero() && rc.SlowStartCount < MAX_SLOW_START_ITERATIONS {
			rc.SlowStartCount++
		}
		rc.intervalStart = now
		rc.intervalBytes = 0
	}
	rc.intervalBytes += int64(numBytes)
	target := time.Duration(float64(rc.intervalBytes*8) / float64(rc.currentSpeed()) * float64(time.Second))
	wait := target - now.Sub(rc.intervalStart)
	if wait > 0 {
		rc.waited += wait
	}
	rc.Unlock()

	if wait > 0 {
		time.Sleep(wait)
	}
}

// currentSpeed starts at 1/(MAX_SLOW_START_ITERATIONS+1) of MaxSpeed and
// grows with every finished interval.
func (rc *RateControl) currentSpeed() int64 {
	if rc.SlowStartCount >= MAX_SLOW_START_ITERATIONS {
		return rc.MaxSpeed
	}
	speed := rc.MaxSpeed * int64(rc.SlowStartCount+1) / int64(MAX_SLOW_START_ITERATIONS+1)
	if speed <= 0 {
		return 1
	}
	return speed
}

// Waited returns the total time Add has slept.
func (rc *RateControl) Waited() time.Duration {
	if rc == nil {
		return 0
	}
	rc.Lock()
	defer rc.Unlock()
	return rc.waited
}
