package execution

import "time"

// Task is a pending scheduled call.
type Task interface {
	// Cancel stops the call if it has not run yet and reports whether it did.
	Cancel() bool
}

// Scheduler runs a function once after a delay.
type Scheduler interface {
	Schedule(d time.Duration, fn func()) Task
}

// TimerScheduler schedules calls on runtime timers.
type TimerScheduler struct{}

// Schedule implements Scheduler.
func (TimerScheduler) Schedule(d time.Duration, fn func()) Task {
	return timerTask{time.AfterFunc(d, fn)}
}

type timerTask struct{ t *time.Timer }

func (t timerTask) Cancel() bool { return t.t.Stop() }
