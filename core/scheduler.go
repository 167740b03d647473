package core

// Timer is a scheduled callback. Handler returns SF_RESCHEDULE after
// moving WakeTime forward to run again.
type Timer struct {
	WakeTime uint32
	Handler  func(*Timer) uint8
	Next     *Timer
}

const (
	SF_DONE       = 0
	SF_RESCHEDULE = 1
)

var (
	timerList   *Timer
	currentTime uint32
)

// ScheduleTimer queues t by WakeTime
func ScheduleTimer(t *Timer) {
	state := disableInterrupts()
	defer restoreInterrupts(state)
	insertTimer(t)
}

func insertTimer(t *Timer) {
	link := &timerList
	for *link != nil && !timerBefore(t.WakeTime, (*link).WakeTime) {
		link = &(*link).Next
	}
	t.Next = *link
	*link = t
}

// UnscheduleTimer removes t from the schedule if it is queued
func UnscheduleTimer(t *Timer) {
	state := disableInterrupts()
	defer restoreInterrupts(state)

	for link := &timerList; *link != nil; link = &(*link).Next {
		if *link == t {
			*link = t.Next
			t.Next = nil
			return
		}
	}
}

// ProcessTimers runs every timer due at the current clock
func ProcessTimers() {
	currentTime = GetTime()

	state := disableInterrupts()
	defer restoreInterrupts(state)

	for timerList != nil && !timerBefore(currentTime, timerList.WakeTime) {
		t := timerList
		timerList = t.Next
		t.Next = nil
		if t.Handler(t) == SF_RESCHEDULE {
			insertTimer(t)
		}
	}
}

func resetTimers() {
	for timerList != nil {
		t := timerList
		timerList = t.Next
		t.Next = nil
	}
}
