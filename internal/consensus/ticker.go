package consensus

import (
	"time"

	"github.com/reimint/reimint/internal/consensus/cstypes"
	"github.com/reimint/reimint/libs/log"
)

// timeoutInfo is pushed onto the TimeoutTicker's tock channel when a
// scheduled timeout fires. It is also the shape stored in the WAL.
type timeoutInfo struct {
	Duration time.Duration
	Height   uint64
	Round    int32
	Step     cstypes.RoundStepType
}

func (ti timeoutInfo) String() string {
	return ti.Step.String()
}

// TimeoutTicker is a scheduler holding a single pending (height, round,
// step, duration) slot: scheduling a new timeout cancels any
// outstanding one.
type TimeoutTicker interface {
	Start() error
	Stop() error
	Chan() <-chan timeoutInfo
	ScheduleTimeout(ti timeoutInfo)
	SetLogger(log.Logger)
}

type timeoutTicker struct {
	logger log.Logger

	timer    *time.Timer
	tickChan chan timeoutInfo
	tockChan chan timeoutInfo
	stopChan chan struct{}
	stopped  bool
}

// NewTimeoutTicker constructs a TimeoutTicker whose timer starts
// disarmed (stopped immediately after creation, like cometbft's).
func NewTimeoutTicker() TimeoutTicker {
	tt := &timeoutTicker{
		logger:   log.NewNopLogger(),
		timer:    time.NewTimer(0),
		tickChan: make(chan timeoutInfo, 10),
		tockChan: make(chan timeoutInfo, 10),
		stopChan: make(chan struct{}),
	}
	if !tt.timer.Stop() {
		<-tt.timer.C
	}
	return tt
}

func (t *timeoutTicker) SetLogger(l log.Logger) { t.logger = l }

func (t *timeoutTicker) Start() error {
	go t.timeoutRoutine()
	return nil
}

func (t *timeoutTicker) Stop() error {
	if t.stopped {
		return nil
	}
	t.stopped = true
	close(t.stopChan)
	return nil
}

func (t *timeoutTicker) Chan() <-chan timeoutInfo {
	return t.tockChan
}

// ScheduleTimeout enqueues a new timeout request, replacing whatever was
// pending.
func (t *timeoutTicker) ScheduleTimeout(ti timeoutInfo) {
	t.tickChan <- ti
}

// shouldSkipTick reports whether an arriving tick is stale relative to
// the timeout we are currently (or most recently were) waiting on: a
// lower height, or same height and lower round, or same height/round and
// an earlier-or-equal step never needs a fresh timer.
func shouldSkipTick(oldTi, newTi timeoutInfo) bool {
	return newTi.Height < oldTi.Height ||
		(newTi.Height == oldTi.Height && newTi.Round < oldTi.Round) ||
		(newTi.Height == oldTi.Height && newTi.Round == oldTi.Round && newTi.Step != 0 && newTi.Step <= oldTi.Step)
}

func (t *timeoutTicker) timeoutRoutine() {
	t.logger.Debug("starting timeout routine")
	var ti timeoutInfo
	for {
		select {
		case newti := <-t.tickChan:
			t.logger.Debug("received tick", "old_ti", ti, "new_ti", newti)

			if shouldSkipTick(ti, newti) {
				t.logger.Debug("ignoring tick due to duplicate")
				continue
			}

			if !t.timer.Stop() {
				select {
				case <-t.timer.C:
				default:
				}
			}
			ti = newti
			t.timer.Reset(ti.Duration)

		case <-t.timer.C:
			t.logger.Debug("timed out", "dur", ti.Duration, "height", ti.Height, "round", ti.Round, "step", ti.Step)
			tock := ti
			go func() { t.tockChan <- tock }()

		case <-t.stopChan:
			return
		}
	}
}
