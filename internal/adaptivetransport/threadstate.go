package adaptivetransport

// The transport keeps the most recent connection observability per task so
// the task registry can attach a final timing/fallback snapshot to the
// task's terminal event. Entries are released by TakeObs; an abandoned task
// leaks at most one small record until its next Dial overwrites it.

func (t *Transport) retainObs(taskID string, obs *ConnectionObservability) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.obsByTask[taskID] = obs
}

// TakeObs returns and removes the last connection observability recorded
// for taskID, or nil when the task never reached the transport.
func (t *Transport) TakeObs(taskID string) *ConnectionObservability {
	t.mu.Lock()
	defer t.mu.Unlock()
	obs := t.obsByTask[taskID]
	delete(t.obsByTask, taskID)
	return obs
}
