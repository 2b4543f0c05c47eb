// Package gitops wraps go-git with the blocking, cancelable, progress-reporting
// operations the task registry dispatches: clone, fetch, push, plus the local
// repository commands (init, add, commit, branch, checkout, tag, remote
// management, worktrees, status queries).
//
// Every network operation accepts an Options value carrying the interrupt
// flag and progress callback; cancellation is cooperative and observed at
// progress boundaries. Errors returned by exported functions are classified
// *classerr.TaskError values.
package gitops
