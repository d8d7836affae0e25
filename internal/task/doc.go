// Package task runs generation tasks from admission to a terminal status.
//
// Each admitted task is executed by its own goroutine. Image and video tasks
// lease a tenant credential, open a vendor session with it, record the
// session token, submit the job, record the vendor job id and poll until the
// vendor reports an outcome. Text-to-speech tasks skip the credential and
// the polling entirely.
//
// The token and job id checkpoints are written before the step that depends
// on them, so after a crash Runner.Start can tell from a task's row alone
// whether its submission never happened, may have happened, or certainly
// happened, and resolve it accordingly.
package task
