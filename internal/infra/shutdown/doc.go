// Package shutdown runs cleanup hooks when the process is asked to stop.
//
// Long-running commands register hooks with OnShutdown and block in Wait
// (SIGINT/SIGTERM) or WaitContext (signal or context cancellation). Hooks
// run once, newest first, under a shared timeout.
package shutdown
