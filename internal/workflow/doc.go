// Package workflow defines workflow definitions and the runner that executes
// their steps sequentially with pause, resume and reset support.
package workflow
