// Package scheduler drives the minute tick: every trigger reads the live
// settings, walks the job registry in order, asks the gate evaluator about
// each job and hands eligible ones to the runner.
//
// A tick never overlaps a previous tick that is still running, and one job's
// failure (error or panic) never prevents later jobs in the same tick from
// being evaluated.
package scheduler
