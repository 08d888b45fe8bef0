package jobs

import (
	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskRetentionSweep erases audit payloads past statutory retention.
	TaskRetentionSweep = "retention:sweep"
	// TaskChainVerify re-checks the audit hash chain end to end.
	TaskChainVerify = "ledger:verify"
)

// NewRetentionSweepTask constructs the sweep task. The sweep takes no
// parameters: the cutoff is always derived from the wall clock at run
// time so a delayed task never erases too much.
func NewRetentionSweepTask() *asynq.Task {
	return asynq.NewTask(TaskRetentionSweep, nil)
}

// NewChainVerifyTask constructs the full-chain verification task.
func NewChainVerifyTask() *asynq.Task {
	return asynq.NewTask(TaskChainVerify, nil)
}
