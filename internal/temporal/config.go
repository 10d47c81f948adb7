package temporal

import "time"

// DefaultTaskQueue is the Temporal task queue catalog imports are scheduled on.
const DefaultTaskQueue = "CATALOG_IMPORT"

// ImportWorkflowName is the registered name of the import workflow.
const ImportWorkflowName = "ImportWorkflow"

// ImportWorkflowIDPrefix prefixes workflow ids; the job id completes them.
const ImportWorkflowIDPrefix = "catalog-import-"

// DefaultActivityTimeout bounds one whole import run.
const DefaultActivityTimeout = time.Hour

// HeartbeatTimeout is the longest an import may go without a heartbeat.
const HeartbeatTimeout = time.Minute

// HeartbeatInterval is how often a running import heartbeats regardless of batch commits.
const HeartbeatInterval = HeartbeatTimeout / 4

// ImportParams is the input of the import workflow and its activity.
type ImportParams struct {
	JobID string
}

func WorkflowID(jobID string) string {
	return ImportWorkflowIDPrefix + jobID
}
