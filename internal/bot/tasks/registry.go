package tasks

import "context"

// ScheduledTaskFunc is the signature for scheduled tasks. The context
// provided by the scheduler should be respected for cancellation.
type ScheduledTaskFunc func(ctx context.Context) error

// ScheduledTask pairs a task function with its cron schedule. Tasks with
// an empty schedule are registered but never run.
type ScheduledTask struct {
	Schedule string
	Func     ScheduledTaskFunc
}

// RegisterAllTasks initializes and returns all scheduled tasks, keyed by
// name. Schedules come from the configuration.
func RegisterAllTasks(deps TaskDeps, svc *SummaryService) map[string]ScheduledTask {
	registered := map[string]ScheduledTask{
		"chat_summary": {
			Schedule: deps.Config.Summary.Schedule,
			Func:     newChatSummaryTask(deps, svc),
		},
		"db_maintenance": {
			Schedule: deps.Config.Database.MaintenanceSchedule,
			Func:     newDBMaintenanceTask(deps),
		},
	}

	deps.Logger.Info("Initialized scheduled tasks", "count", len(registered))
	return registered
}
