package labcore

import (
	"context"

	"go.uber.org/zap"
)

// Notifier is invoked after a job enters Assigned (including re-entry after
// a rejection). Delivery is an external concern; implementations must not
// block the transition path for long.
type Notifier interface {
	JobAssigned(ctx context.Context, job *Job)
	JobRejected(ctx context.Context, job *Job)
}

// NopNotifier ignores all notifications.
type NopNotifier struct{}

func (NopNotifier) JobAssigned(context.Context, *Job) {}
func (NopNotifier) JobRejected(context.Context, *Job) {}

// LogNotifier records notifications in the service log. Stands in until a
// real delivery channel is wired up.
type LogNotifier struct {
	Log *zap.Logger
}

func (n LogNotifier) JobAssigned(_ context.Context, job *Job) {
	tech := ""
	if job.AssignedTechnician != nil {
		tech = job.AssignedTechnician.String()
	}
	n.Log.Info("job assigned",
		zap.String("job_id", job.ID),
		zap.String("technician", tech),
		zap.String("priority", string(job.Priority)),
	)
}

func (n LogNotifier) JobRejected(_ context.Context, job *Job) {
	tech := ""
	if job.AssignedTechnician != nil {
		tech = job.AssignedTechnician.String()
	}
	n.Log.Info("job rejected, returned for rework",
		zap.String("job_id", job.ID),
		zap.String("technician", tech),
	)
}
