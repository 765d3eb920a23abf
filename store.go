package labcore

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Store is the durable persistence collaborator for jobs. The registry
// writes through it before any in-memory mutation becomes visible, so a
// failed write leaves the job unchanged.
type Store interface {
	SaveJob(ctx context.Context, job *Job) error
	LoadJobs(ctx context.Context) ([]*Job, error)
}

// MemoryStore keeps jobs and audit events in process memory. Used by tests
// and the example; it also serves as an AuditStore.
type MemoryStore struct {
	mu    sync.Mutex
	jobs  map[string]*Job
	audit []AuditEvent
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{jobs: make(map[string]*Job)}
}

func (s *MemoryStore) SaveJob(_ context.Context, job *Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = job.Clone()
	return nil
}

func (s *MemoryStore) LoadJobs(_ context.Context) ([]*Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Job, 0, len(s.jobs))
	for _, j := range s.jobs {
		out = append(out, j.Clone())
	}
	return out, nil
}

func (s *MemoryStore) AppendAudit(_ context.Context, ev AuditEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.audit = append(s.audit, ev)
	return nil
}

// AuditEvents returns a snapshot of the persisted audit trail.
func (s *MemoryStore) AuditEvents() []AuditEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]AuditEvent, len(s.audit))
	copy(out, s.audit)
	return out
}

// jobRecord is the jobs table row.
type jobRecord struct {
	ID                 string  `gorm:"primaryKey"`
	ClientRef          string  `gorm:"not null;index"`
	Priority           string  `gorm:"not null"`
	AssignedTechnician *string `gorm:"index"`
	ResultsRef         string
	CreatedAt          time.Time `gorm:"not null;index"`
	UpdatedAt          time.Time
}

func (jobRecord) TableName() string { return "jobs" }

// transitionRecord is one history entry. Rows are insert-only; Seq is the
// zero-based position within the job's history.
type transitionRecord struct {
	ID        uint   `gorm:"primaryKey;autoIncrement"`
	JobID     string `gorm:"index:idx_transitions_job_seq,unique;not null"`
	Seq       int    `gorm:"index:idx_transitions_job_seq,unique;not null"`
	FromState string `gorm:"not null"`
	ToState   string `gorm:"not null"`
	ActorID   string `gorm:"not null;index"`
	ActorRole string `gorm:"not null"`
	Note      string
	At        time.Time `gorm:"not null"`
}

func (transitionRecord) TableName() string { return "job_transitions" }

// auditRecord is the persisted audit event. Insert-only.
type auditRecord struct {
	ID        string `gorm:"primaryKey"`
	Type      string `gorm:"not null;index"`
	ActorID   string `gorm:"not null;index"`
	ActorRole string `gorm:"not null"`
	Subject   string `gorm:"not null;index"`
	Outcome   string `gorm:"not null"`
	Reason    string
	At        time.Time `gorm:"not null;index"`
}

func (auditRecord) TableName() string { return "audit_events" }

// GormStore persists jobs and audit events through GORM.
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB, autoMigrate bool) (*GormStore, error) {
	if db == nil {
		return nil, fmt.Errorf("%w: gorm store requires a database handle", ErrConfiguration)
	}
	if autoMigrate {
		if err := db.AutoMigrate(&jobRecord{}, &transitionRecord{}, &auditRecord{}); err != nil {
			return nil, fmt.Errorf("auto-migrating job tables: %w", err)
		}
	}
	return &GormStore{db: db}, nil
}

func (s *GormStore) SaveJob(ctx context.Context, job *Job) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		rec := jobRecord{
			ID:         job.ID,
			ClientRef:  job.ClientRef,
			Priority:   string(job.Priority),
			ResultsRef: job.ResultsRef,
			CreatedAt:  job.CreatedAt,
		}
		if job.AssignedTechnician != nil {
			t := job.AssignedTechnician.String()
			rec.AssignedTechnician = &t
		}
		if err := tx.Save(&rec).Error; err != nil {
			return fmt.Errorf("saving job %s: %w", job.ID, err)
		}

		var persisted int64
		if err := tx.Model(&transitionRecord{}).Where("job_id = ?", job.ID).Count(&persisted).Error; err != nil {
			return fmt.Errorf("counting transitions for %s: %w", job.ID, err)
		}
		for i := int(persisted); i < len(job.History); i++ {
			t := job.History[i]
			row := transitionRecord{
				JobID:     job.ID,
				Seq:       i,
				FromState: string(t.From),
				ToState:   string(t.To),
				ActorID:   t.ActorID.String(),
				ActorRole: string(t.ActorRole),
				Note:      t.Note,
				At:        t.At,
			}
			if err := tx.Create(&row).Error; err != nil {
				return fmt.Errorf("appending transition %d for %s: %w", i, job.ID, err)
			}
		}
		return nil
	})
}

func (s *GormStore) LoadJobs(ctx context.Context) ([]*Job, error) {
	var recs []jobRecord
	if err := s.db.WithContext(ctx).Order("created_at").Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("loading jobs: %w", err)
	}

	var rows []transitionRecord
	if err := s.db.WithContext(ctx).Order("job_id, seq").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("loading transitions: %w", err)
	}
	history := make(map[string][]Transition, len(recs))
	for _, row := range rows {
		actorID, err := uuid.Parse(row.ActorID)
		if err != nil {
			return nil, fmt.Errorf("transition %d of job %s: bad actor id: %w", row.Seq, row.JobID, err)
		}
		history[row.JobID] = append(history[row.JobID], Transition{
			From:      JobState(row.FromState),
			To:        JobState(row.ToState),
			ActorID:   actorID,
			ActorRole: Role(row.ActorRole),
			At:        row.At,
			Note:      row.Note,
		})
	}

	jobs := make([]*Job, 0, len(recs))
	for _, rec := range recs {
		job := &Job{
			ID:         rec.ID,
			ClientRef:  rec.ClientRef,
			Priority:   Priority(rec.Priority),
			ResultsRef: rec.ResultsRef,
			CreatedAt:  rec.CreatedAt,
			History:    history[rec.ID],
		}
		if rec.AssignedTechnician != nil {
			t, err := uuid.Parse(*rec.AssignedTechnician)
			if err != nil {
				return nil, fmt.Errorf("job %s: bad technician id: %w", rec.ID, err)
			}
			job.AssignedTechnician = &t
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

func (s *GormStore) AppendAudit(ctx context.Context, ev AuditEvent) error {
	row := auditRecord{
		ID:        ev.ID.String(),
		Type:      string(ev.Type),
		ActorID:   ev.ActorID.String(),
		ActorRole: string(ev.ActorRole),
		Subject:   ev.Subject,
		Outcome:   ev.Outcome,
		Reason:    ev.Reason,
		At:        ev.At,
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("appending audit event: %w", err)
	}
	return nil
}
