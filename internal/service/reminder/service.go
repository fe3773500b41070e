package reminder

import (
	"context"
	"crypto/subtle"
	stderrors "errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/reminder-api/internal/cronsync"
	"github.com/jwalitptl/reminder-api/internal/lock"
	"github.com/jwalitptl/reminder-api/internal/model"
	"github.com/jwalitptl/reminder-api/internal/notify"
	"github.com/jwalitptl/reminder-api/internal/recurrence"
	"github.com/jwalitptl/reminder-api/internal/repository"
	"github.com/jwalitptl/reminder-api/pkg/errors"
	"github.com/jwalitptl/reminder-api/pkg/logger"
	"github.com/jwalitptl/reminder-api/pkg/messaging"
	"github.com/jwalitptl/reminder-api/pkg/metrics"
	"github.com/jwalitptl/reminder-api/pkg/validator"
)

const (
	EventCreated   = "reminder.created"
	EventTriggered = "reminder.triggered"

	eventChannel = "reminders"
)

type Servicer interface {
	Create(ctx context.Context, req *model.CreateReminderRequest) (*model.Reminder, error)
	List(ctx context.Context) ([]*model.Reminder, error)
	Trigger(ctx context.Context, id, key string) ([]notify.Outcome, error)
}

type Dispatcher interface {
	Dispatch(ctx context.Context, r *model.Reminder) []notify.Outcome
}

type Scheduler interface {
	Register(ctx context.Context, req cronsync.RegisterRequest) (int64, error)
	Cancel(ctx context.Context, jobID int64) error
	// Reschedule moves a recurring job when the next occurrence falls on a
	// different calendar day than the job was registered for.
	Reschedule(ctx context.Context, jobID int64, prev, next time.Time, cycle model.CycleType) error
}

type Config struct {
	// Secret authenticates trigger calls.
	Secret string
	// PublicURL overrides the request origin in scheduler callbacks.
	PublicURL string
	// Location is the calendar zone for recurrence and zone-less input.
	Location *time.Location
}

type Service struct {
	repo       repository.ReminderRepository
	dispatcher Dispatcher
	scheduler  Scheduler
	locker     lock.Locker
	broker     messaging.Broker
	validator  validator.Validator
	cfg        Config
	metrics    *metrics.Metrics
	log        *logger.Logger
}

func NewService(
	repo repository.ReminderRepository,
	dispatcher Dispatcher,
	scheduler Scheduler,
	locker lock.Locker,
	broker messaging.Broker,
	m *metrics.Metrics,
	log *logger.Logger,
	cfg Config,
) *Service {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if locker == nil {
		locker = lock.NewLocal()
	}
	if broker == nil {
		broker = messaging.NopBroker{}
	}
	if m == nil {
		m = metrics.New("reminder")
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Service{
		repo:       repo,
		dispatcher: dispatcher,
		scheduler:  scheduler,
		locker:     locker,
		broker:     broker,
		validator:  validator.New(),
		cfg:        cfg,
		metrics:    m,
		log:        log.With("reminder"),
	}
}

// Create stores a new pending reminder and registers it with the external
// scheduler. Registration problems leave the reminder without a job id but
// never fail the call.
func (s *Service) Create(ctx context.Context, req *model.CreateReminderRequest) (*model.Reminder, error) {
	if err := s.validator.Validate(req); err != nil {
		return nil, errors.NewBadRequest(err.Error(), err)
	}

	remindTime, err := model.ParseRemindTime(req.RemindTime, s.cfg.Location)
	if err != nil {
		return nil, errors.NewBadRequest("invalid remind_time", err)
	}

	reminder := &model.Reminder{
		ID:         strings.TrimSpace(req.ID),
		Title:      req.Title,
		Content:    req.Content,
		RemindTime: remindTime,
		CycleType:  req.CycleType.Normalize(),
		Status:     model.StatusPending,
	}
	if reminder.ID == "" {
		reminder.ID = uuid.NewString()
	}
	if link := strings.TrimSpace(req.Link); link != "" {
		reminder.Link = &link
	}

	if err := s.repo.Create(ctx, reminder); err != nil {
		return nil, errors.NewStore("create", err)
	}
	s.metrics.RemindersCreated.Inc()

	s.register(ctx, reminder, req.Origin)
	s.publish(ctx, EventCreated, reminder)

	return reminder, nil
}

func (s *Service) register(ctx context.Context, r *model.Reminder, origin string) {
	if s.scheduler == nil {
		return
	}
	if s.cfg.PublicURL != "" {
		origin = s.cfg.PublicURL
	}

	jobID, err := s.scheduler.Register(ctx, cronsync.RegisterRequest{
		ReminderID: r.ID,
		Title:      r.Title,
		FireAt:     r.RemindTime,
		Cycle:      r.CycleType,
		Origin:     origin,
	})
	if stderrors.Is(err, cronsync.ErrDisabled) {
		s.log.Debug("scheduler sync disabled, reminder will not fire externally", "reminder_id", r.ID)
		return
	}
	if err != nil {
		s.log.Warn("scheduler registration failed", "reminder_id", r.ID, "error", err.Error())
		return
	}

	if err := s.repo.SetCronJobID(ctx, r.ID, jobID); err != nil {
		s.log.Error(err, "failed to store scheduler job id", "reminder_id", r.ID, "job_id", jobID)
		return
	}
	r.CronJobID = &jobID
}

func (s *Service) List(ctx context.Context) ([]*model.Reminder, error) {
	reminders, err := s.repo.List(ctx)
	if err != nil {
		return nil, errors.NewStore("list", err)
	}
	return reminders, nil
}

// Trigger fires a pending reminder. The reminder is claimed (pending to
// sent) before anything is sent, so concurrent or repeated calls for the
// same id notify at most once; losers get NotFound.
//
// Once claimed, the remaining work runs even if the caller goes away. A
// store failure after the claim is returned together with the outcomes
// already gathered.
func (s *Service) Trigger(ctx context.Context, id, key string) ([]notify.Outcome, error) {
	if subtle.ConstantTimeCompare([]byte(key), []byte(s.cfg.Secret)) != 1 {
		s.metrics.Triggers.WithLabelValues("unauthorized").Inc()
		return nil, errors.Unauthorized(nil)
	}

	release, err := s.locker.TryLock(ctx, "reminder:"+id)
	switch {
	case stderrors.Is(err, lock.ErrLocked):
		s.metrics.Triggers.WithLabelValues("in_progress").Inc()
		return nil, errors.NewNotFound("reminder", err)
	case err != nil:
		// The conditional update below still guards the transition.
		s.log.Warn("trigger lock unavailable", "reminder_id", id, "error", err.Error())
	default:
		defer release()
	}

	reminder, err := s.repo.Get(ctx, id)
	if stderrors.Is(err, repository.ErrNotFound) {
		s.metrics.Triggers.WithLabelValues("not_found").Inc()
		return nil, errors.NewNotFound("reminder", err)
	}
	if err != nil {
		return nil, errors.NewStore("get", err)
	}
	if reminder.Status != model.StatusPending {
		s.metrics.Triggers.WithLabelValues("not_pending").Inc()
		return nil, errors.NewNotFound("reminder", nil)
	}

	claimed, err := s.repo.MarkSent(ctx, id)
	if err != nil {
		return nil, errors.NewStore("mark_sent", err)
	}
	if !claimed {
		s.metrics.Triggers.WithLabelValues("not_pending").Inc()
		return nil, errors.NewNotFound("reminder", nil)
	}

	ctx = context.WithoutCancel(ctx)
	outcomes := s.dispatcher.Dispatch(ctx, reminder)

	event := map[string]interface{}{
		"id":            reminder.ID,
		"cycle_type":    reminder.CycleType,
		"notifications": outcomes,
	}

	if next, ok := recurrence.Next(reminder.RemindTime.In(s.cfg.Location), reminder.CycleType); ok {
		if err := s.repo.Reschedule(ctx, id, next); err != nil {
			s.metrics.Triggers.WithLabelValues("store_error").Inc()
			s.log.Error(err, "failed to reschedule reminder", "reminder_id", id)
			return outcomes, errors.NewStore("reschedule", err)
		}
		event["next_remind_time"] = next
		s.log.Info("reminder rescheduled", "reminder_id", id, "next", next)
		if reminder.CronJobID != nil && s.scheduler != nil {
			if err := s.scheduler.Reschedule(ctx, *reminder.CronJobID, reminder.RemindTime, next, reminder.CycleType); err != nil {
				s.log.Warn("scheduler job not moved", "reminder_id", id, "job_id", *reminder.CronJobID, "error", err.Error())
			}
		}
	} else if reminder.CronJobID != nil && s.scheduler != nil {
		if err := s.scheduler.Cancel(ctx, *reminder.CronJobID); err != nil {
			s.log.Warn("scheduler cancellation failed", "reminder_id", id, "job_id", *reminder.CronJobID, "error", err.Error())
		}
	}

	s.metrics.Triggers.WithLabelValues("fired").Inc()
	s.publish(ctx, EventTriggered, event)
	return outcomes, nil
}

func (s *Service) publish(ctx context.Context, eventType string, payload interface{}) {
	msg := messaging.Message{Type: eventType, Payload: payload}
	if err := s.broker.Publish(ctx, eventChannel, msg); err != nil {
		s.log.Warn("failed to publish event", "type", eventType, "error", err.Error())
	}
}
