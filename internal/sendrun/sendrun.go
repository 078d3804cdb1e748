// Package sendrun drives one streamed send or preview against the backend:
// it opens the status feed, folds every line into a stream.Progress, and
// records the run and its lines in the history store.
package sendrun

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"outreach/internal/model"
	"outreach/internal/stream"
)

// DefaultBatch is how many lines are buffered before they are recorded.
const DefaultBatch = 25

// ErrClientGone is returned by a Stream callback whose reader went away. The
// run is recorded as canceled rather than failed.
var ErrClientGone = errors.New("sendrun: client went away")

// Sender opens the backend's status stream.
type Sender interface {
	SendEmails(ctx context.Context, req model.SendRequest) (io.ReadCloser, error)
}

// Recorder persists runs. *store.SQLiteStore implements it.
type Recorder interface {
	CreateRun(ctx context.Context, r model.SendRun) error
	AppendEvents(ctx context.Context, events []model.RunEvent) error
	FinishRun(ctx context.Context, r model.SendRun) error
}

// Update is handed to the caller after each line is applied. The counters
// are the totals so far.
type Update struct {
	Seq       int
	Event     stream.Event
	Effect    stream.Effect
	Total     int
	Processed int
	Sent      int
	Failed    int
	Remaining int // zero while Total is unknown
}

// Result is the outcome of a finished run.
type Result struct {
	Run     model.SendRun
	Errors  []string
	Log     []string
	Preview []model.Row
}

// Runner starts runs. Recorder may be nil, in which case nothing is stored.
type Runner struct {
	sender   Sender
	recorder Recorder
	logger   *zap.Logger
	batch    int
	now      func() time.Time
}

// New returns a Runner.
func New(sender Sender, recorder Recorder, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{sender: sender, recorder: recorder, logger: logger, batch: DefaultBatch, now: time.Now}
}

// Run is a started run whose feed has not been read yet.
type Run struct {
	r      *Runner
	body   io.ReadCloser
	run    model.SendRun
	record bool
	log    *zap.Logger
}

// Start opens the feed for req. Errors returned here happen before anything
// was streamed or recorded.
func (r *Runner) Start(ctx context.Context, req model.SendRequest) (*Run, error) {
	body, err := r.sender.SendEmails(ctx, req)
	if err != nil {
		return nil, err
	}
	run := model.SendRun{
		ID:        uuid.NewString(),
		Email:     req.Email,
		SheetURL:  req.SheetURL,
		Preview:   !req.Confirmed,
		StartedAt: r.now().UTC(),
		Status:    model.RunRunning,
	}
	log := r.logger.With(zap.String("run_id", run.ID), zap.Bool("preview", run.Preview))

	record := r.recorder != nil
	if record {
		if err := r.recorder.CreateRun(context.WithoutCancel(ctx), run); err != nil {
			log.Error("create run", zap.Error(err))
			record = false
		}
	}
	log.Info("send stream started")
	return &Run{r: r, body: body, run: run, record: record, log: log}, nil
}

// ID is the run's history id.
func (s *Run) ID() string { return s.run.ID }

// Stream reads the feed to the end, calling fn after each line. It always
// closes the feed and finishes the run; the returned error is the one that
// stopped the feed early, if any, and is already reflected in the run status.
// History writes are not tied to ctx so a cancelled run is still recorded.
func (s *Run) Stream(ctx context.Context, fn func(Update) error) (Result, error) {
	defer s.body.Close()
	dbCtx := context.WithoutCancel(ctx)

	var (
		progress stream.Progress
		pending  []model.RunEvent
		seq      int
	)
	flush := func() {
		if !s.record || len(pending) == 0 {
			return
		}
		if err := s.r.recorder.AppendEvents(dbCtx, pending); err != nil {
			s.log.Warn("record run events", zap.Error(err))
		}
		pending = pending[:0]
	}

	err := stream.Consume(ctx, s.body, func(ev stream.Event) error {
		effect := progress.Apply(ev)
		seq++
		msg := ev.Message
		if msg == "" {
			msg = ev.Raw
		}
		pending = append(pending, model.RunEvent{
			RunID:     s.run.ID,
			Seq:       seq,
			Type:      string(ev.Type),
			Message:   msg,
			CreatedAt: s.r.now().UTC(),
		})
		if len(pending) >= s.r.batch {
			flush()
		}
		if fn == nil {
			return nil
		}
		return fn(Update{
			Seq:       seq,
			Event:     ev,
			Effect:    effect,
			Total:     progress.Total,
			Processed: progress.Processed,
			Sent:      progress.Sent,
			Failed:    progress.Failed,
			Remaining: progress.Remaining(),
		})
	}, stream.WithLogger(s.log))
	flush()
	progress.Finish()

	run := s.run
	run.FinishedAt = s.r.now().UTC()
	run.Total = progress.Total
	run.Processed = progress.Processed
	run.Sent = progress.Sent
	run.Failed = progress.Failed
	switch {
	case err == nil:
		run.Status = model.RunCompleted
	case ctx.Err() != nil || errors.Is(err, context.Canceled) || errors.Is(err, ErrClientGone):
		run.Status = model.RunCanceled
	default:
		run.Status = model.RunFailed
		progress.Errors = append(progress.Errors, fmt.Sprintf("stream interrupted: %v", err))
	}
	if s.record {
		if ferr := s.r.recorder.FinishRun(dbCtx, run); ferr != nil {
			s.log.Error("finish run", zap.Error(ferr))
		}
	}
	s.log.Info("send stream finished",
		zap.String("status", run.Status),
		zap.Int("lines", seq),
		zap.Int("sent", run.Sent),
		zap.Int("failed", run.Failed),
		zap.NamedError("stream_error", err))

	return Result{Run: run, Errors: progress.Errors, Log: progress.Log, Preview: progress.Preview}, err
}
