package wizard

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/goliatone/go-formwizard/pkg/fkcontext"
	"github.com/goliatone/go-formwizard/pkg/persist"
	"github.com/goliatone/go-formwizard/pkg/progress"
	"github.com/goliatone/go-formwizard/pkg/schema"
	"github.com/goliatone/go-formwizard/pkg/steps"
	"github.com/goliatone/go-formwizard/pkg/uischema"
	"github.com/goliatone/go-formwizard/pkg/visibility"
)

var (
	// ErrUnknownStep is returned for a step id the plan does not contain.
	ErrUnknownStep = errors.New("wizard: unknown step")
	// ErrStepLocked is returned when acting on a step that is neither
	// displayable nor editable in the current state.
	ErrStepLocked = errors.New("wizard: step is not editable")
)

// Session composes the plan, FK context, progress machine and persistence
// adapter of one interactive wizard run. All methods are safe for concurrent
// use; calls are serialised and the last write wins.
type Session struct {
	mu sync.Mutex

	id       string
	schema   schema.Config
	ui       uischema.Config
	plan     steps.Plan
	fk       *fkcontext.Context
	machine  *progress.Machine
	adapter  *persist.Adapter
	resolver visibility.Resolver
	explain  bool
	logger   *slog.Logger
	now      func() time.Time

	adapterOptions []persist.Option

	flows      map[string]*persist.Flow
	errs       map[string]*persist.SectionError
	saved      map[string]persist.Record
	// lastActive holds unix nanoseconds so readers never wait on mu.
	lastActive atomic.Int64
}

// New plans the wizard for cfg and ui and returns a session positioned on
// the first step.
func New(cfg schema.Config, ui uischema.Config, collab persist.Collaborator, options ...Option) (*Session, error) {
	if collab == nil {
		return nil, errors.New("wizard: collaborator is required")
	}

	s := &Session{
		schema:   cfg,
		ui:       ui,
		resolver: visibility.Default,
		explain:  true,
		now:      time.Now,
		flows:    make(map[string]*persist.Flow),
		errs:     make(map[string]*persist.SectionError),
		saved:    make(map[string]persist.Record),
	}
	for _, opt := range options {
		if opt == nil {
			continue
		}
		opt(s)
	}
	if s.id == "" {
		s.id = uuid.NewString()
	}
	if s.logger == nil {
		s.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	s.plan = steps.Build(cfg, ui)
	s.fk = fkcontext.New()
	s.machine = progress.New(s.plan.Len())
	adapterOptions := append([]persist.Option{persist.WithLogger(s.logger)}, s.adapterOptions...)
	s.adapter = persist.NewAdapter(collab, cfg, adapterOptions...)
	s.touch()

	for _, omitted := range s.plan.Omitted {
		s.logger.Warn("wizard: table skipped", "table", omitted.Table, "reason", omitted.Reason)
	}
	s.logger.Debug("wizard: session planned", "session", s.id, "steps", s.plan.Len())
	return s, nil
}

// ID returns the session id.
func (s *Session) ID() string {
	return s.id
}

// Plan returns the session's step plan. It never changes for a session.
func (s *Session) Plan() steps.Plan {
	return s.plan
}

// Section returns the UI section a step writes through.
func (s *Session) Section(stepID string) (uischema.Section, bool) {
	step, ok := s.plan.Step(stepID)
	if !ok {
		return uischema.Section{}, false
	}
	return s.section(step)
}

// UI returns the UI configuration the session was planned from.
func (s *Session) UI() uischema.Config {
	return s.ui
}

// LastActive returns the time of the most recent call that touched state. It
// does not wait for a call in progress.
func (s *Session) LastActive() time.Time {
	return time.Unix(0, s.lastActive.Load())
}

// FK returns a snapshot of the FK context.
func (s *Session) FK() fkcontext.Snapshot {
	return s.fk.Snapshot()
}

// Progress returns a copy of the progress state.
func (s *Session) Progress() progress.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.machine.Snapshot()
}

// OnStepSectionSaved writes form through the step's section. Completion is
// applied when the section (and any nested block) is done; otherwise the
// outcome names the block awaiting rows.
func (s *Session) OnStepSectionSaved(ctx context.Context, stepID string, form persist.Record) (persist.Outcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touch()

	step, flow, err := s.openFlow(ctx, stepID)
	if err != nil {
		return persist.Outcome{}, err
	}
	outcome, err := flow.Save(ctx, form)
	if err != nil {
		return persist.Outcome{}, s.fail(stepID, err)
	}
	s.clearError(stepID)
	if outcome.Done {
		s.complete(step, outcome.Table, outcome.ID, form)
	}
	return outcome, nil
}

// SelectRecord completes a step by choosing an existing row of the step's
// table through its first business key. The key is matched under the
// resolved scoping parent when there is one.
func (s *Session) SelectRecord(ctx context.Context, stepID string, businessKey any) (persist.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touch()

	step, err := s.actionable(stepID)
	if err != nil {
		return nil, err
	}
	record, err := s.adapter.Lookup(ctx, step.Table, businessKey, s.fk)
	if err != nil {
		return nil, s.fail(stepID, &persist.SectionError{
			StepID:  stepID,
			Section: s.sectionID(step),
			Message: selectMessage(err),
			Err:     err,
		})
	}
	id, ok := record.ID()
	if !ok {
		return nil, s.fail(stepID, &persist.SectionError{
			StepID:  stepID,
			Section: s.sectionID(step),
			Message: "selected record has no id",
			Err:     fmt.Errorf("wizard: %s record without id", step.Table),
		})
	}
	s.clearError(stepID)
	delete(s.flows, stepID)
	s.complete(step, step.Table, id, record)
	return record, nil
}

// AddRow opens a new unsaved row form on the step's active repeat block.
func (s *Session) AddRow(ctx context.Context, stepID string, initial persist.Record) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touch()

	_, flow, err := s.openFlow(ctx, stepID)
	if err != nil {
		return "", err
	}
	return flow.AddDraft(initial)
}

// DiscardRow drops an unsaved row form.
func (s *Session) DiscardRow(stepID, draftID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touch()

	flow, ok := s.flows[stepID]
	if !ok {
		return persist.ErrUnknownDraft
	}
	return flow.DiscardDraft(draftID)
}

// SaveRow persists one row form of the step's active repeat block.
func (s *Session) SaveRow(ctx context.Context, stepID, draftID string, form persist.Record) (persist.Outcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touch()

	if _, err := s.actionable(stepID); err != nil {
		return persist.Outcome{}, err
	}
	flow, ok := s.flows[stepID]
	if !ok {
		return persist.Outcome{}, persist.ErrUnknownDraft
	}
	outcome, err := flow.SaveDraft(ctx, draftID, form)
	if err != nil {
		return persist.Outcome{}, s.fail(stepID, err)
	}
	s.clearError(stepID)
	return outcome, nil
}

// CompleteRows closes the step's active repeat block. Closing the outermost
// block completes the step on behalf of the owning table.
func (s *Session) CompleteRows(ctx context.Context, stepID string) (persist.Outcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touch()

	step, flow, err := s.openFlow(ctx, stepID)
	if err != nil {
		return persist.Outcome{}, err
	}
	outcome, err := flow.CompleteRows()
	if err != nil {
		return persist.Outcome{}, s.fail(stepID, err)
	}
	s.clearError(stepID)
	if outcome.Done {
		s.complete(step, outcome.Table, outcome.ID, s.saved[stepID])
	}
	return outcome, nil
}

// Blocks opens the step's flow if needed and returns its open frames, so a
// renderer can show saved rows and drafts.
func (s *Session) Blocks(ctx context.Context, stepID string) ([]persist.Frame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, flow, err := s.openFlow(ctx, stepID)
	if err != nil {
		return nil, err
	}
	return flow.Frames(), nil
}

// OnGoToStep re-opens a completed step for editing. Unknown or uncompleted
// steps are rejected without any change.
func (s *Session) OnGoToStep(stepID string) progress.Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touch()

	idx, ok := s.plan.Index(stepID)
	if !ok {
		idx = -1
	}
	result := s.machine.GoToStep(stepID, idx)
	if result.Applied {
		delete(s.flows, stepID)
		s.logger.Debug("wizard: editing step", "session", s.id, "step", stepID)
	}
	return result
}

// OnGoBack returns to the previous history entry.
func (s *Session) OnGoBack() progress.Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touch()

	return s.machine.GoBack()
}

// OnReset restarts a finished wizard, clearing the FK context and every
// per-step record.
func (s *Session) OnReset() progress.Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touch()

	result := s.machine.Reset()
	if !result.Applied {
		return result
	}
	s.fk.Reset()
	s.flows = make(map[string]*persist.Flow)
	s.errs = make(map[string]*persist.SectionError)
	s.saved = make(map[string]persist.Record)
	s.logger.Info("wizard: session reset", "session", s.id)
	return result
}

// BusinessKeyOptions returns the suggestions for the step's table, scoped by
// the resolved parent when one applies.
func (s *Session) BusinessKeyOptions(ctx context.Context, stepID string) ([]persist.KeyOption, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	step, ok := s.plan.Step(stepID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownStep, stepID)
	}
	return s.adapter.KeyOptions(ctx, step.Table, s.fk)
}

// RelatedRows returns the saved rows of the step's table under the resolved
// scoping parent.
func (s *Session) RelatedRows(ctx context.Context, stepID string) ([]persist.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	step, ok := s.plan.Step(stepID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownStep, stepID)
	}
	return s.adapter.Rows(ctx, step.Table, s.fk)
}

// complete applies the completion transition: the key is merged into the FK
// context and the step is marked done in the same critical section.
func (s *Session) complete(step steps.Step, table string, id int64, values persist.Record) {
	version := s.fk.Merge(table, id)
	s.machine.Complete(step.ID)
	delete(s.flows, step.ID)
	if values != nil {
		s.saved[step.ID] = values.Clone()
	}
	s.logger.Info("wizard: step completed",
		"session", s.id,
		"step", step.ID,
		"table", table,
		"id", id,
		"fk_version", version,
	)
}

func (s *Session) openFlow(ctx context.Context, stepID string) (steps.Step, *persist.Flow, error) {
	step, err := s.actionable(stepID)
	if err != nil {
		return steps.Step{}, nil, err
	}
	if flow, ok := s.flows[stepID]; ok && !flow.Done() {
		return step, flow, nil
	}
	section, ok := s.section(step)
	if !ok {
		return steps.Step{}, nil, fmt.Errorf("%w: %s has no section", ErrUnknownStep, stepID)
	}
	flow, err := persist.NewFlow(ctx, s.adapter, s.fk, step.ID, step.Table, section)
	if err != nil {
		return steps.Step{}, nil, s.fail(stepID, err)
	}
	s.flows[stepID] = flow
	return step, flow, nil
}

// actionable resolves stepID and checks the step is displayable and not
// rendered read-only.
func (s *Session) actionable(stepID string) (steps.Step, error) {
	idx, ok := s.plan.Index(stepID)
	if !ok {
		return steps.Step{}, fmt.Errorf("%w: %s", ErrUnknownStep, stepID)
	}
	step, _ := s.plan.At(idx)
	current := s.machine.Current()
	if !visibility.Displayable(s.resolver, idx, current, s.input()) {
		return steps.Step{}, fmt.Errorf("%w: %s is hidden", ErrStepLocked, stepID)
	}
	if s.machine.Disabled(stepID, s.currentStepID()) {
		return steps.Step{}, fmt.Errorf("%w: %s is completed", ErrStepLocked, stepID)
	}
	return step, nil
}

func (s *Session) section(step steps.Step) (uischema.Section, bool) {
	screen, ok := s.ui.Screen(step.ScreenIndex)
	if !ok || step.SectionIndex < 0 || step.SectionIndex >= len(screen.Sections) {
		return uischema.Section{}, false
	}
	return screen.Sections[step.SectionIndex], true
}

func (s *Session) sectionID(step steps.Step) string {
	if section, ok := s.section(step); ok {
		return section.ID
	}
	return ""
}

func (s *Session) currentStepID() string {
	if step, ok := s.plan.At(s.machine.Current()); ok {
		return step.ID
	}
	return ""
}

func (s *Session) input() visibility.Input {
	return visibility.Input{
		Steps:     s.plan.Steps,
		Schema:    s.schema,
		FK:        s.fk.Snapshot(),
		Completed: s.machine.Completed(),
	}
}

// fail records section errors against the step and returns err unchanged.
func (s *Session) fail(stepID string, err error) error {
	var sectionErr *persist.SectionError
	if errors.As(err, &sectionErr) {
		s.errs[stepID] = sectionErr
		s.logger.Warn("wizard: section failed", "session", s.id, "step", stepID, "error", err)
	}
	return err
}

func (s *Session) clearError(stepID string) {
	delete(s.errs, stepID)
}

func (s *Session) touch() {
	s.lastActive.Store(s.now().UnixNano())
}

func selectMessage(err error) string {
	if errors.Is(err, persist.ErrNotFound) {
		return "no record matches that key"
	}
	return "could not load the selected record"
}
