package persist

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/goliatone/go-formwizard/pkg/fkcontext"
	"github.com/goliatone/go-formwizard/pkg/uischema"
	"github.com/goliatone/go-formwizard/pkg/validation"
)

// FrameKind tells whether a frame collects one record or repeated rows.
type FrameKind string

const (
	FrameRecord FrameKind = "record"
	FrameRows   FrameKind = "rows"
)

// Draft is an unsaved row form of a rows frame.
type Draft struct {
	ID     string `json:"id"`
	Values Record `json:"values"`
}

// Frame is one level of an in-progress section save. Record frames write a
// single row of Table; rows frames collect child rows of Table on behalf of
// the previous entry of Owners.
type Frame struct {
	Kind    FrameKind        `json:"kind"`
	Table   string           `json:"table"`
	Owners  []string         `json:"owners"`
	Title   string           `json:"title,omitempty"`
	Fields  []uischema.Field `json:"fields"`
	ID      int64            `json:"id,omitempty"`
	Rows    []Record         `json:"rows,omitempty"`
	Drafts  []Draft          `json:"drafts,omitempty"`
	MinRows int              `json:"minRows,omitempty"`
	nested  *uischema.RepeatSpec
	pending Record
}

// CanComplete reports whether a rows frame has enough saved rows.
func (f *Frame) CanComplete() bool {
	return f.Kind == FrameRows && len(f.Rows) >= f.MinRows
}

// Owner returns the table a rows frame completes on behalf of.
func (f *Frame) Owner() string {
	if len(f.Owners) < 2 {
		return ""
	}
	return f.Owners[len(f.Owners)-2]
}

// Outcome reports what a flow action achieved. When Done is set the step is
// finished and Table/ID are the completion to signal upward.
type Outcome struct {
	Done     bool   `json:"done"`
	Table    string `json:"table,omitempty"`
	ID       int64  `json:"id,omitempty"`
	Awaiting string `json:"awaiting,omitempty"`
	RowID    int64  `json:"rowId,omitempty"`
}

// Flow drives the save of one step's section through its nested blocks with
// an explicit frame stack. A flow touches the FK context only to fold the key
// of a written record whose nested block has loaded; a failed action leaves
// the context as it was.
type Flow struct {
	adapter *Adapter
	fk      *fkcontext.Context
	stepID  string
	section string
	stack   []*Frame
	done    bool
	owned   bool
}

// NewFlow opens a flow for section of the step writing to table. Repeat
// sections load their saved rows immediately.
func NewFlow(ctx context.Context, adapter *Adapter, fk *fkcontext.Context, stepID, table string, section uischema.Section) (*Flow, error) {
	f := &Flow{adapter: adapter, fk: fk, stepID: stepID, section: section.ID}

	switch body := section.Body.(type) {
	case uischema.Simple:
		f.stack = append(f.stack, &Frame{
			Kind:   FrameRecord,
			Table:  table,
			Owners: []string{table},
			Title:  section.Title,
			Fields: body.Fields,
			nested: body.Nested,
		})
		// A root record frame updates the row already selected for its table
		// unless the form names every business key.
		f.owned = true
	case uischema.Repeat:
		frame, err := f.rowsFrame(ctx, []string{table}, body.Spec, fk)
		if err != nil {
			return nil, sectionError(stepID, section.ID, err)
		}
		f.stack = append(f.stack, frame)
	default:
		return nil, sectionError(stepID, section.ID, fmt.Errorf("persist: section %q has no body", section.ID))
	}
	return f, nil
}

// StepID returns the step the flow belongs to.
func (f *Flow) StepID() string {
	return f.stepID
}

// Done reports whether the flow signalled completion.
func (f *Flow) Done() bool {
	return f.done
}

// Top returns the active frame, or nil once the flow is done.
func (f *Flow) Top() *Frame {
	if len(f.stack) == 0 {
		return nil
	}
	return f.stack[len(f.stack)-1]
}

// Frames returns copies of the open frames from outermost to innermost.
func (f *Flow) Frames() []Frame {
	out := make([]Frame, 0, len(f.stack))
	for _, frame := range f.stack {
		cp := *frame
		cp.Rows = append([]Record(nil), frame.Rows...)
		cp.Drafts = append([]Draft(nil), frame.Drafts...)
		out = append(out, cp)
	}
	return out
}

// Save writes the active record frame. If the frame nests an open repeat
// block, the new key is folded into the FK context and the block becomes the
// active frame; otherwise completion propagates upward.
func (f *Flow) Save(ctx context.Context, form Record) (Outcome, error) {
	frame, err := f.active(FrameRecord)
	if err != nil {
		return Outcome{}, err
	}

	if missing := validation.RequiredFields(frame.Fields, form); len(missing) > 0 {
		return Outcome{}, sectionError(f.stepID, f.section, fmt.Errorf("%w: %v", ErrMissingRequired, missing), missing...)
	}

	values := form.Clone()
	if id, ok := f.recordKey(frame, form); ok {
		values[IDColumn] = id
	}

	id, _, err := f.adapter.Write(ctx, frame.Table, values, f.fk)
	if err != nil {
		return Outcome{}, sectionError(f.stepID, f.section, err)
	}
	frame.ID = id

	if frame.nested != nil {
		// The nested rows are scoped by the record just written.
		next, err := f.rowsFrame(ctx, frame.Owners, *frame.nested, f.fk.Snapshot().With(frame.Table, id))
		if err != nil {
			return Outcome{}, sectionError(f.stepID, f.section, err)
		}
		f.fk.Merge(frame.Table, id)
		f.stack = append(f.stack, next)
		return Outcome{Awaiting: next.Table, RowID: id}, nil
	}

	return f.pop()
}

// AddDraft opens a new unsaved row form on the active rows frame.
func (f *Flow) AddDraft(initial Record) (string, error) {
	frame, err := f.active(FrameRows)
	if err != nil {
		return "", err
	}
	draft := Draft{ID: uuid.NewString(), Values: initial.Clone()}
	frame.Drafts = append(frame.Drafts, draft)
	return draft.ID, nil
}

// DiscardDraft drops an unsaved row form.
func (f *Flow) DiscardDraft(draftID string) error {
	frame, err := f.active(FrameRows)
	if err != nil {
		return err
	}
	idx := draftIndex(frame, draftID)
	if idx < 0 {
		return ErrUnknownDraft
	}
	frame.Drafts = append(frame.Drafts[:idx], frame.Drafts[idx+1:]...)
	return nil
}

// SaveDraft persists one row form. Other drafts are untouched. When the row
// form nests a further repeat block, the row key is folded into the FK
// context and that block becomes active; the row joins the saved list once
// the nested block completes.
func (f *Flow) SaveDraft(ctx context.Context, draftID string, form Record) (Outcome, error) {
	frame, err := f.active(FrameRows)
	if err != nil {
		return Outcome{}, err
	}
	idx := draftIndex(frame, draftID)
	if idx < 0 {
		return Outcome{}, ErrUnknownDraft
	}

	values := frame.Drafts[idx].Values.Clone()
	for key, value := range form {
		values[key] = value
	}
	if missing := validation.RequiredFields(frame.Fields, values); len(missing) > 0 {
		return Outcome{}, sectionError(f.stepID, f.section, fmt.Errorf("%w: %v", ErrMissingRequired, missing), missing...)
	}

	id, record, err := f.adapter.Write(ctx, frame.Table, values, f.fk)
	if err != nil {
		return Outcome{}, sectionError(f.stepID, f.section, err)
	}

	if frame.nested != nil {
		next, err := f.rowsFrame(ctx, frame.Owners, *frame.nested, f.fk.Snapshot().With(frame.Table, id))
		if err != nil {
			// The row exists now; a retry of the draft updates it.
			values[IDColumn] = id
			frame.Drafts[idx].Values = values
			return Outcome{}, sectionError(f.stepID, f.section, err)
		}
		f.fk.Merge(frame.Table, id)
		frame.Drafts = append(frame.Drafts[:idx], frame.Drafts[idx+1:]...)
		frame.pending = record
		f.stack = append(f.stack, next)
		return Outcome{Awaiting: next.Table, RowID: id}, nil
	}

	frame.Drafts = append(frame.Drafts[:idx], frame.Drafts[idx+1:]...)
	frame.Rows = upsertRow(frame.Rows, record)
	return Outcome{RowID: id}, nil
}

// CompleteRows closes the active rows frame. It fails with ErrNoRows until
// the frame holds at least MinRows saved rows.
func (f *Flow) CompleteRows() (Outcome, error) {
	frame, err := f.active(FrameRows)
	if err != nil {
		return Outcome{}, err
	}
	if !frame.CanComplete() {
		return Outcome{}, sectionError(f.stepID, f.section, ErrNoRows)
	}
	if len(f.stack) == 1 {
		if _, ok := f.fk.Get(frame.Owner()); !ok {
			return Outcome{}, sectionError(f.stepID, f.section, ErrOwnerUnresolved)
		}
	}
	return f.pop()
}

// pop removes the active frame and propagates its completion to the frame
// below. Propagation stops at the first frame that still needs input.
func (f *Flow) pop() (Outcome, error) {
	for len(f.stack) > 0 {
		frame := f.stack[len(f.stack)-1]
		f.stack = f.stack[:len(f.stack)-1]

		if len(f.stack) == 0 {
			f.done = true
			if frame.Kind == FrameRecord {
				return Outcome{Done: true, Table: frame.Table, ID: frame.ID}, nil
			}
			owner := frame.Owner()
			id, _ := f.fk.Get(owner)
			return Outcome{Done: true, Table: owner, ID: id}, nil
		}

		parent := f.stack[len(f.stack)-1]
		switch parent.Kind {
		case FrameRecord:
			// The record's nested block completed; the record completes too.
			continue
		case FrameRows:
			if parent.pending != nil {
				parent.Rows = upsertRow(parent.Rows, parent.pending)
				parent.pending = nil
			}
			return Outcome{Table: parent.Table}, nil
		}
	}
	return Outcome{}, ErrFlowDone
}

func (f *Flow) active(kind FrameKind) (*Frame, error) {
	if f.done {
		return nil, ErrFlowDone
	}
	top := f.Top()
	if top == nil {
		return nil, ErrFlowDone
	}
	if top.Kind != kind {
		return nil, fmt.Errorf("%w: active block is %s", ErrWrongFrame, top.Kind)
	}
	return top, nil
}

// recordKey returns the id a record frame's write updates. A form carrying
// every business key is upserted by those keys instead, so changing the key
// of the root record selects or creates another row rather than renaming it.
func (f *Flow) recordKey(frame *Frame, form Record) (int64, bool) {
	if f.adapter.HasBusinessKeys(frame.Table, form) {
		return 0, false
	}
	if frame.ID != 0 {
		return frame.ID, true
	}
	if f.owned && len(f.stack) == 1 {
		return f.fk.Get(frame.Table)
	}
	return 0, false
}

func (f *Flow) rowsFrame(ctx context.Context, owners []string, spec uischema.RepeatSpec, fk fkcontext.Lookup) (*Frame, error) {
	chain := append(append([]string(nil), owners...), spec.Table)
	frame := &Frame{
		Kind:    FrameRows,
		Table:   spec.Table,
		Owners:  chain,
		Title:   spec.Title,
		Fields:  spec.RowFields(),
		MinRows: spec.MinRowCount(),
	}
	if nested, ok := spec.NestedRepeat(); ok {
		frame.nested = nested
	}
	if ctx == nil {
		return nil, errors.New("persist: context is nil")
	}
	rows, err := f.adapter.Rows(ctx, spec.Table, fk)
	if err != nil {
		return nil, err
	}
	frame.Rows = rows
	return frame, nil
}

func draftIndex(frame *Frame, draftID string) int {
	for idx, draft := range frame.Drafts {
		if draft.ID == draftID {
			return idx
		}
	}
	return -1
}

// upsertRow replaces the saved row with the same id or appends.
func upsertRow(rows []Record, record Record) []Record {
	if id, ok := record.ID(); ok {
		for idx, row := range rows {
			if existing, ok := row.ID(); ok && existing == id {
				rows[idx] = record
				return rows
			}
		}
	}
	return append(rows, record)
}
