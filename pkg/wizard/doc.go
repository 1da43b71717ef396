// Package wizard is the composition root of a wizard run.
//
// A Session plans the steps once, keeps the FK context and progress machine
// together, and exposes the handlers a renderer drives: section saves, record
// selection, repeat-row editing, jump-to-edit, back and reset. View returns
// the render state with visibility re-evaluated on every call.
//
//	session, err := wizard.New(cfg, ui, store)
//	if err != nil {
//		return err
//	}
//	if _, err := session.OnStepSectionSaved(ctx, "lot_0", persist.Record{"lot_code": "L-1"}); err != nil {
//		return err
//	}
//	view := session.View()
package wizard
