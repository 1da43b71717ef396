package progress_test

import (
	"fmt"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/goliatone/go-formwizard/pkg/progress"
)

func TestProperty_HistoryReplaysInReverse(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	// ops: values < 0 complete the current step; values >= 0 jump to that
	// completed index when legal.
	properties.Property("back walks the pushed indices in reverse", prop.ForAll(
		func(ops []int) bool {
			const total = 6
			m := progress.New(total)
			ids := func(idx int) string { return fmt.Sprintf("s%d", idx) }

			for _, op := range ops {
				if op < 0 {
					if m.Finished() {
						continue
					}
					m.Complete(ids(m.Current()))
					continue
				}
				m.GoToStep(ids(op%total), op%total)
			}

			history := m.Snapshot().History
			for i := len(history) - 1; i > 0; i-- {
				if m.Current() != history[i] {
					return false
				}
				if !m.GoBack().Applied {
					return false
				}
			}
			return m.Current() == 0 && !m.GoBack().Applied
		},
		gen.SliceOf(gen.IntRange(-3, 8)),
	))

	properties.Property("every completion pushes current+1", prop.ForAll(
		func(n int) bool {
			m := progress.New(n)
			for i := 0; i < n; i++ {
				before := len(m.Snapshot().History)
				m.Complete(fmt.Sprintf("s%d", i))
				// revisit: jump back and complete again, still pushing
				m.GoToStep(fmt.Sprintf("s%d", i), i)
				m.Complete(fmt.Sprintf("s%d", i))
				state := m.Snapshot()
				if len(state.History) != before+3 || state.History[len(state.History)-1] != i+1 {
					return false
				}
			}
			return m.Finished() && len(m.Snapshot().Completed) == n
		},
		gen.IntRange(1, 10),
	))

	properties.TestingRun(t)
}
