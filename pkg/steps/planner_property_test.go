package steps_test

import (
	"fmt"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/goliatone/go-formwizard/pkg/schema"
	"github.com/goliatone/go-formwizard/pkg/steps"
	"github.com/goliatone/go-formwizard/pkg/uischema"
)

// randomConfig builds a sequence of n tables. Bit i of screenMask decides
// whether table i has a screen; sectionCounts[i] sets how many sections it
// declares. Screens are appended in reverse so screen order never matches
// sequence order by accident.
func randomConfig(n int, screenMask uint32, sectionCounts []int) (schema.Config, uischema.Config) {
	cfg := schema.Config{Tables: make(map[string]schema.TableMeta, n)}
	var ui uischema.Config
	for i := 0; i < n; i++ {
		table := fmt.Sprintf("t%d", i)
		cfg.Sequence = append(cfg.Sequence, table)
		cfg.Tables[table] = schema.TableMeta{Columns: []string{"code"}}
	}
	for i := n - 1; i >= 0; i-- {
		if screenMask&(1<<uint(i)) == 0 {
			continue
		}
		screen := uischema.Screen{ID: fmt.Sprintf("s%d", i), Table: fmt.Sprintf("t%d", i)}
		for s := 0; s < sectionCounts[i]; s++ {
			screen.Sections = append(screen.Sections, uischema.Section{
				ID:                   fmt.Sprintf("s%d_%d", i, s),
				IsBusinessKeySection: s == 0,
				Body:                 uischema.Simple{Fields: []uischema.Field{{Name: "code"}}},
			})
		}
		ui.Screens = append(ui.Screens, screen)
	}
	return cfg, ui
}

func TestProperty_PlannerPreservesSequenceOrder(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("steps never move backwards through the sequence", prop.ForAll(
		func(n int, mask uint32, counts []int) bool {
			cfg, ui := randomConfig(n, mask, counts)
			plan := steps.Build(cfg, ui)

			last := -1
			for _, step := range plan.Steps {
				pos := cfg.SequenceIndex(step.Table)
				if pos < last {
					return false
				}
				last = pos
			}
			return true
		},
		gen.IntRange(1, 8),
		gen.UInt32(),
		gen.SliceOfN(8, gen.IntRange(0, 4)),
	))

	properties.Property("every sequence table is either stepped or omitted", prop.ForAll(
		func(n int, mask uint32, counts []int) bool {
			cfg, ui := randomConfig(n, mask, counts)
			plan := steps.Build(cfg, ui)

			for pos, table := range cfg.Sequence {
				_, omitted := plan.WasOmitted(table)
				_, first := steps.FirstStepOf(plan.Steps, table)
				if omitted == first {
					return false
				}
				if pos > 0 && first {
					if _, ok := plan.Step(steps.TableStepID(table)); !ok {
						return false
					}
				}
			}
			return true
		},
		gen.IntRange(1, 8),
		gen.UInt32(),
		gen.SliceOfN(8, gen.IntRange(0, 4)),
	))

	properties.Property("root table emits one step per section", prop.ForAll(
		func(n int, counts []int) bool {
			cfg, ui := randomConfig(n, ^uint32(0), counts)
			plan := steps.Build(cfg, ui)

			rootSteps := 0
			for _, step := range plan.Steps {
				if step.Table == cfg.Root() {
					if step.Kind != steps.KindSection {
						return false
					}
					rootSteps++
				}
			}
			return rootSteps == counts[0]
		},
		gen.IntRange(1, 8),
		gen.SliceOfN(8, gen.IntRange(0, 4)),
	))

	properties.TestingRun(t)
}
