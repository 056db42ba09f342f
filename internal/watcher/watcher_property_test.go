//go:build property

package watcher

import (
	"fmt"
	"sort"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func TestCoalesceProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.Rng.Seed(9876)
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	toEvents := func(ids []int) []ChangeEvent {
		events := make([]ChangeEvent, len(ids))
		for i, id := range ids {
			events[i] = ChangeEvent{Path: fmt.Sprintf("/src/file%d.scss", id), Size: int64(i)}
		}
		return events
	}

	properties.Property("one sorted event per path", prop.ForAll(
		func(ids []int) bool {
			out := Coalesce(toEvents(ids))

			unique := make(map[string]bool)
			for _, id := range ids {
				unique[fmt.Sprintf("/src/file%d.scss", id)] = true
			}
			if len(out) != len(unique) {
				return false
			}
			return sort.SliceIsSorted(out, func(i, j int) bool { return out[i].Path < out[j].Path })
		},
		gen.SliceOf(gen.IntRange(0, 20)),
	))

	properties.Property("the last event for a path wins", prop.ForAll(
		func(ids []int) bool {
			events := toEvents(ids)
			last := make(map[string]int64)
			for _, e := range events {
				last[e.Path] = e.Size
			}
			for _, e := range Coalesce(events) {
				if last[e.Path] != e.Size {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.IntRange(0, 20)),
	))

	properties.TestingRun(t)
}
