// Package canonical_test contains property-based tests for canonical form
// stability across construction order and repeated serialization.
package canonical_test

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/Devibnu/talkabiz-sub022/pkg/canonical"
)

// TestCanonicalDeterminism verifies Transform(obj) == Transform(obj) for any
// object built from generated key/value pairs.
func TestCanonicalDeterminism(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("canonical form is deterministic", prop.ForAll(
		func(keys []string, values []string) bool {
			obj := make(map[string]any)
			for i := 0; i < len(keys) && i < len(values); i++ {
				if keys[i] != "" {
					obj[keys[i]] = values[i]
				}
			}

			a, err1 := canonical.Transform(obj)
			b, err2 := canonical.Transform(obj)
			if err1 != nil || err2 != nil {
				return err1 != nil && err2 != nil
			}
			return string(a) == string(b)
		},
		gen.SliceOf(gen.AnyString()),
		gen.SliceOf(gen.AnyString()),
	))

	properties.Property("insertion order does not affect canonical form", prop.ForAll(
		func(keys []string, nums []int64) bool {
			type pair struct {
				k string
				v int64
			}
			var pairs []pair
			seen := make(map[string]bool)
			for i := 0; i < len(keys) && i < len(nums); i++ {
				if keys[i] != "" && !seen[keys[i]] {
					seen[keys[i]] = true
					pairs = append(pairs, pair{keys[i], nums[i]})
				}
			}

			forward := make(map[string]any)
			for _, p := range pairs {
				forward[p.k] = p.v
			}
			reverse := make(map[string]any)
			for i := len(pairs) - 1; i >= 0; i-- {
				reverse[pairs[i].k] = pairs[i].v
			}

			a, err1 := canonical.Transform(forward)
			b, err2 := canonical.Transform(reverse)
			if err1 != nil || err2 != nil {
				return err1 != nil && err2 != nil
			}
			return string(a) == string(b)
		},
		gen.SliceOf(gen.AlphaString()),
		gen.SliceOf(gen.Int64()),
	))

	properties.TestingRun(t)
}
