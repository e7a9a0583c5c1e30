package proximity

import (
	"fmt"

	"github.com/openrentals/rentals-backend/internal/geo"
	"github.com/openrentals/rentals-backend/internal/refdata"
	"github.com/paulmach/orb"
	"gorm.io/gorm"
)

// Filter is the conjunction of its constraints. Each constraint is checked
// on its own: two constraints on the same kind never share a match.
type Filter struct {
	constraints []Constraint
}

func Compile(cs []Constraint) Filter {
	var f Filter
	for _, c := range cs {
		if c.Valid() {
			f.constraints = append(f.constraints, c)
		}
	}
	return f
}

func (f Filter) Empty() bool { return len(f.constraints) == 0 }

func (f Filter) Constraints() []Constraint { return f.constraints }

// Match evaluates the filter against a snapshot in memory.
func (f Filter) Match(snap *geo.Snapshot, p orb.Point) bool {
	for _, c := range f.constraints {
		if !snap.Any(c.Kind, p, c.Radius) {
			return false
		}
	}
	return true
}

// Scope adds one EXISTS predicate per constraint to a query over a table
// whose geography column is named by location. Each subquery gets its own
// alias and bind parameter. Distances use the sphere so they agree with Match.
func (f Filter) Scope(location string) func(*gorm.DB) *gorm.DB {
	return func(tx *gorm.DB) *gorm.DB {
		for i, c := range f.constraints {
			alias := fmt.Sprintf("poi_%d", i)
			tx = tx.Where(fmt.Sprintf(
				"EXISTS (SELECT 1 FROM %s AS %s WHERE ST_DWithin(%s.geometry, %s, ?, false))",
				refdata.TableFor(c.Kind), alias, alias, location,
			), c.Radius)
		}
		return tx
	}
}
