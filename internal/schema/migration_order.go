package schema

import (
	"regexp"
	"sort"

	"github.com/stonescriptdb/gateway/internal/gatewayerr"
)

var (
	migrationCreateTableRe = regexp.MustCompile(`(?i)CREATE\s+TABLE\s+(?:IF\s+NOT\s+EXISTS\s+)?"?(\w+)"?`)
	migrationReferencesRe  = regexp.MustCompile(`(?i)REFERENCES\s+"?(\w+)"?`)
)

// migrationTables lists the tables a migration file creates and the tables
// it references via foreign key, found by scanning its raw SQL text rather
// than by fully parsing it, since a migration is free-form DDL and not
// necessarily one declarative CREATE TABLE statement.
func migrationTables(body string) (creates []string, references []string) {
	for _, m := range migrationCreateTableRe.FindAllStringSubmatch(body, -1) {
		creates = append(creates, m[1])
	}
	for _, m := range migrationReferencesRe.FindAllStringSubmatch(body, -1) {
		references = append(references, m[1])
	}
	return creates, references
}

// OrderMigrations reorders migrations so that any migration referencing a
// table is applied after the migration that creates it, breaking ties by
// filename. Migrations whose referenced table is not defined by any
// migration in the set (an already-existing table, or one from the
// declarative tables/ bundle) are left unconstrained. A cycle between
// migrations is reported as gatewayerr.KindCyclicSchema.
func OrderMigrations(migrations []Migration) ([]Migration, error) {
	if len(migrations) <= 1 {
		return migrations, nil
	}

	byIndex := make([]Migration, len(migrations))
	copy(byIndex, migrations)
	sort.Slice(byIndex, func(i, j int) bool { return byIndex[i].Filename < byIndex[j].Filename })

	tableOwner := map[string]int{}
	migrationRefs := make([][]string, len(byIndex))
	for i, m := range byIndex {
		creates, refs := migrationTables(m.BodyText)
		for _, t := range creates {
			tableOwner[t] = i
		}
		migrationRefs[i] = refs
	}

	deps := make([]map[int]bool, len(byIndex))
	for i := range deps {
		deps[i] = map[int]bool{}
	}
	for i, refs := range migrationRefs {
		for _, t := range refs {
			if owner, ok := tableOwner[t]; ok && owner != i {
				deps[i][owner] = true
			}
		}
	}

	reverse := make([][]int, len(byIndex))
	inDegree := make([]int, len(byIndex))
	for i, d := range deps {
		inDegree[i] = len(d)
		for dep := range d {
			reverse[dep] = append(reverse[dep], i)
		}
	}

	var queue []int
	for i, deg := range inDegree {
		if deg == 0 {
			queue = append(queue, i)
		}
	}
	sort.Sort(sort.Reverse(sort.IntSlice(queue)))

	var order []int
	for len(queue) > 0 {
		idx := queue[len(queue)-1]
		queue = queue[:len(queue)-1]
		order = append(order, idx)

		dependents := append([]int(nil), reverse[idx]...)
		sort.Ints(dependents)
		for _, dep := range dependents {
			inDegree[dep]--
			if inDegree[dep] == 0 {
				queue = append(queue, dep)
			}
		}
		sort.Sort(sort.Reverse(sort.IntSlice(queue)))
	}

	if len(order) != len(byIndex) {
		var stuck []string
		seen := map[int]bool{}
		for _, i := range order {
			seen[i] = true
		}
		for i, m := range byIndex {
			if !seen[i] {
				stuck = append(stuck, m.Filename)
			}
		}
		return nil, gatewayerr.Newf(gatewayerr.KindCyclicSchema, "circular dependency between migrations: %v", stuck)
	}

	ordered := make([]Migration, len(order))
	for i, idx := range order {
		ordered[i] = byIndex[idx]
	}
	return ordered, nil
}
