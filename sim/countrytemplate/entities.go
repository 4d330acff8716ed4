// Package countrytemplate is a small reference legislation: persons living
// in households, a basic income, an income tax, a social security scale and
// a housing tax. The CLI, the HTTP API and end-to-end tests run against it.
package countrytemplate

import "github.com/legisim/legisim/sim"

// Roles of the household.
var (
	FirstParent  = &sim.Role{Key: "first_parent", Label: "First parent"}
	SecondParent = &sim.Role{Key: "second_parent", Label: "Second parent"}
	Parent       = &sim.Role{
		Key:      "parent",
		Plural:   "parents",
		Label:    "Parents",
		Doc:      "The one or two adults in charge of the household.",
		Subroles: []*sim.Role{FirstParent, SecondParent},
	}
	Child = &sim.Role{
		Key:    "child",
		Plural: "children",
		Label:  "Child",
		Doc:    "Other individuals living in the household.",
	}
)

// Entities of the template.
var (
	Person = sim.NewPersonEntity("person", "persons", "An individual",
		"The minimal legal entity on which a rule can be applied.")
	Household = sim.NewGroupEntity("household", "households", "All the people in a family or group who live together in the same place.",
		"Household is an example of a group entity. A group entity contains one or more individuals.",
		Parent, Child)
)
