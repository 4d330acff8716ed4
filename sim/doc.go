// Package sim provides the calculation core of legisim: a vectorized,
// memoized evaluator of tax and benefit rules over populations of persons
// and the groups they form.
//
// # Reading Guide
//
// Start with these files to understand the engine:
//   - system.go: TaxBenefitSystem, the bundle of entities, variables, parameters and reforms
//   - variable.go: Variable declarations and dated formulas
//   - population.go: per-entity state and the person/group projections formulas use
//   - holder.go: per-variable storage keyed by period, set_input policies
//   - calculate.go: the evaluation algorithm (cache, formula dispatch, add/divide)
//
// # Architecture
//
// The sim package holds the engine; leaf concerns live in sub-packages:
//   - sim/periods/: calendar periods, parsing and algebra
//   - sim/vector/: typed arrays, enums, coercion and arithmetic
//   - sim/parameters/: time-indexed legislation parameters and scales
//   - sim/trace/: calculation tracer, flat traces and summaries
//   - sim/spill/: disk stores for arrays evicted by the memory policy
//   - sim/builder/: situation descriptions and simulation construction
//   - sim/yamltest/: YAML test files
//   - sim/api/: HTTP surface
//   - sim/countrytemplate/: reference legislation
//
// # Evaluation
//
// Simulation.Calculate(name, period) looks the value up in the variable's
// Holder, then runs the formula in force at the period start when the
// period is one definition period. Coarser periods sum their definition
// periods; finer ones divide the containing definition period. Results are
// cached, and every evaluation is a tracer frame, which is also how spirals
// (a variable depending on itself for the same period) are detected.
package sim
