/*
Package dsl provides a Go DSL (Domain Specific Language) for programmatically constructing workflow graphs.

It allows developers to define approval flows using a type-safe, fluent builder pattern
instead of YAML files. This is particularly useful for dynamic graph generation and unit testing.

Example usage:

	b := dsl.New("leave").Title("Leave request")

	b.Start("s").Go("apply")
	b.Activity("apply").Meta("role", "employee").Go("route")
	b.Exclusive("route").
		Branch("days > 3", "director").
		Go("tl")
	b.Activity("director").Meta("role", "director").Go("e")
	b.Activity("tl").Meta("role", "tl").Go("e")
	b.End("e")

	g, err := b.Build()
*/
package dsl
