// Package expr evaluates link and node guard conditions written as HCL
// expressions, for example:
//
//	amount > 1000 && region == "eu"
//	contains(roles, "manager")
//
// Context variables are exposed as top-level HCL variables. A variable the
// expression references but the context lacks evaluates to null.
package expr
