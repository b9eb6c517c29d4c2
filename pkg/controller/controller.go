// Package controller provides the stock authorization policies
// (ports.StateController implementations).
package controller

import (
	"reflect"

	"github.com/aretw0/espalier/pkg/domain"
	"github.com/aretw0/espalier/pkg/flow"
)

// DefaultActorKey is the meta and context key matched by Actor when no keys
// are given.
const DefaultActorKey = "actor"

// ActorController lets an actor act on a node when one of its keys matches
// between the node meta and the context, e.g. meta {role: manager} and a
// context var role=manager.
type ActorController struct {
	keys []string
}

// Actor creates an ActorController matching the given keys.
func Actor(keys ...string) *ActorController {
	if len(keys) == 0 {
		keys = []string{DefaultActorKey}
	}
	return &ActorController{keys: append([]string(nil), keys...)}
}

// Keys returns the matched keys.
func (c *ActorController) Keys() []string {
	return append([]string(nil), c.keys...)
}

// IsOperatable reports whether any key has equal values in the node meta and
// the context. A key absent from both counts as equal.
func (c *ActorController) IsOperatable(fc *flow.Context, node *domain.Node) bool {
	for _, k := range c.keys {
		want, inMeta := node.MetaValue(k)
		got, inCtx := fc.Get(k)
		if !inMeta && !inCtx {
			return true
		}
		if inMeta && inCtx && equal(want, got) {
			return true
		}
	}
	return false
}

// IsAutoForward is true for end nodes and for nodes carrying none of the keys.
func (c *ActorController) IsAutoForward(fc *flow.Context, node *domain.Node) bool {
	if node.Type == domain.NodeTypeEnd {
		return true
	}
	for _, k := range c.keys {
		if node.HasMeta(k) {
			return false
		}
	}
	return true
}

func equal(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if reflect.TypeOf(a).Comparable() && reflect.TypeOf(b).Comparable() && a == b {
		return true
	}
	// YAML and JSON decode the same scalar into different Go types.
	as, aok := scalar(a)
	bs, bok := scalar(b)
	return aok && bok && as == bs
}

func scalar(v any) (string, bool) {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.String:
		return rv.String(), true
	case reflect.Bool, reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return formatScalar(rv), true
	default:
		return "", false
	}
}

type BlockController struct{}

// Block makes every activity wait for an explicit submit; only gateways and
// terminal nodes advance on their own.
var Block BlockController

func (BlockController) IsOperatable(*flow.Context, *domain.Node) bool { return true }

func (BlockController) IsAutoForward(_ *flow.Context, node *domain.Node) bool {
	return node.Type != domain.NodeTypeActivity
}

type NotBlockController struct{}

// NotBlock auto-advances every node.
var NotBlock NotBlockController

func (NotBlockController) IsOperatable(*flow.Context, *domain.Node) bool  { return true }
func (NotBlockController) IsAutoForward(*flow.Context, *domain.Node) bool { return true }

// FuncController adapts two functions into a controller. A nil function
// answers false.
type FuncController struct {
	Operatable  func(fc *flow.Context, node *domain.Node) bool
	AutoForward func(fc *flow.Context, node *domain.Node) bool
}

// Func creates a FuncController.
func Func(operatable, autoForward func(fc *flow.Context, node *domain.Node) bool) *FuncController {
	return &FuncController{Operatable: operatable, AutoForward: autoForward}
}

func (c *FuncController) IsOperatable(fc *flow.Context, node *domain.Node) bool {
	return c.Operatable != nil && c.Operatable(fc, node)
}

func (c *FuncController) IsAutoForward(fc *flow.Context, node *domain.Node) bool {
	return c.AutoForward != nil && c.AutoForward(fc, node)
}
