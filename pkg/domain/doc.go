/*
Package domain contains the core domain models of the espalier workflow layer.

It defines the graph vocabulary (Graph, Node, Link, NodeType) and the task
vocabulary (TaskState, TaskAction, Task) shared by the engine, the stateful
driver and the storage adapters. This package is kept pure and free of
external dependencies like I/O or persistence.

# Key Entities

  - Graph: immutable directed graph with exactly one start node.
  - Node: a step of the graph; only activities carry actionable state.
  - Link: a prioritized, optionally guarded edge.
  - TaskState / TaskAction: the fixed state and action codes, and the
    action to state mapping.
  - Task: a snapshot of a node and its state for one instance.
*/
package domain
