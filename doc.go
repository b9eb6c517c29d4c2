/*
Package espalier is a human-task workflow layer on top of a generic graph
engine. A process is a graph of start, end, activity and gateway nodes. For
every running instance espalier tracks the state of each activity
(WAITING, COMPLETED, TERMINATED) and lets actors move the instance forward,
back, jump over nodes, terminate or restart it. Activities no actor owns run
on their own.

# Concept

Queries walk the graph from its start node with a stateful driver that stops
at the first activity the actor may act on. Submissions mutate the persisted
states under a per-instance lock and cascade through automatic nodes. Who may
act is decided by a ports.StateController; where states live is decided by a
ports.StateRepository (memory, Redis, SQLite, PostgreSQL).

# Usage

	g := dsl.New("leave").
		Start("s").Go("apply").Then().
		Activity("apply").Meta("role", "employee").Go("approve").Then().
		Activity("approve").Meta("role", "tl").Go("e").Then().
		End("e").Then().
		MustBuild()

	eng, err := espalier.New(ctx,
		espalier.WithGraphs(g),
		espalier.WithController(controller.Actor("role")),
	)
	if err != nil {
		log.Fatal(err)
	}

	employee := flow.NewContext("instance-1").Put("role", "employee")
	task, _ := eng.FindTask(ctx, "leave", employee)   // apply, now WAITING
	_ = eng.Executor().Submit(ctx, task.Node, domain.TaskActionForward, employee)

The HTTP (pkg/adapters/http) and MCP (pkg/adapters/mcp) adapters expose the
same operations; cmd/espalier wires them from a config file.
*/
package espalier
