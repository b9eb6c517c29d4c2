/*
Package workflow turns the stateless graph walk of package flow into a
human-task workflow.

A StatefulDriver wraps the plain task driver and intercepts every activity:
it reads the node's persisted state for the instance, asks the
StateController whether the node advances on its own or waits for an actor,
and either runs the task, records the node as the current task, or blocks
the branch.

The Executor exposes the queries (FindTask, FindNextTasks, LocateTask) and
the mutations (Submit, SubmitIfWaiting, ClearState):

  - FORWARD completes a node and lets the automatic nodes behind it run;
  - BACK reopens a node and the activities before it, crossing gateways;
  - FORWARD_JUMP and BACK_JUMP repeat those steps until a target node is
    processed, bounded by a hop limit;
  - TERMINATE marks a node terminated, RESTART forgets the whole instance.

Mutations of one instance are serialized by a per-instance lock.
*/
package workflow
