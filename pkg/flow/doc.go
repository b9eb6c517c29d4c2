/*
Package flow implements the generic, stateless graph walk.

An Engine walks a domain.Graph from a node, calling the installed Driver on
every node that carries work and resolving gateways:

  - exclusive: the first link whose condition holds, else the default link;
  - inclusive: every link whose condition holds, joined by counting arrivals;
  - parallel: every successor, joined when all incoming links arrived,
    optionally run concurrently (WithParallelism);
  - loop: iterates "$in" into the "$for" variable until the closing loop
    node drains it.

Drivers steer the walk through the Exchanger: Stop halts the whole walk,
Interrupt ends only the branch being explored.
*/
package flow
