// Package rbd implements rigid-body dynamics over kinematic trees using
// spatial vector algebra.
//
// A [Mechanism] is built body by body with [Mechanism.AddBody]; each body
// hangs off an earlier body (or [World]) through a [Joint]. The algorithms
// read and write flat slices so callers can run them directly on borrowed
// runtime storage:
//
//   - [Mechanism.InverseDynamics]: recursive Newton-Euler
//   - [Mechanism.MassMatrix]: composite rigid body algorithm, upper triangle
//   - [Mechanism.ForwardDynamics]: bias and mass matrix, then a Cholesky solve
//
// Velocities of floating joints are expressed in the body frame; their
// configuration is a unit quaternion (w, x, y, z) followed by a position.
package rbd
