// Package compute provides the linear-algebra backend used by the dynamics kernels.
//
// The backend covers the dense operations the kernels need on column-major,
// upper-triangle symmetric storage:
//
//   - Cholesky factorization and solve (forward dynamics)
//   - symmetric matrix-vector products (residual checks)
//
// # Threads
//
// The worker count is process-wide, like a BLAS thread setting. The runtime
// pins it to one thread at startup so a harness running many driver processes
// in parallel does not oversubscribe the machine:
//
//	compute.SetThreads(1)
//	b := compute.NewCPUBackend[float64]()
//	err := b.CholeskyUpper(m, n)
package compute
