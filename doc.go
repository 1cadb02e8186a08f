// Package cthyb is a continuous-time quantum Monte Carlo solver for quantum
// impurity problems in the hybridization expansion (CT-HYB).
//
// The solver samples the expansion of the partition function in the
// hybridization Δ(τ) between the impurity and its bath. Each configuration
// is a time-ordered sequence of creation and annihilation operators; its
// weight is the product of one determinant per block of Δ and the trace of
// the local Hamiltonian's propagators and operators over the impurity Fock
// space.
//
// # Quick Start
//
//	blocks := []operator.Block{
//	    {Name: "up", Indices: []string{"0"}},
//	    {Name: "down", Indices: []string{"0"}},
//	}
//	s, _ := cthyb.New(cthyb.DefaultConstrParams(10, blocks))
//	_ = s.SetBath(levels) // or s.SetDelta(delta)
//
//	nUp, nDn := operator.N("up", "0"), operator.N("down", "0")
//	params := cthyb.DefaultSolveParams(nUp.Mul(nDn).Scale(2).Sub(nUp.Add(nDn)))
//	params.MeasureGL = true
//	params.StaticObservables = map[string]operator.Expr{"double_occupancy": nUp.Mul(nDn)}
//
//	res, _ := s.SolveParallel(ctx, params, runtime.NumCPU())
//	fmt.Println(res.GL[0].Eval(5, 0, 0), res.StaticObservables["double_occupancy"])
//
// # Measurements
//
//   - G(τ) on the mesh of Δ and Legendre coefficients G_l per block
//   - Perturbation order histograms
//   - Static observables and moments of block-diagonal local operators, and
//     two-point correlators χ_AB(iω_n) of even operators, from analytic
//     sliding-time integrals
//   - The two-particle Green's function G2(iν, iν') at zero bosonic
//     frequency per block pair
//   - The reduced impurity density matrix
//
// # Parallel Chains
//
// SolveParallel runs independent Markov chains and sums their
// accumulators. Cancelling the context stops all chains at the next cycle
// boundary and still returns what was sampled.
//
// # Diagnostics
//
// With MakeHistograms set, the subspace summary and the perturbation order
// histograms are written as compressed JSON to the blob store given with
// WithDiagnostics: local disk, memory, S3 or MinIO.
package cthyb
