package utils

import "math"

// LamportsPerSol is the number of lamports in one SOL.
const LamportsPerSol = 1_000_000_000

// LamportsToSol converts a lamport amount to SOL for display.
func LamportsToSol(lamports uint64) float64 {
	return float64(lamports) / LamportsPerSol
}

// SolToLamports converts SOL to lamports, rounding to the nearest lamport.
// Negative amounts give zero.
func SolToLamports(sol float64) uint64 {
	if sol <= 0 {
		return 0
	}
	return uint64(math.Round(sol * LamportsPerSol))
}
