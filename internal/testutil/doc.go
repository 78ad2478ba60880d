// Package testutil provides deterministic stand-ins for wall time and ID
// generation, shared by package tests and the scenario harness.
package testutil
