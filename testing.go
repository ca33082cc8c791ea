package mockhttp

// TestingT is the subset of testing.TB that Assert and NewServerGuard need
// (Helper, Fatalf, Cleanup), so *testing.T and *testing.B satisfy it without
// an adapter.
type TestingT interface {
	Helper()
	Fatalf(format string, args ...any)
	Cleanup(func())
}
