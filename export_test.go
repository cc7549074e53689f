package gns

// SetStubPort overrides the DNS port used by stub queries so tests can
// point the resolver at a simulated server. Returns a restore function.
func SetStubPort(port uint16) (restore func()) {
	old := stubPort
	stubPort = port
	return func() { stubPort = old }
}
