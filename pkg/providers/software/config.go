package software

// SoftwareConfig is intentionally empty. The in-memory provider has no
// backend to configure.
type SoftwareConfig struct{}
