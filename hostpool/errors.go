package hostpool

import "fmt"

// ConfigurationError is returned when a host list cannot be turned into a
// usable pool, e.g. when it resolves to zero hosts.
type ConfigurationError struct {
	// Source is the value the pool was built from.
	Source any

	// Reason describes what is wrong with Source.
	Reason string
}

// Error implements error.
func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("hostpool: invalid hosts %q: %s", fmt.Sprint(e.Source), e.Reason)
}
