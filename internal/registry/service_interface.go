package registry

// Service is a long-running part of the agent. The service registry starts
// services in registration order and stops them in reverse.
type Service interface {
	Start() error
	Stop() error
}
