package types

// OperationParams is the adapter-specific parameter block passed through the engine.
// Each adapter defines its own concrete type; the engine only validates it.
type OperationParams interface {
	Validate() error
}

// NoParams is used by callers and adapters that take no parameters.
type NoParams struct{}

func (NoParams) Validate() error { return nil }
