package telemetry

// Provider gives access to the latest published telemetry snapshot.
type Provider interface {
	Get() *Telemetry
}
