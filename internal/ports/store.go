package ports

// SnapshotStore persists a serialized baseline snapshot between process
// restarts. Persistence is a deployment choice; the agent works without one
// and recovers from a cold start.
type SnapshotStore interface {
	Save(data []byte) error
	Load() ([]byte, bool, error)
}
