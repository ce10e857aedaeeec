package sync

// SyncContext holds shared sync configuration and collaborators.
// It is immutable after construction — fields must not be modified
// once a Syncer has been built around it. The checkpoint Storage is
// the only mutable collaborator and it is written to solely by the
// fetch-and-sync engine.
type SyncContext struct {
	Config         Config
	Storage        Storage
	RecordRequests bool
}
