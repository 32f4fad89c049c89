package store

// Stores bundles the durable collaborators the daemon depends on. A
// deployment wires either the file-backed or Postgres-backed
// implementations, selected by daemon configuration.
type Stores struct {
	Pairing PairingStore
	Cron    CronStore
}
