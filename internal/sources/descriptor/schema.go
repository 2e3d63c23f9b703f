package descriptor

// Descriptor is the on-disk identity of the service this process
// heartbeats, a small YAML document:
//
//	id: 6f1c4f7e-...      # generated and written back on first run
//	kind: compute-worker
//	host: node-1.local    # defaults to the machine hostname
//	region: eu-west
//
// Keeping the id in the file means a restarted process re-registers as the
// same record instead of leaving a doomed twin behind.
type Descriptor struct {
	ID     string `yaml:"id"`
	Kind   string `yaml:"kind"`
	Host   string `yaml:"host,omitempty"`
	Region string `yaml:"region,omitempty"`
}
