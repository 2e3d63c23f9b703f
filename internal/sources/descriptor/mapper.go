package descriptor

import "github.com/MrSnakeDoc/vigil/internal/domain"

// Record converts the descriptor into the registration the heartbeater
// publishes. A freshly booted process is alive, so the record starts UP.
func (d *Descriptor) Record() *domain.ServiceRecord {
	return &domain.ServiceRecord{
		ID:     d.ID,
		Kind:   d.Kind,
		Host:   d.Host,
		Region: d.Region,
		Status: domain.StatusUp,
	}
}
