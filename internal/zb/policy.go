package zb

import "fmt"

// RetentionPolicy is an immutable snapshot of the configured retention rules.
type RetentionPolicy struct {
	// RetentionDays expires archives older than this many days. 0 disables.
	RetentionDays int
	// KeepCount caps the number of archives, counting the one about to be
	// written. 0 disables.
	KeepCount int
	// ReclaimForSpace allows deleting archives when the destination is full.
	// When false, insufficient space is always fatal.
	ReclaimForSpace bool
	// Aggressive allows space reclamation to delete the most recent archive.
	Aggressive bool
}

// NewRetentionPolicy builds a policy, clamping negative thresholds to 0.
func NewRetentionPolicy(retentionDays, keepCount int, reclaimForSpace, aggressive bool) RetentionPolicy {
	return RetentionPolicy{
		RetentionDays:   max(retentionDays, 0),
		KeepCount:       max(keepCount, 0),
		ReclaimForSpace: reclaimForSpace,
		Aggressive:      aggressive,
	}
}

func (p RetentionPolicy) String() string {
	return fmt.Sprintf("RetentionPolicy(keep=%d, retention=%d, reclaim_for_space=%t, aggressive=%t)",
		p.KeepCount, p.RetentionDays, p.ReclaimForSpace, p.Aggressive)
}
