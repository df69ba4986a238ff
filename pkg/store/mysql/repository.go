package mysql

// Repository aggregates all MySQL repositories
type Repository struct {
	ds *Datastore

	Tenant          *TenantRepository
	Allocation      *AllocationRepository
	WorkerStatus    *WorkerStatusRepository
	ScalingDecision *ScalingDecisionRepository
	CostAnalysis    *CostAnalysisRepository
	Usage           *UsageRepository
	AlertRule       *AlertRuleRepository
}

// NewRepository creates a new MySQL repository with all sub-repositories
func NewRepository(dsn string) (*Repository, error) {
	ds, err := NewDatastore(dsn)
	if err != nil {
		return nil, err
	}

	return &Repository{
		ds:              ds,
		Tenant:          NewTenantRepository(ds),
		Allocation:      NewAllocationRepository(ds),
		WorkerStatus:    NewWorkerStatusRepository(ds),
		ScalingDecision: NewScalingDecisionRepository(ds),
		CostAnalysis:    NewCostAnalysisRepository(ds),
		Usage:           NewUsageRepository(ds),
		AlertRule:       NewAlertRuleRepository(ds),
	}, nil
}

// GetDatastore returns the underlying datastore for transaction support
func (r *Repository) GetDatastore() *Datastore {
	return r.ds
}

// Close closes the database connection
func (r *Repository) Close() error {
	return r.ds.Close()
}
