package project

import "context"

// ProjectParams are the community-level parameters a project operates
// under.
type ProjectParams struct {
	Currency   Address `json:"currency"`
	FeeRate    int64   `json:"fee_rate"` // parts per thousand
	Treasury   Address `json:"treasury"`
	Arbitrator Address `json:"arbitrator"`
	Community  Address `json:"community"`
}

// CommunityRegistry resolves the parameters for a project.
type CommunityRegistry interface {
	ProjectParams(ctx context.Context, projectID string) (ProjectParams, error)
}

// StaticRegistry serves one parameter set for every project.
type StaticRegistry struct {
	Params ProjectParams
}

// ProjectParams returns the static parameter set.
func (r StaticRegistry) ProjectParams(_ context.Context, _ string) (ProjectParams, error) {
	return r.Params, nil
}
