package history

import "time"

// Deployment is a recorded deployment as served by the history API
type Deployment struct {
	ID              string        `json:"id"`
	Network         string        `json:"network"`
	ChainID         string        `json:"chainId"`
	Contract        string        `json:"contract"`
	Address         string        `json:"address"`
	DeployerAddress string        `json:"deployerAddress,omitempty"`
	TxHash          string        `json:"txHash,omitempty"`
	BlockNumber     int64         `json:"blockNumber"`
	GasUsed         int64         `json:"gasUsed"`
	ConstructorArgs string        `json:"constructorArgs,omitempty"`
	Verification    *Verification `json:"verification,omitempty"`
	CreatedAt       time.Time     `json:"createdAt"`
}

// Verification is the latest verification attempt for a deployment
type Verification struct {
	Status     string     `json:"status"`
	Provider   string     `json:"provider,omitempty"`
	Message    string     `json:"message,omitempty"`
	VerifiedAt *time.Time `json:"verifiedAt,omitempty"`
}

// Verified reports whether the deployment's source has been verified
func (d *Deployment) Verified() bool {
	return d.Verification != nil && d.Verification.VerifiedAt != nil
}

// ListFilter contains filter options for listing deployments.
type ListFilter struct {
	Network  string
	ChainID  string
	Contract string
	Verified *bool
}

// PaginationParams contains pagination options.
type PaginationParams struct {
	Limit  int
	Cursor string
}

// ListResult contains paginated list results.
type ListResult struct {
	Deployments []Deployment
	HasMore     bool
	NextCursor  string
}
