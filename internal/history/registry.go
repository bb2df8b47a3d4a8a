package history

import (
	"context"
	"encoding/hex"
	"fmt"

	"github.com/pendergraft/contradeploy/internal/deployer"
	"github.com/pendergraft/contradeploy/internal/validation"
	"github.com/pendergraft/contradeploy/pkg/client"
)

// Registry pushes confirmed deployments to a Contrafactory registry. It
// satisfies deployer.Recorder.
type Registry struct {
	client  *client.Client
	pkg     string
	version string
}

// NewRegistry creates a registry recorder for one package version
func NewRegistry(c *client.Client, pkg, version string) *Registry {
	return &Registry{client: c, pkg: pkg, version: version}
}

// RecordDeployment pushes the deployment
func (r *Registry) RecordDeployment(ctx context.Context, result *deployer.DeploymentResult) error {
	if !result.Confirmed() || result.ChainID == nil || !result.ChainID.IsInt64() {
		return ErrInvalidResult
	}

	_, name := validation.SplitContractRef(result.Contract)
	err := r.client.RecordDeployment(ctx, client.RegistryDeployment{
		Package:         r.pkg,
		Version:         r.version,
		Contract:        name,
		ChainID:         int(result.ChainID.Int64()),
		Address:         result.Address.Hex(),
		TxHash:          result.TxHash.Hex(),
		DeployerAddress: result.Deployer.Hex(),
		BlockNumber:     int64(result.BlockNumber),
		ConstructorArgs: hex.EncodeToString(result.ConstructorArgs),
	})
	if err != nil {
		return fmt.Errorf("pushing deployment to registry: %w", err)
	}
	return nil
}

// RecordVerification is a no-op: the registry verifies on its own.
func (r *Registry) RecordVerification(ctx context.Context, result *deployer.DeploymentResult, outcome *deployer.VerificationOutcome) error {
	return nil
}
