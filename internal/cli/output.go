package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/pendergraft/contradeploy/internal/deployer"
)

// deployReport is the printable form of a deployment and its verification
type deployReport struct {
	Contract     string              `json:"contract"`
	Network      string              `json:"network"`
	ChainID      string              `json:"chainId"`
	Address      string              `json:"address"`
	TxHash       string              `json:"txHash"`
	Deployer     string              `json:"deployer"`
	BlockNumber  uint64              `json:"blockNumber"`
	GasUsed      uint64              `json:"gasUsed"`
	Verification *verificationReport `json:"verification,omitempty"`

	outcome *deployer.VerificationOutcome
}

type verificationReport struct {
	Status   string `json:"status"`
	Provider string `json:"provider,omitempty"`
	Message  string `json:"message,omitempty"`
	Reason   string `json:"reason,omitempty"`
}

func newDeployReport(result *deployer.DeploymentResult, outcome *deployer.VerificationOutcome) deployReport {
	r := deployReport{
		Contract:     result.Contract,
		Network:      result.Network,
		Address:      result.Address.Hex(),
		TxHash:       result.TxHash.Hex(),
		Deployer:     result.Deployer.Hex(),
		BlockNumber:  result.BlockNumber,
		GasUsed:      result.GasUsed,
		Verification: newVerificationReport(outcome),
		outcome:      outcome,
	}
	if result.ChainID != nil {
		r.ChainID = result.ChainID.String()
	}
	return r
}

func newVerificationReport(outcome *deployer.VerificationOutcome) *verificationReport {
	if outcome == nil {
		return nil
	}
	v := &verificationReport{
		Status:   string(outcome.Status),
		Provider: outcome.Provider,
		Message:  outcome.Message,
	}
	if outcome.Failure != nil {
		v.Reason = string(outcome.Failure.Reason)
	}
	return v
}

func printDeployReport(w io.Writer, r deployReport) {
	fmt.Fprintf(w, "✅ Deployed %s\n", r.Contract)
	fmt.Fprintf(w, "   Network:  %s (chain %s)\n", r.Network, r.ChainID)
	fmt.Fprintf(w, "   Address:  %s\n", r.Address)
	fmt.Fprintf(w, "   Tx:       %s\n", r.TxHash)
	fmt.Fprintf(w, "   Block:    %d (gas used %d)\n", r.BlockNumber, r.GasUsed)
	printVerification(w, r.Verification)
	fmt.Fprintln(w)
}

func printVerification(w io.Writer, v *verificationReport) {
	if v == nil {
		return
	}
	switch v.Status {
	case string(deployer.VerificationVerified), string(deployer.VerificationAlreadyVerified):
		fmt.Fprintf(w, "   Verified: %s via %s\n", v.Status, v.Provider)
	case string(deployer.VerificationSkipped):
		fmt.Fprintln(w, "   Verified: skipped")
	default:
		fmt.Fprintf(w, "   Verified: no (%s)\n", v.Reason)
	}
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// truncateAddress shortens a hex address for table output
func truncateAddress(addr string) string {
	if len(addr) <= 14 {
		return addr
	}
	return addr[:8] + "..." + addr[len(addr)-4:]
}
