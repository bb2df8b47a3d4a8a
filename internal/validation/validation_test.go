package validation

import (
	"strings"
	"testing"
)

func TestValidateContractName(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"simple", "RedWallet", false},
		{"underscore", "_Token", false},
		{"dollar", "$Vault", false},
		{"qualified", "contracts/RedWallet.sol:RedWallet", false},
		{"empty", "", true},
		{"starts with digit", "1Token", true},
		{"contains hyphen", "Red-Wallet", true},
		{"empty path", ":Token", true},
		{"path traversal", "../secret.sol:Token", true},
		{"empty name after path", "src/Token.sol:", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateContractName(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateContractName(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
		})
	}
}

func TestSplitContractRef(t *testing.T) {
	path, name := SplitContractRef("src/Token.sol:Token")
	if path != "src/Token.sol" || name != "Token" {
		t.Errorf("SplitContractRef() = %q, %q", path, name)
	}

	path, name = SplitContractRef("Token")
	if path != "" || name != "Token" {
		t.Errorf("SplitContractRef() = %q, %q", path, name)
	}
}

func TestValidateNetworkName(t *testing.T) {
	tests := []struct {
		input   string
		wantErr bool
	}{
		{"mumbai", false},
		{"polygon-amoy", false},
		{"base_sepolia", false},
		{"Mainnet", true},
		{"1chain", true},
		{"", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			err := ValidateNetworkName(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateNetworkName(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
		})
	}
}

func TestValidateCompilerVersion(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"short", "0.8.20", false},
		{"with commit", "0.8.20+commit.a1b2c3d4", false},
		{"with v prefix", "v0.8.28+commit.7893614a", false},
		{"missing patch", "0.8", true},
		{"garbage", "latest", true},
		{"empty", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateCompilerVersion(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateCompilerVersion(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
		})
	}
}

func TestExplorerCompilerVersion(t *testing.T) {
	if got := ExplorerCompilerVersion("0.8.20+commit.a1b2c3d4"); got != "v0.8.20+commit.a1b2c3d4" {
		t.Errorf("ExplorerCompilerVersion() = %q", got)
	}
	if got := ExplorerCompilerVersion("v0.8.20"); got != "v0.8.20" {
		t.Errorf("ExplorerCompilerVersion() = %q", got)
	}
}

func TestValidateAddress(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"valid lowercase", "0x1234567890abcdef1234567890abcdef12345678", false},
		{"valid checksummed", "0xAbCdEf1234567890aBcDeF1234567890AbCdEf12", false},
		{"too short", "0x1234", true},
		{"missing prefix", "001234567890abcdef1234567890abcdef12345678", true},
		{"non-hex", "0xZZ34567890abcdef1234567890abcdef12345678", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateAddress(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateAddress(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
		})
	}
}

func TestValidateTxHash(t *testing.T) {
	valid := "0x" + strings.Repeat("ab", 32)
	if err := ValidateTxHash(valid); err != nil {
		t.Errorf("ValidateTxHash(%q) unexpected error: %v", valid, err)
	}
	if err := ValidateTxHash("0xabcdef"); err == nil {
		t.Error("ValidateTxHash() expected error for short hash")
	}
}

func TestValidateChainID(t *testing.T) {
	if err := ValidateChainID(137); err != nil {
		t.Errorf("ValidateChainID(137) unexpected error: %v", err)
	}
	if err := ValidateChainID(0); err == nil {
		t.Error("ValidateChainID(0) expected error")
	}
	if err := ValidateChainID(-1); err == nil {
		t.Error("ValidateChainID(-1) expected error")
	}
}
