package treasury

import (
	"encoding/json"
	"os"
	"path/filepath"

	"VaultTreasury/internal/model"
)

// LoadState reads the treasury state from a JSON file. Returns nil if the file doesn't exist.
func LoadState(filePath string) (*model.TreasuryState, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var state model.TreasuryState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, err
	}
	return &state, nil
}

// SaveState writes the treasury state to a JSON file. The file is replaced
// by rename so a crash never leaves it half written.
func SaveState(filePath string, state *model.TreasuryState) error {
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(filePath), 0o755); err != nil {
		return err
	}
	tmp := filePath + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, filePath)
}
