package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pendergraft/contradeploy/internal/chains"
	"github.com/pendergraft/contradeploy/internal/chains/evm"
	"github.com/pendergraft/contradeploy/internal/config"
)

// workspace is the project and global configuration a command runs against
type workspace struct {
	// path is the project config file, empty when none was found
	path    string
	dir     string
	project *config.ProjectConfig
	global  *config.GlobalConfig
}

// loadWorkspace loads the project config (required) and the global config
func loadWorkspace() (*workspace, error) {
	ws, err := loadWorkspaceOptional()
	if err != nil {
		return nil, err
	}
	if ws.project == nil {
		return nil, fmt.Errorf("no %s found (run 'contradeploy config init' or pass --config)", config.ProjectConfigFile)
	}
	return ws, nil
}

// loadWorkspaceOptional is loadWorkspace for commands that can run without a
// project, such as the history commands
func loadWorkspaceOptional() (*workspace, error) {
	global, err := config.LoadGlobal(config.GlobalConfigPath())
	if err != nil {
		return nil, fmt.Errorf("loading global config: %w", err)
	}
	ws := &workspace{global: global}

	path := cfgFile
	if path == "" {
		path = config.ProjectConfigFile
	}
	project, err := config.LoadProject(path)
	if err != nil {
		// A missing default file is fine; a missing explicit one is not
		if errors.Is(err, os.ErrNotExist) && cfgFile == "" {
			return ws, nil
		}
		return nil, fmt.Errorf("loading project config: %w", err)
	}

	ws.path = path
	ws.project = project
	ws.dir = filepath.Join(filepath.Dir(path), project.Root)
	return ws, nil
}

// network resolves the selected network name and its settings
func (w *workspace) network(flag string) (string, *config.NetworkConfig, error) {
	name, err := config.SelectNetwork(flag, w.project, w.global)
	if err != nil {
		if w.project != nil && len(w.project.Networks) > 0 {
			return "", nil, fmt.Errorf("%w (use --network, one of %v)", err, w.project.NetworkNames())
		}
		return "", nil, err
	}
	net, err := w.project.Network(name)
	if err != nil {
		return "", nil, err
	}
	return name, net, nil
}

// artifacts returns the artifact source for the project's build output
func (w *workspace) artifacts() (*chains.Project, error) {
	var builder chains.Builder
	if w.project.Builder != "" {
		b, err := chains.SelectBuilder(w.project.Builder, evm.Builders()...)
		if err != nil {
			return nil, err
		}
		builder = b
	}
	return chains.NewProject(w.dir, builder, evm.Builders()...)
}

// storage resolves the history store settings
func (w *workspace) storage() config.StorageConfig {
	return config.ResolveStorage(w.project, w.global)
}

// registry returns the registry settings; the project overrides the global file
func (w *workspace) registry() config.RegistryConfig {
	if w.project != nil && w.project.Registry.Enabled() {
		return w.project.Registry
	}
	if w.global != nil {
		return w.global.Registry
	}
	return config.RegistryConfig{}
}
