package command

import (
	"fmt"
	"os"

	"github.com/urfave/cli"
	"sigs.k8s.io/yaml"

	"github.com/openlact/lactd/internal/config"
	"github.com/openlact/lactd/internal/version"
)

func printConfigCommand(cliCtx *cli.Context) error {
	store := config.NewStore(config.DefaultPath("lactd", os.Geteuid()))
	cfg, err := store.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	out, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	fmt.Println(string(out))
	return nil
}

func versionCommand(cliCtx *cli.Context) error {
	fmt.Println(version.Version)
	return nil
}
