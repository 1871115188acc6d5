// Command evmcfg recovers a control-flow graph from an EVM bytecode file
// and prints a summary of the discovered functions, optionally exporting
// per-function DOT files (grounded on evm_cfg_builder/__main__.py).
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	evmcfg "github.com/crytic/evm-cfg-builder"
	"github.com/crytic/evm-cfg-builder/dotgraph"
	"github.com/ethereum/go-ethereum/log"
	"github.com/urfave/cli/v2"
)

func main() {
	app := &cli.App{
		Name:      "evmcfg",
		Usage:     "recover a control-flow graph from EVM bytecode",
		UsageText: "evmcfg contract.evm [flags]",
		ArgsUsage: "contract.evm",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "export-dot",
				Usage: "export each function's CFG as a .dot file into this directory",
			},
			&cli.BoolFlag{
				Name:  "no-optimize",
				Usage: "disable the authorized_values widening optimization",
			},
			&cli.IntFlag{
				Name:  "max-exploration",
				Usage: "per-block re-exploration cap for the VSA",
				Value: 100,
			},
		},
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		log.Crit("evmcfg failed", "err", err)
	}
}

func run(c *cli.Context) error {
	if c.NArg() != 1 {
		return cli.Exit("expected exactly one bytecode file argument", 1)
	}
	filename := c.Args().Get(0)

	raw, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("reading %s: %w", filename, err)
	}
	bytecode := strings.ReplaceAll(string(raw), "\n", "")

	opts := evmcfg.DefaultOptions()
	opts.OptimizationEnabled = !c.Bool("no-optimize")
	opts.MaxExploration = c.Int("max-exploration")

	cfg, err := evmcfg.NewFromHex(bytecode, opts)
	if err != nil {
		return fmt.Errorf("parsing %s: %w", filename, err)
	}

	for _, fn := range cfg.Functions() {
		log.Info(fmt.Sprintf("%s, %d bbs %v", fn.Name, len(fn.BasicBlocks), fn.Attributes()))
	}

	if dir := c.String("export-dot"); dir != "" {
		return exportDot(dir, filename, cfg)
	}
	return nil
}

func exportDot(dir, sourceFile string, cfg *evmcfg.CFG) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	base := filepath.Join(dir, filepath.Base(sourceFile)+"_")

	functions := cfg.Functions()
	for _, fn := range functions {
		path := fmt.Sprintf("%s%s.dot", base, fn.Name)
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		err = dotgraph.WriteFunction(f, fn, functions)
		closeErr := f.Close()
		if err != nil {
			return err
		}
		if closeErr != nil {
			return closeErr
		}
	}
	return nil
}
