// Copyright 2026 The go-shroud Authors
// This file is part of go-shroud.
//
// go-shroud is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// go-shroud is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with go-shroud. If not, see <http://www.gnu.org/licenses/>.

// gshroud is the command-line shell of the protection compiler. It reads a
// tree of compiled classes, runs the pipeline, and writes the generated C++
// sources plus the build manifest. Packaging the transformed classes and
// compiling the native library are the build system's job, not this tool's.
package main

import (
	"encoding/json"
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/olekukonko/tablewriter"
	"gopkg.in/urfave/cli.v1"

	"github.com/shroudlabs/go-shroud/compiler"
	"github.com/shroudlabs/go-shroud/jvm"
	"github.com/shroudlabs/go-shroud/log"
	"github.com/shroudlabs/go-shroud/nativegen"
)

var gitCommit = "" // set via linker flags

var (
	configFileFlag = cli.StringFlag{
		Name:  "config",
		Usage: "TOML configuration file",
	}
	outputFlag = cli.StringFlag{
		Name:  "output",
		Usage: "Directory receiving the generated sources",
		Value: "shroud-out",
	}
	virtFlag = cli.BoolFlag{
		Name:  "virtualization",
		Usage: "Lower translatable methods onto the embedded micro-VM",
	}
	vmJitFlag = cli.BoolFlag{
		Name:  "vm-jit",
		Usage: "Set the micro-VM JIT switch (the generated code does not read it)",
	}
	nativeFlattenFlag = cli.BoolFlag{
		Name:  "native-flatten",
		Usage: "Apply encoded-state dispatch inside generated C++",
	}
	strengthFlag = cli.StringFlag{
		Name:  "strength",
		Usage: "Java flattener strength (low, medium, high)",
		Value: "high",
	}
	allowFlag = cli.StringSliceFlag{
		Name:  "allow",
		Usage: "Glob selecting classes or methods to protect (repeatable)",
	}
	denyFlag = cli.StringSliceFlag{
		Name:  "deny",
		Usage: "Glob excluding classes or methods (repeatable)",
	}
	verbosityFlag = cli.StringFlag{
		Name:  "verbosity",
		Usage: "Logging verbosity (crit, error, warn, info, debug, trace)",
		Value: "info",
	}
)

func main() {
	app := cli.NewApp()
	app.Name = "gshroud"
	app.Usage = "Java bytecode protection compiler"
	app.Version = strings.TrimSpace("1.2.0 " + gitCommit)
	app.Flags = []cli.Flag{
		configFileFlag, outputFlag, virtFlag, vmJitFlag, nativeFlattenFlag,
		strengthFlag, allowFlag, denyFlag, verbosityFlag,
	}
	app.Commands = []cli.Command{
		{
			Action:      dumpConfig,
			Name:        "dumpconfig",
			Usage:       "Show configuration values",
			Description: "The dumpconfig command shows configuration values.",
		},
	}
	app.ArgsUsage = "<class-dir>"
	app.Action = protect

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func protect(ctx *cli.Context) error {
	if lvl, err := log.LvlFromString(ctx.GlobalString(verbosityFlag.Name)); err == nil {
		log.SetVerbosity(lvl)
	}
	if ctx.NArg() != 1 {
		return fmt.Errorf("expected one class directory argument, got %d", ctx.NArg())
	}
	opts, err := makeOptions(ctx)
	if err != nil {
		return err
	}
	classes, err := readClasses(ctx.Args().First())
	if err != nil {
		return err
	}
	if len(classes) == 0 {
		return fmt.Errorf("no class files under %s", ctx.Args().First())
	}
	log.Info("Loaded input classes", "count", len(classes))

	comp, err := compiler.New(opts)
	if err != nil {
		return err
	}
	result, err := comp.Run(classes)
	if err != nil {
		return err
	}
	outDir := ctx.GlobalString(outputFlag.Name)
	if err := writeArtifacts(outDir, result); err != nil {
		return err
	}
	printSummary(result)
	log.Info("Protection run complete", "output", outDir, "build", result.Manifest.BuildID)
	return nil
}

// readClasses loads every .class file under root in path order, so class
// ids are stable across runs.
func readClasses(root string) ([]*jvm.Class, error) {
	var paths []string
	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() && strings.HasSuffix(path, ".class") {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(paths)

	var classes []*jvm.Class
	for _, path := range paths {
		data, err := ioutil.ReadFile(path)
		if err != nil {
			return nil, err
		}
		cls, err := jvm.ParseClass(data)
		if err != nil {
			log.Warn("Skipping unreadable class file", "path", path, "err", err)
			continue
		}
		classes = append(classes, cls)
	}
	return classes, nil
}

func writeArtifacts(outDir string, result *compiler.BuildResult) error {
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return err
	}
	write := func(name, content string) error {
		return ioutil.WriteFile(filepath.Join(outDir, name), []byte(content), 0o644)
	}
	if err := write("shroud_runtime.hpp", nativegen.RuntimeHeader); err != nil {
		return err
	}
	for _, cr := range result.Classes {
		a := cr.Artifacts
		base := fmt.Sprintf("class_%d", a.ClassID)
		if err := write(base+".hpp", a.Header); err != nil {
			return err
		}
		if err := write(base+".cpp", a.Source); err != nil {
			return err
		}
	}
	if err := write("registry.cpp", result.Central); err != nil {
		return err
	}
	manifest, err := json.MarshalIndent(result.Manifest, "", "  ")
	if err != nil {
		return err
	}
	return write("manifest.json", string(manifest)+"\n")
}

func printSummary(result *compiler.BuildResult) {
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Class", "Lowered", "VM", "Flattened", "Kept", "Errors"})
	table.SetBorder(false)
	for _, cr := range result.Classes {
		table.Append([]string{
			cr.Artifacts.Name,
			fmt.Sprintf("%d", len(cr.Lowered)),
			fmt.Sprintf("%d", len(cr.VMBacked)),
			fmt.Sprintf("%d", len(cr.Flattened)),
			fmt.Sprintf("%d", len(cr.Kept)),
			fmt.Sprintf("%d", len(cr.Errors)),
		})
	}
	table.Render()
}
