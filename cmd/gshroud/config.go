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

package main

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"reflect"
	"unicode"

	"github.com/naoina/toml"
	"gopkg.in/urfave/cli.v1"

	"github.com/shroudlabs/go-shroud/compiler"
)

// These settings ensure that TOML keys use the same names as Go struct fields.
var tomlSettings = toml.Config{
	NormFieldName: func(rt reflect.Type, key string) string {
		return key
	},
	FieldToKey: func(rt reflect.Type, field string) string {
		return field
	},
	MissingField: func(rt reflect.Type, field string) error {
		var link string
		if unicode.IsUpper(rune(rt.Name()[0])) && rt.PkgPath() != "main" {
			link = fmt.Sprintf(", see https://godoc.org/%s#%s for available fields", rt.PkgPath(), rt.Name())
		}
		return fmt.Errorf("field '%s' is not defined in %s%s", field, rt.String(), link)
	},
}

type gshroudConfig struct {
	Virtualization bool
	VMJit          bool
	NativeFlatten  bool
	FlattenJava    bool
	Strength       string
	Allowlist      []string
	Denylist       []string
}

func defaultConfig() gshroudConfig {
	return gshroudConfig{
		FlattenJava: true,
		Strength:    "high",
	}
}

func loadConfig(file string, cfg *gshroudConfig) error {
	f, err := os.Open(file)
	if err != nil {
		return err
	}
	defer f.Close()

	err = tomlSettings.NewDecoder(bufio.NewReader(f)).Decode(cfg)
	// Add file name to errors that have a line number.
	if _, ok := err.(*toml.LineError); ok {
		err = errors.New(file + ", " + err.Error())
	}
	return err
}

// makeOptions folds the config file and CLI flags into compiler options.
// Flags override file settings.
func makeOptions(ctx *cli.Context) (*compiler.Options, error) {
	cfg := defaultConfig()
	if file := ctx.GlobalString(configFileFlag.Name); file != "" {
		if err := loadConfig(file, &cfg); err != nil {
			return nil, err
		}
	}
	if ctx.GlobalIsSet(virtFlag.Name) {
		cfg.Virtualization = ctx.GlobalBool(virtFlag.Name)
	}
	if ctx.GlobalIsSet(vmJitFlag.Name) {
		cfg.VMJit = ctx.GlobalBool(vmJitFlag.Name)
	}
	if ctx.GlobalIsSet(nativeFlattenFlag.Name) {
		cfg.NativeFlatten = ctx.GlobalBool(nativeFlattenFlag.Name)
	}
	if ctx.GlobalIsSet(strengthFlag.Name) {
		cfg.Strength = ctx.GlobalString(strengthFlag.Name)
	}
	if v := ctx.GlobalStringSlice(allowFlag.Name); len(v) > 0 {
		cfg.Allowlist = v
	}
	if v := ctx.GlobalStringSlice(denyFlag.Name); len(v) > 0 {
		cfg.Denylist = v
	}

	strength, err := compiler.ParseStrength(cfg.Strength)
	if err != nil {
		return nil, err
	}
	return &compiler.Options{
		Virtualization: cfg.Virtualization,
		VMJit:          cfg.VMJit,
		NativeFlatten:  cfg.NativeFlatten,
		FlattenJava:    cfg.FlattenJava,
		Strength:       strength,
		Allowlist:      cfg.Allowlist,
		Denylist:       cfg.Denylist,
	}, nil
}

func dumpConfig(ctx *cli.Context) error {
	cfg := defaultConfig()
	if file := ctx.GlobalString(configFileFlag.Name); file != "" {
		if err := loadConfig(file, &cfg); err != nil {
			return err
		}
	}
	out, err := tomlSettings.Marshal(&cfg)
	if err != nil {
		return err
	}
	os.Stdout.Write(out)
	return nil
}
