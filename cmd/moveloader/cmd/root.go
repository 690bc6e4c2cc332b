// Copyright 2024 Move Loader Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/move-lang/moveloader/internal/compiledcache"
	"github.com/move-lang/moveloader/internal/loader"
	"github.com/move-lang/moveloader/internal/moduleid"
	"github.com/move-lang/moveloader/internal/natives"
	"github.com/move-lang/moveloader/internal/store"
	"github.com/move-lang/moveloader/internal/verifier"
)

var scenarioPath string

// Execute runs the moveloader CLI, returning the first subcommand error.
func Execute() error {
	return rootCmd().Execute()
}

// Main runs the moveloader CLI and returns the code for passing to
// os.Exit. It is also registered under the "moveloader" name for the
// testscript harness in script_test.go, so CLI behavior is exercised
// as a real subprocess rather than through in-process command calls.
func Main() int {
	if err := Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	return 0
}

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "moveloader",
		Short:        "Drive the module loader from a hand-written scenario",
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVarP(&scenarioPath, "scenario", "s", "", "path to a scenario JSON file (required)")
	cmd.AddCommand(publishCmd(), runFunctionCmd(), inspectLayoutCmd())
	return cmd
}

// newLoader builds a Loader over an in-memory store, a permissive
// verifier, and an empty native table, with lazy native binding enabled
// (SPEC_FULL.md's supplemented lazy_natives mode) since this CLI's
// scenarios never register real native implementations.
func newLoader() *loader.Loader {
	return loader.New(loader.Config{
		Store:    store.NewMemStore(),
		Verifier: verifier.Permissive{},
		Natives:  natives.NewMapRegistry(),
		VerifyCfg: verifier.Config{
			MaxBinaryFormatVersion: 6,
			LazyNatives:            true,
		},
		BinaryCfg:   compiledcache.BinaryConfig{MaxBinaryFormatVersion: 6},
		LazyNatives: true,
	})
}

func requireScenario() (*Scenario, error) {
	if scenarioPath == "" {
		return nil, fmt.Errorf("--scenario is required")
	}
	return LoadScenario(scenarioPath)
}

// scenarioLinkContext picks the first module's address as the
// transaction's default link context: these scenarios publish and then
// immediately resolve under a single namespace unless a request
// overrides it with its own Context field.
func scenarioLinkContext(sc *Scenario) (moduleid.LinkContext, error) {
	if len(sc.Modules) == 0 {
		return moduleid.LinkContext{}, fmt.Errorf("scenario declares no modules")
	}
	addr, err := parseAddress(sc.Modules[0].Address)
	if err != nil {
		return moduleid.LinkContext{}, err
	}
	return moduleid.NewLinkContext(addr), nil
}
