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

	"github.com/spf13/cobra"

	"github.com/move-lang/moveloader/internal/moduleid"
	"github.com/move-lang/moveloader/internal/typerepr"
)

func runFunctionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run-function",
		Short: "Publish the scenario, then resolve and instantiate one function against it",
		Long: "run-function does not execute bytecode (the interpreter is out of\n" +
			"scope); it drives LoadFunction end to end and reports the resolved\n" +
			"function's instantiated parameter and return types.",
		RunE: func(cmd *cobra.Command, args []string) error {
			sc, err := requireScenario()
			if err != nil {
				return err
			}
			if sc.RunFunction == nil {
				return fmt.Errorf("scenario has no runFunction request")
			}
			req := sc.RunFunction

			inputs, err := buildPublishInputs(sc)
			if err != nil {
				return err
			}
			pubCtx, err := scenarioLinkContext(sc)
			if err != nil {
				return err
			}
			l := newLoader()
			if err := l.PublishBundle(cmd.Context(), pubCtx, inputs); err != nil {
				return err
			}

			addr, modName, err := parseModuleRef(req.Module)
			if err != nil {
				return err
			}
			linkCtx := pubCtx
			if req.Context != "" {
				ctxAddr, err := parseAddress(req.Context)
				if err != nil {
					return err
				}
				linkCtx = moduleid.NewLinkContext(ctxAddr)
			}

			tyArgs := make([]typerepr.TypeRepr, len(req.TyArgs))
			for i, s := range req.TyArgs {
				tag, err := parseTypeTagString(s)
				if err != nil {
					return fmt.Errorf("type argument %d: %w", i, err)
				}
				ty, err := l.LoadType(cmd.Context(), linkCtx, tag)
				if err != nil {
					return fmt.Errorf("loading type argument %d: %w", i, err)
				}
				tyArgs[i] = ty
			}

			runtimeID := moduleid.RuntimeId{ModuleId: moduleid.ModuleId{Address: addr, Name: modName}}
			inst, err := l.LoadFunction(cmd.Context(), linkCtx, runtimeID, req.Name, tyArgs)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "resolved %s::%s with %d parameter(s), %d return value(s)\n",
				runtimeID, req.Name, len(inst.Parameters), len(inst.Return))
			return nil
		},
	}
}
