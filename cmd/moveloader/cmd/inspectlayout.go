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
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/move-lang/moveloader/internal/moduleid"
)

func inspectLayoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "inspect-layout",
		Short: "Publish the scenario, then print the annotated layout of one type",
		RunE: func(cmd *cobra.Command, args []string) error {
			sc, err := requireScenario()
			if err != nil {
				return err
			}
			if sc.InspectLayout == nil {
				return fmt.Errorf("scenario has no inspectLayout request")
			}
			req := sc.InspectLayout

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

			linkCtx := pubCtx
			if req.Context != "" {
				ctxAddr, err := parseAddress(req.Context)
				if err != nil {
					return err
				}
				linkCtx = moduleid.NewLinkContext(ctxAddr)
			}

			tag, err := parseTypeTagString(req.Type)
			if err != nil {
				return err
			}
			al, err := l.AnnotatedLayoutOf(cmd.Context(), linkCtx, tag)
			if err != nil {
				return err
			}
			out, err := json.MarshalIndent(al, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return nil
		},
	}
}
