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
)

func publishCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "publish",
		Short: "Publish every module in the scenario and report their runtime ids",
		RunE: func(cmd *cobra.Command, args []string) error {
			sc, err := requireScenario()
			if err != nil {
				return err
			}
			inputs, err := buildPublishInputs(sc)
			if err != nil {
				return err
			}
			linkCtx, err := scenarioLinkContext(sc)
			if err != nil {
				return err
			}
			l := newLoader()
			if err := l.PublishBundle(cmd.Context(), linkCtx, inputs); err != nil {
				return err
			}
			for _, in := range inputs {
				fmt.Fprintf(cmd.OutOrStdout(), "published %s at %s\n", in.RuntimeID, in.Version)
			}
			return nil
		},
	}
}
