// Copyright 2025 Blink Labs Software
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

package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/blinklabs-io/veilpost/internal/config"
	"github.com/blinklabs-io/veilpost/verifier"
	"github.com/spf13/cobra"
)

func zksetupCommand() *cobra.Command {
	var pkPath, vkPath string
	cmd := &cobra.Command{
		Use:   "zksetup",
		Short: "Compile the membership circuit and generate proving keys",
		Run: func(cmd *cobra.Command, args []string) {
			cfg := config.FromContext(cmd.Context())
			if cfg == nil {
				slog.Error("no config found in context")
				os.Exit(1)
			}
			if pkPath == "" {
				pkPath = cfg.ProvingKeyPath
			}
			if vkPath == "" {
				vkPath = cfg.VerifyingKeyPath
			}
			if pkPath == "" || vkPath == "" {
				slog.Error(
					"proving and verifying key paths are required, set them via flags or config",
				)
				os.Exit(1)
			}
			fmt.Println("compiling membership circuit")
			ccs, err := verifier.CompileCircuit()
			if err != nil {
				slog.Error(fmt.Sprintf("failed to compile circuit: %s", err))
				os.Exit(1)
			}
			fmt.Println("running groth16 setup (this can take a while)")
			_, _, err = verifier.SetupOrLoadKeys(ccs, pkPath, vkPath)
			if err != nil {
				slog.Error(fmt.Sprintf("failed to set up keys: %s", err))
				os.Exit(1)
			}
			fmt.Printf("proving key:   %s\n", pkPath)
			fmt.Printf("verifying key: %s\n", vkPath)
		},
	}
	cmd.Flags().StringVar(
		&pkPath,
		"proving-key",
		"",
		"output path for the proving key (defaults to configured provingKeyPath)",
	)
	cmd.Flags().StringVar(
		&vkPath,
		"verifying-key",
		"",
		"output path for the verifying key (defaults to configured verifyingKeyPath)",
	)
	return cmd
}
