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
	"github.com/blinklabs-io/veilpost/keystore"
	"github.com/spf13/cobra"
)

func keygenCommand() *cobra.Command {
	var outputPath string
	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Generate a token signing key file",
		Run: func(cmd *cobra.Command, args []string) {
			cfg := config.FromContext(cmd.Context())
			if cfg == nil {
				slog.Error("no config found in context")
				os.Exit(1)
			}
			path := outputPath
			if path == "" {
				path = cfg.TokenKeyPath
			}
			if path == "" {
				slog.Error(
					"no output path given and no tokenKeyPath configured",
				)
				os.Exit(1)
			}
			err := keystore.GenerateKeyFile(path, "API token signing key")
			if err != nil {
				slog.Error(fmt.Sprintf("failed to generate key: %s", err))
				os.Exit(1)
			}
			fmt.Printf("wrote token signing key to %s\n", path)
		},
	}
	cmd.Flags().StringVarP(
		&outputPath,
		"output",
		"o",
		"",
		"output path for the key file (defaults to configured tokenKeyPath)",
	)
	return cmd
}
