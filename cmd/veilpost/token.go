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
	"time"

	"github.com/blinklabs-io/veilpost/internal/config"
	"github.com/blinklabs-io/veilpost/keystore"
	"github.com/golang-jwt/jwt/v5"
	"github.com/spf13/cobra"
)

func tokenCommand() *cobra.Command {
	var (
		subject string
		expiry  time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint an API bearer token for a principal",
		Run: func(cmd *cobra.Command, args []string) {
			cfg := config.FromContext(cmd.Context())
			if cfg == nil {
				slog.Error("no config found in context")
				os.Exit(1)
			}
			if subject == "" {
				slog.Error("a subject principal is required")
				os.Exit(1)
			}
			if cfg.TokenKeyPath == "" {
				slog.Error("no tokenKeyPath configured")
				os.Exit(1)
			}
			ks := keystore.NewKeyStore(keystore.KeyStoreConfig{
				TokenSKeyPath: cfg.TokenKeyPath,
			})
			if err := ks.LoadKeys(); err != nil {
				slog.Error(fmt.Sprintf("failed to load signing key: %s", err))
				os.Exit(1)
			}
			now := time.Now()
			signed, err := ks.SignToken(jwt.RegisteredClaims{
				Subject:   subject,
				IssuedAt:  jwt.NewNumericDate(now),
				ExpiresAt: jwt.NewNumericDate(now.Add(expiry)),
			})
			if err != nil {
				slog.Error(fmt.Sprintf("failed to sign token: %s", err))
				os.Exit(1)
			}
			fmt.Println(signed)
		},
	}
	cmd.Flags().StringVarP(
		&subject,
		"subject",
		"s",
		"",
		"principal identifier to embed as the token subject",
	)
	cmd.Flags().DurationVarP(
		&expiry,
		"expiry",
		"e",
		24*time.Hour,
		"token lifetime",
	)
	return cmd
}
