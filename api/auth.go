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

package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/blinklabs-io/veilpost/ledger"
	"github.com/golang-jwt/jwt/v5"
)

type principalContextKey struct{}

// requireAuth wraps a handler with bearer-token authentication. The token
// must be EdDSA-signed by the node's keystore and carry the caller
// principal in the subject claim.
func (a *Api) requireAuth(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		tokenStr, ok := strings.CutPrefix(authHeader, "Bearer ")
		if !ok || tokenStr == "" {
			writeError(
				w,
				http.StatusUnauthorized,
				"Unauthorized",
				"missing bearer token",
			)
			return
		}
		var claims jwt.RegisteredClaims
		token, err := jwt.ParseWithClaims(
			tokenStr,
			&claims,
			a.keystore.Keyfunc,
		)
		if err != nil || !token.Valid {
			writeError(
				w,
				http.StatusUnauthorized,
				"Unauthorized",
				"invalid bearer token",
			)
			return
		}
		caller := ledger.Principal(claims.Subject)
		if !caller.Valid() {
			writeError(
				w,
				http.StatusUnauthorized,
				"Unauthorized",
				"token subject is not a valid principal",
			)
			return
		}
		ctx := context.WithValue(r.Context(), principalContextKey{}, caller)
		next(w, r.WithContext(ctx))
	})
}

// requestPrincipal returns the authenticated caller from the request
// context. Only valid inside handlers wrapped with requireAuth.
func requestPrincipal(r *http.Request) ledger.Principal {
	caller, _ := r.Context().Value(principalContextKey{}).(ledger.Principal)
	return caller
}
