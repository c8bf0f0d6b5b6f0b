//go:build windows

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

package keystore

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/windows"
)

// currentUserSIDString returns the SID string for the current process user.
func currentUserSIDString(t *testing.T) string {
	t.Helper()

	var token windows.Token
	err := windows.OpenProcessToken(
		windows.CurrentProcess(),
		windows.TOKEN_QUERY,
		&token,
	)
	require.NoError(t, err)
	defer token.Close()

	tokenUser, err := token.GetTokenUser()
	require.NoError(t, err)

	return tokenUser.User.Sid.String()
}

// applyDACL sets the DACL described by the given SDDL string on the file.
// SDDL avoids unsafe pointer operations that cause heap corruption on
// Go 1.24+.
func applyDACL(t *testing.T, path, sddl string, flags windows.SECURITY_INFORMATION) {
	t.Helper()

	sd, err := windows.SecurityDescriptorFromString(sddl)
	require.NoError(t, err)

	dacl, _, err := sd.DACL()
	require.NoError(t, err)

	err = windows.SetNamedSecurityInfo(
		path,
		windows.SE_FILE_OBJECT,
		flags,
		nil, nil, dacl, nil,
	)
	require.NoError(t, err)
}

func writeTokenKeyFixture(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "token.skey")
	require.NoError(t, os.WriteFile(path, []byte("fixture"), 0o600))
	return path
}

func TestCheckFilePermissionsInsecureWindows(t *testing.T) {
	// Each DACL grants read access to a broad well-known group, which
	// must be rejected for a signing key file.
	tests := []struct {
		name      string
		sddl      string
		principal string
	}{
		{"everyone", "D:(A;;GR;;;WD)", "Everyone"},
		{"builtin users", "D:(A;;GR;;;BU)", "BUILTIN\\Users"},
		{"authenticated users", "D:(A;;GR;;;AU)", "Authenticated Users"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			keyFile := writeTokenKeyFixture(t)
			applyDACL(
				t,
				keyFile,
				tc.sddl,
				windows.DACL_SECURITY_INFORMATION,
			)

			err := checkFilePermissions(keyFile)
			assert.Error(t, err)
			assert.ErrorIs(t, err, ErrInsecureFileMode)
			assert.Contains(t, err.Error(), tc.principal)
		})
	}
}

func TestCheckFilePermissionsSecureWindows(t *testing.T) {
	keyFile := writeTokenKeyFixture(t)

	// Explicitly set an owner-only protected DACL. Default Windows ACLs
	// inherit from the parent directory and typically include
	// BUILTIN\Users, which checkFilePermissions rejects.
	// D:P = protected DACL, (A;;GA;;;SID) = allow GENERIC_ALL to the SID.
	sddl := fmt.Sprintf("D:P(A;;GA;;;%s)", currentUserSIDString(t))
	applyDACL(
		t,
		keyFile,
		sddl,
		windows.DACL_SECURITY_INFORMATION|
			windows.PROTECTED_DACL_SECURITY_INFORMATION,
	)

	err := checkFilePermissions(keyFile)
	assert.NoError(t, err)
}
