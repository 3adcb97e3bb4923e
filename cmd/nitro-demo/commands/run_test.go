// Copyright 2025 PolyCrypt GmbH
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

package commands_test

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"perun.network/perun-nitro-backend/cmd/nitro-demo/commands"
)

func execute(t *testing.T, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	root := commands.NewRootCmd()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(append(args, "--log-level", "error"))
	require.NoError(t, root.Execute(), out.String())
	return out.String()
}

func TestRun(t *testing.T) {
	for _, mode := range []string{"dispute", "cooperative"} {
		mode := mode
		t.Run(mode, func(t *testing.T) {
			out := execute(t, "run", "--mode", mode)
			require.Contains(t, out, "settled by "+mode)
			require.Contains(t, out, "delta  alice  90")
			require.Contains(t, out, "delta  bob    -90")
			require.Contains(t, out, "delta  irene  0")
		})
	}
}

func TestRunBolt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.db")
	out := execute(t, "run", "--store", "bolt", "--store-path", path)
	require.Contains(t, out, "payout alice  190")
	require.FileExists(t, path)
}

func TestRunInvalidMode(t *testing.T) {
	root := commands.NewRootCmd()
	root.SetOut(new(bytes.Buffer))
	root.SetErr(new(bytes.Buffer))
	root.SetArgs([]string{"run", "--mode", "optimistic"})
	require.Error(t, root.Execute())
}
