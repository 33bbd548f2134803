// Copyright 2024 The Fprint Authors. All Rights Reserved.
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

package fprint

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type fixedSummarizer string

func (f fixedSummarizer) SummarizePackage(string) (string, error) { return string(f), nil }

func TestClassifyBuildScriptLegacy(t *testing.T) {
	locals, err := classifyBuildScript("pkg", &BuildScriptOutput{}, "out", "/pkg", fixedSummarizer("summary-v1"))
	require.NoError(t, err)
	require.Len(t, locals, 1)
	require.Equal(t, LocalPrecalculated, locals[0].Kind)
	require.Equal(t, "summary-v1", locals[0].Precalculated)
}

func TestClassifyBuildScriptModern(t *testing.T) {
	val := "v1"
	out := &BuildScriptOutput{
		RerunIfChanged:    []string{"/pkg/build.rs", "/pkg/src/gen.rs"},
		RerunIfEnvChanged: []RustcDepInfoEnv{{Var: "K", Value: &val}},
	}
	locals, err := classifyBuildScript("pkg", out, "invoked-output", "/pkg", fixedSummarizer(""))
	require.NoError(t, err)
	require.Len(t, locals, 2)
	require.Equal(t, LocalRerunIfChanged, locals[0].Kind)
	require.Equal(t, []string{"build.rs", "src/gen.rs"}, locals[0].Paths)
	require.Equal(t, LocalRerunIfEnvChanged, locals[1].Kind)
	require.Equal(t, "K", locals[1].EnvVar)
	require.Equal(t, "v1", locals[1].EnvValue)
}

func TestReevaluateBuildScriptDetectsChange(t *testing.T) {
	prev, err := classifyBuildScript("pkg", &BuildScriptOutput{}, "out", "/pkg", fixedSummarizer("v1"))
	require.NoError(t, err)

	fresh, changed, err := reevaluateBuildScript("pkg", &BuildScriptOutput{}, "out", "/pkg", fixedSummarizer("v2"), prev)
	require.NoError(t, err)
	require.True(t, changed)
	require.Equal(t, "v2", fresh[0].Precalculated)
}

func TestReevaluateBuildScriptNoChange(t *testing.T) {
	prev, err := classifyBuildScript("pkg", &BuildScriptOutput{}, "out", "/pkg", fixedSummarizer("v1"))
	require.NoError(t, err)

	_, changed, err := reevaluateBuildScript("pkg", &BuildScriptOutput{}, "out", "/pkg", fixedSummarizer("v1"), prev)
	require.NoError(t, err)
	require.False(t, changed)
}

func TestBuildScriptOverrideLocalDeterministic(t *testing.T) {
	o1 := BuildScriptOverride{Data: map[string]string{"a": "1", "b": "2"}}
	o2 := BuildScriptOverride{Data: map[string]string{"b": "2", "a": "1"}}
	require.Equal(t, buildScriptOverrideLocal(o1), buildScriptOverrideLocal(o2))
}
