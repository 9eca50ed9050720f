// Copyright 2025 Tomas Machalek <tomas.machalek@gmail.com>
// Copyright 2025 Institute of the Czech National Corpus,
//                Faculty of Arts, Charles University
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package ctype

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIPTableEntries(t *testing.T) {
	table := NewIPTable()
	require.NoError(t, table.Add(" 66.249.66 "))
	require.NoError(t, table.Add("66.249."))
	assert.Error(t, table.Add(""))
	assert.Equal(t, []string{"66.249.66", "66.249."}, table.Entries())
	assert.Equal(t, 2, table.Size())
	assert.True(t, table.Contains("66.249.1.1"))
}

func TestIPTableMappedAddress(t *testing.T) {
	table := NewIPTable()
	require.NoError(t, table.Add("192.0.2.0/24"))
	assert.True(t, table.Contains("::ffff:192.0.2.1"))
}
