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

package content

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSnapshot = `{
	"communities": [{"id": "M1"}, {"id": "M2", "parents": ["M1"]}],
	"collections": [{"id": "C1", "communities": ["M2"]}],
	"items": [{"id": "I1", "collections": ["C1"]}],
	"bundles": [{"id": "B1", "name": "ORIGINAL", "items": ["I1"]}],
	"bitstreams": [{"id": "F1", "bundles": ["B1"]}]
}`

func TestLoadRepository(t *testing.T) {
	path := filepath.Join(t.TempDir(), "content.json")
	require.NoError(t, os.WriteFile(path, []byte(testSnapshot), 0644))
	repo, err := LoadRepository(path)
	require.NoError(t, err)

	obj, err := repo.Find(context.Background(), TypeBitstream, "F1")
	require.NoError(t, err)
	anc := Ancestors(obj)
	assert.Equal(t, []string{"I1"}, anc.OwningItem)
	assert.Equal(t, []string{"C1"}, anc.OwningColl)
	assert.ElementsMatch(t, []string{"M1", "M2"}, anc.OwningComm)
	assert.Equal(t, []string{"ORIGINAL"}, BundleNames(obj))

	_, err = repo.Find(context.Background(), TypeItem, "I2")
	assert.Error(t, err)
}

func TestSnapshotUnknownOwner(t *testing.T) {
	var s Snapshot
	require.NoError(t, json.Unmarshal([]byte(`{"items": [{"id": "I1", "collections": ["C7"]}]}`), &s))
	_, err := s.Repository()
	assert.Error(t, err)
}
