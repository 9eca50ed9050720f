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

package notifications

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capturingNotifier struct {
	severity   Severity
	subject    string
	paragraphs []string
}

func (n *capturingNotifier) SendNotification(
	severity Severity,
	subject string,
	metadata map[string]any,
	paragraphs ...string,
) error {
	n.severity = severity
	n.subject = subject
	n.paragraphs = paragraphs
	return nil
}

func TestSendJobReport(t *testing.T) {
	n := &capturingNotifier{}
	SendJobReport(n, JobReport{
		Job:      "anonymize",
		Success:  false,
		Summary:  "8 of 10 documents updated",
		Metadata: map[string]any{"total": 10, "updated": 8},
	})
	assert.Equal(t, SeverityWarning, n.severity)
	assert.Equal(t, "ustatproc job anonymize finished with problems", n.subject)
	assert.Equal(t, []string{"8 of 10 documents updated", "total: 10\nupdated: 8\n"}, n.paragraphs)

	SendJobReport(nil, JobReport{Job: "shard"})
}

func TestNewNotifierIsNullWithoutConfig(t *testing.T) {
	n, err := NewNotifier(nil, nil, nil)
	require.NoError(t, err)
	assert.IsType(t, &nullNotifier{}, n)
	assert.NoError(t, n.SendNotification(SeverityInfo, "subj", nil, "body"))
}
