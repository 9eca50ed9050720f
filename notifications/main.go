// Copyright 2019 Tomas Machalek <tomas.machalek@gmail.com>
// Copyright 2019 Institute of the Czech National Corpus,
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

// Package notifications reports results of maintenance jobs
// to administrators.
package notifications

import (
	"errors"
	"fmt"
	goMail "net/mail"
	"sort"
	"strings"
	"time"

	"github.com/czcorpus/cnc-gokit/mail"
	"github.com/czcorpus/conomi/client"
	"github.com/rs/zerolog/log"
)

const (
	defaultSender = "ustatproc@localhost"
)

type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
)

// Notifier is a general type representing a service
// for sending job reports to administrators
type Notifier interface {
	SendNotification(severity Severity, subject string, metadata map[string]any, paragraphs ...string) error
}

// JobReport summarizes a run of a maintenance job
type JobReport struct {
	Job      string
	Success  bool
	Summary  string
	Details  []string
	Metadata map[string]any
}

func (r JobReport) severity() Severity {
	if r.Success {
		return SeverityInfo
	}
	return SeverityWarning
}

func (r JobReport) subject() string {
	if r.Success {
		return fmt.Sprintf("ustatproc job %s finished", r.Job)
	}
	return fmt.Sprintf("ustatproc job %s finished with problems", r.Job)
}

func (r JobReport) paragraphs() []string {
	ans := make([]string, 0, len(r.Details)+2)
	ans = append(ans, r.Summary)
	ans = append(ans, r.Details...)
	if len(r.Metadata) > 0 {
		keys := make([]string, 0, len(r.Metadata))
		for k := range r.Metadata {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		var buff strings.Builder
		for _, k := range keys {
			buff.WriteString(fmt.Sprintf("%s: %v\n", k, r.Metadata[k]))
		}
		ans = append(ans, buff.String())
	}
	return ans
}

// SendJobReport sends the report and logs a possible failure.
// A job result never depends on whether its report has been delivered.
func SendJobReport(notifier Notifier, report JobReport) {
	if notifier == nil {
		return
	}
	err := notifier.SendNotification(
		report.severity(), report.subject(), report.Metadata, report.paragraphs()...)
	if err != nil {
		log.Error().Err(err).Str("job", report.Job).Msg("failed to send job report")
	}
}

// NewNotifier is a factory function for e-mail/Conomi notification.
// Both configs are mutually exclusive and in case both
// are provided, the function returns and error.
//
// Missing sender is replaced by a default value.
func NewNotifier(
	conf *mail.NotificationConf,
	conf2 *client.ConomiClientConf,
	loc *time.Location,
) (Notifier, error) {
	if conf != nil && conf2 != nil {
		return nil, errors.New("either Conomi or e-mail notifier can be configured")
	}
	if conf2 != nil {
		cclient := client.NewConomiClient(*conf2)
		return &conomiNotifier{client: cclient}, nil

	} else if conf != nil {
		if conf.Sender == "" {
			log.Warn().Msgf("e-mail sender not set - using default %s", defaultSender)
			conf.Sender = defaultSender
		}
		validated := append([]string{conf.Sender}, conf.Recipients...)
		for _, addr := range validated {
			if _, err := goMail.ParseAddress(addr); err != nil {
				return nil, fmt.Errorf("incorrect e-mail address %s: %s", addr, err)
			}
		}
		log.Info().Msgf(
			"creating e-mail sender with recipient(s) %s", strings.Join(conf.Recipients, ", "))
		return &emailNotifier{conf: conf, loc: loc}, nil
	}
	return &nullNotifier{}, nil
}
