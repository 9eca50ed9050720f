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

// Package healthchk watches availability of statistics cores
// and reports cores which stop responding.
package healthchk

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"ustatproc/notifications"
)

// Pinger checks a single core
type Pinger interface {
	Ping(ctx context.Context, core string) error
}

// CoreLister provides all the cores to be watched
type CoreLister interface {
	Discover(ctx context.Context) ([]string, error)
}

type coreInfo struct {
	lastSeen time.Time
	failing  bool
	reported bool
}

// StoreWatchdog pings statistics cores in regular intervals. A core
// failing for longer than maxInactivity is reported once, its recovery
// is reported as well.
type StoreWatchdog struct {
	pinger          Pinger
	cores           CoreLister
	maxInactivity   time.Duration
	notifier        notifications.Notifier
	notificationTag string
	nowFn           func() time.Time

	dataLock sync.Mutex
	status   map[string]*coreInfo
}

func (wd *StoreWatchdog) report(severity notifications.Severity, subj string, core string) {
	meta := map[string]any{"core": core, "tag": wd.notificationTag}
	if wd.notifier == nil {
		log.Error().Str("subject", subj).Msg("statistics core status changed")
		return
	}
	if err := wd.notifier.SendNotification(severity, subj, meta); err != nil {
		log.Error().
			Err(err).
			Str("core", core).
			Msg("failed to send core status notification")
	}
}

// CheckStatus pings all the cores once
func (wd *StoreWatchdog) CheckStatus(ctx context.Context) error {
	cores, err := wd.cores.Discover(ctx)
	if err != nil {
		return fmt.Errorf("failed to list statistics cores: %w", err)
	}
	wd.dataLock.Lock()
	defer wd.dataLock.Unlock()
	now := wd.nowFn()
	for _, core := range cores {
		info, ok := wd.status[core]
		if !ok {
			info = &coreInfo{lastSeen: now}
			wd.status[core] = info
		}
		if err := wd.pinger.Ping(ctx, core); err != nil {
			log.Warn().Err(err).Str("core", core).Msg("statistics core does not respond")
			info.failing = true
			if !info.reported && now.Sub(info.lastSeen) >= wd.maxInactivity {
				info.reported = true
				wd.report(
					notifications.SeverityWarning,
					fmt.Sprintf(
						"statistics core %s does not respond for too long (limit: %01.0f sec.)",
						core, wd.maxInactivity.Seconds(),
					),
					core,
				)
			}
			continue
		}
		if info.reported {
			wd.report(
				notifications.SeverityInfo,
				fmt.Sprintf("statistics core %s responds again", core),
				core,
			)
		}
		info.lastSeen = now
		info.failing = false
		info.reported = false
	}
	return nil
}

// Failing returns cores which did not respond during the last check
func (wd *StoreWatchdog) Failing() []string {
	wd.dataLock.Lock()
	defer wd.dataLock.Unlock()
	ans := make([]string, 0, len(wd.status))
	for core, info := range wd.status {
		if info.failing {
			ans = append(ans, core)
		}
	}
	return ans
}

// Run checks the cores until ctx is cancelled
func (wd *StoreWatchdog) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Warn().Msg("StoreWatchdog closing due to cancellation")
			return
		case <-ticker.C:
			if err := wd.CheckStatus(ctx); err != nil {
				log.Error().Err(err).Msg("failed to check statistics cores")
			}
		}
	}
}

// NewStoreWatchdog creates a watchdog.
// note - the notifier can be nil in which case, only the application log
// will be used to put the alarms in.
func NewStoreWatchdog(
	pinger Pinger,
	cores CoreLister,
	maxInactivitySecs int,
	notifier notifications.Notifier,
	notificationTag string,
) *StoreWatchdog {
	return &StoreWatchdog{
		pinger:          pinger,
		cores:           cores,
		maxInactivity:   time.Duration(maxInactivitySecs) * time.Second,
		notifier:        notifier,
		notificationTag: notificationTag,
		nowFn:           time.Now,
		status:          make(map[string]*coreInfo),
	}
}
