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

package anonymize

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/pflag"
)

const (
	DefaultBatch   = 200
	DefaultThreads = 2
	DefaultSleepMs = 0
)

// ErrHelp is returned when the help has been requested
var ErrHelp = pflag.ErrHelp

type Options struct {
	SleepMs int
	Batch   int
	Threads int
}

func (opts Options) Validate() error {
	if opts.Batch <= 0 {
		return fmt.Errorf("batch size must be positive, got %d", opts.Batch)
	}
	if opts.Threads <= 0 {
		return fmt.Errorf("number of threads must be positive, got %d", opts.Threads)
	}
	if opts.SleepMs < 0 {
		return fmt.Errorf("sleep must not be negative, got %d", opts.SleepMs)
	}
	return nil
}

// ParseOptions parses command line arguments of the anonymization.
// Usage is written to out in case of the help request or an error.
func ParseOptions(args []string, out io.Writer) (Options, error) {
	var opts Options
	flags := pflag.NewFlagSet("anonymize", pflag.ContinueOnError)
	flags.SetOutput(out)
	flags.IntVarP(&opts.SleepMs, "sleep", "s", DefaultSleepMs, "sleep between rounds (in milliseconds)")
	flags.IntVarP(&opts.Batch, "batch", "b", DefaultBatch, "number of documents processed in a round")
	flags.IntVarP(&opts.Threads, "threads", "t", DefaultThreads, "number of parallel workers")
	flags.Usage = func() {
		fmt.Fprintln(out, "Anonymize IP addresses and DNS names of old statistics documents\n\nOptions:")
		flags.PrintDefaults()
	}
	if err := flags.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return opts, ErrHelp
		}
		return opts, err
	}
	if err := opts.Validate(); err != nil {
		flags.Usage()
		return opts, err
	}
	return opts, nil
}
