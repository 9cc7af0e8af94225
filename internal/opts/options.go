/*
 * Copyright 2022 CloudWeGo Authors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package opts

import (
	"os"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
)

type Options struct {
	SupportSubroutines    bool
	MaxSubroutineDepth    int
	ConsecutiveLoopBlocks bool
	ForceLoopPhis         bool
	ClearNonLiveLocals    bool
	Verify                bool
	Logger                log.Logger
}

// CanNestSubroutine reports whether a subroutine scope of depth d may be entered.
func (self *Options) CanNestSubroutine(d int) bool {
	return d <= self.MaxSubroutineDepth && d <= MaxSubroutineDepthLimit
}

// Debug logs at debug level with the given key-value pairs.
func (self *Options) Debug(keyvals ...interface{}) {
	if self.Logger != nil {
		_ = level.Debug(self.Logger).Log(keyvals...)
	}
}

func GetDefaultOptions() Options {
	return Options{
		SupportSubroutines:    SupportSubroutines,
		MaxSubroutineDepth:    MaxSubroutineDepth,
		ConsecutiveLoopBlocks: ConsecutiveLoopBlocks,
		ForceLoopPhis:         ForceLoopPhis,
		ClearNonLiveLocals:    ClearNonLiveLocals,
		Verify:                Verify,
		Logger:                DefaultLogger(),
	}
}

// DefaultLogger returns a logfmt logger on stderr when BCFLOW_DEBUG is set,
// and a no-op logger otherwise.
func DefaultLogger() log.Logger {
	if !Debug {
		return log.NewNopLogger()
	}
	logger := log.NewLogfmtLogger(log.NewSyncWriter(os.Stderr))
	logger = level.NewFilter(logger, level.AllowDebug())
	return log.With(logger, "pkg", "bcflow")
}
