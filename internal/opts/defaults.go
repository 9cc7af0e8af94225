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
	"strconv"
)

const (
	_DefaultMaxSubroutineDepth = 4    // a scope packs 4 return addresses of 16 bits each
	_DefaultCacheSize          = 1024 // cached compilation results
)

// MaxSubroutineDepthLimit is the hard upper bound of subroutine nesting.
const MaxSubroutineDepthLimit = 4

var (
	SupportSubroutines    = parseBoolOrDefault("BCFLOW_SUPPORT_JSR", true)
	MaxSubroutineDepth    = parseOrDefault("BCFLOW_MAX_JSR_DEPTH", _DefaultMaxSubroutineDepth, 0)
	ConsecutiveLoopBlocks = parseBoolOrDefault("BCFLOW_CONSECUTIVE_LOOP_BLOCKS", true)
	ForceLoopPhis         = parseBoolOrDefault("BCFLOW_FORCE_LOOP_PHIS", false)
	ClearNonLiveLocals    = parseBoolOrDefault("BCFLOW_CLEAR_NON_LIVE_LOCALS", true)
	Verify                = parseBoolOrDefault("BCFLOW_VERIFY", false)
	Debug                 = parseBoolOrDefault("BCFLOW_DEBUG", false)
	CacheSize             = parseOrDefault("BCFLOW_CACHE_SIZE", _DefaultCacheSize, 0)
)

func init() {
	if MaxSubroutineDepth > MaxSubroutineDepthLimit {
		panic("bcflow: value too large for BCFLOW_MAX_JSR_DEPTH")
	}
}

func parseOrDefault(key string, def int, min int) int {
	if env := os.Getenv(key); env == "" {
		return def
	} else if val, err := strconv.ParseUint(env, 0, 64); err != nil {
		panic("bcflow: invalid value for " + key)
	} else if ret := int(val); ret <= min {
		panic("bcflow: value too small for " + key)
	} else {
		return ret
	}
}

func parseBoolOrDefault(key string, def bool) bool {
	if env := os.Getenv(key); env == "" {
		return def
	} else if val, err := strconv.ParseBool(env); err != nil {
		panic("bcflow: invalid value for " + key)
	} else {
		return val
	}
}
