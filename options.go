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

package bcflow

import (
	"fmt"

	"github.com/go-kit/log"

	"github.com/cloudwego/bcflow/internal/opts"
)

// Option is the property setter function for opts.Options.
type Option func(*opts.Options)

// WithSubroutines enables or disables jsr/ret support. Methods using
// subroutines bail out when it is disabled.
//
// The default value of this option is "true".
func WithSubroutines(v bool) Option {
	return func(o *opts.Options) { o.SupportSubroutines = v }
}

// WithMaxSubroutineDepth sets how deep subroutine calls may nest before the
// compilation bails out.
//
// The value must be between 1 and 4, the default value of this option is "4".
func WithMaxSubroutineDepth(depth int) Option {
	if depth < 1 || depth > opts.MaxSubroutineDepthLimit {
		panic(fmt.Sprintf("bcflow: invalid subroutine depth: %d", depth))
	} else {
		return func(o *opts.Options) { o.MaxSubroutineDepth = depth }
	}
}

// WithConsecutiveLoopBlocks controls whether the blocks of a loop body are
// laid out next to each other.
//
// The default value of this option is "true".
func WithConsecutiveLoopBlocks(v bool) Option {
	return func(o *opts.Options) { o.ConsecutiveLoopBlocks = v }
}

// WithForceLoopPhis creates a phi for every local at every loop header,
// instead of only for the locals changed inside the loop.
//
// The default value of this option is "false".
func WithForceLoopPhis(v bool) Option {
	return func(o *opts.Options) { o.ForceLoopPhis = v }
}

// WithClearNonLiveLocals controls whether dead locals are dropped from the
// frame states.
//
// The default value of this option is "true".
func WithClearNonLiveLocals(v bool) Option {
	return func(o *opts.Options) { o.ClearNonLiveLocals = v }
}

// WithVerify turns on the internal consistency checks of every stage. This
// is meant for testing and makes compilation noticeably slower.
//
// This value can also be configured with the `BCFLOW_VERIFY` environment
// variable.
func WithVerify(v bool) Option {
	return func(o *opts.Options) { o.Verify = v }
}

// WithLogger sets the logger used for debug output. A nil logger disables
// logging.
func WithLogger(logger log.Logger) Option {
	return func(o *opts.Options) { o.Logger = logger }
}

// SetMaxSubroutineDepth sets the default maximum subroutine nesting depth for
// all compilations from now on.
//
// This value can also be configured with the `BCFLOW_MAX_JSR_DEPTH`
// environment variable.
//
// Returns the old opts.MaxSubroutineDepth value.
func SetMaxSubroutineDepth(depth int) int {
	if depth < 1 || depth > opts.MaxSubroutineDepthLimit {
		panic(fmt.Sprintf("bcflow: invalid subroutine depth: %d", depth))
	}
	depth, opts.MaxSubroutineDepth = opts.MaxSubroutineDepth, depth
	return depth
}

// SetCacheSize sets the number of results kept by compilers created from now
// on.
//
// This value can also be configured with the `BCFLOW_CACHE_SIZE` environment
// variable.
//
// The default value of this option is "1024".
//
// Returns the old opts.CacheSize value.
func SetCacheSize(size int) int {
	if size <= 0 {
		panic(fmt.Sprintf("bcflow: invalid cache size: %d", size))
	}
	size, opts.CacheSize = opts.CacheSize, size
	return size
}

func makeOptions(options []Option) opts.Options {
	o := opts.GetDefaultOptions()
	for _, fn := range options {
		fn(&o)
	}
	return o
}
