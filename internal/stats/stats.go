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

package stats

import (
    `fmt`

    `github.com/VictoriaMetrics/metrics`

    `github.com/cloudwego/bcflow/internal/bailout`
)

// Set holds every counter of the compiler.
var Set = metrics.NewSet()

var (
    Compiles    = Set.NewCounter(`bcflow_compiles_total`)
    CacheHits   = Set.NewCounter(`bcflow_cache_hits_total`)
    CacheMisses = Set.NewCounter(`bcflow_cache_misses_total`)
    Blocks      = Set.NewCounter(`bcflow_blocks_total`)
    Loops       = Set.NewCounter(`bcflow_loops_total`)
    CacheSize   = Set.NewGauge(`bcflow_cache_entries`, nil)
)

var _Categories = [...]bailout.Category {
    bailout.MalformedControlFlow,
    bailout.UnsupportedStructure,
}

func bailoutCounter(c bailout.Category) *metrics.Counter {
    return Set.GetOrCreateCounter(fmt.Sprintf(`bcflow_bailouts_total{category=%q}`, c))
}

func init() {
    for _, c := range _Categories {
        bailoutCounter(c)
    }
}

// Bailout counts err if it is a bailout.
func Bailout(err error) {
    if be, ok := bailout.As(err); ok {
        bailoutCounter(be.Category()).Inc()
    }
}

// Bailouts returns the number of bailouts of category c so far.
func Bailouts(c bailout.Category) uint64 {
    return bailoutCounter(c).Get()
}

// Categories lists the bailout categories with a counter.
func Categories() []bailout.Category {
    return _Categories[:]
}
