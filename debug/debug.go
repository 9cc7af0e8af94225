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

package debug

import (
	"io"

	"github.com/cloudwego/bcflow/internal/stats"
)

// A Stats records statistics about the compiler front-end.
type Stats struct {
	Compiles int
	Blocks   int
	Loops    int
	Cache    CacheStats
	Bailouts map[string]int
}

// A CacheStats records statistics about the compilation cache.
type CacheStats struct {
	Hit  int
	Miss int
	Size int
}

// GetStats returns statistics of the compiler front-end.
func GetStats() Stats {
	ret := Stats{
		Compiles: int(stats.Compiles.Get()),
		Blocks:   int(stats.Blocks.Get()),
		Loops:    int(stats.Loops.Get()),
		Cache: CacheStats{
			Hit:  int(stats.CacheHits.Get()),
			Miss: int(stats.CacheMisses.Get()),
			Size: int(stats.CacheSize.Get()),
		},
		Bailouts: make(map[string]int),
	}
	for _, c := range stats.Categories() {
		ret.Bailouts[c.String()] = int(stats.Bailouts(c))
	}
	return ret
}

// WritePrometheus writes every counter in Prometheus text format to w.
func WritePrometheus(w io.Writer) {
	stats.Set.WritePrometheus(w)
}
