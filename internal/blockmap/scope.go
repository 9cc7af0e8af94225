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

package blockmap

import (
    `strconv`
    `strings`
)

const (
    _ScopeBits = 16
    _ScopeMask = 1 << _ScopeBits - 1
)

// Scope is an immutable stack of subroutine return addresses. The most
// recently pushed address occupies the low bits.
type Scope uint64

const EmptyScope Scope = 0

func (self Scope) IsEmpty() bool {
    return self == EmptyScope
}

func (self Scope) Depth() (n int) {
    for v := self; v != 0; v >>= _ScopeBits {
        n++
    }
    return
}

// Push returns the scope entered by a jsr returning to ret. The caller checks
// the depth limit beforehand.
func (self Scope) Push(ret int) Scope {
    return self << _ScopeBits | Scope(ret & _ScopeMask)
}

func (self Scope) Pop() Scope {
    return self >> _ScopeBits
}

func (self Scope) NextReturnAddress() int {
    return int(self & _ScopeMask)
}

// IsPrefixOf reports whether the entries of self are the most recent
// entries of other.
func (self Scope) IsPrefixOf(other Scope) bool {
    d := self.Depth()
    if d == 0 {
        return true
    } else if d > other.Depth() {
        return false
    } else if d * _ScopeBits >= 64 {
        return self == other
    } else {
        return other & (1 << uint(d * _ScopeBits) - 1) == self
    }
}

func (self Scope) String() string {
    var buf []string
    for v := self; !v.IsEmpty(); v = v.Pop() {
        buf = append(buf, strconv.Itoa(v.NextReturnAddress()))
    }
    return "[" + strings.Join(buf, " ") + "]"
}
