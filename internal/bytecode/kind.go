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

package bytecode

// Kind is the stack kind of a value. Sub-int primitive types are represented
// as K_int, which is how the operand stack sees them.
type Kind uint8

const (
    K_illegal Kind = iota
    K_int
    K_long
    K_float
    K_double
    K_object
    K_void
)

var _KindNames = [...]string {
    K_illegal : "illegal",
    K_int     : "int",
    K_long    : "long",
    K_float   : "float",
    K_double  : "double",
    K_object  : "object",
    K_void    : "void",
}

func (self Kind) String() string {
    if int(self) < len(_KindNames) {
        return _KindNames[self]
    } else {
        return "unknown"
    }
}

// SlotCount returns the number of local variable or stack slots the kind
// occupies.
func (self Kind) SlotCount() int {
    switch self {
        case K_long, K_double : return 2
        case K_void, K_illegal: return 0
        default               : return 1
    }
}

func (self Kind) IsTwoSlot() bool {
    return self == K_long || self == K_double
}

// TypeChar is the single letter used in method descriptors and debug dumps.
func (self Kind) TypeChar() byte {
    switch self {
        case K_int    : return 'i'
        case K_long   : return 'j'
        case K_float  : return 'f'
        case K_double : return 'd'
        case K_object : return 'a'
        case K_void   : return 'v'
        default       : return '-'
    }
}

// ArgumentSlots returns the total number of slots occupied by the kinds.
func ArgumentSlots(kinds []Kind) (n int) {
    for _, k := range kinds {
        n += k.SlotCount()
    }
    return
}
