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

package frame

import (
    `strconv`

    `github.com/cloudwego/bcflow/internal/graph`
)

type SlotTag uint8

const (
    S_empty SlotTag = iota
    S_value
    S_continuation
)

// Slot is one cell of the locals or the operand stack. The upper half of a
// two-slot value is a continuation slot.
type Slot struct {
    Tag   SlotTag
    Value graph.Value
}

var (
    Empty        = Slot { Tag: S_empty }
    Continuation = Slot { Tag: S_continuation }
)

func ValueOf(v graph.Value) Slot {
    if v == nil {
        panic("frame: nil value")
    } else {
        return Slot { Tag: S_value, Value: v }
    }
}

func (self Slot) IsEmpty()        bool { return self.Tag == S_empty }
func (self Slot) IsValue()        bool { return self.Tag == S_value }
func (self Slot) IsContinuation() bool { return self.Tag == S_continuation }

func (self Slot) String() string {
    switch self.Tag {
        case S_value        : return "v" + strconv.Itoa(self.Value.Id())
        case S_continuation : return "^"
        default             : return "_"
    }
}
