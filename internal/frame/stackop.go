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
    `github.com/cloudwego/bcflow/internal/bailout`
    `github.com/cloudwego/bcflow/internal/bytecode`
)

func (self *State) single() Slot {
    s := self.XPop()
    if s.IsContinuation() {
        bailout.Throw(bailout.InvalidBytecode, -1, "category 1 operation on the upper half of a two-slot value")
    }
    return s
}

// StackOp performs one of the kind-agnostic stack shuffles.
func (self *State) StackOp(op bytecode.OpCode) {
    switch op {
        case bytecode.OP_pop: {
            self.single()
        }
        case bytecode.OP_pop2: {
            self.XPop()
            self.single()
        }
        case bytecode.OP_dup: {
            w1 := self.single()
            self.XPush(w1)
            self.XPush(w1)
        }
        case bytecode.OP_dup_x1: {
            w1 := self.single()
            w2 := self.XPop()
            self.XPush(w1)
            self.XPush(w2)
            self.XPush(w1)
        }
        case bytecode.OP_dup_x2: {
            w1 := self.single()
            w2 := self.XPop()
            w3 := self.XPop()
            self.XPush(w1)
            self.XPush(w3)
            self.XPush(w2)
            self.XPush(w1)
        }
        case bytecode.OP_dup2: {
            w1 := self.XPop()
            w2 := self.XPop()
            self.XPush(w2)
            self.XPush(w1)
            self.XPush(w2)
            self.XPush(w1)
        }
        case bytecode.OP_dup2_x1: {
            w1 := self.XPop()
            w2 := self.XPop()
            w3 := self.XPop()
            self.XPush(w2)
            self.XPush(w1)
            self.XPush(w3)
            self.XPush(w2)
            self.XPush(w1)
        }
        case bytecode.OP_dup2_x2: {
            w1 := self.XPop()
            w2 := self.XPop()
            w3 := self.XPop()
            w4 := self.XPop()
            self.XPush(w2)
            self.XPush(w1)
            self.XPush(w4)
            self.XPush(w3)
            self.XPush(w2)
            self.XPush(w1)
        }
        case bytecode.OP_swap: {
            w1 := self.single()
            w2 := self.single()
            self.XPush(w1)
            self.XPush(w2)
        }
        default: {
            panic("frame: not a stack operation: " + op.String())
        }
    }
}
