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

// Switch decodes the operands of a tableswitch or lookupswitch instruction.
type Switch struct {
    s   *Stream
    op  OpCode
    bci int
    tab int
}

// Switch returns the switch decoder of the current instruction.
func (self *Stream) Switch() Switch {
    return Switch {
        s   : self,
        op  : self.CurrentBC(),
        bci : self.bci,
        tab : alignSwitch(self.bci),
    }
}

func (self Switch) DefaultTarget() int {
    return self.bci + int(self.s.s4(self.tab))
}

func (self Switch) NumberOfCases() int {
    if self.op == OP_tableswitch {
        return int(int64(self.s.s4(self.tab + 8)) - int64(self.s.s4(self.tab + 4)) + 1)
    } else {
        return int(self.s.s4(self.tab + 4))
    }
}

// KeyAt returns the match value of case i.
func (self Switch) KeyAt(i int) int {
    if self.op == OP_tableswitch {
        return int(self.s.s4(self.tab + 4)) + i
    } else {
        return int(self.s.s4(self.tab + 8 + i * 8))
    }
}

// TargetAt returns the absolute branch destination of case i.
func (self Switch) TargetAt(i int) int {
    if self.op == OP_tableswitch {
        return self.bci + int(self.s.s4(self.tab + 12 + i * 4))
    } else {
        return self.bci + int(self.s.s4(self.tab + 12 + i * 8))
    }
}
