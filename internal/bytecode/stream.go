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

import (
    `encoding/binary`

    `github.com/cloudwego/bcflow/internal/bailout`
)

// Stream is a sequential reader over the bytecode of a method.
type Stream struct {
    code []byte
    bci  int
    next int
}

func NewStream(code []byte) *Stream {
    s := &Stream{code: code}
    s.SetBCI(0)
    return s
}

// SetBCI positions the stream at the instruction starting at bci.
func (self *Stream) SetBCI(bci int) {
    self.bci = bci
    if bci < len(self.code) {
        self.next = bci + self.length(bci)
    } else {
        self.next = bci
    }
}

// Next advances to the next instruction.
func (self *Stream) Next() {
    self.SetBCI(self.next)
}

func (self *Stream) Done() bool {
    return self.bci >= len(self.code)
}

func (self *Stream) CurrentBCI() int { return self.bci }
func (self *Stream) NextBCI()    int { return self.next }

// CurrentBC returns the opcode of the current instruction. For wide
// instructions this is the opcode being widened.
func (self *Stream) CurrentBC() OpCode {
    if op := OpCode(self.code[self.bci]); op == OP_wide {
        return OpCode(self.code[self.bci + 1])
    } else {
        return op
    }
}

// IsWide reports whether the current instruction carries a wide prefix.
func (self *Stream) IsWide() bool {
    return OpCode(self.code[self.bci]) == OP_wide
}

// ReadBranchDest returns the absolute destination of the current branch.
func (self *Stream) ReadBranchDest() int {
    switch self.CurrentBC() {
        case OP_goto_w, OP_jsr_w : return self.bci + int(self.s4(self.bci + 1))
        default                  : return self.bci + int(self.s2(self.bci + 1))
    }
}

// ReadLocalIndex returns the local variable index operand of the current
// load, store, iinc or ret instruction.
func (self *Stream) ReadLocalIndex() int {
    if self.IsWide() {
        return int(self.u2(self.bci + 2))
    } else {
        return int(self.u1(self.bci + 1))
    }
}

// ReadIncrement returns the constant operand of an iinc instruction.
func (self *Stream) ReadIncrement() int {
    if self.IsWide() {
        return int(self.s2(self.bci + 4))
    } else {
        return int(int8(self.u1(self.bci + 2)))
    }
}

func (self *Stream) ReadByte()  int { return int(int8(self.u1(self.bci + 1))) }
func (self *Stream) ReadUByte() int { return int(self.u1(self.bci + 1)) }
func (self *Stream) ReadShort() int { return int(self.s2(self.bci + 1)) }
func (self *Stream) ReadCPI()   int { return int(self.u2(self.bci + 1)) }

// ReadDimensions returns the dimension count of a multianewarray.
func (self *Stream) ReadDimensions() int {
    return int(self.u1(self.bci + 3))
}

// ReadLocal resolves the local variable slot accessed by the current
// instruction, covering both the explicit and the implicit-index forms.
func (self *Stream) ReadLocal() (Kind, int) {
    kind, idx := self.CurrentBC().LocalAccess()
    if idx < 0 {
        idx = self.ReadLocalIndex()
    }
    return kind, idx
}

func (self *Stream) check(pos int, n int) {
    if pos < 0 || n < 0 || pos + n > len(self.code) {
        bailout.Throw(bailout.InvalidBytecode, self.bci, "truncated instruction")
    }
}

func (self *Stream) u1(pos int) uint8 {
    self.check(pos, 1)
    return self.code[pos]
}

func (self *Stream) u2(pos int) uint16 {
    self.check(pos, 2)
    return binary.BigEndian.Uint16(self.code[pos:])
}

func (self *Stream) s2(pos int) int16 {
    return int16(self.u2(pos))
}

func (self *Stream) s4(pos int) int32 {
    self.check(pos, 4)
    return int32(binary.BigEndian.Uint32(self.code[pos:]))
}

func (self *Stream) length(bci int) int {
    op := OpCode(self.code[bci])
    ln := op.Length()

    /* fixed length instructions */
    if ln > 0 {
        self.check(bci, ln)
        return ln
    }

    /* variable length instructions */
    switch op {
        case OP_wide: {
            if self.u1(bci + 1) == uint8(OP_iinc) {
                ln = 6
            } else {
                ln = 4
            }
        }
        case OP_tableswitch: {
            p := alignSwitch(bci)
            lo := self.s4(p + 4)
            hi := self.s4(p + 8)
            n := int64(hi) - int64(lo) + 1
            if n <= 0 {
                bailout.Throw(bailout.InvalidBytecode, bci, "tableswitch with high %d < low %d", hi, lo)
            }
            if end := int64(p) + 12 + n * 4; end > int64(len(self.code)) {
                bailout.Throw(bailout.InvalidBytecode, bci, "tableswitch with %d cases exceeds the code", n)
            }
            ln = p - bci + 12 + int(n) * 4
        }
        case OP_lookupswitch: {
            p := alignSwitch(bci)
            n := self.s4(p + 4)
            if n < 0 {
                bailout.Throw(bailout.InvalidBytecode, bci, "lookupswitch with %d pairs", n)
            }
            if end := int64(p) + 8 + int64(n) * 8; end > int64(len(self.code)) {
                bailout.Throw(bailout.InvalidBytecode, bci, "lookupswitch with %d pairs exceeds the code", n)
            }
            ln = p - bci + 8 + int(n) * 8
        }
        default: {
            bailout.Throw(bailout.InvalidBytecode, bci, "undefined opcode %s", op)
        }
    }

    /* the whole instruction must fit in the code */
    self.check(bci, ln)
    return ln
}

func alignSwitch(bci int) int {
    return (bci + 4) &^ 3
}
