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
    `fmt`
    `math/bits`
    `strings`

    `github.com/cloudwego/bcflow/internal/bytecode`
)

// MaxLoops is the capacity of a LoopSet.
const MaxLoops = 64

// LoopSet is a bit set of loop ids.
type LoopSet uint64

func (self LoopSet) Has(id int)     bool    { return self & (1 << uint(id)) != 0 }
func (self LoopSet) With(id int)    LoopSet { return self | (1 << uint(id)) }
func (self LoopSet) Without(id int) LoopSet { return self &^ (1 << uint(id)) }
func (self LoopSet) Count()         int     { return bits.OnesCount64(uint64(self)) }
func (self LoopSet) Empty()         bool    { return self == 0 }

// IDs returns the loop ids in ascending order.
func (self LoopSet) IDs() (r []int) {
    for v := uint64(self); v != 0; v &= v - 1 {
        r = append(r, bits.TrailingZeros64(v))
    }
    return
}

func (self LoopSet) String() string {
    ids := self.IDs()
    buf := make([]string, len(ids))
    for i, id := range ids {
        buf[i] = fmt.Sprint(id)
    }
    return "{" + strings.Join(buf, ",") + "}"
}

type BlockKind uint8

const (
    B_normal BlockKind = iota
    B_dispatch
    B_return
    B_unwind
)

func (self BlockKind) String() string {
    switch self {
        case B_normal   : return "normal"
        case B_dispatch : return "dispatch"
        case B_return   : return "return"
        case B_unwind   : return "unwind"
        default         : return "unknown"
    }
}

// Block is a basic block. Successors are indices into BlockMap.Blocks once the
// map is built; during construction they index the builder's arena.
type Block struct {
    Id               int
    Kind             BlockKind
    StartBci         int        // first instruction, -1 for blocks without code
    EndBci           int        // last instruction (inclusive)
    Successors       []int
    Preds            int
    IsExceptionEntry bool
    IsLoopHeader     bool
    LoopId           int
    LoopEnd          int        // index of the last block of the loop body
    Loops            LoopSet

    /* subroutine data */
    Scope        Scope
    JsrSuccessor int
    RetSuccessor int
    JsrReturnBci int
    EndsWithRet  bool

    /* exception dispatch data */
    Handler      *bytecode.ExceptionHandler
    HandlerIndex int
    DeoptBci     int

    origin      int
    dispatchers map[int]int
}

func newBlock(kind BlockKind, bci int) *Block {
    return &Block {
        Id           : -1,
        Kind         : kind,
        StartBci     : bci,
        EndBci       : -1,
        LoopId       : -1,
        LoopEnd      : -1,
        JsrSuccessor : -1,
        RetSuccessor : -1,
        HandlerIndex : -1,
        DeoptBci     : -1,
    }
}

func (self *Block) IsDispatch() bool {
    return self.Kind == B_dispatch
}

// HasCode reports whether the block covers a range of instructions.
func (self *Block) HasCode() bool {
    return self.Kind == B_normal
}

// IsCatchAll reports whether this dispatch block handles every exception.
func (self *Block) IsCatchAll() bool {
    return self.Handler != nil && self.Handler.IsCatchAll()
}

func (self *Block) clone() *Block {
    p := new(Block)
    *p = *self
    p.Id = -1
    p.Successors = append([]int(nil), self.Successors...)
    p.dispatchers = nil
    return p
}

func (self *Block) String() string {
    var sb strings.Builder
    fmt.Fprintf(&sb, "B%d", self.Id)

    /* block kind and range */
    switch self.Kind {
        case B_normal   : fmt.Fprintf(&sb, "[%d..%d]", self.StartBci, self.EndBci)
        case B_dispatch : fmt.Fprintf(&sb, "[dispatch@%d h%d]", self.DeoptBci, self.HandlerIndex)
        default         : fmt.Fprintf(&sb, "[%s]", self.Kind)
    }

    /* flags */
    if self.IsExceptionEntry {
        sb.WriteString(" ExceptionEntry")
    }
    if self.IsLoopHeader {
        fmt.Fprintf(&sb, " LoopHeader(%d..%d)", self.LoopId, self.LoopEnd)
    }
    if self.Loops != 0 {
        fmt.Fprintf(&sb, " loops=%s", self.Loops)
    }
    if !self.Scope.IsEmpty() {
        fmt.Fprintf(&sb, " scope=%s", self.Scope)
    }

    /* successors */
    fmt.Fprintf(&sb, " -> %v", self.Successors)
    return sb.String()
}
