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
    `strings`

    `github.com/cloudwego/bcflow/internal/bailout`
    `github.com/cloudwego/bcflow/internal/bytecode`
    `github.com/cloudwego/bcflow/internal/opts`
)

// BlockMap is the ordered control flow graph of a method. Blocks[0] is the
// entry block, the last two blocks are the shared return and unwind blocks.
type BlockMap struct {
    Method      bytecode.Method
    Blocks      []*Block
    LoopHeaders []int       // block id by loop id
    ReturnCount int
    ReturnBcis  []int
    HasJsr      bool
    blockAt     []int
}

func (self *BlockMap) Len()                 int    { return len(self.Blocks) }
func (self *BlockMap) Block(id int)         *Block { return self.Blocks[id] }
func (self *BlockMap) StartBlock()          *Block { return self.Blocks[0] }
func (self *BlockMap) ReturnBlock()         *Block { return self.Blocks[len(self.Blocks) - 2] }
func (self *BlockMap) UnwindBlock()         *Block { return self.Blocks[len(self.Blocks) - 1] }
func (self *BlockMap) LoopCount()           int    { return len(self.LoopHeaders) }
func (self *BlockMap) LoopHeader(id int)    *Block { return self.Blocks[self.LoopHeaders[id]] }
func (self *BlockMap) Successor(b *Block, i int) *Block { return self.Blocks[b.Successors[i]] }

// BlockAt returns the block that holds the instruction at bci outside of any
// subroutine scope, or nil if that block is unreachable.
func (self *BlockMap) BlockAt(bci int) *Block {
    if bci < 0 || bci >= len(self.blockAt) || self.blockAt[bci] < 0 {
        return nil
    } else {
        return self.Blocks[self.blockAt[bci]]
    }
}

// DispatchSuccessor returns the exception dispatch block of b, if any.
func (self *BlockMap) DispatchSuccessor(b *Block) *Block {
    if b.HasCode() && len(b.Successors) != 0 {
        if p := self.Blocks[b.Successors[len(b.Successors) - 1]]; p.IsDispatch() {
            return p
        }
    }
    return nil
}

func (self *BlockMap) String() string {
    buf := make([]string, 0, len(self.Blocks))
    for _, b := range self.Blocks {
        buf = append(buf, b.String())
    }
    return strings.Join(buf, "\n")
}

// Build discovers the basic blocks of m, inlines subroutines, detects loops
// and orders the blocks.
func Build(m bytecode.Method, o *opts.Options) (bm *BlockMap, err error) {
    defer bailout.Rescue(&err)
    p := newBuilder(m, o)
    p.build()
    return p.result, nil
}

type _AltKey struct {
    origin int
    scope  Scope
}

// _Builder is the mutable state of one BlockMap construction.
type _Builder struct {
    opts         *opts.Options
    method       bytecode.Method
    code         []byte
    handlers     []bytecode.ExceptionHandler
    arena        []*Block
    blockMap     []int
    insn         []bool
    start        int
    hasJsr       bool
    returnCount  int
    returnBcis   []int
    dispatchers  map[int]int
    alternatives map[_AltKey]int
    nextLoop     int
    loopHeaders  [MaxLoops]int
    state        []uint8
    post         []int
    result       *BlockMap
}

func newBuilder(m bytecode.Method, o *opts.Options) *_Builder {
    code := m.Code()
    bmap := make([]int, len(code))

    /* no blocks yet */
    for i := range bmap {
        bmap[i] = -1
    }

    /* construct the builder */
    return &_Builder {
        opts         : o,
        method       : m,
        code         : code,
        handlers     : m.Handlers(),
        blockMap     : bmap,
        insn         : make([]bool, len(code)),
        dispatchers  : make(map[int]int),
        alternatives : make(map[_AltKey]int),
    }
}

func (self *_Builder) debug(keyvals ...interface{}) {
    self.opts.Debug(append([]interface{}{"method", self.method.Name()}, keyvals...)...)
}

func (self *_Builder) build() {
    if len(self.code) == 0 {
        bailout.Throw(bailout.InvalidBytecode, -1, "method has no code")
    }

    /* discover the blocks */
    self.makeExceptionEntries()
    self.iterateOverBytecodes()
    self.checkBlockStarts()
    self.start = self.blockMap[0]

    /* clone the blocks of subroutines for each calling scope */
    if self.hasJsr {
        self.inlineSubroutines()
    }

    /* find the loops and order the blocks */
    self.computeBlockOrder()
    if self.nextLoop > 0 {
        self.fixLoopBits()
    }
    self.layout()

    /* verify the result if required */
    if self.opts.Verify {
        if err := Verify(self.result, self.opts); err != nil {
            panic(err)
        }
    }
}

func (self *_Builder) add(b *Block) int {
    id := len(self.arena)
    b.origin = id
    self.arena = append(self.arena, b)
    return id
}

func (self *_Builder) makeExceptionEntries() {
    for i := range self.handlers {
        h := &self.handlers[i]

        /* validate the handler range */
        if h.StartBci < 0 || h.StartBci >= h.EndBci || h.EndBci > len(self.code) {
            bailout.Throw(bailout.InvalidBytecode, h.StartBci, "invalid exception handler range %s", h)
        }

        /* the handler entry is reachable through dispatch only */
        b := self.makeBlock(h.HandlerBci)
        self.arena[b].IsExceptionEntry = true
    }
}

func (self *_Builder) iterateOverBytecodes() {
    cur := -1
    st := bytecode.NewStream(self.code)

    /* scan every instruction */
    for ; !st.Done(); st.Next() {
        bci := st.CurrentBCI()
        op := st.CurrentBC()
        self.insn[bci] = true

        /* start a new block if required, and fall through into it */
        if cur < 0 || self.blockMap[bci] >= 0 {
            b := self.makeBlock(bci)
            if cur >= 0 {
                self.addSuccessor(self.arena[cur].EndBci, b)
            }
            cur = b
        }

        /* mark the instruction as part of the current block */
        self.blockMap[bci] = cur
        self.arena[cur].EndBci = bci

        /* check for instructions that end the block */
        switch {
            case op.IsReturn(): {
                cur = -1
                self.returnCount++
                self.returnBcis = append(self.returnBcis, bci)
            }
            case op == bytecode.OP_athrow: {
                cur = -1
                if d := self.handleExceptions(bci); d >= 0 {
                    self.addSuccessor(bci, d)
                }
            }
            case op.Is(bytecode.F_cond): {
                cur = -1
                self.addSuccessor(bci, self.makeBlock(st.ReadBranchDest()))
                self.addSuccessor(bci, self.makeBlock(st.NextBCI()))
            }
            case op.IsBranch(): {
                cur = -1
                self.addSuccessor(bci, self.makeBlock(st.ReadBranchDest()))
            }
            case op.Is(bytecode.F_switch): {
                cur = -1
                self.addSwitchSuccessors(bci, st.Switch())
            }
            case op.Is(bytecode.F_jsr): {
                cur = -1
                self.addJsrSuccessor(bci, st.ReadBranchDest(), st.NextBCI())
            }
            case op.Is(bytecode.F_ret): {
                cur = -1
                self.addRet(bci)
            }
            case op.CanTrap(): {
                if d := self.handleExceptions(bci); d >= 0 {
                    cur = -1
                    self.addSuccessor(bci, self.makeBlock(st.NextBCI()))
                    self.addSuccessor(bci, d)
                }
            }
        }
    }

    /* the last instruction must not fall off the end */
    if cur >= 0 {
        bailout.Throw(bailout.InvalidBytecode, self.arena[cur].EndBci, "control falls off the end of the code")
    }
}

func (self *_Builder) addJsrSuccessor(bci int, target int, ret int) {
    self.hasJsr = true

    /* check for subroutine support */
    if !self.opts.SupportSubroutines {
        bailout.Throw(bailout.SubroutinesDisabled, bci, "jsr/ret bytecodes are not supported")
    } else if target == 0 {
        bailout.Throw(bailout.UnstructuredSubroutine, bci, "jsr target bci 0 not allowed")
    }

    /* the call target is the only successor until the scope is known */
    sub := self.makeBlock(target)
    blk := self.arena[self.blockMap[bci]]
    blk.JsrSuccessor = sub
    blk.JsrReturnBci = ret
    self.addSuccessor(bci, sub)
}

func (self *_Builder) addRet(bci int) {
    self.hasJsr = true

    /* the successor is resolved once the scope is known */
    if !self.opts.SupportSubroutines {
        bailout.Throw(bailout.SubroutinesDisabled, bci, "jsr/ret bytecodes are not supported")
    } else {
        self.arena[self.blockMap[bci]].EndsWithRet = true
    }
}

func (self *_Builder) addSwitchSuccessors(bci int, sw bytecode.Switch) {
    n := sw.NumberOfCases()
    targets := newIntSet()

    /* distinct targets, in ascending bci order */
    for i := 0; i < n; i++ {
        targets.Add(sw.TargetAt(i))
    }

    /* add the default target */
    targets.Add(sw.DefaultTarget())
    for _, to := range sortedInts(targets) {
        self.addSuccessor(bci, self.makeBlock(to))
    }
}

func (self *_Builder) makeBlock(bci int) int {
    if bci < 0 || bci >= len(self.code) {
        bailout.Throw(bailout.InvalidBytecode, bci, "branch target out of range")
    }

    /* create a new block */
    old := self.blockMap[bci]
    if old < 0 {
        b := self.add(newBlock(B_normal, bci))
        self.blockMap[bci] = b
        return b
    }

    /* the block already starts here */
    ob := self.arena[old]
    if ob.StartBci == bci {
        return old
    }

    /* backward branch into the middle of an already existing block */
    nb := newBlock(B_normal, bci)
    nb.EndBci = ob.EndBci
    nb.Successors = ob.Successors
    nb.JsrSuccessor, ob.JsrSuccessor = ob.JsrSuccessor, -1
    nb.JsrReturnBci, ob.JsrReturnBci = ob.JsrReturnBci, 0
    nb.EndsWithRet, ob.EndsWithRet = ob.EndsWithRet, false

    /* truncate the old block, the new block is its only successor */
    b := self.add(nb)
    ob.EndBci = self.prevInsn(ob.StartBci, bci)
    ob.Successors = []int { b }

    /* move the instructions to the new block */
    for i := bci; i <= nb.EndBci; i++ {
        if self.blockMap[i] == old {
            self.blockMap[i] = b
        }
    }

    /* log the split */
    self.debug("msg", "split block", "bci", bci, "head", ob.StartBci, "tail", nb.EndBci)
    return b
}

func (self *_Builder) prevInsn(start int, bci int) int {
    for i := bci - 1; i >= start; i-- {
        if self.insn[i] {
            return i
        }
    }
    bailout.Throw(bailout.DanglingSplit, bci, "split leaves no instruction in block at %d", start)
    return -1
}

func (self *_Builder) addSuccessor(predBci int, sux int) {
    if self.arena[sux].IsExceptionEntry {
        bailout.Throw(
            bailout.ExceptionEntryReachedNormally,
            predBci,
            "exception handler can be reached by both normal and exceptional control flow",
        )
    }
    pred := self.arena[self.blockMap[predBci]]
    pred.Successors = append(pred.Successors, sux)
}

func (self *_Builder) checkBlockStarts() {
    for _, b := range self.arena {
        if b.HasCode() && !self.insn[b.StartBci] {
            bailout.Throw(bailout.DanglingSplit, b.StartBci, "block starts in the middle of an instruction")
        }
    }
}

// handleExceptions returns the head of the dispatch chain for a throwing
// instruction at bci, or -1 if it is not covered by any handler.
func (self *_Builder) handleExceptions(bci int) int {
    last := -1

    /* the less specific handlers come last in the table, build from there */
    for i := len(self.handlers) - 1; i >= 0; i-- {
        var ok bool
        var cur int
        var cache map[int]int

        /* skip the handlers that do not cover this bci */
        h := &self.handlers[i]
        if !h.Covers(bci) {
            continue
        }

        /* nothing after a catch-all handler is reachable */
        if h.IsCatchAll() {
            last = -1
        }

        /* dispatch blocks are shared by their successor chain */
        if last < 0 {
            cache = self.dispatchers
        } else if cache = self.arena[last].dispatchers; cache == nil {
            cache = make(map[int]int)
            self.arena[last].dispatchers = cache
        }

        /* create a new dispatch block if needed */
        if cur, ok = cache[i]; !ok {
            cur = self.newDispatch(bci, i, last)
            cache[i] = cur
        }

        /* the chain continues from here */
        last = cur
    }
    return last
}

func (self *_Builder) newDispatch(bci int, index int, next int) int {
    h := &self.handlers[index]
    p := newBlock(B_dispatch, -1)
    p.Handler = h
    p.HandlerIndex = index
    p.DeoptBci = bci
    p.Successors = []int { self.blockMap[h.HandlerBci] }

    /* link to the next dispatch block */
    if next >= 0 {
        p.Successors = append(p.Successors, next)
    }
    return self.add(p)
}

func (self *_Builder) String() string {
    buf := make([]string, 0, len(self.arena))
    for i, b := range self.arena {
        buf = append(buf, fmt.Sprintf("#%d %s", i, b))
    }
    return strings.Join(buf, "\n")
}
