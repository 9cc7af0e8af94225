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
    `github.com/oleiade/lane`

    `github.com/cloudwego/bcflow/internal/bailout`
)

const (
    _V_unseen uint8 = iota
    _V_active
    _V_done
)

type _Frame struct {
    b     int
    next  int
    loops LoopSet
}

// computeBlockOrder numbers the blocks in post order and finds the loops. A
// successor that is still on the DFS stack closes a loop and becomes its
// header. The loop bits a block passes up to its predecessors are the union
// of its successors' bits minus its own loop.
func (self *_Builder) computeBlockOrder() {
    var ret LoopSet
    var stk = lane.NewStack()

    /* reset the traversal state */
    self.state = make([]uint8, len(self.arena))
    self.post = make([]int, 0, len(self.arena))
    self.enter(stk, self.start, 0)

    /* depth-first traversal */
    for !stk.Empty() {
        fp := stk.Head().(*_Frame)
        bb := self.arena[fp.b]

        /* visit the next successor */
        if fp.next < len(bb.Successors) {
            sux := bb.Successors[fp.next]
            fp.next++

            /* check the successor state */
            switch self.state[sux] {
                case _V_unseen: {
                    self.enter(stk, sux, 0)
                }
                case _V_active: {
                    self.makeLoopHeader(sux)
                    fp.loops = fp.loops.With(self.arena[sux].LoopId)
                }
                default: {
                    if sb := self.arena[sux]; sb.IsLoopHeader {
                        fp.loops |= sb.Loops.Without(sb.LoopId)
                    } else {
                        fp.loops |= sb.Loops
                    }
                }
            }
            continue
        }

        /* all successors are done, the block keeps its own loop bit */
        stk.Pop()
        bb.Loops = fp.loops
        self.state[fp.b] = _V_done
        self.post = append(self.post, fp.b)

        /* but does not pass it up */
        if ret = fp.loops; bb.IsLoopHeader {
            ret = ret.Without(bb.LoopId)
        }

        /* merge into the parent */
        if !stk.Empty() {
            stk.Head().(*_Frame).loops |= ret
        }
    }

    /* every loop must have been left through its header */
    if ret != 0 {
        bailout.Throw(bailout.IrreducibleLoop, -1, "non-reducible loop %s", ret)
    }
}

func (self *_Builder) enter(stk *lane.Stack, b int, loops LoopSet) {
    self.state[b] = _V_active
    stk.Push(&_Frame { b: b, loops: loops })
}

func (self *_Builder) makeLoopHeader(b int) {
    bb := self.arena[b]

    /* already a loop header */
    if bb.IsLoopHeader {
        return
    }

    /* a loop must be entered by normal control flow */
    if bb.IsExceptionEntry {
        bailout.Throw(bailout.LoopFromHandler, bb.StartBci, "loop formed by an exception handler")
    }

    /* the loop id must fit into a LoopSet */
    if self.nextLoop >= MaxLoops {
        bailout.Throw(bailout.TooManyLoops, bb.StartBci, "too many loops in method (max %d)", MaxLoops)
    }

    /* assign the next loop id */
    bb.IsLoopHeader = true
    bb.LoopId = self.nextLoop
    bb.Loops = LoopSet(0).With(bb.LoopId)
    self.loopHeaders[bb.LoopId] = b
    self.nextLoop++

    /* log the new loop */
    self.debug("msg", "loop header", "bci", bb.StartBci, "loop", bb.LoopId)
}

// fixLoopBits propagates loop bits backwards until they are stable. A single
// depth-first pass misses the bits of loops that are reached through blocks
// which were finished before the loop header was discovered.
func (self *_Builder) fixLoopBits() {
    limit := MaxLoops * len(self.arena) + 1
    for i := 0; ; i++ {
        if i > limit {
            bailout.Throw(bailout.IrreducibleLoop, -1, "loop bits do not converge")
        }
        if !self.fixLoopBitsOnce() {
            break
        }
    }
}

func (self *_Builder) fixLoopBitsOnce() (changed bool) {
    var ret LoopSet
    var stk = lane.NewStack()

    /* reset the visited flags */
    for i := range self.state {
        self.state[i] = _V_unseen
    }

    /* each block starts from its current loop bits */
    self.enter(stk, self.start, self.arena[self.start].Loops)
    for !stk.Empty() {
        fp := stk.Head().(*_Frame)
        bb := self.arena[fp.b]

        /* fold in the successors */
        if fp.next < len(bb.Successors) {
            sux := bb.Successors[fp.next]
            sb := self.arena[sux]
            fp.next++

            /* visit it, or use the bits it already has */
            if self.state[sux] == _V_unseen {
                self.enter(stk, sux, sb.Loops)
            } else if sb.IsLoopHeader {
                fp.loops |= sb.Loops.Without(sb.LoopId)
            } else {
                fp.loops |= sb.Loops
            }
            continue
        }

        /* record the new bits */
        stk.Pop()
        self.state[fp.b] = _V_done
        if bb.Loops != fp.loops {
            changed = true
            bb.Loops = fp.loops
        }

        /* pass them up, minus the own loop */
        if ret = fp.loops; bb.IsLoopHeader {
            ret = ret.Without(bb.LoopId)
        }
        if !stk.Empty() {
            stk.Head().(*_Frame).loops |= ret
        }
    }

    /* the entry block is not part of any loop */
    if ret != 0 {
        bailout.Throw(bailout.IrreducibleLoop, -1, "non-reducible loop %s", ret)
    }
    return
}
