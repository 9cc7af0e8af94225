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

// inlineSubroutines walks the graph from the entry block, threading the
// subroutine scope along the edges, and substitutes every block reached
// inside a subroutine with a copy dedicated to that scope.
func (self *_Builder) inlineSubroutines() {
    st := lane.NewStack()
    visited := newIntSet()

    /* depth-first, successors are visited in list order */
    for st.Push(self.start); !st.Empty(); {
        b := st.Pop().(int)
        if !visited.Add(b) {
            continue
        }

        /* resolve the successors of this block in its own scope */
        self.createJsrAlternatives(b)
        succ := self.arena[b].Successors

        /* push in reverse order so the first successor is visited first */
        for i := len(succ) - 1; i >= 0; i-- {
            if !visited.Contains(succ[i]) {
                st.Push(succ[i])
            }
        }
    }
}

func (self *_Builder) createJsrAlternatives(b int) {
    blk := self.arena[b]
    scope := blk.Scope

    /* a ret continues right after the jsr that entered the current scope */
    if blk.EndsWithRet {
        if scope.IsEmpty() {
            bailout.Throw(bailout.UnstructuredSubroutine, blk.EndBci, "ret outside of a subroutine")
        }
        ret := self.retTarget(blk, scope.NextReturnAddress())
        blk.RetSuccessor = ret
        blk.Successors = []int { ret }
    }

    /* compute the scope of every successor */
    for i, sux := range blk.Successors {
        next := scope
        isJsr := sux == blk.JsrSuccessor
        isRet := sux == blk.RetSuccessor

        /* entering or leaving a subroutine */
        if isJsr {
            if !self.opts.CanNestSubroutine(next.Depth() + 1) {
                bailout.Throw(bailout.SubroutineTooDeep, blk.EndBci, "too deeply nested subroutines (max %d)", self.opts.MaxSubroutineDepth)
            }
            next = next.Push(blk.JsrReturnBci)
        } else if isRet {
            next = next.Pop()
        }

        /* the successor must have been reached from a compatible scope */
        if sb := self.arena[sux]; !sb.Scope.IsPrefixOf(next) {
            bailout.Throw(
                bailout.UnstructuredSubroutine,
                blk.EndBci,
                "unstructured control flow: scope %s of block at %d is not a prefix of %s",
                sb.Scope,
                sb.StartBci,
                next,
            )
        }

        /* substitute a copy of the successor for this scope */
        if !next.IsEmpty() {
            alt := self.alternative(sux, next)
            blk.Successors[i] = alt
            if isJsr {
                blk.JsrSuccessor = alt
            }
            if isRet {
                blk.RetSuccessor = alt
            }
        }
    }
}

func (self *_Builder) retTarget(blk *Block, bci int) int {
    if bci >= len(self.code) || self.blockMap[bci] < 0 || self.arena[self.blockMap[bci]].StartBci != bci {
        bailout.Throw(bailout.UnstructuredSubroutine, blk.EndBci, "ret to invalid address %d", bci)
    }
    return self.blockMap[bci]
}

// alternative returns the copy of block b for the given scope, creating one
// the first time the scope is seen. Copies are always made from the original
// block, so their successors are still in the scope of the original.
func (self *_Builder) alternative(b int, scope Scope) int {
    key := _AltKey {
        origin : self.arena[b].origin,
        scope  : scope,
    }

    /* reuse the existing copy */
    if alt, ok := self.alternatives[key]; ok {
        return alt
    }

    /* clone the block */
    p := self.arena[key.origin].clone()
    p.Scope = scope
    alt := len(self.arena)
    self.arena = append(self.arena, p)
    self.alternatives[key] = alt

    /* log the new copy */
    self.debug("msg", "subroutine copy", "bci", p.StartBci, "scope", scope)
    return alt
}
