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

// layout places the reachable blocks in reverse post order, keeping the body
// of every loop right after its header, appends the return and unwind blocks
// and renumbers everything.
func (self *_Builder) layout() {
    np := len(self.post)
    rpo := make([]int, np)

    /* reverse post order of the reachable blocks */
    for i, b := range self.post {
        rpo[np - i - 1] = b
    }

    /* place the blocks */
    next := 0
    out := make([]*Block, np, np + 2)
    for i, b := range rpo {
        if b >= 0 {
            bb := self.arena[b]
            bb.Id = next
            out[next] = bb
            next++
            if bb.IsLoopHeader && self.opts.ConsecutiveLoopBlocks {
                next = self.placeLoop(out, next, rpo, i, bb)
            }
        }
    }

    /* the synthetic blocks always come last */
    ret := newBlock(B_return, -1)
    unw := newBlock(B_unwind, -1)
    ret.Id = np
    unw.Id = np + 1
    out = append(out, ret, unw)

    /* translate arena indices into block ids */
    for _, bb := range out {
        for i, s := range bb.Successors {
            bb.Successors[i] = self.arena[s].Id
        }
        if bb.JsrSuccessor >= 0 {
            bb.JsrSuccessor = self.arena[bb.JsrSuccessor].Id
        }
        if bb.RetSuccessor >= 0 {
            bb.RetSuccessor = self.arena[bb.RetSuccessor].Id
        }
    }

    /* count the predecessors */
    for _, bb := range out {
        for _, s := range bb.Successors {
            out[s].Preds++
        }
    }

    /* loop headers by loop id */
    headers := make([]int, self.nextLoop)
    for i := range headers {
        headers[i] = self.arena[self.loopHeaders[i]].Id
    }

    /* the bci table of the blocks outside subroutines */
    at := make([]int, len(self.code))
    for i, b := range self.blockMap {
        if at[i] = -1; b >= 0 && self.insn[i] {
            at[i] = self.arena[b].Id
        }
    }

    /* loop ends are only known after placing the blocks */
    if !self.opts.ConsecutiveLoopBlocks {
        for _, bb := range out {
            for _, id := range bb.Loops.IDs() {
                if hb := out[headers[id]]; bb.Id > hb.LoopEnd {
                    hb.LoopEnd = bb.Id
                }
            }
        }
    }

    /* build the result */
    self.result = &BlockMap {
        Method      : self.method,
        Blocks      : out,
        LoopHeaders : headers,
        ReturnCount : self.returnCount,
        ReturnBcis  : self.returnBcis,
        HasJsr      : self.hasJsr,
        blockAt     : at,
    }

    /* log the final order */
    self.debug("msg", "block order", "blocks", len(out), "loops", self.nextLoop)
}

// placeLoop moves every block of the loop headed by hb, found after position i
// in rpo, right behind the header. Nested loops are placed recursively.
func (self *_Builder) placeLoop(out []*Block, next int, rpo []int, i int, hb *Block) int {
    end := next - 1
    for j := i + 1; j < len(rpo); j++ {
        if b := rpo[j]; b >= 0 && self.arena[b].Loops.Has(hb.LoopId) {
            bb := self.arena[b]
            bb.Id = next
            out[next] = bb
            rpo[j] = -1
            next++
            if bb.IsLoopHeader {
                next = self.placeLoop(out, next, rpo, j, bb)
            }
            end = next - 1
        }
    }
    hb.LoopEnd = end
    return next
}
