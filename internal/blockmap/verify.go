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
    `github.com/pkg/errors`

    `github.com/cloudwego/bcflow/internal/opts`
)

// Verify checks the structural invariants of a BlockMap. A failure indicates
// a bug in the builder rather than a problem with the method.
func Verify(bm *BlockMap, o *opts.Options) error {
    n := len(bm.Blocks)
    if n < 3 {
        return errors.Errorf("block map of %s has only %d blocks", bm.Method.Name(), n)
    }

    /* the synthetic blocks come last */
    if bm.ReturnBlock().Kind != B_return || bm.UnwindBlock().Kind != B_unwind {
        return errors.New("return and unwind blocks are not the last two blocks")
    }

    /* check every block */
    for i, b := range bm.Blocks {
        if err := verifyBlock(bm, i, b); err != nil {
            return errors.Wrapf(err, "method %s", bm.Method.Name())
        }
    }

    /* check every loop */
    dt := BuildDominatorTree(bm)
    for id := range bm.LoopHeaders {
        if err := verifyLoop(bm, dt, id, o.ConsecutiveLoopBlocks); err != nil {
            return errors.Wrapf(err, "method %s", bm.Method.Name())
        }
    }

    /* instruction coverage only holds without subroutine copies */
    if !bm.HasJsr {
        return errors.Wrapf(verifyCoverage(bm), "method %s", bm.Method.Name())
    } else {
        return nil
    }
}

func verifyBlock(bm *BlockMap, i int, b *Block) error {
    if b.Id != i {
        return errors.Errorf("block at index %d has id %d", i, b.Id)
    }

    /* successors must be valid, and exception dispatch comes last */
    for j, s := range b.Successors {
        if s < 0 || s >= len(bm.Blocks) {
            return errors.Errorf("B%d has invalid successor %d", b.Id, s)
        }
        if sb := bm.Blocks[s]; sb.IsDispatch() && b.HasCode() && j != len(b.Successors) - 1 {
            return errors.Errorf("B%d has dispatch successor B%d at position %d", b.Id, s, j)
        }
        if sb := bm.Blocks[s]; sb.IsExceptionEntry && !b.IsDispatch() {
            return errors.Errorf("exception entry B%d is reached normally from B%d", s, b.Id)
        }
    }

    /* dispatch blocks go to the handler, then to the next dispatch block */
    if b.IsDispatch() {
        if len(b.Successors) == 0 || len(b.Successors) > 2 {
            return errors.Errorf("dispatch B%d has %d successors", b.Id, len(b.Successors))
        }
        if !bm.Blocks[b.Successors[0]].IsExceptionEntry {
            return errors.Errorf("dispatch B%d does not lead to an exception entry", b.Id)
        }
        if len(b.Successors) == 2 && (b.IsCatchAll() || !bm.Blocks[b.Successors[1]].IsDispatch()) {
            return errors.Errorf("dispatch B%d has an invalid continuation", b.Id)
        }
    }
    return nil
}

func verifyLoop(bm *BlockMap, dt DominatorTree, id int, consecutive bool) error {
    hb := bm.LoopHeader(id)
    if !hb.IsLoopHeader || hb.LoopId != id || !hb.Loops.Has(id) {
        return errors.Errorf("B%d is not the header of loop %d", hb.Id, id)
    }

    /* every block of the loop is dominated by the header */
    for _, b := range bm.Blocks {
        if !b.Loops.Has(id) {
            continue
        }
        if !dt.Dominates(hb.Id, b.Id) {
            return errors.Errorf("B%d in loop %d is not dominated by its header B%d", b.Id, id, hb.Id)
        }
        if consecutive && (b.Id < hb.Id || b.Id > hb.LoopEnd) {
            return errors.Errorf("B%d in loop %d is outside of [B%d, B%d]", b.Id, id, hb.Id, hb.LoopEnd)
        }
    }
    return nil
}

func verifyCoverage(bm *BlockMap) error {
    owner := make([]int, len(bm.blockAt))
    for i := range owner {
        owner[i] = -1
    }

    /* every instruction belongs to exactly one block */
    for _, b := range bm.Blocks {
        if !b.HasCode() {
            continue
        }
        for bci := b.StartBci; bci <= b.EndBci; bci++ {
            if bm.blockAt[bci] < 0 {
                continue
            }
            if owner[bci] >= 0 {
                return errors.Errorf("bci %d is covered by both B%d and B%d", bci, owner[bci], b.Id)
            }
            if owner[bci] = b.Id; bm.blockAt[bci] != b.Id {
                return errors.Errorf("bci %d is in the range of B%d but mapped to B%d", bci, b.Id, bm.blockAt[bci])
            }
        }
    }
    return nil
}
