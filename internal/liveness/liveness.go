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

package liveness

import (
    `fmt`
    `strings`

    `github.com/bits-and-blooms/bitset`
    `github.com/pkg/errors`

    `github.com/cloudwego/bcflow/internal/bailout`
    `github.com/cloudwego/bcflow/internal/blockmap`
    `github.com/cloudwego/bcflow/internal/bytecode`
    `github.com/cloudwego/bcflow/internal/opts`
)

// Liveness holds the local variable liveness of every block of a BlockMap,
// and the locals written inside each loop.
type Liveness struct {
    bm      *blockmap.BlockMap
    nlocals int
    iters   int
    gen     []*bitset.BitSet
    kill    []*bitset.BitSet
    in      []*bitset.BitSet
    out     []*bitset.BitSet
    changed []*bitset.BitSet
}

// Compute runs the backward dataflow analysis over the ordered blocks.
func Compute(bm *blockmap.BlockMap, o *opts.Options) (lv *Liveness, err error) {
    defer bailout.Rescue(&err)
    lv = newLiveness(bm)

    /* local gen/kill sets */
    st := bytecode.NewStream(bm.Method.Code())
    for _, b := range bm.Blocks {
        lv.computeLocal(st, b)
    }

    /* iterate to a fixpoint */
    lv.solve()
    o.Debug("msg", "liveness", "method", bm.Method.Name(), "locals", lv.nlocals, "iterations", lv.Iterations())
    return lv, nil
}

func newLiveness(bm *blockmap.BlockMap) *Liveness {
    n := bm.Len()
    nl := bm.Method.MaxLocals()
    lv := &Liveness {
        bm      : bm,
        nlocals : nl,
        gen     : make([]*bitset.BitSet, n),
        kill    : make([]*bitset.BitSet, n),
        in      : make([]*bitset.BitSet, n),
        out     : make([]*bitset.BitSet, n),
        changed : make([]*bitset.BitSet, bm.LoopCount()),
    }

    /* allocate the sets */
    for i := 0; i < n; i++ {
        lv.gen[i] = bitset.New(uint(nl))
        lv.kill[i] = bitset.New(uint(nl))
        lv.in[i] = bitset.New(uint(nl))
        lv.out[i] = bitset.New(uint(nl))
    }

    /* one set per loop */
    for i := range lv.changed {
        lv.changed[i] = bitset.New(uint(nl))
    }
    return lv
}

func (self *Liveness) computeLocal(st *bytecode.Stream, b *blockmap.Block) {
    if !b.HasCode() {
        return
    }

    /* scan the instructions of the block */
    for st.SetBCI(b.StartBci); st.CurrentBCI() <= b.EndBci; st.Next() {
        op := st.CurrentBC()
        if !op.Is(bytecode.F_load | bytecode.F_store) {
            continue
        }

        /* resolve the slot */
        kind, idx := st.ReadLocal()
        if idx + kind.SlotCount() > self.nlocals {
            bailout.Throw(bailout.InvalidBytecode, st.CurrentBCI(), "local %d out of range (max %d)", idx, self.nlocals)
        }

        /* a load comes before the store for iinc */
        if op.Is(bytecode.F_load) {
            for i := 0; i < kind.SlotCount(); i++ {
                self.loadOne(b, idx + i)
            }
        }

        /* mark the stores */
        if op.Is(bytecode.F_store) {
            for i := 0; i < kind.SlotCount(); i++ {
                self.storeOne(b, idx + i)
            }
        }
    }
}

func (self *Liveness) loadOne(b *blockmap.Block, local int) {
    if !self.kill[b.Id].Test(uint(local)) {
        self.gen[b.Id].Set(uint(local))
    }
}

func (self *Liveness) storeOne(b *blockmap.Block, local int) {
    if !self.gen[b.Id].Test(uint(local)) {
        self.kill[b.Id].Set(uint(local))
    }

    /* the local is changed in every loop that contains this block */
    for _, id := range b.Loops.IDs() {
        self.changed[id].Set(uint(local))
    }
}

func (self *Liveness) solve() {
    for changed := true; changed; self.iters++ {
        changed = false

        /* backwards over the block order */
        for i := len(self.bm.Blocks) - 1; i >= 0; i-- {
            b := self.bm.Blocks[i]
            out := self.out[i]
            dirty := self.iters == 0

            /* live-out(b) = ∑(live-in(succ(b))) */
            if len(b.Successors) != 0 {
                old := out.Count()
                for _, s := range b.Successors {
                    out.InPlaceUnion(self.in[s])
                }
                dirty = dirty || old != out.Count()
            }

            /* live-in(b) = gen(b) ∪ (live-out(b) - kill(b)) */
            if dirty {
                in := out.Difference(self.kill[i])
                in.InPlaceUnion(self.gen[i])
                self.in[i] = in
                changed = true
            }
        }
    }
}

func (self *Liveness) LocalsSize() int { return self.nlocals }
func (self *Liveness) Iterations() int { return self.iters }

// LiveIn reports whether the local is live at the start of the block.
func (self *Liveness) LiveIn(b *blockmap.Block, local int) bool {
    return self.in[b.Id].Test(uint(local))
}

// LiveOut reports whether the local is live at the end of the block.
func (self *Liveness) LiveOut(b *blockmap.Block, local int) bool {
    return self.out[b.Id].Test(uint(local))
}

// IsChangedInLoop reports whether the local is written by any block of the loop.
func (self *Liveness) IsChangedInLoop(loop int, local int) bool {
    return self.changed[loop].Test(uint(local))
}

// Verify checks that the sets are a fixpoint of the dataflow equations.
func (self *Liveness) Verify() error {
    for i, b := range self.bm.Blocks {
        out := bitset.New(uint(self.nlocals))
        for _, s := range b.Successors {
            out.InPlaceUnion(self.in[s])
        }

        /* check the live-out set */
        if !out.Equal(self.out[i]) {
            return errors.Errorf("B%d: live-out %s is not the union of its successors %s", i, self.out[i], out)
        }

        /* check the live-in set */
        in := out.Difference(self.kill[i])
        in.InPlaceUnion(self.gen[i])
        if !in.Equal(self.in[i]) {
            return errors.Errorf("B%d: live-in %s does not match gen/kill %s", i, self.in[i], in)
        }
    }
    return nil
}

func (self *Liveness) String() string {
    buf := make([]string, 0, len(self.bm.Blocks))
    for i := range self.bm.Blocks {
        buf = append(buf, fmt.Sprintf(
            "B%d in=%s out=%s gen=%s kill=%s",
            i,
            self.in[i],
            self.out[i],
            self.gen[i],
            self.kill[i],
        ))
    }
    return strings.Join(buf, "\n")
}
