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

package parser

import (
    `sort`

    `github.com/pkg/errors`

    `github.com/cloudwego/bcflow/internal/bailout`
    `github.com/cloudwego/bcflow/internal/blockmap`
    `github.com/cloudwego/bcflow/internal/bytecode`
    `github.com/cloudwego/bcflow/internal/frame`
    `github.com/cloudwego/bcflow/internal/graph`
    `github.com/cloudwego/bcflow/internal/liveness`
    `github.com/cloudwego/bcflow/internal/opts`
)

// Result is the outcome of parsing one method.
type Result struct {
    Graph       *graph.Graph
    BlockMap    *blockmap.BlockMap
    Liveness    *liveness.Liveness
    EntryStates []*frame.State      // by block id, loop headers after their phis
    ExitStates  []*frame.State      // by block id, after the last instruction
    Merges      []*graph.Merge      // forward merges by block id
    LoopBegins  []*graph.Merge      // by loop id
}

func (self *Result) ReturnState() *frame.State {
    return self.EntryStates[self.BlockMap.ReturnBlock().Id]
}

func (self *Result) UnwindState() *frame.State {
    return self.EntryStates[self.BlockMap.UnwindBlock().Id]
}

type _Parser struct {
    opts   *opts.Options
    bm     *blockmap.BlockMap
    lv     *liveness.Liveness
    live   frame.Liveness
    g      *graph.Graph
    st     *bytecode.Stream
    pool   bytecode.ConstantPool
    bci    int
    done   []bool
    entry  []*frame.State
    exit   []*frame.State
    merges []*graph.Merge
    begins []*graph.Merge
}

// Parse simulates every instruction of the ordered blocks on the abstract
// machine state, merging the states where control flow joins.
func Parse(bm *blockmap.BlockMap, lv *liveness.Liveness, o *opts.Options) (ret *Result, err error) {
    p := newParser(bm, lv, o)
    defer p.annotate(&err)
    defer bailout.Rescue(&err)
    p.parse()
    return p.result(), nil
}

func newParser(bm *blockmap.BlockMap, lv *liveness.Liveness, o *opts.Options) *_Parser {
    n := bm.Len()
    p := &_Parser {
        opts   : o,
        bm     : bm,
        lv     : lv,
        g      : graph.New(),
        st     : bytecode.NewStream(bm.Method.Code()),
        pool   : bm.Method.Pool(),
        bci    : -1,
        done   : make([]bool, n),
        entry  : make([]*frame.State, n),
        exit   : make([]*frame.State, n),
        merges : make([]*graph.Merge, n),
        begins : make([]*graph.Merge, bm.LoopCount()),
    }

    /* a nil pointer must not become a non-nil interface */
    if lv != nil {
        p.live = lv
    }
    return p
}

func (self *_Parser) annotate(ep *error) {
    if *ep == nil {
        return
    }

    /* attach the current position */
    if be, ok := bailout.As(*ep); !ok {
        *ep = errors.Wrapf(*ep, "parse %s at bci %d", self.bm.Method.Name(), self.bci)
    } else if be.Bci < 0 {
        be.Bci = self.bci
    }

    /* log the failure */
    self.opts.Debug("msg", "parse failed", "method", self.bm.Method.Name(), "bci", self.bci, "err", *ep)
}

func (self *_Parser) clearing() bool {
    return self.opts.ClearNonLiveLocals && self.live != nil
}

func (self *_Parser) parse() {
    m := self.bm.Method
    st := frame.NewState(self.g, m.MaxLocals(), m.MaxStack())
    st.InitializeFromParams(m.Params(), m.IsStatic())

    /* the method entry is the first arrival at the start block */
    if self.clearing() {
        st.ClearNonLiveLocals(self.bm.StartBlock(), self.live, true)
    }

    /* blocks come in an order where forward edges always point forward */
    self.entry[0] = st
    for _, b := range self.bm.Blocks {
        if b.Kind == blockmap.B_return || b.Kind == blockmap.B_unwind {
            continue
        }
        if self.entry[b.Id] == nil {
            panic(errors.Errorf("B%d is parsed before any of its predecessors", b.Id))
        }
        self.processBlock(b)
    }

    /* check the merges */
    if self.opts.Verify {
        if err := self.verify(); err != nil {
            panic(err)
        }
    }

    /* log the result */
    self.opts.Debug(
        "msg"    , "parsed",
        "method" , m.Name(),
        "values" , len(self.g.Values),
        "merges" , len(self.g.Merges),
        "exits"  , len(self.g.Exits),
    )
}

func (self *_Parser) processBlock(b *blockmap.Block) {
    st := self.entry[b.Id]

    /* loop headers have exactly one forward end, back edges are added later */
    if b.IsLoopHeader {
        begin := self.g.LoopBegin(b.Id)
        begin.Ends = 1
        st.InsertLoopPhis(self.live, b.LoopId, begin, self.opts.ForceLoopPhis)
        self.begins[b.LoopId] = begin
    }

    /* the entry state is kept for later merges */
    cur := st.Copy()
    self.done[b.Id] = true

    /* parse the block */
    if b.IsDispatch() {
        self.processDispatch(b, cur)
    } else {
        self.processCode(b, cur)
    }
}

func (self *_Parser) processDispatch(b *blockmap.Block, st *frame.State) {
    self.bci = b.DeoptBci
    self.exit[b.Id] = st
    self.flow(b, self.bm.Successor(b, 0), st)

    /* the next handler, or leave the method */
    if len(b.Successors) > 1 {
        self.flow(b, self.bm.Successor(b, 1), st)
    } else if !b.IsCatchAll() {
        self.flow(b, self.bm.UnwindBlock(), st)
    }
}

func (self *_Parser) processCode(b *blockmap.Block, st *frame.State) {
    s := self.st
    dispatch := self.bm.DispatchSuccessor(b)

    /* simulate every instruction */
    for s.SetBCI(b.StartBci); ; s.Next() {
        op := s.CurrentBC()
        last := s.CurrentBCI() == b.EndBci
        self.bci = s.CurrentBCI()

        /* a covered throwing instruction sends its input state to the handlers */
        if last && dispatch != nil && op.CanTrap() && op != bytecode.OP_athrow {
            self.flowException(b, dispatch, st, self.g.ExceptionObject(self.bci))
        }

        /* the instruction may end the block by itself */
        if self.simulate(b, op, st) {
            self.exit[b.Id] = st
            return
        }

        /* until the last instruction */
        if last {
            break
        }
    }

    /* the remaining edges carry the final state */
    self.exit[b.Id] = st
    succ := b.Successors

    /* except the exception edge */
    if dispatch != nil {
        succ = succ[:len(succ) - 1]
    }
    for _, id := range succ {
        self.flow(b, self.bm.Block(id), st)
    }
}

func (self *_Parser) flowException(from *blockmap.Block, to *blockmap.Block, st *frame.State, exc graph.Value) {
    es := st.Copy()
    es.ClearStack()
    es.Push(bytecode.K_object, exc)
    self.flow(from, to, es)
}

// flow sends a copy of st along the edge from -> to.
func (self *_Parser) flow(from *blockmap.Block, to *blockmap.Block, st *frame.State) {
    st = st.Copy()
    self.exitLoops(from, to, st)

    /* back edge, the loop phis get another input */
    if id := to.Id; self.done[id] {
        if !to.IsLoopHeader {
            panic(errors.Errorf("edge B%d -> B%d reaches a parsed block which is not a loop header", from.Id, id))
        }
        begin := self.begins[to.LoopId]
        self.entry[id].Merge(begin, st)
        begin.LoopEnds++
        return
    }

    /* first arrival */
    id := to.Id
    if self.entry[id] == nil {
        if self.clearing() {
            st.ClearNonLiveLocals(to, self.live, true)
        }
        self.entry[id] = st
        return
    }

    /* a forward merge */
    m := self.merges[id]
    if m == nil {
        m = self.g.Merge(id)
        m.Ends = 1
        self.merges[id] = m
    }

    /* the merge counts the new end after the phis were updated */
    self.entry[id].Merge(m, st)
    m.Ends++
}

// exitLoops inserts the loop exits and proxies of the edge, innermost loop first.
func (self *_Parser) exitLoops(from *blockmap.Block, to *blockmap.Block, st *frame.State) {
    exits := from.Loops &^ to.Loops
    if exits.Empty() {
        return
    }

    /* nested loops have more bits set in their headers */
    ids := exits.IDs()
    sort.SliceStable(ids, func(i int, j int) bool {
        return self.bm.LoopHeader(ids[i]).Loops.Count() > self.bm.LoopHeader(ids[j]).Loops.Count()
    })

    /* proxy the values leaving each loop */
    for _, id := range ids {
        hb := self.bm.LoopHeader(id)
        exit := self.g.LoopExit(self.begins[id], to.Id)
        st.InsertLoopProxies(exit, self.entry[hb.Id])
    }
}

func (self *_Parser) verify() error {
    for _, m := range self.g.Merges {
        for _, phi := range m.Phis {
            if len(phi.Inputs) != m.PhiPredecessorCount() {
                return errors.Errorf("%s has %d inputs, %s has %d ends", phi, len(phi.Inputs), m, m.PhiPredecessorCount())
            }
        }
    }
    return nil
}

func (self *_Parser) result() *Result {
    return &Result {
        Graph       : self.g,
        BlockMap    : self.bm,
        Liveness    : self.lv,
        EntryStates : self.entry,
        ExitStates  : self.exit,
        Merges      : self.merges,
        LoopBegins  : self.begins,
    }
}
