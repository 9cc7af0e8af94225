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

package frame

import (
    `testing`

    `github.com/stretchr/testify/require`

    `github.com/cloudwego/bcflow/internal/bailout`
    `github.com/cloudwego/bcflow/internal/blockmap`
    `github.com/cloudwego/bcflow/internal/bytecode`
    `github.com/cloudwego/bcflow/internal/graph`
)

type fakeLiveness struct {
    in      map[int]bool
    out     map[int]bool
    changed map[int]bool
}

func (self fakeLiveness) LiveIn(_ *blockmap.Block, i int)  bool { return self.in[i] }
func (self fakeLiveness) LiveOut(_ *blockmap.Block, i int) bool { return self.out[i] }
func (self fakeLiveness) IsChangedInLoop(_ int, i int)     bool { return self.changed[i] }

func requireBailout(t *testing.T, rule bailout.Rule, fn func()) {
    defer func() {
        v := recover()
        be, ok := v.(*bailout.Error)
        require.True(t, ok, "expected a bailout, got %v", v)
        require.Equal(t, rule, be.Rule)
    }()
    fn()
}

func ints(g *graph.Graph, n int) []graph.Value {
    r := make([]graph.Value, n)
    for i := range r {
        r[i] = g.Const(bytecode.K_int, int64(i))
    }
    return r
}

func stackSlots(s *State) []Slot {
    r := make([]Slot, s.StackSize())
    for i := range r {
        r[i] = s.Stack(i)
    }
    return r
}

func TestState_Params(t *testing.T) {
    g := graph.New()
    s := NewState(g, 5, 0)
    s.InitializeFromParams([]bytecode.Kind { bytecode.K_long, bytecode.K_int, bytecode.K_object }, false)
    require.Equal(t, bytecode.K_object, s.Local(0).Value.Kind())
    require.Equal(t, bytecode.K_long, s.LoadLocal(1, bytecode.K_long).Kind())
    require.True(t, s.Local(2).IsContinuation())
    require.Equal(t, 2, s.LoadLocal(3, bytecode.K_int).(*graph.Param).Index)
    require.Equal(t, 3, s.LoadLocal(4, bytecode.K_object).(*graph.Param).Index)
}

func TestState_TwoSlotLocals(t *testing.T) {
    g := graph.New()
    s := NewState(g, 4, 0)
    l := g.Const(bytecode.K_long, 1)
    i := g.Const(bytecode.K_int, 2)

    /* overwriting the upper half kills the lower half */
    s.StoreLocal(0, bytecode.K_long, l)
    s.StoreLocal(1, bytecode.K_int, i)
    require.True(t, s.Local(0).IsEmpty())
    require.Equal(t, ValueOf(i), s.Local(1))

    /* overwriting the lower half kills the continuation */
    s.StoreLocal(2, bytecode.K_long, l)
    s.StoreLocal(2, bytecode.K_int, i)
    require.True(t, s.Local(3).IsEmpty())

    /* a two-slot store over the lower half of another one */
    s.StoreLocal(1, bytecode.K_long, l)
    s.StoreLocal(0, bytecode.K_long, l)
    require.True(t, s.Local(1).IsContinuation())
    require.True(t, s.Local(2).IsEmpty())

    /* loading the wrong kind is invalid */
    requireBailout(t, bailout.InvalidBytecode, func() { s.LoadLocal(0, bytecode.K_double) })
    requireBailout(t, bailout.InvalidBytecode, func() { s.LoadLocal(1, bytecode.K_int) })
}

func TestState_PushPop(t *testing.T) {
    g := graph.New()
    s := NewState(g, 0, 4)
    d := g.Const(bytecode.K_double, 0)
    v := ints(g, 2)
    s.Push(bytecode.K_int, v[0])
    s.Push(bytecode.K_double, d)
    s.Push(bytecode.K_int, v[1])
    require.Equal(t, 4, s.StackSize())
    require.Equal(t, []graph.Value { v[0], d, v[1] }, s.PopArguments(4))
    require.Zero(t, s.StackSize())

    /* the upper half must be popped first */
    s.Push(bytecode.K_double, d)
    requireBailout(t, bailout.InvalidBytecode, func() { s.Pop(bytecode.K_int) })
    s.ClearStack()
    requireBailout(t, bailout.InvalidBytecode, func() { s.XPop() })
    s.PushReturn(bytecode.K_void, nil)
    require.Zero(t, s.StackSize())
}

func TestState_StackOps(t *testing.T) {
    g := graph.New()
    v := ints(g, 4)
    tests := []struct {
        op   bytecode.OpCode
        in   int
        want []int
    } {
        { bytecode.OP_pop     , 2, []int { 0 }                },
        { bytecode.OP_pop2    , 3, []int { 0 }                },
        { bytecode.OP_dup     , 1, []int { 0, 0 }             },
        { bytecode.OP_dup_x1  , 2, []int { 1, 0, 1 }          },
        { bytecode.OP_dup_x2  , 3, []int { 2, 0, 1, 2 }       },
        { bytecode.OP_dup2    , 2, []int { 0, 1, 0, 1 }       },
        { bytecode.OP_dup2_x1 , 3, []int { 1, 2, 0, 1, 2 }    },
        { bytecode.OP_dup2_x2 , 4, []int { 2, 3, 0, 1, 2, 3 } },
        { bytecode.OP_swap    , 2, []int { 1, 0 }             },
    }
    for _, tc := range tests {
        t.Run(tc.op.String(), func(t *testing.T) {
            s := NewState(g, 0, 8)
            for i := 0; i < tc.in; i++ {
                s.Push(bytecode.K_int, v[i])
            }
            s.StackOp(tc.op)
            want := make([]Slot, len(tc.want))
            for i, x := range tc.want {
                want[i] = ValueOf(v[x])
            }
            require.Equal(t, want, stackSlots(s))
        })
    }
}

func TestState_StackOpsTwoSlot(t *testing.T) {
    g := graph.New()
    l := g.Const(bytecode.K_long, 7)
    s := NewState(g, 0, 4)
    s.Push(bytecode.K_long, l)
    s.StackOp(bytecode.OP_dup2)
    require.Equal(t, l, s.Pop(bytecode.K_long))
    require.Equal(t, l, s.Pop(bytecode.K_long))

    /* category 1 shuffles cannot split a two-slot value */
    s.Push(bytecode.K_long, l)
    requireBailout(t, bailout.InvalidBytecode, func() { s.StackOp(bytecode.OP_dup) })
}

func TestState_MergeCreatesPhi(t *testing.T) {
    g := graph.New()
    v := ints(g, 3)
    a := NewState(g, 2, 1)
    a.StoreLocal(0, bytecode.K_int, v[1])
    a.StoreLocal(1, bytecode.K_int, v[0])
    b := a.Copy()
    b.StoreLocal(0, bytecode.K_int, v[2])

    /* the first end has arrived */
    m := g.Merge(3)
    m.Ends = 1
    a.Merge(m, b)
    m.Ends++

    phi, ok := a.Local(0).Value.(*graph.Phi)
    require.True(t, ok, a.String())
    require.Same(t, m, phi.Merge)
    require.Equal(t, []graph.Value { v[1], v[2] }, phi.Inputs)
    require.Equal(t, m.PhiPredecessorCount(), len(phi.Inputs))
    require.Equal(t, ValueOf(v[0]), a.Local(1))
    require.Len(t, m.Phis, 1)

    /* a third end extends the phi, and the unchanged local stays */
    c := b.Copy()
    a.Merge(m, c)
    m.Ends++
    require.Equal(t, []graph.Value { v[1], v[2], v[2] }, phi.Inputs)
    require.Equal(t, m.PhiPredecessorCount(), len(phi.Inputs))
    require.Equal(t, ValueOf(v[0]), a.Local(1))
}

func TestState_MergeIncompatible(t *testing.T) {
    g := graph.New()
    a := NewState(g, 1, 0)
    a.StoreLocal(0, bytecode.K_int, g.Const(bytecode.K_int, 1))
    b := NewState(g, 1, 0)
    b.StoreLocal(0, bytecode.K_object, g.Const(bytecode.K_object, 0))

    /* no phi yet, the local is dropped */
    m := g.Merge(1)
    m.Ends = 1
    c := a.Copy()
    c.Merge(m, b)
    require.True(t, c.Local(0).IsEmpty())

    /* with a phi, it gets a default input and is dead */
    a.StoreLocal(0, bytecode.K_int, g.Phi(bytecode.K_int, m))
    a.Merge(m, b)
    phi := a.Local(0).Value.(*graph.Phi)
    require.True(t, phi.Dead)
    require.Len(t, phi.Inputs, 1)
    require.Equal(t, int64(0), phi.Inputs[0].(*graph.Const).V)
}

func TestState_UnbalancedMonitors(t *testing.T) {
    g := graph.New()
    a := NewState(g, 1, 1)
    obj := g.Const(bytecode.K_object, 0)
    b := a.Copy()
    a.PushLock(obj, g.MonitorId(0))
    err := a.IsCompatibleWith(b)
    be, ok := bailout.As(err)
    require.True(t, ok)
    require.Equal(t, bailout.UnbalancedMonitors, be.Rule)
    require.Equal(t, bailout.MalformedControlFlow, be.Category())
    requireBailout(t, bailout.UnbalancedMonitors, func() { a.Merge(g.Merge(0), b) })
    require.Equal(t, obj, a.PopLock())
    requireBailout(t, bailout.UnbalancedMonitors, func() { a.PopLock() })
}

func TestState_MergeMonitors(t *testing.T) {
    g := graph.New()
    obj := g.Const(bytecode.K_object, 0)
    a := NewState(g, 1, 1)
    b := a.Copy()
    m1 := g.MonitorId(0)
    m2 := g.MonitorId(0)
    a.PushLock(obj, m1)
    b.PushLock(obj, m2)
    require.NoError(t, a.IsCompatibleWith(b))

    /* two different monitors merge into a new one */
    m := g.Merge(2)
    m.Ends = 1
    c := a.Copy()
    a.Merge(m, b)
    m.Ends++
    id := a.PeekMonitorId()
    require.NotNil(t, id)
    require.NotSame(t, m1, id)
    require.NotSame(t, m2, id)
    require.Equal(t, 0, id.Depth)
    require.Equal(t, 1, a.LockDepth())
    require.Same(t, m1, c.PeekMonitorId())

    /* the same monitor on both sides is kept */
    d := c.Copy()
    c.Merge(g.Merge(2), d)
    require.Same(t, m1, c.PeekMonitorId())
    require.Equal(t, obj, c.PopLock())
    require.Nil(t, c.PeekMonitorId())
}

func TestState_LoopPhisAndProxies(t *testing.T) {
    g := graph.New()
    v := ints(g, 2)
    s := NewState(g, 2, 1)
    s.StoreLocal(0, bytecode.K_int, v[0])
    s.StoreLocal(1, bytecode.K_int, v[1])
    s.Push(bytecode.K_int, v[0])

    /* only the changed local and the stack get a phi */
    begin := g.LoopBegin(1)
    begin.Ends = 1
    s.InsertLoopPhis(fakeLiveness { changed: map[int]bool { 1: true } }, 0, begin, false)
    require.Equal(t, ValueOf(v[0]), s.Local(0))
    phi, ok := s.Local(1).Value.(*graph.Phi)
    require.True(t, ok)
    require.Equal(t, []graph.Value { v[1] }, phi.Inputs)
    require.IsType(t, (*graph.Phi)(nil), s.Stack(0).Value)
    entry := s.Copy()

    /* inside the loop */
    s.Pop(bytecode.K_int)
    inc := g.Op(bytecode.OP_iadd, 5, bytecode.K_int, phi, v[0])
    s.Push(bytecode.K_int, inc)

    /* values created in the loop and loop phis are proxied at the exit */
    exit := g.LoopExit(begin, 2)
    out := s.Copy()
    out.InsertLoopProxies(exit, entry)
    require.Equal(t, ValueOf(v[0]), out.Local(0))
    p1, ok := out.Local(1).Value.(*graph.Proxy)
    require.True(t, ok)
    require.Equal(t, graph.Value(phi), p1.Value)
    p2, ok := out.Stack(0).Value.(*graph.Proxy)
    require.True(t, ok)
    require.Equal(t, graph.Value(inc), p2.Value)

    /* a back edge adds the second input */
    s.Merge(begin, s.Copy())
    begin.LoopEnds++
    require.Equal(t, begin.PhiPredecessorCount(), len(phi.Inputs))
}

func TestState_MissingLoopPhi(t *testing.T) {
    g := graph.New()
    v := ints(g, 2)
    a := NewState(g, 1, 0)
    a.StoreLocal(0, bytecode.K_int, v[0])
    b := a.Copy()
    b.StoreLocal(0, bytecode.K_int, v[1])
    begin := g.LoopBegin(0)
    begin.Ends = 1
    require.Panics(t, func() { a.Merge(begin, b) })
}

func TestState_ClearNonLiveLocals(t *testing.T) {
    g := graph.New()
    s := NewState(g, 4, 0)
    s.StoreLocal(0, bytecode.K_int, g.Const(bytecode.K_int, 0))
    s.StoreLocal(1, bytecode.K_long, g.Const(bytecode.K_long, 0))
    s.StoreLocal(3, bytecode.K_int, g.Const(bytecode.K_int, 3))
    lv := fakeLiveness {
        in  : map[int]bool { 0: true, 1: true, 3: true },
        out : map[int]bool { 0: true },
    }

    /* the dead continuation takes its value along */
    c := s.Copy()
    c.ClearNonLiveLocals(nil, lv, true)
    require.True(t, c.Local(1).IsEmpty())
    require.True(t, c.Local(2).IsEmpty())
    require.False(t, c.Local(3).IsEmpty())

    /* live-out */
    s.ClearNonLiveLocals(nil, lv, false)
    require.False(t, s.Local(0).IsEmpty())
    require.True(t, s.Local(3).IsEmpty())
    require.True(t, s.Contains(s.Local(0).Value))
}
