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
    `testing`

    `github.com/stretchr/testify/require`

    `github.com/cloudwego/bcflow/internal/bailout`
    `github.com/cloudwego/bcflow/internal/blockmap`
    `github.com/cloudwego/bcflow/internal/bytecode`
    `github.com/cloudwego/bcflow/internal/graph`
    `github.com/cloudwego/bcflow/internal/liveness`
    `github.com/cloudwego/bcflow/internal/opts`
)

func testOptions() *opts.Options {
    o := opts.GetDefaultOptions()
    o.Verify = true
    return &o
}

func assemble(name string, locals int, fn func(p *bytecode.Builder)) *bytecode.Code {
    p := bytecode.CreateBuilder()
    fn(p)
    code, tab := p.Build()
    return &bytecode.Code {
        MethodName : name,
        Bytes      : code,
        Locals     : locals,
        Stack      : 4,
        Table      : tab,
        ParamKinds : []bytecode.Kind { bytecode.K_int },
        Static     : true,
    }
}

func parse(m bytecode.Method, o *opts.Options) (*Result, error) {
    bm, err := blockmap.Build(m, o)
    if err != nil {
        return nil, err
    }
    lv, err := liveness.Compute(bm, o)
    if err != nil {
        return nil, err
    }
    return Parse(bm, lv, o)
}

func mustParse(t *testing.T, m bytecode.Method, o *opts.Options) *Result {
    ret, err := parse(m, o)
    require.NoError(t, err)
    return ret
}

func requireBailout(t *testing.T, err error, rule bailout.Rule) *bailout.Error {
    be, ok := bailout.As(err)
    require.True(t, ok, "expected a bailout, got %v", err)
    require.Equal(t, rule, be.Rule, be.Error())
    return be
}

func constValues(vs []graph.Value) []int64 {
    r := make([]int64, len(vs))
    for i, v := range vs {
        r[i] = v.(*graph.Const).V
    }
    return r
}

func ifElse() *bytecode.Code {
    return assemble("ifelse", 2, func(p *bytecode.Builder) {
        p.LOAD(bytecode.K_int, 0)
        p.IF(bytecode.OP_ifeq, "else")
        p.ICONST(1)
        p.STORE(bytecode.K_int, 1)
        p.GOTO("join")
        p.Label("else")
        p.ICONST(2)
        p.STORE(bytecode.K_int, 1)
        p.Label("join")
        p.LOAD(bytecode.K_int, 1)
        p.RETURN(bytecode.K_int)
    })
}

func whileLoop() *bytecode.Code {
    return assemble("while", 2, func(p *bytecode.Builder) {
        p.ICONST(0)
        p.STORE(bytecode.K_int, 1)
        p.Label("head")
        p.LOAD(bytecode.K_int, 1)
        p.LOAD(bytecode.K_int, 0)
        p.IF(bytecode.OP_if_icmpge, "exit")
        p.IINC(1, 1)
        p.GOTO("head")
        p.Label("exit")
        p.LOAD(bytecode.K_int, 1)
        p.RETURN(bytecode.K_int)
    })
}

func TestParser_IfElse(t *testing.T) {
    ret := mustParse(t, ifElse(), testOptions())
    m := ret.Merges[3]
    require.NotNil(t, m, ret.BlockMap.String())
    require.False(t, m.IsLoop)
    require.Equal(t, 2, m.Ends)
    require.Len(t, m.Phis, 1)

    /* one phi over both constants */
    phi := m.Phis[0]
    require.Equal(t, bytecode.K_int, phi.Kind())
    require.ElementsMatch(t, []int64{1, 2}, constValues(phi.Inputs))
    require.Same(t, phi, ret.EntryStates[3].Local(1).Value)

    /* the parameter is dead after the branch */
    require.True(t, ret.EntryStates[3].Local(0).IsEmpty())

    /* the return block receives the phi */
    rs := ret.ReturnState()
    require.Equal(t, 1, rs.StackSize())
    require.Same(t, phi, rs.Stack(0).Value)
    require.Nil(t, ret.UnwindState())
}

func TestParser_IfElseSlotZero(t *testing.T) {
    ret := mustParse(t, assemble("ifelse0", 1, func(p *bytecode.Builder) {
        p.LOAD(bytecode.K_int, 0)
        p.IF(bytecode.OP_ifeq, "else")
        p.ICONST(1)
        p.STORE(bytecode.K_int, 0)
        p.GOTO("join")
        p.Label("else")
        p.ICONST(2)
        p.STORE(bytecode.K_int, 0)
        p.Label("join")
        p.LOAD(bytecode.K_int, 0)
        p.RETURN(bytecode.K_int)
    }), testOptions())
    join := ret.BlockMap.BlockAt(11)
    m := ret.Merges[join.Id]
    require.NotNil(t, m, ret.BlockMap.String())
    require.Len(t, m.Phis, 1)
    require.Len(t, m.Phis[0].Inputs, 2)
    require.ElementsMatch(t, []int64{1, 2}, constValues(m.Phis[0].Inputs))
    require.Same(t, m.Phis[0], ret.EntryStates[join.Id].Local(0).Value)
}

func TestParser_KeepDeadLocals(t *testing.T) {
    o := testOptions()
    o.ClearNonLiveLocals = false
    ret := mustParse(t, ifElse(), o)
    require.True(t, ret.EntryStates[3].Local(0).IsValue())
    require.IsType(t, (*graph.Param)(nil), ret.EntryStates[3].Local(0).Value)
}

func TestParser_WhileLoop(t *testing.T) {
    ret := mustParse(t, whileLoop(), testOptions())
    require.Len(t, ret.LoopBegins, 1)
    begin := ret.LoopBegins[0]
    require.True(t, begin.IsLoop)
    require.Equal(t, 1, begin.Block)
    require.Equal(t, 1, begin.Ends)
    require.Equal(t, 1, begin.LoopEnds)

    /* only the counter is changed in the loop */
    require.Len(t, begin.Phis, 1, ret.Graph.String())
    phi := begin.Phis[0]
    require.Len(t, phi.Inputs, begin.PhiPredecessorCount())
    require.Equal(t, int64(0), phi.Inputs[0].(*graph.Const).V)
    require.Equal(t, bytecode.OP_iinc, phi.Inputs[1].(*graph.Op).Opcode)
    require.Same(t, phi, ret.EntryStates[1].Local(1).Value)
    require.IsType(t, (*graph.Param)(nil), ret.EntryStates[1].Local(0).Value)

    /* the counter leaves the loop through a proxy */
    require.Len(t, ret.Graph.Exits, 1)
    exit := ret.Graph.Exits[0]
    require.Same(t, begin, exit.Loop)
    require.Equal(t, 3, exit.Block)
    px, ok := ret.ReturnState().Stack(0).Value.(*graph.Proxy)
    require.True(t, ok, ret.ReturnState().String())
    require.Same(t, phi, px.Value)
    require.Same(t, exit, px.Exit)
}

func TestParser_ForceLoopPhis(t *testing.T) {
    o := testOptions()
    o.ForceLoopPhis = true
    ret := mustParse(t, whileLoop(), o)
    begin := ret.LoopBegins[0]
    require.Len(t, begin.Phis, 2)
    for _, phi := range begin.Phis {
        require.Len(t, phi.Inputs, 2)
    }

    /* the parameter phi only ever sees the parameter */
    p0 := ret.EntryStates[1].Local(0).Value.(*graph.Phi)
    require.Same(t, p0.Inputs[0], p0.Inputs[1])
}

func TestParser_NestedLoopExits(t *testing.T) {
    ret := mustParse(t, assemble("nested", 3, func(p *bytecode.Builder) {
        p.ICONST(0)
        p.STORE(bytecode.K_int, 1)
        p.Label("outer")
        p.ICONST(0)
        p.STORE(bytecode.K_int, 2)
        p.Label("inner")
        p.LOAD(bytecode.K_int, 2)
        p.IF(bytecode.OP_ifne, "done")
        p.IINC(2, 1)
        p.LOAD(bytecode.K_int, 1)
        p.IF(bytecode.OP_ifeq, "inner")
        p.IINC(1, 1)
        p.GOTO("outer")
        p.Label("done")
        p.LOAD(bytecode.K_int, 1)
        p.RETURN(bytecode.K_int)
    }), testOptions())
    require.Len(t, ret.LoopBegins, 2)

    /* leaving both loops at once exits the inner loop first */
    var exits []*graph.LoopExit
    done := ret.BlockMap.BlockAt(ret.BlockMap.ReturnBcis[0] - 1)
    for _, e := range ret.Graph.Exits {
        if e.Block == done.Id {
            exits = append(exits, e)
        }
    }
    require.Len(t, exits, 2, ret.Graph.String())
    inner := ret.BlockMap.Block(exits[0].Loop.Block)
    outer := ret.BlockMap.Block(exits[1].Loop.Block)
    require.Equal(t, 4, inner.StartBci)
    require.Equal(t, 2, outer.StartBci)
    require.Greater(t, inner.Loops.Count(), outer.Loops.Count())
}

func TestParser_UnbalancedMonitorsAtReturn(t *testing.T) {
    _, err := parse(assemble("locked", 1, func(p *bytecode.Builder) {
        p.ACONST_NULL()
        p.MONITORENTER()
        p.RETURN(bytecode.K_void)
    }), testOptions())
    be := requireBailout(t, err, bailout.UnbalancedMonitors)
    require.Equal(t, 2, be.Bci)
}

func TestParser_UnbalancedMonitorsAtMerge(t *testing.T) {
    _, err := parse(assemble("maybe_locked", 1, func(p *bytecode.Builder) {
        p.LOAD(bytecode.K_int, 0)
        p.IF(bytecode.OP_ifeq, "join")
        p.ACONST_NULL()
        p.MONITORENTER()
        p.Label("join")
        p.RETURN(bytecode.K_void)
    }), testOptions())
    requireBailout(t, err, bailout.UnbalancedMonitors)
}

func TestParser_BalancedMonitors(t *testing.T) {
    ret := mustParse(t, assemble("synchronized", 1, func(p *bytecode.Builder) {
        p.ACONST_NULL()
        p.MONITORENTER()
        p.ACONST_NULL()
        p.MONITOREXIT()
        p.RETURN(bytecode.K_void)
    }), testOptions())
    require.Zero(t, ret.ReturnState().LockDepth())
}

func TestParser_StackMismatch(t *testing.T) {
    _, err := parse(assemble("uneven", 1, func(p *bytecode.Builder) {
        p.LOAD(bytecode.K_int, 0)
        p.IF(bytecode.OP_ifeq, "join")
        p.ICONST(1)
        p.Label("join")
        p.RETURN(bytecode.K_void)
    }), testOptions())
    requireBailout(t, err, bailout.InvalidBytecode)
}

func TestParser_KindMismatch(t *testing.T) {
    _, err := parse(assemble("mistyped", 1, func(p *bytecode.Builder) {
        p.LOAD(bytecode.K_int, 0)
        p.RETURN(bytecode.K_object)
    }), testOptions())
    be := requireBailout(t, err, bailout.InvalidBytecode)
    require.Equal(t, 1, be.Bci)
}

func TestParser_ExceptionDispatch(t *testing.T) {
    ret := mustParse(t, assemble("try", 2, func(p *bytecode.Builder) {
        p.Label("try")
        p.CPI(bytecode.OP_invokestatic, 1)
        p.Label("end")
        p.RETURN(bytecode.K_void)
        p.Label("handler")
        p.STORE(bytecode.K_object, 1)
        p.RETURN(bytecode.K_void)
        p.Handler("try", "end", "handler", 0)
    }), testOptions())
    bm := ret.BlockMap

    /* the dispatch block sees the exception of the invoke */
    d := bm.DispatchSuccessor(bm.StartBlock())
    require.NotNil(t, d, bm.String())
    ds := ret.EntryStates[d.Id]
    require.Equal(t, 1, ds.StackSize())
    exc, ok := ds.Stack(0).Value.(*graph.ExceptionObject)
    require.True(t, ok, ds.String())
    require.Equal(t, 0, exc.Bci)

    /* and forwards it to the handler */
    h := bm.BlockAt(4)
    require.Same(t, exc, ret.EntryStates[h.Id].Stack(0).Value)

    /* nothing escapes a catch-all handler */
    require.Nil(t, ret.UnwindState())
    require.Empty(t, ret.Merges[bm.ReturnBlock().Id].Phis)
    require.Equal(t, 2, ret.Merges[bm.ReturnBlock().Id].Ends)
}

func TestParser_Unwind(t *testing.T) {
    ret := mustParse(t, assemble("throw", 1, func(p *bytecode.Builder) {
        p.ACONST_NULL()
        p.ATHROW()
    }), testOptions())
    us := ret.UnwindState()
    require.NotNil(t, us)
    require.Equal(t, 1, us.StackSize())
    require.Equal(t, int64(0), us.Stack(0).Value.(*graph.Const).V)
    require.Nil(t, ret.ReturnState())
}

func TestParser_Subroutine(t *testing.T) {
    ret := mustParse(t, assemble("jsr", 2, func(p *bytecode.Builder) {
        p.JSR("sub")
        p.JSR("sub")
        p.RETURN(bytecode.K_void)
        p.Label("sub")
        p.STORE(bytecode.K_object, 1)
        p.RET(1)
    }), testOptions())

    /* every copy of the subroutine gets its own return address */
    for id, ra := range map[int]int64 { 1: 3, 3: 6 } {
        c, ok := ret.EntryStates[id].Stack(0).Value.(*graph.Const)
        require.True(t, ok)
        require.True(t, c.Jsr)
        require.Equal(t, ra, c.V)
    }

    /* the return address does not survive the subroutine */
    require.NotNil(t, ret.ReturnState())
    require.Zero(t, ret.ReturnState().StackSize())
}

func TestParser_Invoke(t *testing.T) {
    m := assemble("invoke", 1, func(p *bytecode.Builder) {
        p.LCONST(1)
        p.ICONST(2)
        p.CPI(bytecode.OP_invokestatic, 7)
        p.RETURN(bytecode.K_double)
    })
    m.Constants = &bytecode.Pool {
        Methods: map[int]bytecode.Signature {
            7: { Params: []bytecode.Kind { bytecode.K_long, bytecode.K_int }, Return: bytecode.K_double },
        },
    }

    /* the result takes two slots */
    rs := mustParse(t, m, testOptions()).ReturnState()
    require.Equal(t, 2, rs.StackSize())
    require.True(t, rs.Stack(1).IsContinuation())

    /* arguments in call order */
    call := rs.Stack(0).Value.(*graph.Op)
    require.Equal(t, bytecode.OP_invokestatic, call.Opcode)
    require.Equal(t, bytecode.K_double, call.Kind())
    require.Len(t, call.Inputs, 2)
    require.Equal(t, bytecode.K_long, call.Inputs[0].Kind())
    require.Equal(t, bytecode.K_int, call.Inputs[1].Kind())
}

func TestParser_Arithmetic(t *testing.T) {
    ret := mustParse(t, assemble("arith", 3, func(p *bytecode.Builder) {
        p.LOAD(bytecode.K_int, 0)
        p.Op(bytecode.OP_i2l)
        p.LCONST(1)
        p.Op(bytecode.OP_ladd)
        p.LOAD(bytecode.K_int, 0)
        p.Op(bytecode.OP_lshl)
        p.STORE(bytecode.K_long, 1)
        p.LOAD(bytecode.K_long, 1)
        p.LCONST(0)
        p.Op(bytecode.OP_lcmp)
        p.RETURN(bytecode.K_int)
    }), testOptions())
    cmp := ret.ReturnState().Stack(0).Value.(*graph.Op)
    require.Equal(t, bytecode.OP_lcmp, cmp.Opcode)
    require.Equal(t, bytecode.K_int, cmp.Kind())
    shl := cmp.Inputs[0].(*graph.Op)
    require.Equal(t, bytecode.OP_lshl, shl.Opcode)
    require.Equal(t, bytecode.K_long, shl.Kind())
    require.Equal(t, bytecode.K_int, shl.Inputs[1].Kind())
}
