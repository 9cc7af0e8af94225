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
    `testing`

    `github.com/brianvoe/gofakeit/v6`
    `github.com/stretchr/testify/require`

    `github.com/cloudwego/bcflow/internal/bailout`
    `github.com/cloudwego/bcflow/internal/blockmap`
    `github.com/cloudwego/bcflow/internal/bytecode`
    `github.com/cloudwego/bcflow/internal/opts`
)

func build(t *testing.T, locals int, fn func(p *bytecode.Builder)) (*blockmap.BlockMap, *Liveness, error) {
    p := bytecode.CreateBuilder()
    fn(p)
    code, tab := p.Build()
    o := opts.GetDefaultOptions()
    o.Verify = true
    bm, err := blockmap.Build(&bytecode.Code {
        MethodName : t.Name(),
        Bytes      : code,
        Locals     : locals,
        Stack      : 4,
        Table      : tab,
        ParamKinds : []bytecode.Kind { bytecode.K_int },
        Static     : true,
    }, &o)
    require.NoError(t, err)
    lv, err := Compute(bm, &o)
    return bm, lv, err
}

func TestLiveness_WhileLoop(t *testing.T) {
    bm, lv, err := build(t, 2, func(p *bytecode.Builder) {
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
    require.NoError(t, err)
    require.NoError(t, lv.Verify(), lv.String())
    require.Equal(t, 2, lv.LocalsSize())

    /* the back edge needs a second pass */
    require.GreaterOrEqual(t, lv.Iterations(), 2)

    /* the parameter is live on entry, the counter is not */
    entry := bm.StartBlock()
    require.True(t, lv.LiveIn(entry, 0))
    require.False(t, lv.LiveIn(entry, 1))
    require.True(t, lv.LiveOut(entry, 1))

    /* both are live around the loop */
    hb := bm.LoopHeader(0)
    require.True(t, lv.LiveIn(hb, 0))
    require.True(t, lv.LiveIn(hb, 1))
    require.True(t, lv.LiveOut(bm.Block(2), 1))

    /* only the counter is written inside the loop */
    require.True(t, lv.IsChangedInLoop(0, 1))
    require.False(t, lv.IsChangedInLoop(0, 0))

    /* nothing is live after the return */
    exit := bm.BlockAt(13)
    require.False(t, lv.LiveIn(exit, 0))
    require.True(t, lv.LiveIn(exit, 1))
    require.False(t, lv.LiveOut(exit, 1))
}

func TestLiveness_TwoSlotLocals(t *testing.T) {
    bm, lv, err := build(t, 5, func(p *bytecode.Builder) {
        p.LCONST(1)
        p.STORE(bytecode.K_long, 1)
        p.LOAD(bytecode.K_long, 1)
        p.LOAD(bytecode.K_double, 3)
        p.Op(bytecode.OP_pop2)
        p.Op(bytecode.OP_pop2)
        p.RETURN(bytecode.K_void)
    })
    require.NoError(t, err)
    b := bm.StartBlock()
    require.False(t, lv.LiveIn(b, 1))
    require.False(t, lv.LiveIn(b, 2))
    require.True(t, lv.LiveIn(b, 3))
    require.True(t, lv.LiveIn(b, 4))
    require.NoError(t, lv.Verify())
}

func TestLiveness_StoreBeforeLoad(t *testing.T) {
    bm, lv, err := build(t, 2, func(p *bytecode.Builder) {
        p.LOAD(bytecode.K_int, 0)
        p.IF(bytecode.OP_ifeq, "skip")
        p.ICONST(3)
        p.STORE(bytecode.K_int, 1)
        p.Label("skip")
        p.LOAD(bytecode.K_int, 1)
        p.RETURN(bytecode.K_int)
    })
    require.NoError(t, err)

    /* one path does not write the local before the join reads it */
    require.True(t, lv.LiveIn(bm.StartBlock(), 1))
    require.False(t, lv.LiveIn(bm.BlockAt(4), 1))
    require.True(t, lv.LiveIn(bm.BlockAt(6), 1))
}

func TestLiveness_LocalOutOfRange(t *testing.T) {
    _, _, err := build(t, 1, func(p *bytecode.Builder) {
        p.LOAD(bytecode.K_long, 0)
        p.Op(bytecode.OP_pop2)
        p.RETURN(bytecode.K_void)
    })
    be, ok := bailout.As(err)
    require.True(t, ok)
    require.Equal(t, bailout.InvalidBytecode, be.Rule)
}

func TestLiveness_RandomFixpoint(t *testing.T) {
    f := gofakeit.New(1019)
    for n := 0; n < 200; n++ {
        size := f.Number(1, 20)
        _, lv, err := build(t, 4, func(p *bytecode.Builder) {
            label := func(i int) string { return fmt.Sprintf("L%d", i) }
            for i := 0; i < size; i++ {
                p.Label(label(i))
                switch f.Number(0, 4) {
                    case 0  : p.LOAD(bytecode.K_int, f.Number(0, 3)).Op(bytecode.OP_pop)
                    case 1  : p.ICONST(i).STORE(bytecode.K_int, f.Number(0, 3))
                    case 2  : p.IINC(f.Number(0, 3), 1)
                    case 3  : p.LOAD(bytecode.K_int, f.Number(0, 3)).IF(bytecode.OP_ifne, label(f.Number(i, size - 1)))
                    default : p.GOTO(label(f.Number(i, size - 1)))
                }
            }
            p.RETURN(bytecode.K_void)
        })
        require.NoError(t, err)
        require.NoError(t, lv.Verify(), lv.String())
    }
}
