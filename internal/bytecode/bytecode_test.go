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

package bytecode

import (
    `encoding/binary`
    `testing`

    `github.com/cloudwego/bcflow/internal/bailout`
    `github.com/stretchr/testify/require`
)

func decode(code []byte) (ops []OpCode, bcis []int) {
    for s := NewStream(code); !s.Done(); s.Next() {
        ops = append(ops, s.CurrentBC())
        bcis = append(bcis, s.CurrentBCI())
    }
    return
}

func TestStream_BranchDest(t *testing.T) {
    p := CreateBuilder()
    p.Label("top")
    p.ICONST(1)
    p.IF(OP_ifeq, "out")
    p.GOTO("top")
    p.Label("out")
    p.RETURN(K_void)
    code, _ := p.Build()
    ops, bcis := decode(code)
    require.Equal(t, []OpCode{OP_iconst_1, OP_ifeq, OP_goto, OP_return}, ops)
    require.Equal(t, []int{0, 1, 4, 7}, bcis)
    s := NewStream(code)
    s.SetBCI(1)
    require.Equal(t, 7, s.ReadBranchDest())
    s.SetBCI(4)
    require.Equal(t, 0, s.ReadBranchDest())
    require.Equal(t, 7, s.NextBCI())
}

func TestStream_Locals(t *testing.T) {
    p := CreateBuilder()
    p.LOAD(K_int, 2)
    p.STORE(K_long, 7)
    p.LOAD(K_object, 300)
    p.IINC(5, -3)
    p.IINC(400, 1000)
    p.RET(9)
    code, _ := p.Build()
    s := NewStream(code)
    kind, idx := s.ReadLocal()
    require.Equal(t, K_int, kind)
    require.Equal(t, 2, idx)
    s.Next()
    kind, idx = s.ReadLocal()
    require.Equal(t, K_long, kind)
    require.Equal(t, 7, idx)
    s.Next()
    require.True(t, s.IsWide())
    require.Equal(t, OP_aload, s.CurrentBC())
    kind, idx = s.ReadLocal()
    require.Equal(t, K_object, kind)
    require.Equal(t, 300, idx)
    s.Next()
    require.Equal(t, OP_iinc, s.CurrentBC())
    require.Equal(t, 5, s.ReadLocalIndex())
    require.Equal(t, -3, s.ReadIncrement())
    s.Next()
    require.True(t, s.IsWide())
    require.Equal(t, 400, s.ReadLocalIndex())
    require.Equal(t, 1000, s.ReadIncrement())
    require.Equal(t, 6, s.NextBCI() - s.CurrentBCI())
    s.Next()
    require.Equal(t, OP_ret, s.CurrentBC())
    require.Equal(t, 9, s.ReadLocalIndex())
    s.Next()
    require.True(t, s.Done())
}

func TestStream_Switch(t *testing.T) {
    p := CreateBuilder()
    p.NOP()
    p.ICONST(0)
    p.TABLESWITCH(10, "d", "a", "b", "a")
    p.Label("a")
    p.LOOKUPSWITCH("d", []int{-5, 100}, []string{"b", "d"})
    p.Label("b")
    p.NOP()
    p.Label("d")
    p.RETURN(K_void)
    code, _ := p.Build()
    s := NewStream(code)
    s.Next()
    s.Next()
    require.Equal(t, OP_tableswitch, s.CurrentBC())
    require.Equal(t, 2, s.CurrentBCI())
    sw := s.Switch()
    require.Equal(t, 3, sw.NumberOfCases())
    require.Equal(t, 10, sw.KeyAt(0))
    require.Equal(t, 12, sw.KeyAt(2))
    a := s.NextBCI()
    require.Equal(t, a, sw.TargetAt(0))
    require.Equal(t, a, sw.TargetAt(2))
    s.Next()
    require.Equal(t, OP_lookupswitch, s.CurrentBC())
    lw := s.Switch()
    b := s.NextBCI()
    require.Equal(t, 2, lw.NumberOfCases())
    require.Equal(t, -5, lw.KeyAt(0))
    require.Equal(t, 100, lw.KeyAt(1))
    require.Equal(t, b, lw.TargetAt(0))
    require.Equal(t, b + 1, lw.TargetAt(1))
    require.Equal(t, b + 1, lw.DefaultTarget())
    require.Equal(t, b + 1, sw.DefaultTarget())
    require.Equal(t, b, sw.TargetAt(1))
}

func decodeAll(code []byte) (err error) {
    defer bailout.Rescue(&err)
    for s := NewStream(code); !s.Done(); s.Next() {
        s.CurrentBC()
    }
    return nil
}

func switchCode(op OpCode, a int32, b int32) []byte {
    code := make([]byte, 12, 16)
    code[0] = byte(op)
    binary.BigEndian.PutUint32(code[8:], uint32(a))
    code = append(code, 0, 0, 0, 0)
    binary.BigEndian.PutUint32(code[12:], uint32(b))
    return code
}

func TestStream_Truncated(t *testing.T) {
    var err error
    func() {
        defer bailout.Rescue(&err)
        s := NewStream([]byte{byte(OP_sipush), 1})
        s.Next()
    }()
    be, ok := bailout.As(err)
    require.True(t, ok)
    require.Equal(t, bailout.InvalidBytecode, be.Rule)
    require.Equal(t, bailout.MalformedControlFlow, be.Category())

    /* switch tables whose sizes overflow or exceed the code */
    for name, code := range map[string][]byte {
        "tableswitch-overflow" : switchCode(OP_tableswitch, -1, 0x7fffffff),
        "tableswitch-inverted" : switchCode(OP_tableswitch, 5, 4),
        "tableswitch-huge"     : switchCode(OP_tableswitch, 0, 1 << 20),
        "lookupswitch-huge"    : switchCode(OP_lookupswitch, 1 << 30, 0),
        "lookupswitch-negative": switchCode(OP_lookupswitch, -1, 0),
    } {
        be, ok := bailout.As(decodeAll(code))
        require.True(t, ok, name)
        require.Equal(t, bailout.InvalidBytecode, be.Rule, name)
    }
}

func TestBuilder_Handlers(t *testing.T) {
    p := CreateBuilder()
    p.Label("start")
    p.ACONST_NULL()
    p.ATHROW()
    p.Label("end")
    p.STORE(K_object, 0)
    p.RETURN(K_void)
    p.Handler("start", "end", "end", 0)
    p.Handler("start", "end", "end", 7)
    code, tab := p.Build()
    require.Len(t, code, 4)
    require.Len(t, tab, 2)
    require.True(t, tab[0].IsCatchAll())
    require.False(t, tab[1].IsCatchAll())
    require.True(t, tab[0].Covers(1))
    require.False(t, tab[0].Covers(2))
    require.Equal(t, 2, tab[1].HandlerBci)
}

func TestOpCode_Flags(t *testing.T) {
    require.True(t, OP_ifnull.IsBranch())
    require.True(t, OP_goto_w.IsBranch())
    require.False(t, OP_goto.Is(F_cond))
    require.True(t, OP_getfield.CanTrap())
    require.True(t, OP_invokeinterface.IsInvoke())
    require.False(t, OP_iadd.CanTrap())
    require.True(t, OP_areturn.IsReturn())
    require.Equal(t, K_double, OP_dreturn.ReturnKind())
    kind, idx := OP_dstore_3.LocalAccess()
    require.Equal(t, K_double, kind)
    require.Equal(t, 3, idx)
    require.True(t, OP_iinc.Is(F_load))
    require.True(t, OP_iinc.Is(F_store))
    require.False(t, OpCode(0xca).IsValid())
    require.Equal(t, "invokestatic", OP_invokestatic.String())
}
