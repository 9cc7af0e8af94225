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
    `github.com/cloudwego/bcflow/internal/bailout`
    `github.com/cloudwego/bcflow/internal/blockmap`
    `github.com/cloudwego/bcflow/internal/frame`
    `github.com/cloudwego/bcflow/internal/graph`

    . `github.com/cloudwego/bcflow/internal/bytecode`
)

// simulate applies the current instruction to st. It returns true if the
// instruction already sent st to its successors.
func (self *_Parser) simulate(b *blockmap.Block, op OpCode, st *frame.State) bool {
    s := self.st
    g := self.g
    bci := s.CurrentBCI()

    /* dispatch by opcode groups */
    switch {
        case op == OP_nop                              : break
        case op == OP_aconst_null                      : st.Push(K_object, g.Const(K_object, 0))
        case between(op, OP_iconst_m1, OP_iconst_5)    : st.Push(K_int, g.Const(K_int, int64(op) - int64(OP_iconst_0)))
        case between(op, OP_lconst_0, OP_lconst_1)     : st.Push(K_long, g.Const(K_long, int64(op - OP_lconst_0)))
        case between(op, OP_fconst_0, OP_fconst_2)     : st.Push(K_float, g.Const(K_float, int64(op - OP_fconst_0)))
        case between(op, OP_dconst_0, OP_dconst_1)     : st.Push(K_double, g.Const(K_double, int64(op - OP_dconst_0)))
        case op == OP_bipush                           : st.Push(K_int, g.Const(K_int, int64(s.ReadByte())))
        case op == OP_sipush                           : st.Push(K_int, g.Const(K_int, int64(s.ReadShort())))
        case op == OP_ldc                              : self.genLoadConstant(op, s.ReadUByte(), st)
        case between(op, OP_ldc_w, OP_ldc2_w)          : self.genLoadConstant(op, s.ReadCPI(), st)
        case between(op, OP_iload, OP_aload_3)         : self.genLoadLocal(st)
        case between(op, OP_iaload, OP_saload)         : self.genLoadIndexed(op, _ArrayKinds[op - OP_iaload], st)
        case between(op, OP_istore, OP_astore_3)       : self.genStoreLocal(st)
        case between(op, OP_iastore, OP_sastore)       : self.genStoreIndexed(op, _ArrayKinds[op - OP_iastore], st)
        case between(op, OP_pop, OP_swap)              : st.StackOp(op)
        case between(op, OP_iadd, OP_drem)             : self.genBinary(op, _NumKinds[(op - OP_iadd) % 4], st)
        case between(op, OP_ineg, OP_dneg)             : self.genUnary(op, _NumKinds[op - OP_ineg], st)
        case between(op, OP_ishl, OP_lushr)            : self.genShift(op, _IntKinds[(op - OP_ishl) % 2], st)
        case between(op, OP_iand, OP_lxor)             : self.genBinary(op, _IntKinds[(op - OP_iand) % 2], st)
        case op == OP_iinc                             : self.genIncrement(st)
        case between(op, OP_i2l, OP_i2s)               : self.genConvert(op, _Conversions[op - OP_i2l], st)
        case between(op, OP_lcmp, OP_dcmpg)            : self.genCompare(op, _CmpKinds[op - OP_lcmp], st)
        case between(op, OP_ifeq, OP_ifle)             : st.Pop(K_int)
        case between(op, OP_if_icmpeq, OP_if_icmple)   : st.Pop(K_int); st.Pop(K_int)
        case between(op, OP_if_acmpeq, OP_if_acmpne)   : st.Pop(K_object); st.Pop(K_object)
        case between(op, OP_ifnull, OP_ifnonnull)      : st.Pop(K_object)
        case op == OP_goto || op == OP_goto_w          : break
        case op == OP_jsr || op == OP_jsr_w            : self.genJsr(b, st); return true
        case op == OP_ret                              : self.genRet(b, st); return true
        case op == OP_tableswitch                      : st.Pop(K_int)
        case op == OP_lookupswitch                     : st.Pop(K_int)
        case op.IsReturn()                             : self.genReturn(b, op, st); return true
        case op == OP_getstatic                        : self.genGetField(op, false, st)
        case op == OP_putstatic                        : self.genPutField(op, false, st)
        case op == OP_getfield                         : self.genGetField(op, true, st)
        case op == OP_putfield                         : self.genPutField(op, true, st)
        case op.IsInvoke()                             : self.genInvoke(op, st)
        case op == OP_new                              : st.Push(K_object, g.Op(op, bci, K_object))
        case op == OP_newarray || op == OP_anewarray   : st.Push(K_object, g.Op(op, bci, K_object, st.Pop(K_int)))
        case op == OP_arraylength                      : st.Push(K_int, g.Op(op, bci, K_int, st.Pop(K_object)))
        case op == OP_athrow                           : self.genThrow(b, st); return true
        case op == OP_checkcast                        : st.Push(K_object, g.Op(op, bci, K_object, st.Pop(K_object)))
        case op == OP_instanceof                       : st.Push(K_int, g.Op(op, bci, K_int, st.Pop(K_object)))
        case op == OP_monitorenter                     : self.genMonitorEnter(st)
        case op == OP_monitorexit                      : self.genMonitorExit(op, st)
        case op == OP_multianewarray                   : self.genNewMultiArray(op, st)
        default                                        : bailout.Throw(bailout.InvalidBytecode, bci, "unsupported opcode %s", op)
    }
    return false
}

func (self *_Parser) genLoadConstant(op OpCode, cpi int, st *frame.State) {
    kind := self.pool.ConstantKind(cpi)
    st.Push(kind, self.g.Op(op, self.bci, kind))
}

func (self *_Parser) genLoadLocal(st *frame.State) {
    kind, idx := self.st.ReadLocal()
    st.Push(kind, st.LoadLocal(idx, kind))
}

func (self *_Parser) genStoreLocal(st *frame.State) {
    kind, idx := self.st.ReadLocal()
    st.StoreLocal(idx, kind, st.Pop(kind))
}

func (self *_Parser) genLoadIndexed(op OpCode, kind Kind, st *frame.State) {
    idx := st.Pop(K_int)
    arr := st.Pop(K_object)
    st.Push(kind, self.g.Op(op, self.bci, kind, arr, idx))
}

func (self *_Parser) genStoreIndexed(op OpCode, kind Kind, st *frame.State) {
    val := st.Pop(kind)
    idx := st.Pop(K_int)
    arr := st.Pop(K_object)
    self.g.Op(op, self.bci, K_void, arr, idx, val)
}

func (self *_Parser) genUnary(op OpCode, kind Kind, st *frame.State) {
    st.Push(kind, self.g.Op(op, self.bci, kind, st.Pop(kind)))
}

func (self *_Parser) genBinary(op OpCode, kind Kind, st *frame.State) {
    y := st.Pop(kind)
    x := st.Pop(kind)
    st.Push(kind, self.g.Op(op, self.bci, kind, x, y))
}

// genShift pops an int shift distance, whatever the kind of the shifted value.
func (self *_Parser) genShift(op OpCode, kind Kind, st *frame.State) {
    y := st.Pop(K_int)
    x := st.Pop(kind)
    st.Push(kind, self.g.Op(op, self.bci, kind, x, y))
}

func (self *_Parser) genCompare(op OpCode, kind Kind, st *frame.State) {
    y := st.Pop(kind)
    x := st.Pop(kind)
    st.Push(K_int, self.g.Op(op, self.bci, K_int, x, y))
}

func (self *_Parser) genConvert(op OpCode, cv _Conversion, st *frame.State) {
    st.Push(cv.to, self.g.Op(op, self.bci, cv.to, st.Pop(cv.from)))
}

func (self *_Parser) genIncrement(st *frame.State) {
    idx := self.st.ReadLocalIndex()
    inc := self.g.Const(K_int, int64(self.st.ReadIncrement()))
    st.StoreLocal(idx, K_int, self.g.Op(OP_iinc, self.bci, K_int, st.LoadLocal(idx, K_int), inc))
}

func (self *_Parser) genGetField(op OpCode, hasReceiver bool, st *frame.State) {
    var args []graph.Value
    kind := self.pool.FieldKind(self.st.ReadCPI())

    /* instance fields */
    if hasReceiver {
        args = append(args, st.Pop(K_object))
    }

    /* push the field value */
    st.Push(kind, self.g.Op(op, self.bci, kind, args...))
}

func (self *_Parser) genPutField(op OpCode, hasReceiver bool, st *frame.State) {
    kind := self.pool.FieldKind(self.st.ReadCPI())
    args := []graph.Value { st.Pop(kind) }

    /* instance fields */
    if hasReceiver {
        args = append([]graph.Value { st.Pop(K_object) }, args...)
    }

    /* stores produce no value */
    self.g.Op(op, self.bci, K_void, args...)
}

func (self *_Parser) genInvoke(op OpCode, st *frame.State) {
    sig := self.pool.MethodSignature(self.st.ReadCPI())
    nargs := ArgumentSlots(sig.Params)

    /* everything but static calls has a receiver */
    if op != OP_invokestatic && op != OP_invokedynamic {
        nargs++
    }

    /* pop the arguments and push the result */
    args := st.PopArguments(nargs)
    st.PushReturn(sig.Return, self.g.Op(op, self.bci, sig.Return, args...))
}

func (self *_Parser) genNewMultiArray(op OpCode, st *frame.State) {
    n := self.st.ReadDimensions()
    dims := make([]graph.Value, n)

    /* dimensions are pushed outermost first */
    for i := n - 1; i >= 0; i-- {
        dims[i] = st.Pop(K_int)
    }

    /* push the array */
    st.Push(K_object, self.g.Op(op, self.bci, K_object, dims...))
}

func (self *_Parser) genMonitorEnter(st *frame.State) {
    obj := st.Pop(K_object)
    st.PushLock(obj, self.g.MonitorId(st.LockDepth()))
}

func (self *_Parser) genMonitorExit(op OpCode, st *frame.State) {
    st.Pop(K_object)
    self.g.Op(op, self.bci, K_void, st.PopLock())
}

func (self *_Parser) genReturn(b *blockmap.Block, op OpCode, st *frame.State) {
    var ret graph.Value
    kind := op.ReturnKind()

    /* pop the return value */
    if kind != K_void {
        ret = st.Pop(kind)
    }

    /* every lock must have been released */
    if n := st.LockDepth(); n != 0 {
        bailout.Throw(bailout.UnbalancedMonitors, self.bci, "%d monitors still held at return", n)
    }

    /* the return block only sees the return value */
    st.ClearStack()
    if ret != nil {
        st.Push(kind, ret)
    }

    /* all returns share a single block */
    self.flow(b, self.bm.ReturnBlock(), st)
}

func (self *_Parser) genThrow(b *blockmap.Block, st *frame.State) {
    exc := st.Pop(K_object)
    st.ClearStack()
    st.Push(K_object, exc)

    /* go through the handlers if there are any */
    if d := self.bm.DispatchSuccessor(b); d != nil {
        self.flow(b, d, st)
    } else {
        self.flow(b, self.bm.UnwindBlock(), st)
    }
}

func (self *_Parser) genJsr(b *blockmap.Block, st *frame.State) {
    sux := self.bm.Block(b.JsrSuccessor)

    /* the subroutine must be entered with exactly one more return address */
    if sux.Scope.Pop() != b.Scope || sux.Scope.NextReturnAddress() != b.JsrReturnBci {
        bailout.Throw(bailout.UnstructuredSubroutine, self.bci, "unstructured control flow (internal limitation)")
    }

    /* push the return address */
    st.Push(K_object, self.g.JsrConst(b.JsrReturnBci))
    self.flow(b, sux, st)
}

func (self *_Parser) genRet(b *blockmap.Block, st *frame.State) {
    _, idx := self.st.ReadLocal()
    ret := b.Scope.NextReturnAddress()
    addr := st.LoadLocal(idx, K_object)

    /* a known return address must match the scope */
    if c, ok := addr.(*graph.Const); ok && c.Jsr && c.V != int64(ret) {
        bailout.Throw(bailout.UnstructuredSubroutine, self.bci, "ret returns to %d instead of %d", c.V, ret)
    }

    /* leave exactly one scope */
    sux := self.bm.Block(b.RetSuccessor)
    if sux.Scope != b.Scope.Pop() {
        bailout.Throw(bailout.UnstructuredSubroutine, self.bci, "unstructured control flow (ret leaves more than one scope)")
    }

    /* go back to the caller */
    self.flow(b, sux, st)
}
