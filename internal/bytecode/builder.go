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
    `fmt`
)

type _Fixup struct {
    at   int
    from int
    wide bool
}

type _PendingHandler struct {
    start     string
    end       string
    handler   string
    catchType int
}

// Builder assembles bytecode with symbolic branch labels. Forward references
// are patched once the label is placed.
type Builder struct {
    buf   []byte
    refs  map[string]int
    pends map[string][]_Fixup
    table []_PendingHandler
}

func CreateBuilder() *Builder {
    return newBuilder()
}

// PC returns the bci of the next instruction to be emitted.
func (self *Builder) PC() int {
    return len(self.buf)
}

func (self *Builder) emit(v ...byte) *Builder {
    self.buf = append(self.buf, v...)
    return self
}

func (self *Builder) emitU2(v int) *Builder {
    return self.emit(byte(v >> 8), byte(v))
}

func (self *Builder) emitS4(v int) *Builder {
    var b [4]byte
    binary.BigEndian.PutUint32(b[:], uint32(int32(v)))
    return self.emit(b[:]...)
}

func (self *Builder) patch(fx _Fixup, to int) {
    if off := to - fx.from; fx.wide {
        binary.BigEndian.PutUint32(self.buf[fx.at:], uint32(int32(off)))
    } else if off < -32768 || off > 32767 {
        panic(fmt.Sprintf("branch offset %d out of range at bci %d", off, fx.from))
    } else {
        binary.BigEndian.PutUint16(self.buf[fx.at:], uint16(int16(off)))
    }
}

func (self *Builder) ref(to string, from int, wide bool) {
    fx := _Fixup {
        at   : len(self.buf),
        from : from,
        wide : wide,
    }

    /* reserve the offset bytes */
    if wide {
        self.emit(0, 0, 0, 0)
    } else {
        self.emit(0, 0)
    }

    /* check for backward jumps */
    if pc, ok := self.refs[to]; ok {
        self.patch(fx, pc)
    } else {
        self.pends[to] = append(self.pends[to], fx)
    }
}

func (self *Builder) jmp(op OpCode, to string) *Builder {
    pc := self.PC()
    self.emit(byte(op))
    self.ref(to, pc, op == OP_goto_w || op == OP_jsr_w)
    return self
}

// Label binds name to the current bci.
func (self *Builder) Label(name string) *Builder {
    pc := self.PC()

    /* check for duplications */
    if _, ok := self.refs[name]; ok {
        panic("label " + name + " has already been linked")
    }

    /* patch all the pending jumps */
    for _, fx := range self.pends[name] {
        self.patch(fx, pc)
    }

    /* mark the label as resolved */
    self.refs[name] = pc
    delete(self.pends, name)
    return self
}

// Handler adds an exception table entry covering [start, end).
func (self *Builder) Handler(start string, end string, handler string, catchType int) *Builder {
    self.table = append(self.table, _PendingHandler {
        start     : start,
        end       : end,
        handler   : handler,
        catchType : catchType,
    })
    return self
}

func (self *Builder) lookup(name string) int {
    if pc, ok := self.refs[name]; ok {
        return pc
    } else {
        panic("undefined label: " + name)
    }
}

// Build returns the assembled code and exception table. The Builder must not
// be used afterwards.
func (self *Builder) Build() ([]byte, []ExceptionHandler) {
    var tab []ExceptionHandler

    /* check for unresolved labels */
    for key := range self.pends {
        panic("labels are not fully resolved: " + key)
    }

    /* resolve the exception table */
    for _, h := range self.table {
        tab = append(tab, ExceptionHandler {
            StartBci   : self.lookup(h.start),
            EndBci     : self.lookup(h.end),
            HandlerBci : self.lookup(h.handler),
            CatchType  : h.catchType,
        })
    }

    /* the Builder's life-time ends here */
    buf := self.buf
    freeBuilder(self)
    return buf, tab
}

func (self *Builder) Op(op OpCode) *Builder {
    if op.Length() != 1 {
        panic("opcode " + op.String() + " takes operands")
    }
    return self.emit(byte(op))
}

func (self *Builder) NOP()          *Builder { return self.Op(OP_nop) }
func (self *Builder) ACONST_NULL()  *Builder { return self.Op(OP_aconst_null) }
func (self *Builder) ATHROW()       *Builder { return self.Op(OP_athrow) }
func (self *Builder) MONITORENTER() *Builder { return self.Op(OP_monitorenter) }
func (self *Builder) MONITOREXIT()  *Builder { return self.Op(OP_monitorexit) }
func (self *Builder) ARRAYLENGTH()  *Builder { return self.Op(OP_arraylength) }

func (self *Builder) ICONST(v int) *Builder {
    switch {
        case v >= -1 && v <= 5         : return self.emit(byte(OP_iconst_m1 + OpCode(v + 1)))
        case v >= -128 && v <= 127     : return self.emit(byte(OP_bipush), byte(int8(v)))
        case v >= -32768 && v <= 32767 : return self.emit(byte(OP_sipush)).emitU2(v)
        default                        : panic(fmt.Sprintf("integer constant %d needs ldc", v))
    }
}

func (self *Builder) LCONST(v int) *Builder {
    if v != 0 && v != 1 {
        panic(fmt.Sprintf("long constant %d needs ldc2_w", v))
    }
    return self.emit(byte(OP_lconst_0 + OpCode(v)))
}

func (self *Builder) LDC(cpi int) *Builder {
    if cpi < 256 {
        return self.emit(byte(OP_ldc), byte(cpi))
    } else {
        return self.emit(byte(OP_ldc_w)).emitU2(cpi)
    }
}

func (self *Builder) local(short OpCode, long OpCode, k Kind, idx int) *Builder {
    off := OpCode(kindOffset(k))
    switch {
        case idx < 4   : return self.emit(byte(short + off * 4 + OpCode(idx)))
        case idx < 256 : return self.emit(byte(long + off), byte(idx))
        default        : return self.emit(byte(OP_wide), byte(long + off)).emitU2(idx)
    }
}

func kindOffset(k Kind) int {
    for i, v := range _LocalKinds {
        if v == k {
            return i
        }
    }
    panic("no local variable instructions for kind " + k.String())
}

func (self *Builder) LOAD(k Kind, idx int) *Builder {
    return self.local(OP_iload_0, OP_iload, k, idx)
}

func (self *Builder) STORE(k Kind, idx int) *Builder {
    return self.local(OP_istore_0, OP_istore, k, idx)
}

func (self *Builder) IINC(idx int, delta int) *Builder {
    if idx < 256 && delta >= -128 && delta <= 127 {
        return self.emit(byte(OP_iinc), byte(idx), byte(int8(delta)))
    } else {
        return self.emit(byte(OP_wide), byte(OP_iinc)).emitU2(idx).emitU2(delta)
    }
}

func (self *Builder) RET(idx int) *Builder {
    if idx < 256 {
        return self.emit(byte(OP_ret), byte(idx))
    } else {
        return self.emit(byte(OP_wide), byte(OP_ret)).emitU2(idx)
    }
}

// IF emits a conditional branch to the label.
func (self *Builder) IF(op OpCode, to string) *Builder {
    if !op.Is(F_cond) {
        panic(op.String() + " is not a conditional branch")
    }
    return self.jmp(op, to)
}

func (self *Builder) GOTO(to string)   *Builder { return self.jmp(OP_goto, to) }
func (self *Builder) GOTO_W(to string) *Builder { return self.jmp(OP_goto_w, to) }
func (self *Builder) JSR(to string)    *Builder { return self.jmp(OP_jsr, to) }
func (self *Builder) JSR_W(to string)  *Builder { return self.jmp(OP_jsr_w, to) }

func (self *Builder) align(pc int) {
    for len(self.buf) < alignSwitch(pc) {
        self.emit(0)
    }
}

// TABLESWITCH emits a tableswitch whose i-th target matches low + i.
func (self *Builder) TABLESWITCH(low int, def string, targets ...string) *Builder {
    pc := self.PC()
    self.emit(byte(OP_tableswitch))
    self.align(pc)
    self.ref(def, pc, true)
    self.emitS4(low)
    self.emitS4(low + len(targets) - 1)
    for _, to := range targets {
        self.ref(to, pc, true)
    }
    return self
}

// LOOKUPSWITCH emits a lookupswitch, keys must be sorted.
func (self *Builder) LOOKUPSWITCH(def string, keys []int, targets []string) *Builder {
    if len(keys) != len(targets) {
        panic("lookupswitch keys and targets mismatch")
    }
    pc := self.PC()
    self.emit(byte(OP_lookupswitch))
    self.align(pc)
    self.ref(def, pc, true)
    self.emitS4(len(keys))
    for i, key := range keys {
        self.emitS4(key)
        self.ref(targets[i], pc, true)
    }
    return self
}

// CPI emits an instruction taking a two byte constant pool index.
func (self *Builder) CPI(op OpCode, cpi int) *Builder {
    switch op {
        case OP_invokeinterface : return self.emit(byte(op)).emitU2(cpi).emit(1, 0)
        case OP_invokedynamic   : return self.emit(byte(op)).emitU2(cpi).emit(0, 0)
    }
    if op.Length() != 3 {
        panic(op.String() + " does not take a constant pool index")
    }
    return self.emit(byte(op)).emitU2(cpi)
}

func (self *Builder) NEWARRAY(atype int) *Builder {
    return self.emit(byte(OP_newarray), byte(atype))
}

func (self *Builder) RETURN(k Kind) *Builder {
    switch k {
        case K_int    : return self.Op(OP_ireturn)
        case K_long   : return self.Op(OP_lreturn)
        case K_float  : return self.Op(OP_freturn)
        case K_double : return self.Op(OP_dreturn)
        case K_object : return self.Op(OP_areturn)
        default       : return self.Op(OP_return)
    }
}
