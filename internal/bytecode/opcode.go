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
    `fmt`
)

type OpCode uint8

const (
    OP_nop OpCode = iota
    OP_aconst_null
    OP_iconst_m1
    OP_iconst_0
    OP_iconst_1
    OP_iconst_2
    OP_iconst_3
    OP_iconst_4
    OP_iconst_5
    OP_lconst_0
    OP_lconst_1
    OP_fconst_0
    OP_fconst_1
    OP_fconst_2
    OP_dconst_0
    OP_dconst_1
    OP_bipush
    OP_sipush
    OP_ldc
    OP_ldc_w
    OP_ldc2_w
    OP_iload
    OP_lload
    OP_fload
    OP_dload
    OP_aload
    OP_iload_0
    OP_iload_1
    OP_iload_2
    OP_iload_3
    OP_lload_0
    OP_lload_1
    OP_lload_2
    OP_lload_3
    OP_fload_0
    OP_fload_1
    OP_fload_2
    OP_fload_3
    OP_dload_0
    OP_dload_1
    OP_dload_2
    OP_dload_3
    OP_aload_0
    OP_aload_1
    OP_aload_2
    OP_aload_3
    OP_iaload
    OP_laload
    OP_faload
    OP_daload
    OP_aaload
    OP_baload
    OP_caload
    OP_saload
    OP_istore
    OP_lstore
    OP_fstore
    OP_dstore
    OP_astore
    OP_istore_0
    OP_istore_1
    OP_istore_2
    OP_istore_3
    OP_lstore_0
    OP_lstore_1
    OP_lstore_2
    OP_lstore_3
    OP_fstore_0
    OP_fstore_1
    OP_fstore_2
    OP_fstore_3
    OP_dstore_0
    OP_dstore_1
    OP_dstore_2
    OP_dstore_3
    OP_astore_0
    OP_astore_1
    OP_astore_2
    OP_astore_3
    OP_iastore
    OP_lastore
    OP_fastore
    OP_dastore
    OP_aastore
    OP_bastore
    OP_castore
    OP_sastore
    OP_pop
    OP_pop2
    OP_dup
    OP_dup_x1
    OP_dup_x2
    OP_dup2
    OP_dup2_x1
    OP_dup2_x2
    OP_swap
    OP_iadd
    OP_ladd
    OP_fadd
    OP_dadd
    OP_isub
    OP_lsub
    OP_fsub
    OP_dsub
    OP_imul
    OP_lmul
    OP_fmul
    OP_dmul
    OP_idiv
    OP_ldiv
    OP_fdiv
    OP_ddiv
    OP_irem
    OP_lrem
    OP_frem
    OP_drem
    OP_ineg
    OP_lneg
    OP_fneg
    OP_dneg
    OP_ishl
    OP_lshl
    OP_ishr
    OP_lshr
    OP_iushr
    OP_lushr
    OP_iand
    OP_land
    OP_ior
    OP_lor
    OP_ixor
    OP_lxor
    OP_iinc
    OP_i2l
    OP_i2f
    OP_i2d
    OP_l2i
    OP_l2f
    OP_l2d
    OP_f2i
    OP_f2l
    OP_f2d
    OP_d2i
    OP_d2l
    OP_d2f
    OP_i2b
    OP_i2c
    OP_i2s
    OP_lcmp
    OP_fcmpl
    OP_fcmpg
    OP_dcmpl
    OP_dcmpg
    OP_ifeq
    OP_ifne
    OP_iflt
    OP_ifge
    OP_ifgt
    OP_ifle
    OP_if_icmpeq
    OP_if_icmpne
    OP_if_icmplt
    OP_if_icmpge
    OP_if_icmpgt
    OP_if_icmple
    OP_if_acmpeq
    OP_if_acmpne
    OP_goto
    OP_jsr
    OP_ret
    OP_tableswitch
    OP_lookupswitch
    OP_ireturn
    OP_lreturn
    OP_freturn
    OP_dreturn
    OP_areturn
    OP_return
    OP_getstatic
    OP_putstatic
    OP_getfield
    OP_putfield
    OP_invokevirtual
    OP_invokespecial
    OP_invokestatic
    OP_invokeinterface
    OP_invokedynamic
    OP_new
    OP_newarray
    OP_anewarray
    OP_arraylength
    OP_athrow
    OP_checkcast
    OP_instanceof
    OP_monitorenter
    OP_monitorexit
    OP_wide
    OP_multianewarray
    OP_ifnull
    OP_ifnonnull
    OP_goto_w
    OP_jsr_w
)

const (
    F_branch = 1 << iota    // transfers control to a branch destination
    F_cond                  // falls through when the branch is not taken
    F_switch                // tableswitch or lookupswitch
    F_return                // leaves the method normally
    F_throw                 // throws the exception on top of the stack
    F_trap                  // may throw an implicit exception
    F_invoke                // calls another method
    F_jsr                   // enters a subroutine
    F_ret                   // returns from a subroutine
    F_load                  // reads a local variable
    F_store                 // writes a local variable
)

var _OpNames = [256]string {
    OP_nop             : "nop",
    OP_aconst_null     : "aconst_null",
    OP_iconst_m1       : "iconst_m1",
    OP_iconst_0        : "iconst_0",
    OP_iconst_1        : "iconst_1",
    OP_iconst_2        : "iconst_2",
    OP_iconst_3        : "iconst_3",
    OP_iconst_4        : "iconst_4",
    OP_iconst_5        : "iconst_5",
    OP_lconst_0        : "lconst_0",
    OP_lconst_1        : "lconst_1",
    OP_fconst_0        : "fconst_0",
    OP_fconst_1        : "fconst_1",
    OP_fconst_2        : "fconst_2",
    OP_dconst_0        : "dconst_0",
    OP_dconst_1        : "dconst_1",
    OP_bipush          : "bipush",
    OP_sipush          : "sipush",
    OP_ldc             : "ldc",
    OP_ldc_w           : "ldc_w",
    OP_ldc2_w          : "ldc2_w",
    OP_iload           : "iload",
    OP_lload           : "lload",
    OP_fload           : "fload",
    OP_dload           : "dload",
    OP_aload           : "aload",
    OP_iload_0         : "iload_0",
    OP_iload_1         : "iload_1",
    OP_iload_2         : "iload_2",
    OP_iload_3         : "iload_3",
    OP_lload_0         : "lload_0",
    OP_lload_1         : "lload_1",
    OP_lload_2         : "lload_2",
    OP_lload_3         : "lload_3",
    OP_fload_0         : "fload_0",
    OP_fload_1         : "fload_1",
    OP_fload_2         : "fload_2",
    OP_fload_3         : "fload_3",
    OP_dload_0         : "dload_0",
    OP_dload_1         : "dload_1",
    OP_dload_2         : "dload_2",
    OP_dload_3         : "dload_3",
    OP_aload_0         : "aload_0",
    OP_aload_1         : "aload_1",
    OP_aload_2         : "aload_2",
    OP_aload_3         : "aload_3",
    OP_iaload          : "iaload",
    OP_laload          : "laload",
    OP_faload          : "faload",
    OP_daload          : "daload",
    OP_aaload          : "aaload",
    OP_baload          : "baload",
    OP_caload          : "caload",
    OP_saload          : "saload",
    OP_istore          : "istore",
    OP_lstore          : "lstore",
    OP_fstore          : "fstore",
    OP_dstore          : "dstore",
    OP_astore          : "astore",
    OP_istore_0        : "istore_0",
    OP_istore_1        : "istore_1",
    OP_istore_2        : "istore_2",
    OP_istore_3        : "istore_3",
    OP_lstore_0        : "lstore_0",
    OP_lstore_1        : "lstore_1",
    OP_lstore_2        : "lstore_2",
    OP_lstore_3        : "lstore_3",
    OP_fstore_0        : "fstore_0",
    OP_fstore_1        : "fstore_1",
    OP_fstore_2        : "fstore_2",
    OP_fstore_3        : "fstore_3",
    OP_dstore_0        : "dstore_0",
    OP_dstore_1        : "dstore_1",
    OP_dstore_2        : "dstore_2",
    OP_dstore_3        : "dstore_3",
    OP_astore_0        : "astore_0",
    OP_astore_1        : "astore_1",
    OP_astore_2        : "astore_2",
    OP_astore_3        : "astore_3",
    OP_iastore         : "iastore",
    OP_lastore         : "lastore",
    OP_fastore         : "fastore",
    OP_dastore         : "dastore",
    OP_aastore         : "aastore",
    OP_bastore         : "bastore",
    OP_castore         : "castore",
    OP_sastore         : "sastore",
    OP_pop             : "pop",
    OP_pop2            : "pop2",
    OP_dup             : "dup",
    OP_dup_x1          : "dup_x1",
    OP_dup_x2          : "dup_x2",
    OP_dup2            : "dup2",
    OP_dup2_x1         : "dup2_x1",
    OP_dup2_x2         : "dup2_x2",
    OP_swap            : "swap",
    OP_iadd            : "iadd",
    OP_ladd            : "ladd",
    OP_fadd            : "fadd",
    OP_dadd            : "dadd",
    OP_isub            : "isub",
    OP_lsub            : "lsub",
    OP_fsub            : "fsub",
    OP_dsub            : "dsub",
    OP_imul            : "imul",
    OP_lmul            : "lmul",
    OP_fmul            : "fmul",
    OP_dmul            : "dmul",
    OP_idiv            : "idiv",
    OP_ldiv            : "ldiv",
    OP_fdiv            : "fdiv",
    OP_ddiv            : "ddiv",
    OP_irem            : "irem",
    OP_lrem            : "lrem",
    OP_frem            : "frem",
    OP_drem            : "drem",
    OP_ineg            : "ineg",
    OP_lneg            : "lneg",
    OP_fneg            : "fneg",
    OP_dneg            : "dneg",
    OP_ishl            : "ishl",
    OP_lshl            : "lshl",
    OP_ishr            : "ishr",
    OP_lshr            : "lshr",
    OP_iushr           : "iushr",
    OP_lushr           : "lushr",
    OP_iand            : "iand",
    OP_land            : "land",
    OP_ior             : "ior",
    OP_lor             : "lor",
    OP_ixor            : "ixor",
    OP_lxor            : "lxor",
    OP_iinc            : "iinc",
    OP_i2l             : "i2l",
    OP_i2f             : "i2f",
    OP_i2d             : "i2d",
    OP_l2i             : "l2i",
    OP_l2f             : "l2f",
    OP_l2d             : "l2d",
    OP_f2i             : "f2i",
    OP_f2l             : "f2l",
    OP_f2d             : "f2d",
    OP_d2i             : "d2i",
    OP_d2l             : "d2l",
    OP_d2f             : "d2f",
    OP_i2b             : "i2b",
    OP_i2c             : "i2c",
    OP_i2s             : "i2s",
    OP_lcmp            : "lcmp",
    OP_fcmpl           : "fcmpl",
    OP_fcmpg           : "fcmpg",
    OP_dcmpl           : "dcmpl",
    OP_dcmpg           : "dcmpg",
    OP_ifeq            : "ifeq",
    OP_ifne            : "ifne",
    OP_iflt            : "iflt",
    OP_ifge            : "ifge",
    OP_ifgt            : "ifgt",
    OP_ifle            : "ifle",
    OP_if_icmpeq       : "if_icmpeq",
    OP_if_icmpne       : "if_icmpne",
    OP_if_icmplt       : "if_icmplt",
    OP_if_icmpge       : "if_icmpge",
    OP_if_icmpgt       : "if_icmpgt",
    OP_if_icmple       : "if_icmple",
    OP_if_acmpeq       : "if_acmpeq",
    OP_if_acmpne       : "if_acmpne",
    OP_goto            : "goto",
    OP_jsr             : "jsr",
    OP_ret             : "ret",
    OP_tableswitch     : "tableswitch",
    OP_lookupswitch    : "lookupswitch",
    OP_ireturn         : "ireturn",
    OP_lreturn         : "lreturn",
    OP_freturn         : "freturn",
    OP_dreturn         : "dreturn",
    OP_areturn         : "areturn",
    OP_return          : "return",
    OP_getstatic       : "getstatic",
    OP_putstatic       : "putstatic",
    OP_getfield        : "getfield",
    OP_putfield        : "putfield",
    OP_invokevirtual   : "invokevirtual",
    OP_invokespecial   : "invokespecial",
    OP_invokestatic    : "invokestatic",
    OP_invokeinterface : "invokeinterface",
    OP_invokedynamic   : "invokedynamic",
    OP_new             : "new",
    OP_newarray        : "newarray",
    OP_anewarray       : "anewarray",
    OP_arraylength     : "arraylength",
    OP_athrow          : "athrow",
    OP_checkcast       : "checkcast",
    OP_instanceof      : "instanceof",
    OP_monitorenter    : "monitorenter",
    OP_monitorexit     : "monitorexit",
    OP_wide            : "wide",
    OP_multianewarray  : "multianewarray",
    OP_ifnull          : "ifnull",
    OP_ifnonnull       : "ifnonnull",
    OP_goto_w          : "goto_w",
    OP_jsr_w           : "jsr_w",
}

var _OpLength = [256]int8 {
    OP_bipush          :  2,
    OP_sipush          :  3,
    OP_ldc             :  2,
    OP_ldc_w           :  3,
    OP_ldc2_w          :  3,
    OP_iload           :  2,
    OP_lload           :  2,
    OP_fload           :  2,
    OP_dload           :  2,
    OP_aload           :  2,
    OP_istore          :  2,
    OP_lstore          :  2,
    OP_fstore          :  2,
    OP_dstore          :  2,
    OP_astore          :  2,
    OP_iinc            :  3,
    OP_ifeq            :  3,
    OP_ifne            :  3,
    OP_iflt            :  3,
    OP_ifge            :  3,
    OP_ifgt            :  3,
    OP_ifle            :  3,
    OP_if_icmpeq       :  3,
    OP_if_icmpne       :  3,
    OP_if_icmplt       :  3,
    OP_if_icmpge       :  3,
    OP_if_icmpgt       :  3,
    OP_if_icmple       :  3,
    OP_if_acmpeq       :  3,
    OP_if_acmpne       :  3,
    OP_goto            :  3,
    OP_jsr             :  3,
    OP_ret             :  2,
    OP_tableswitch     : -1,
    OP_lookupswitch    : -1,
    OP_getstatic       :  3,
    OP_putstatic       :  3,
    OP_getfield        :  3,
    OP_putfield        :  3,
    OP_invokevirtual   :  3,
    OP_invokespecial   :  3,
    OP_invokestatic    :  3,
    OP_invokeinterface :  5,
    OP_invokedynamic   :  5,
    OP_new             :  3,
    OP_newarray        :  2,
    OP_anewarray       :  3,
    OP_checkcast       :  3,
    OP_instanceof      :  3,
    OP_wide            : -1,
    OP_multianewarray  :  4,
    OP_ifnull          :  3,
    OP_ifnonnull       :  3,
    OP_goto_w          :  5,
    OP_jsr_w           :  5,
}

type _LocalAccess struct {
    kind  Kind
    index int8
}

var (
    _OpFlags [256]uint16
    _OpLocal [256]_LocalAccess
)

var _LocalKinds = [...]Kind {
    K_int,
    K_long,
    K_float,
    K_double,
    K_object,
}

func init() {
    for op := OP_nop; op <= OP_jsr_w; op++ {
        if _OpLength[op] == 0 {
            _OpLength[op] = 1
        }
    }

    /* local variable loads and stores, with and without an operand */
    for i, k := range _LocalKinds {
        ld := OP_iload + OpCode(i)
        st := OP_istore + OpCode(i)
        _OpFlags[ld] |= F_load
        _OpFlags[st] |= F_store
        _OpLocal[ld] = _LocalAccess{k, -1}
        _OpLocal[st] = _LocalAccess{k, -1}
        for n := 0; n < 4; n++ {
            ld = OP_iload_0 + OpCode(i * 4 + n)
            st = OP_istore_0 + OpCode(i * 4 + n)
            _OpFlags[ld] |= F_load
            _OpFlags[st] |= F_store
            _OpLocal[ld] = _LocalAccess{k, int8(n)}
            _OpLocal[st] = _LocalAccess{k, int8(n)}
        }
    }

    /* iinc reads and writes the same int local, ret reads the return address */
    _OpFlags[OP_iinc] |= F_load | F_store
    _OpLocal[OP_iinc] = _LocalAccess{K_int, -1}
    _OpFlags[OP_ret] |= F_load | F_ret
    _OpLocal[OP_ret] = _LocalAccess{K_object, -1}

    /* control transfers */
    for op := OP_ifeq; op <= OP_if_acmpne; op++ {
        _OpFlags[op] |= F_branch | F_cond
    }
    for _, op := range []OpCode { OP_ifnull, OP_ifnonnull } {
        _OpFlags[op] |= F_branch | F_cond
    }
    for op := OP_ireturn; op <= OP_return; op++ {
        _OpFlags[op] |= F_return
    }
    _OpFlags[OP_goto]         |= F_branch
    _OpFlags[OP_goto_w]       |= F_branch
    _OpFlags[OP_jsr]          |= F_jsr
    _OpFlags[OP_jsr_w]        |= F_jsr
    _OpFlags[OP_tableswitch]  |= F_switch
    _OpFlags[OP_lookupswitch] |= F_switch
    _OpFlags[OP_athrow]       |= F_throw | F_trap

    /* everything else that may raise an exception */
    for op := OP_iaload; op <= OP_saload; op++ {
        _OpFlags[op] |= F_trap
    }
    for op := OP_iastore; op <= OP_sastore; op++ {
        _OpFlags[op] |= F_trap
    }
    for op := OP_getstatic; op <= OP_putfield; op++ {
        _OpFlags[op] |= F_trap
    }
    for op := OP_invokevirtual; op <= OP_invokedynamic; op++ {
        _OpFlags[op] |= F_trap | F_invoke
    }
    for _, op := range []OpCode {
        OP_idiv,
        OP_ldiv,
        OP_irem,
        OP_lrem,
        OP_new,
        OP_newarray,
        OP_anewarray,
        OP_multianewarray,
        OP_arraylength,
        OP_checkcast,
        OP_monitorenter,
        OP_monitorexit,
    } {
        _OpFlags[op] |= F_trap
    }
}

func (self OpCode) String() string {
    if name := _OpNames[self]; name != "" {
        return name
    } else {
        return fmt.Sprintf("op_%#02x", uint8(self))
    }
}

// IsValid reports whether the opcode is defined.
func (self OpCode) IsValid() bool {
    return _OpLength[self] != 0
}

// Length returns the fixed instruction length, or -1 for variable length
// instructions.
func (self OpCode) Length() int {
    return int(_OpLength[self])
}

func (self OpCode) Flags() uint16 {
    return _OpFlags[self]
}

func (self OpCode) Is(flags uint16) bool {
    return _OpFlags[self] & flags != 0
}

func (self OpCode) IsBranch() bool { return self.Is(F_branch) }
func (self OpCode) IsReturn() bool { return self.Is(F_return) }
func (self OpCode) CanTrap()  bool { return self.Is(F_trap) }
func (self OpCode) IsInvoke() bool { return self.Is(F_invoke) }

// LocalAccess returns the kind of the local variable the opcode loads or
// stores, and the implicit slot index for the short forms (-1 otherwise).
func (self OpCode) LocalAccess() (Kind, int) {
    la := _OpLocal[self]
    return la.kind, int(la.index)
}

// ReturnKind is the kind of value consumed by a return-family opcode.
func (self OpCode) ReturnKind() Kind {
    switch self {
        case OP_ireturn : return K_int
        case OP_lreturn : return K_long
        case OP_freturn : return K_float
        case OP_dreturn : return K_double
        case OP_areturn : return K_object
        default         : return K_void
    }
}
