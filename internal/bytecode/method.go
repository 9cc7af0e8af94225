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

// Signature describes the parameter and return kinds of a callee.
type Signature struct {
    Params []Kind
    Return Kind
}

// ConstantPool resolves the symbolic operands the front-end needs to know the
// stack effect of an instruction.
type ConstantPool interface {
    FieldKind(cpi int) Kind
    MethodSignature(cpi int) Signature
    ConstantKind(cpi int) Kind
}

// Method is the compilation unit handed to the front-end.
type Method interface {
    Name()      string
    Code()      []byte
    MaxLocals() int
    MaxStack()  int
    Handlers()  []ExceptionHandler
    Params()    []Kind
    IsStatic()  bool
    Pool()      ConstantPool
}

// Code is a plain Method implementation.
type Code struct {
    MethodName  string
    Bytes       []byte
    Locals      int
    Stack       int
    Table       []ExceptionHandler
    ParamKinds  []Kind
    Static      bool
    Constants   ConstantPool
}

func (self *Code) Name()      string             { return self.MethodName }
func (self *Code) Code()      []byte             { return self.Bytes }
func (self *Code) MaxLocals() int                { return self.Locals }
func (self *Code) MaxStack()  int                { return self.Stack }
func (self *Code) Handlers()  []ExceptionHandler { return self.Table }
func (self *Code) Params()    []Kind             { return self.ParamKinds }
func (self *Code) IsStatic()  bool               { return self.Static }

func (self *Code) Pool() ConstantPool {
    if self.Constants == nil {
        return (*Pool)(nil)
    } else {
        return self.Constants
    }
}

// Pool is a map backed ConstantPool. Unknown fields and constants are ints,
// unknown methods take no arguments and return nothing.
type Pool struct {
    Fields    map[int]Kind
    Methods   map[int]Signature
    Constants map[int]Kind
}

func (self *Pool) FieldKind(cpi int) Kind {
    if self != nil {
        if k, ok := self.Fields[cpi]; ok {
            return k
        }
    }
    return K_int
}

func (self *Pool) MethodSignature(cpi int) Signature {
    if self != nil {
        if sig, ok := self.Methods[cpi]; ok {
            return sig
        }
    }
    return Signature{Return: K_void}
}

func (self *Pool) ConstantKind(cpi int) Kind {
    if self != nil {
        if k, ok := self.Constants[cpi]; ok {
            return k
        }
    }
    return K_int
}
