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

package graph

import (
    `strings`

    `github.com/cloudwego/bcflow/internal/bytecode`
)

// Graph owns the nodes created while parsing one method.
type Graph struct {
    Values []Value
    Merges []*Merge
    Exits  []*LoopExit
    nmon   int
}

func New() *Graph {
    return new(Graph)
}

func (self *Graph) base(kind bytecode.Kind) _Node {
    return _Node {
        id   : len(self.Values),
        kind : kind,
    }
}

func (self *Graph) add(v Value) Value {
    self.Values = append(self.Values, v)
    return v
}

func (self *Graph) Const(kind bytecode.Kind, v int64) *Const {
    p := &Const{_Node: self.base(kind), V: v}
    self.add(p)
    return p
}

// JsrConst is the return address pushed by a jsr.
func (self *Graph) JsrConst(ret int) *Const {
    p := &Const{_Node: self.base(bytecode.K_object), V: int64(ret), Jsr: true}
    self.add(p)
    return p
}

// DefaultValue is the neutral value of a kind, used as a placeholder input.
func (self *Graph) DefaultValue(kind bytecode.Kind) *Const {
    return self.Const(kind, 0)
}

func (self *Graph) Param(kind bytecode.Kind, index int) *Param {
    p := &Param{_Node: self.base(kind), Index: index}
    self.add(p)
    return p
}

func (self *Graph) Op(op bytecode.OpCode, bci int, kind bytecode.Kind, inputs ...Value) *Op {
    p := &Op{_Node: self.base(kind), Opcode: op, Bci: bci, Inputs: inputs}
    self.add(p)
    return p
}

func (self *Graph) ExceptionObject(bci int) *ExceptionObject {
    p := &ExceptionObject{_Node: self.base(bytecode.K_object), Bci: bci}
    self.add(p)
    return p
}

// Phi creates a phi of merge with no inputs.
func (self *Graph) Phi(kind bytecode.Kind, merge *Merge) *Phi {
    p := &Phi{_Node: self.base(kind), Merge: merge}
    merge.Phis = append(merge.Phis, p)
    self.add(p)
    return p
}

func (self *Graph) Proxy(v Value, exit *LoopExit) *Proxy {
    p := &Proxy{_Node: self.base(v.Kind()), Value: v, Exit: exit}
    self.add(p)
    return p
}

func (self *Graph) Merge(block int) *Merge {
    p := &Merge{Id: len(self.Merges), Block: block}
    self.Merges = append(self.Merges, p)
    return p
}

func (self *Graph) LoopBegin(block int) *Merge {
    p := self.Merge(block)
    p.IsLoop = true
    return p
}

func (self *Graph) LoopExit(loop *Merge, block int) *LoopExit {
    p := &LoopExit{Id: len(self.Exits), Loop: loop, Block: block}
    self.Exits = append(self.Exits, p)
    return p
}

func (self *Graph) MonitorId(depth int) *MonitorId {
    self.nmon++
    return &MonitorId{Id: self.nmon - 1, Depth: depth}
}

func (self *Graph) String() string {
    buf := make([]string, 0, len(self.Values) + len(self.Merges) + len(self.Exits))
    for _, m := range self.Merges {
        buf = append(buf, m.String())
    }
    for _, x := range self.Exits {
        buf = append(buf, x.String())
    }
    for _, v := range self.Values {
        buf = append(buf, v.String())
    }
    return strings.Join(buf, "\n")
}
