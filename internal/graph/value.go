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
    `fmt`
    `strings`

    `github.com/cloudwego/bcflow/internal/bytecode`
)

// Value is a node that produces a value.
type Value interface {
    fmt.Stringer
    Id()   int
    Kind() bytecode.Kind
    value()
}

func (*Const)           value() {}
func (*Param)           value() {}
func (*Op)              value() {}
func (*ExceptionObject) value() {}
func (*Phi)             value() {}
func (*Proxy)           value() {}

type _Node struct {
    id   int
    kind bytecode.Kind
}

func (self *_Node) Id()   int           { return self.id }
func (self *_Node) Kind() bytecode.Kind { return self.kind }

// Const is a constant. A Jsr constant holds the return address pushed by a jsr.
type Const struct {
    _Node
    V   int64
    Jsr bool
}

func (self *Const) String() string {
    if self.Jsr {
        return fmt.Sprintf("v%d = jsr(%d)", self.id, self.V)
    } else {
        return fmt.Sprintf("v%d = const.%s %d", self.id, self.kind, self.V)
    }
}

type Param struct {
    _Node
    Index int
}

func (self *Param) String() string {
    return fmt.Sprintf("v%d = param.%s #%d", self.id, self.kind, self.Index)
}

// Op is the result of an instruction the front-end does not model further.
type Op struct {
    _Node
    Opcode bytecode.OpCode
    Bci    int
    Inputs []Value
}

func (self *Op) String() string {
    return fmt.Sprintf("v%d = %s@%d(%s)", self.id, self.Opcode, self.Bci, refs(self.Inputs))
}

// ExceptionObject is the exception being dispatched to a handler.
type ExceptionObject struct {
    _Node
    Bci int
}

func (self *ExceptionObject) String() string {
    return fmt.Sprintf("v%d = exception@%d", self.id, self.Bci)
}

// Phi merges one value per predecessor edge of Merge. A dead phi received an
// incompatible input and must not be used.
type Phi struct {
    _Node
    Merge  *Merge
    Inputs []Value
    Dead   bool
}

func (self *Phi) AddInput(v Value) {
    self.Inputs = append(self.Inputs, v)
}

func (self *Phi) String() string {
    if self.Dead {
        return fmt.Sprintf("v%d = φ.dead(%s)", self.id, refs(self.Inputs))
    } else {
        return fmt.Sprintf("v%d = φ.%s@B%d(%s)", self.id, self.kind, self.Merge.Block, refs(self.Inputs))
    }
}

// Proxy wraps a value flowing out of a loop through Exit.
type Proxy struct {
    _Node
    Value Value
    Exit  *LoopExit
}

func (self *Proxy) String() string {
    return fmt.Sprintf("v%d = proxy(v%d, B%d)", self.id, self.Value.Id(), self.Exit.Loop.Block)
}

// Merge is a control flow join. For a loop begin, Ends counts the forward
// ends and LoopEnds the back edges.
type Merge struct {
    Id       int
    Block    int
    Ends     int
    IsLoop   bool
    LoopEnds int
    Phis     []*Phi
}

// PhiPredecessorCount is the number of inputs every phi of this merge has.
func (self *Merge) PhiPredecessorCount() int {
    return self.Ends + self.LoopEnds
}

func (self *Merge) String() string {
    if self.IsLoop {
        return fmt.Sprintf("m%d = loop@B%d(ends=%d, back=%d)", self.Id, self.Block, self.Ends, self.LoopEnds)
    } else {
        return fmt.Sprintf("m%d = merge@B%d(ends=%d)", self.Id, self.Block, self.Ends)
    }
}

// LoopExit marks an edge leaving the loop started by Loop.
type LoopExit struct {
    Id    int
    Loop  *Merge
    Block int
}

func (self *LoopExit) String() string {
    return fmt.Sprintf("x%d = exit(m%d)@B%d", self.Id, self.Loop.Id, self.Block)
}

// MonitorId identifies one monitorenter / monitorexit pair.
type MonitorId struct {
    Id    int
    Depth int
}

func (self *MonitorId) String() string {
    return fmt.Sprintf("mon%d#%d", self.Id, self.Depth)
}

func refs(vs []Value) string {
    buf := make([]string, len(vs))
    for i, v := range vs {
        if v == nil {
            buf[i] = "_"
        } else {
            buf[i] = fmt.Sprintf("v%d", v.Id())
        }
    }
    return strings.Join(buf, ", ")
}
